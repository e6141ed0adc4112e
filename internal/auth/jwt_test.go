package auth_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"careAlert/internal/auth"
)

const (
	secret = "test-secret"
	issuer = "care-identity"
)

func TestParseToken(t *testing.T) {
	t.Parallel()

	valid, err := auth.NewAccessToken(secret, issuer, time.Hour, auth.Claims{StaffCode: "P002", Role: "nurse"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired, err := auth.NewAccessToken(secret, issuer, -time.Minute, auth.Claims{StaffCode: "P002"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	foreign, err := auth.NewAccessToken(secret, "someone-else", time.Hour, auth.Claims{StaffCode: "P002"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	anonymous, err := auth.NewAccessToken(secret, issuer, time.Hour, auth.Claims{})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{StaffCode: "P002"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name    string
		secret  string
		issuer  string
		token   string
		wantErr error
	}{
		{name: "valid", secret: secret, issuer: issuer, token: valid},
		{name: "issuer not checked", secret: secret, token: foreign},
		{name: "expired", secret: secret, issuer: issuer, token: expired, wantErr: jwt.ErrTokenExpired},
		{name: "wrong issuer", secret: secret, issuer: issuer, token: foreign, wantErr: jwt.ErrTokenInvalidIssuer},
		{name: "wrong secret", secret: "other", issuer: issuer, token: valid, wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "alg none", secret: secret, issuer: issuer, token: none, wantErr: jwt.ErrTokenSignatureInvalid},
		{name: "no identity", secret: secret, issuer: issuer, token: anonymous, wantErr: jwt.ErrTokenInvalidClaims},
		{name: "garbage", secret: secret, issuer: issuer, token: "not-a-jwt", wantErr: jwt.ErrTokenMalformed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			claims, err := auth.ParseToken(tt.secret, tt.issuer, tt.token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if claims.StaffCode != "P002" || claims.Subject != "P002" {
				t.Fatalf("unexpected claims: %+v", claims)
			}
		})
	}
}
