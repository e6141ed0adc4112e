package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"careAlert/internal/auth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type bindTarget struct {
	Name  string `json:"name" validate:"required"`
	Level int    `json:"level" validate:"omitempty,min=1,max=3"`
}

func TestBindJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantName string
	}{
		{name: "ok", body: `{"name":"Ana","level":2}`, wantCode: http.StatusOK, wantName: "Ana"},
		{name: "malformed", body: `{"name":`, wantCode: http.StatusBadRequest},
		{name: "empty", body: ``, wantCode: http.StatusBadRequest},
		{name: "validation", body: `{"level":7}`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got *bindTarget
			h := BindJSON[bindTarget]()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = Payload[bindTarget](r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != http.StatusOK {
				var body map[string]string
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == "" {
					t.Fatalf("expected JSON error body, got %q", rec.Body.String())
				}
				return
			}
			if got == nil || got.Name != tt.wantName {
				t.Fatalf("payload = %+v", got)
			}
		})
	}
}

func TestPayload_MissingIsNil(t *testing.T) {
	t.Parallel()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if Payload[bindTarget](r.Context()) != nil {
		t.Fatalf("expected nil payload")
	}
}

func TestLimit_RejectsBurstOverflow(t *testing.T) {
	t.Parallel()

	l := newRateLimiter(rate.Limit(1), 2, time.Minute)
	h := l.LimitMiddleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}

	// another client has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second client code = %d", rec.Code)
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	t.Parallel()

	l := newRateLimiter(rate.Limit(1), 1, time.Minute)
	l.getVisitor("10.0.0.1")
	l.evict(time.Now())
	if len(l.visitors) != 1 {
		t.Fatalf("fresh visitor evicted")
	}
	l.evict(time.Now().Add(2 * time.Minute))
	if len(l.visitors) != 0 {
		t.Fatalf("idle visitor kept")
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	const secret, issuer = "s3cret", "care-identity"
	token, err := auth.NewAccessToken(secret, issuer, time.Hour, auth.Claims{StaffCode: "P002"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name      string
		disabled  bool
		header    string
		wantCode  int
		wantStaff string
	}{
		{name: "valid", header: "Bearer " + token, wantCode: http.StatusOK, wantStaff: "P002"},
		{name: "lowercase scheme", header: "bearer " + token, wantCode: http.StatusOK, wantStaff: "P002"},
		{name: "missing", wantCode: http.StatusUnauthorized},
		{name: "basic", header: "Basic abc", wantCode: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer nope", wantCode: http.StatusUnauthorized},
		{name: "disabled", disabled: true, wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var staffCode string
			h := Authenticate(secret, issuer, tt.disabled, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if c := ClaimsFromContext(r.Context()); c != nil {
					staffCode = c.StaffCode
				}
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if staffCode != tt.wantStaff {
				t.Fatalf("staff code = %q, want %q", staffCode, tt.wantStaff)
			}
		})
	}
}
