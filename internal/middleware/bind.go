package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"careAlert/pkg/validator"
)

const maxBodyBytes = 1 << 20

type payloadKey[T any] struct{}

// BindJSON decodes and validates the body into a fresh T per request and
// hands it to the next handler through the context (see Payload).
func BindJSON[T any]() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target := new(T)

			dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
			if err := dec.Decode(target); err != nil {
				msg := "invalid JSON"
				if errors.Is(err, io.EOF) {
					msg = "empty body"
				}
				writeError(w, http.StatusBadRequest, msg)
				return
			}

			if err := validator.ValidateStruct(target); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), payloadKey[T]{}, target)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Payload returns what BindJSON[T] stored, or nil when it did not run.
func Payload[T any](ctx context.Context) *T {
	v, _ := ctx.Value(payloadKey[T]{}).(*T)
	return v
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
