package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"quizbattle-service/internal/auth"
)

type ctxKey int

const userIDKey ctxKey = iota

// AuthMiddleware verifies the bearer token and stashes the user ID in the
// request context. The battle core only ever sees the verified identity.
func AuthMiddleware(tokens *auth.Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr := strings.TrimPrefix(header, "Bearer ")
			if tokenStr == "" || tokenStr == header {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "not authorized"})
				return
			}
			uid, err := tokens.Verify(tokenStr)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "bad token"})
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, uid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userID(r *http.Request) uuid.UUID {
	uid, _ := r.Context().Value(userIDKey).(uuid.UUID)
	return uid
}
