package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/langcham/mapquiz/internal/identity"
)

type ctxKey int

const (
	ctxKeyUser ctxKey = iota
	ctxKeyToken
)

// bearerToken reads the Authorization header, falling back to the token
// query parameter used by EventSource and WebSocket clients.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// authenticate resolves the current user when a valid token is present.
// Requests without one continue anonymously.
func authenticate(ids *identity.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			user, err := ids.CurrentUser(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			ctx = context.WithValue(ctx, ctxKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := currentUser(r); !ok {
			writeError(w, http.StatusUnauthorized, "not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentUser(r *http.Request) (identity.User, bool) {
	u, ok := r.Context().Value(ctxKeyUser).(identity.User)
	return u, ok
}

func sessionToken(r *http.Request) string {
	tok, _ := r.Context().Value(ctxKeyToken).(string)
	return tok
}
