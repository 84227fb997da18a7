package server

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const ctxKeyUser ctxKey = iota

// UserHeader carries the signed-in account id, set by the auth proxy in
// front of the player. Requests without it are guests.
const UserHeader = "X-User-ID"

func userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		ctx := context.WithValue(r.Context(), ctxKeyUser, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUser).(string)
	return id
}
