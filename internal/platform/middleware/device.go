package middleware

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

type botKey struct{}

// Device parses the User-Agent and flags crawler traffic in the context.
// Consent intents from bots are ignored downstream: a crawler never sees a
// banner and must never mint a consent record.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := useragent.New(r.UserAgent())
		ctx := context.WithValue(r.Context(), botKey{}, ua.Bot())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsBot reports whether the request was flagged as crawler traffic.
func IsBot(ctx context.Context) bool {
	isBot, ok := ctx.Value(botKey{}).(bool)
	return ok && isBot
}
