package middleware

import (
	"log/slog"
	"net/http"

	"tokengate/pkg/domain"
	"tokengate/pkg/requestcontext"
)

// CallerHeader carries the transaction-sender address. The host that fronts
// this service is expected to have authenticated the sender (the ledger's
// msg.sender equivalent); wallet and key management stay outside the core.
const CallerHeader = "X-Caller-Address"

// Caller extracts the caller address when present so read paths can use it
// opportunistically. It never rejects.
func Caller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(CallerHeader); raw != "" {
			if addr, err := domain.ParseAddress(raw); err == nil {
				r = r.WithContext(requestcontext.WithCaller(r.Context(), addr))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCaller rejects requests without a valid caller address. Mutating
// routes mount this: every state transition needs a sender identity.
func RequireCaller(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(CallerHeader)
			addr, err := domain.ParseAddress(raw)
			if err != nil || addr.IsZero() {
				logger.WarnContext(r.Context(), "rejected request without caller address",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"missing or invalid caller address"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(r.Context(), addr)))
		})
	}
}
