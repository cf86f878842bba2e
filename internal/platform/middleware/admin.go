package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"tokengate/pkg/requestcontext"
)

// AdminValidator validates administrator bearer tokens.
type AdminValidator struct {
	signingKey []byte
}

// NewAdminValidator creates a validator for HS256 admin tokens.
func NewAdminValidator(signingKey string) *AdminValidator {
	return &AdminValidator{signingKey: []byte(signingKey)}
}

// Validate parses the token and checks the admin role claim.
func (v *AdminValidator) Validate(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return fmt.Errorf("parse admin token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid admin token")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("token lacks admin role")
	}
	return nil
}

// RequireAdmin gates administrator-only routes (fee withdrawal, treasury
// reads) behind a bearer token.
func RequireAdmin(validator *AdminValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "admin route without bearer token",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeForbidden(w)
				return
			}
			if err := validator.Validate(token); err != nil {
				logger.WarnContext(ctx, "admin token rejected",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithAdmin(ctx, true)))
		})
	}
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden"}`))
}
