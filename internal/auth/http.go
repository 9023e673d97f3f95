// ABOUTME: HTTP middleware for JWT authentication on bot endpoints
// ABOUTME: Extracts the bearer token and adds the caller Identity to the request context

package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// HTTPAuthMiddleware verifies bearer tokens and attaches the Identity to the
// request context. A nil verifier disables authentication and attaches an
// anonymous identity.
func HTTPAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Anonymous())))
				return
			}

			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logAuthFailure(logger, r, errMsg, nil)
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logAuthFailure(logger, r, "invalid token", err)
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string, err error) {
	attrs := []any{
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"reason", reason,
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	logger.Warn("authentication failed", attrs...)
}
