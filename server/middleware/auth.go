// Package middleware holds the HTTP middleware of the diskfs download API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/auth"
)

type contextKey string

const (
	clientIDKey  contextKey = "clientID"
	RequestIDKey contextKey = "request_id"
)

// V1AuthMiddleware creates middleware for API key authentication
func V1AuthMiddleware(authenticator auth.Authenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing Authorization header")
				writeError(w, logger, http.StatusUnauthorized, "AUTHENTICATION_FAILED", auth.ErrAuthenticationFailed)
				return
			}

			clientID, err := authenticator.Authenticate(r.Context(), authHeader)
			if err != nil {
				logger.Debug("Authentication failed", zap.Error(err))
				writeError(w, logger, http.StatusUnauthorized, "AUTHENTICATION_FAILED", auth.ErrAuthenticationFailed)
				return
			}

			ctx := context.WithValue(r.Context(), clientIDKey, clientID)
			logger.Debug("Client authenticated", zap.String("client_id", clientID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// V1RequestIDMiddleware adds a unique request ID to each request context.
// An incoming X-Request-ID that parses as a UUID is kept.
func V1RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			w.Header().Set("X-Request-ID", requestID)
			ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClientID extracts the authenticated client ID from request context
func GetClientID(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(clientIDKey).(string)
	return clientID, ok
}

// GetRequestID extracts the request ID from request context
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}
