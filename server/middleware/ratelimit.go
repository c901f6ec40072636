package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("rate limit exceeded")

// V1RateLimitMiddleware applies one shared token bucket to every request
// that passes through it. Rejected requests get a Retry-After hint.
func V1RateLimitMiddleware(limiter *rate.Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reservation := limiter.Reserve()
			if reservation.OK() && reservation.Delay() == 0 {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := 1
			if reservation.OK() {
				retryAfter = max(int(math.Ceil(reservation.Delay().Seconds())), 1)
				reservation.Cancel()
			}

			logger.Warn("Request rate limited",
				zap.String("method", r.Method),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("retry_after", retryAfter),
				zap.String("request_id", GetRequestID(r.Context())))

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, logger, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", errRateLimited)
		})
	}
}
