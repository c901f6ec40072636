// Package server wires the diskfs HTTP API: a chi router over the
// configured disks plus health and Prometheus endpoints.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ebogdum/diskfs/auth"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/metrics"
	"github.com/ebogdum/diskfs/server/handlers"
	diskfsMiddleware "github.com/ebogdum/diskfs/server/middleware"
)

// NewRouter creates and configures the HTTP router. verifier may be nil,
// which leaves signed downloads unmounted.
func NewRouter(disks handlers.DiskResolver, verifier handlers.LinkVerifier, serverConfig *config.ServerConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(diskfsMiddleware.V1RequestIDMiddleware())
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(diskfsMiddleware.V1SecurityHeaders())

	// Custom logging and metrics middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)

			// the route pattern keeps label cardinality bounded
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("request_id", diskfsMiddleware.GetRequestID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			logger.Error("Failed to write health check response", zap.Error(err))
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if serverConfig.RateLimit > 0 {
			burst := max(serverConfig.RateBurst, 1)
			limiter := rate.NewLimiter(rate.Limit(serverConfig.RateLimit), burst)
			r.Use(diskfsMiddleware.V1RateLimitMiddleware(limiter, logger))
		}

		// Signed links carry their own authorization
		if verifier != nil {
			r.Get("/signed/{disk}/*", handlers.V1SignedDownload(disks, verifier, logger))
		}

		r.Group(func(r chi.Router) {
			if authenticator := auth.NewAPIKeyAuthenticator(serverConfig.APIKeys); authenticator.Enabled() {
				r.Use(diskfsMiddleware.V1AuthMiddleware(authenticator, logger))
			}

			r.Route("/disks/{disk}", func(r chi.Router) {
				r.Get("/files/*", handlers.V1ServeFile(disks, logger))
				r.Get("/download/*", handlers.V1DownloadFile(disks, logger))
				r.Get("/list/*", handlers.V1ListDirectory(disks, logger))
				r.Get("/url/*", handlers.V1FileURL(disks, logger))
			})
		})
	})

	logger.Info("HTTP router configured successfully",
		zap.Bool("auth_enabled", len(serverConfig.APIKeys) > 0),
		zap.Bool("signed_links", verifier != nil),
		zap.Float64("rate_limit", serverConfig.RateLimit))

	return r
}
