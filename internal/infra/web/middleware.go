package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"carservice-commerce/internal/domain"
	"carservice-commerce/internal/infra/logging"
	"carservice-commerce/internal/infra/metrics"
	"carservice-commerce/internal/usecase"
)

// Middleware has the shape chi.Router.Use expects.
type Middleware func(http.Handler) http.Handler

// TraceID honours an incoming X-Request-ID and mints a trace id per request.
func TraceID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logging.WithTraceID(r.Context(), uuid.NewString())
			if rid := r.Header.Get("X-Request-ID"); rid != "" {
				ctx = logging.WithRequestID(ctx, rid)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLog logs every request and records its latency under the chi route
// pattern, so path parameters do not explode label cardinality.
func RequestLog(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.ObserveHTTPRequest(route, ww.status, elapsed.Seconds())

			l := logging.With(r.Context(), logger)
			l.Info().
				Str("method", r.Method).
				Str("route", route).
				Int("status", ww.status).
				Dur("duration", elapsed).
				Msg("http_request")
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func Recover(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Interface("panic", rec).Msg("panic recovered")
					writeError(w, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate verifies the bearer token, registers the caller on first
// sight and binds the principal to the request context.
func Authenticate(auth *AuthManager, users usecase.UserUseCase, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := auth.ParseFromRequest(r)
			if err != nil {
				logging.With(r.Context(), logger).Debug().Err(err).Msg("rejected bearer token")
				writeError(w, domain.ErrUnauthenticated)
				return
			}
			p, err := claims.Principal()
			if err != nil {
				writeError(w, err)
				return
			}
			if users != nil {
				if _, err := users.RegisterOrFetch(r.Context(), p.UserID, p.Role); err != nil {
					logging.With(r.Context(), logger).Error().Err(err).Str("user_id", p.UserID).Msg("register principal failed")
					writeError(w, err)
					return
				}
			}
			ctx := WithPrincipal(r.Context(), p)
			ctx = logging.WithUserID(ctx, p.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Limiter is the fixed-window limiter the wallet routes consult.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit refuses more than perMinute calls of op per user. A limiter
// backend failure lets the request through.
func RateLimit(l Limiter, op string, perMinute int, key func(userID, op string) string, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := ContextPrincipalResolver{}.CurrentPrincipal(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			ok, err := l.Allow(r.Context(), key(p.UserID, op), perMinute, time.Minute)
			if err != nil {
				logging.With(r.Context(), logger).Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				metrics.IncRateLimited(op)
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
					Kind:    "rate_limited",
					Code:    "rate_limited",
					Message: "too many requests",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
