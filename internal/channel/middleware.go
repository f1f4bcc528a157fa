package channel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/verification"
)

// CorrelationIDHeader lets HTTP callers tag a verification for log lookup.
const CorrelationIDHeader = "X-Correlation-ID"

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// requestContext moves the chi request ID and a correlation ID into the
// request context for log.WithContext.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = log.ContextWithRequestID(ctx, id)
		}
		corr := r.Header.Get(CorrelationIDHeader)
		if corr == "" {
			corr = uuid.NewString()
		}
		w.Header().Set(CorrelationIDHeader, corr)
		ctx = log.ContextWithCorrelationID(ctx, corr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			t1 := time.Now()
			defer func() {
				l := log.WithContext(r.Context(), logger)
				l.Debug().
					Str("event", "http.request").
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(t1)).
					Msg("http request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// rateLimit limits requests per client IP over a one minute window. A limit
// of zero disables it.
func rateLimit(limit int) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := time.Minute
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, ErrorPayload{
				Code:    "RATE_LIMITED",
				Message: "too many requests, try again later",
			})
		}),
	)
}

// statusFor maps a caller-facing code onto an HTTP status.
func statusFor(code verification.Code) int {
	switch code {
	case verification.CodeInvalidArgs:
		return http.StatusBadRequest
	case verification.CodeAlreadyPending:
		return http.StatusConflict
	case verification.CodeNotInitialized:
		return http.StatusServiceUnavailable
	case verification.CodeSDKError:
		return http.StatusBadGateway
	case verification.CodeVerificationFailed:
		return http.StatusUnprocessableEntity
	case verification.CodeTimeout:
		return http.StatusGatewayTimeout
	case verification.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
