package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qazna.org/authcore/internal/ids"
	"qazna.org/authcore/internal/obs"
)

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.code = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequestID assigns the correlation id. A well-formed inbound value in header
// is reused; otherwise a fresh ULID is generated. The id is echoed back.
func RequestID(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ids.Correlation(r.Header.Get(header))
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(obs.ContextWithRequestID(r.Context(), id)))
		})
	}
}

type outcomeKey struct{}

// outcome is shared between AccessLog and Recover so a recovered panic is
// reported on the single summary line.
type outcome struct {
	panicked any
}

// AccessLog emits one summary line per request: "request complete" at info,
// or "request failed" at error when Recover caught a panic downstream.
func AccessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			oc := &outcome{}
			start := time.Now()
			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), outcomeKey{}, oc)))
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.code),
				slog.Float64("duration_ms", durationMillis(time.Since(start))),
			}
			if oc.panicked != nil {
				attrs = append(attrs, slog.String("panic", fmt.Sprint(oc.panicked)))
				logger.LogAttrs(r.Context(), slog.LevelError, "request failed", attrs...)
				return
			}
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request complete", attrs...)
		})
	}
}

// Recover turns a panic into an internal_error response. Under AccessLog the
// panic is handed to the summary line; on its own Recover logs it directly.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				if oc, ok := r.Context().Value(outcomeKey{}).(*outcome); ok {
					oc.panicked = rec
				} else {
					logger.ErrorContext(r.Context(), "request failed",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.Int("status", http.StatusInternalServerError),
						slog.String("panic", fmt.Sprint(rec)),
					)
				}
				writeError(w, r, http.StatusInternalServerError, msgInternalError, nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records request metrics labelled with the chi route template so
// path parameters do not explode label cardinality.
func Instrument(m *obs.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := m.InFlight()
			defer done()
			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			m.ObserveRequest(r.Method, routeLabel(r), strconv.Itoa(sw.code), time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Tracing starts a server span per request.
func Tracing(service string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
}

// SecurityHeaders sets hardening headers for a JSON-only API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if maxBytes <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured origins with credentials. No origins means
// no CORS handling at all.
func CORS(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		return cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowCredentials: true,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			MaxAge:           600,
		}).Handler(next)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
