package ui

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"gosplit/domain/core"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDHeader carries the correlation id in both directions.
const requestIDHeader = "X-Request-ID"

// RequestIDFromContext returns the request's correlation id, or "" outside a
// request scope.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// withRequestID tags every request with a correlation id, honoring an inbound
// X-Request-ID header and minting a fresh one otherwise. The id is echoed on
// the response and rides the context into logs and error envelopes.
func (a *App) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = core.NewID().String()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logRequests emits one structured line per served request.
func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Info().
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// recordRequests feeds the in-process aggregate and the Prometheus vectors.
// Labels use the chi route pattern so ids never blow up the cardinality.
func (a *App) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		a.metrics.InFlight.Inc()
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.metrics.InFlight.Dec()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		path := routePattern(r)

		a.requestMetrics.Record(r.Method, path, status, duration.Seconds()*1000)
		a.metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		a.metrics.HTTPDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// cors answers preflights and stamps the allow-origin header from config.
func (a *App) cors(next http.Handler) http.Handler {
	allowAll := slices.Contains(a.cfg.Server.AllowedOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(a.cfg.Server.AllowedOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

// writeRatePrefixes are the ingest-heavy POST surfaces behind the limiter.
// The bare /experiments create path is deliberately absent; only lifecycle
// subpaths sit behind the bucket.
var writeRatePrefixes = []string{
	"/api/v1/events",
	"/api/v1/assignments",
	"/api/v1/metrics/guardrails",
	"/api/v1/experiments/",
}

// limitWrites applies a per-client token bucket to write-heavy POST routes.
func (a *App) limitWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && hasWritePrefix(r.URL.Path) {
			if !a.limiter.allow(clientAddr(r)) {
				writeError(w, r, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func hasWritePrefix(path string) bool {
	for _, prefix := range writeRatePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// clientAddr identifies the caller, preferring the first X-Forwarded-For hop.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const (
	limiterTableMax     = 4096
	limiterIdleEviction = 10 * time.Minute
)

// clientLimiter hands out one token bucket per client address. Idle buckets
// are evicted once the table grows past limiterTableMax.
type clientLimiter struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.clients[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now

	if len(l.clients) > limiterTableMax {
		for key, bucket := range l.clients {
			if now.Sub(bucket.lastSeen) > limiterIdleEviction {
				delete(l.clients, key)
			}
		}
	}
	return b.limiter.Allow()
}

// writeGate requires a configured bearer token on mutating verbs. Development
// with zero configured tokens leaves the gate open.
func (a *App) writeGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !mutating(r.Method) || !a.cfg.WriteGateEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok || !a.tokenAccepted(token) {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func (a *App) tokenAccepted(token string) bool {
	for _, admin := range a.cfg.Auth.AdminTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(admin)) == 1 {
			return true
		}
	}
	return false
}

// recoverPanics converts handler panics into the 500 envelope.
func (a *App) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			log.Error().
				Str("request_id", RequestIDFromContext(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Interface("panic", rvr).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			writeError(w, r, http.StatusInternalServerError, "internal", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}
