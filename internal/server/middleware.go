package server

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/BiasLens/internal/apperr"
	"github.com/TobiSchelling/BiasLens/internal/auth"
)

// maxLimiters bounds the per-client limiter table; it is cleared when full.
const maxLimiters = 10000

// requireAuth rejects requests without a valid bearer token.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.tokens.Authenticate(r.Context(), auth.BearerToken(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	})
}

// optionalAuth attaches a session when a token is sent. A token that does
// not resolve is still rejected.
func (s *Server) optionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			next(w, r)
			return
		}
		sess, err := s.tokens.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r.WithContext(auth.WithSession(r.Context(), sess)))
	}
}

// rateLimited applies the per-client analysis limit.
func (s *Server) rateLimited(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
			return
		}
		next(w, r)
	})
}

func clientKey(r *http.Request) string {
	if token := auth.BearerToken(r); token != "" {
		return "t:" + auth.HashToken(token)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type clientLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// newClientLimiter returns nil when perMinute is zero, which allows
// everything.
func newClientLimiter(perMinute, burst int) *clientLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *clientLimiter) allow(key string) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	l, ok := c.limiters[key]
	if !ok {
		if len(c.limiters) >= maxLimiters {
			clear(c.limiters)
		}
		l = rate.NewLimiter(c.limit, c.burst)
		c.limiters[key] = l
	}
	c.mu.Unlock()
	return l.Allow()
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err with its mapped status. Server-side failures are
// logged with their cause; the caller only sees the safe message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", apperr.KindOf(err), "error", err)
	}
	writeJSON(w, status, errorResponse{Error: apperr.Message(err)})
}
