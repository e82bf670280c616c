package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// clientLimiter stores the token bucket of one client.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits requests per client with a token bucket.
type RateLimitMiddleware struct {
	clients map[string]*clientLimiter
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idle    time.Duration

	// OnLimited, if set, is called for every rejected request.
	OnLimited func(r *http.Request)

	// TrustProxy keys clients by X-Forwarded-For or X-Real-IP. Leave it off
	// unless a proxy in front of the desk sets those headers.
	TrustProxy bool
}

// NewRateLimitMiddleware creates a new rate limiting middleware. Clients idle
// for longer than 30 minutes are forgotten by Cleanup.
func NewRateLimitMiddleware(rps float64, burst int) *RateLimitMiddleware {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitMiddleware{
		clients: make(map[string]*clientLimiter),
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    30 * time.Minute,
	}
}

func (m *RateLimitMiddleware) limiterFor(client string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	cl, exists := m.clients[client]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(m.rps, m.burst)}
		m.clients[client] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

// RateLimit applies rate limiting based on client IP address
func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := getClientIP(r, m.TrustProxy)
		if !m.limiterFor(clientIP).Allow() {
			log.WithFields(log.Fields{
				"client": clientIP,
				"path":   r.URL.Path,
			}).Warn("Rate limit exceeded")
			if m.OnLimited != nil {
				m.OnLimited(r)
			}
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup removes idle clients every interval until ctx is done.
func (m *RateLimitMiddleware) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(time.Now()); n > 0 {
				log.WithField("removed", n).Debug("Rate limiter cleanup")
			}
		}
	}
}

func (m *RateLimitMiddleware) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, cl := range m.clients {
		if now.Sub(cl.lastSeen) > m.idle {
			delete(m.clients, id)
			removed++
		}
	}
	return removed
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
			return strings.TrimSpace(strings.Split(ip, ",")[0])
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return strings.TrimSpace(ip)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
