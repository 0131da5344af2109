package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per client connection.
type limiterSet struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
	lastGC  time.Time
}

func newLimiterSet(perSecond float64, burst int) *limiterSet {
	if perSecond <= 0 {
		return &limiterSet{limit: rate.Inf}
	}
	if burst <= 0 {
		burst = int(perSecond) + 1
	}
	return &limiterSet{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

// newLimiter returns a limiter owned by a single long-lived connection.
func (l *limiterSet) newLimiter() *rate.Limiter {
	return rate.NewLimiter(l.limit, l.burst)
}

func (l *limiterSet) allow(r *http.Request) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > limiterIdleTTL {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(l.clients, key)
			}
		}
		l.lastGC = now
	}

	key := r.RemoteAddr
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.lim.AllowN(now, 1)
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
