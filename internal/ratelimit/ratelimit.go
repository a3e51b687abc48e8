// Package ratelimit limits API requests per client address in fixed
// windows, with an allow list of addresses and networks that bypass it.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ryan-winkler/cfcalendar/internal/httputil"
)

// Limiter is a per-client request limiter.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	limit   int
	period  time.Duration
	hosts   map[string]bool
	nets    []*net.IPNet
	now     func() time.Time
}

type window struct {
	used  int
	start time.Time
}

// New returns a limiter admitting limit requests per period from each
// client. allow lists IPs and CIDRs that are never limited; malformed
// entries are ignored. limit <= 0 disables limiting.
func New(limit int, period time.Duration, allow []string) *Limiter {
	l := &Limiter{
		clients: make(map[string]*window),
		limit:   limit,
		period:  period,
		hosts:   make(map[string]bool),
		now:     time.Now,
	}
	for _, entry := range allow {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, n, err := net.ParseCIDR(entry); err == nil {
				l.nets = append(l.nets, n)
			}
			continue
		}
		l.hosts[entry] = true
	}
	return l
}

// Enabled reports whether any request can be refused.
func (l *Limiter) Enabled() bool { return l.limit > 0 }

// Allow records a request from addr ("host" or "host:port") and reports
// whether it is within the limit.
func (l *Limiter) Allow(addr string) bool {
	ok, _ := l.take(addr)
	return ok
}

// take is Allow, also returning how long until the client's window resets.
func (l *Limiter) take(addr string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	host := clientHost(addr)
	if l.exempt(host) {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[host]
	if !ok || now.Sub(w.start) >= l.period {
		l.clients[host] = &window{used: 1, start: now}
		return true, 0
	}
	if w.used < l.limit {
		w.used++
		return true, 0
	}
	return false, w.start.Add(l.period).Sub(now)
}

func clientHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (l *Limiter) exempt(host string) bool {
	if l.hosts[host] {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range l.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware refuses requests over the limit with 429 and Retry-After.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if !l.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.take(r.RemoteAddr)
		if !ok {
			secs := int(wait.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			httputil.JSON(w, http.StatusTooManyRequests, httputil.ErrorBody{
				Error:     "rate limit exceeded",
				Status:    http.StatusTooManyRequests,
				RequestID: httputil.RequestID(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup forgets clients idle for two periods.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.period)
	for host, w := range l.clients {
		if w.start.Before(cutoff) {
			delete(l.clients, host)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if !l.Enabled() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
