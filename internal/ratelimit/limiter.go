// Package ratelimit throttles mutating enrollment requests per client.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps a token bucket per client key and forgets keys idle longer than idleTTL.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

// NewLimiter builds a Limiter allowing rps requests per second with the given burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 3 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = e
	}
	e.seen = now
	l.mu.Unlock()

	return e.lim.AllowN(now, 1)
}

// Sweep drops keys that have been idle longer than the idle TTL.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, e := range l.entries {
		if e.seen.Before(cutoff) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps idle keys every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Decision describes a single limiter verdict, handed to a Recorder.
type Decision struct {
	Key     string
	Allowed bool
	Method  string
	Path    string
	At      time.Time
}

// Recorder stores decisions somewhere for later inspection. Errors are ignored by the middleware.
type Recorder interface {
	Record(ctx context.Context, d Decision) error
}

// Options configures Middleware.
type Options struct {
	Limiter    *Limiter
	Recorder   Recorder
	Skipper    func(r *http.Request) bool
	RetryAfter time.Duration
	// TrustedProxies lists peers whose X-Forwarded-For header is believed. Empty means none.
	TrustedProxies []netip.Prefix
}

// SafeMethods skips read-only requests so browsing the catalog is never throttled.
func SafeMethods(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// ParseTrustedProxies accepts CIDR ranges or single addresses.
func ParseTrustedProxies(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))
	for _, v := range values {
		if strings.Contains(v, "/") {
			prefix, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", v, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func Middleware(opts Options) func(http.Handler) http.Handler {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Skipper != nil && opts.Skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := ClientKey(r, opts.TrustedProxies)
			allowed := opts.Limiter.Allow(key)
			if opts.Recorder != nil {
				_ = opts.Recorder.Record(r.Context(), Decision{
					Key:     key,
					Allowed: allowed,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(opts.RetryAfter.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"type":"rate_limited","detail":"too many requests"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller by its peer address. When the peer is a trusted
// proxy, the right-most X-Forwarded-For hop that is not itself trusted wins.
func ClientKey(r *http.Request, trusted []netip.Prefix) string {
	peer := remoteHost(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil || !isTrusted(addr, trusted) {
		return peer
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !isTrusted(hop, trusted) {
			return hop.Unmap().String()
		}
	}
	return peer
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func isTrusted(addr netip.Addr, trusted []netip.Prefix) bool {
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
