// Package ratelimit implements the per-identity request guard for the
// chat funnel: a sliding request window plus rapid-fire spam detection
// that escalates into a timed ban.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is the verdict for one request.
type Result struct {
	Allowed    bool
	Banned     bool
	RetryAfter time.Duration
	Reason     string
}

// Entry is the per-identity state kept in the backing store.
type Entry struct {
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
	LastSeen    time.Time `json:"last_seen"`
	Rapid       int       `json:"rapid"`
	BannedUntil time.Time `json:"banned_until,omitempty"`
}

// Config tunes the guard.
type Config struct {
	Window         time.Duration // sliding window size
	MaxRequests    int           // requests allowed per window
	RapidGap       time.Duration // gap below which a request counts as rapid-fire
	RapidThreshold int           // rapid hits that convert into a ban
	BanTTL         time.Duration // ban duration
}

// DefaultConfig returns the production guard policy.
func DefaultConfig() Config {
	return Config{
		Window:         60 * time.Second,
		MaxRequests:    20,
		RapidGap:       500 * time.Millisecond,
		RapidThreshold: 10,
		BanTTL:         24 * time.Hour,
	}
}

// Guard applies the policy on top of a TTL-capable Store.
type Guard struct {
	cfg   Config
	store Store
	now   func() time.Time
}

// NewGuard creates a Guard. A nil store gets an in-memory one.
func NewGuard(cfg Config, store Store) *Guard {
	if store == nil {
		store = NewMemoryStore(2 * cfg.Window)
	}
	return &Guard{cfg: cfg, store: store, now: time.Now}
}

// Check records one request for identity and returns the verdict.
func (g *Guard) Check(ctx context.Context, identity string) Result {
	now := g.now()

	e, err := g.store.Get(ctx, identity)
	if err != nil {
		// A broken side table must not take the funnel down.
		zap.L().Warn("ratelimit: store get failed", zap.String("identity", identity), zap.Error(err))
		return Result{Allowed: true}
	}
	if e == nil {
		e = &Entry{WindowStart: now}
	}

	if e.BannedUntil.After(now) {
		return Result{
			Banned:     true,
			RetryAfter: e.BannedUntil.Sub(now),
			Reason:     "banned for spam",
		}
	}

	// Rapid-fire detection is independent of the window.
	if !e.LastSeen.IsZero() && now.Sub(e.LastSeen) < g.cfg.RapidGap {
		e.Rapid++
	} else {
		e.Rapid = 0
	}
	e.LastSeen = now

	if e.Rapid >= g.cfg.RapidThreshold {
		e.BannedUntil = now.Add(g.cfg.BanTTL)
		e.Rapid = 0
		g.put(ctx, identity, e)
		zap.L().Warn("ratelimit: identity banned", zap.String("identity", identity))
		return Result{
			Banned:     true,
			RetryAfter: g.cfg.BanTTL,
			Reason:     "banned for spam",
		}
	}

	// Window resets once the first request in it ages out.
	if now.Sub(e.WindowStart) > g.cfg.Window {
		e.WindowStart = now
		e.Count = 0
	}
	e.Count++
	g.put(ctx, identity, e)

	if e.Count > g.cfg.MaxRequests {
		return Result{
			RetryAfter: e.WindowStart.Add(g.cfg.Window).Sub(now),
			Reason:     "too many requests",
		}
	}
	return Result{Allowed: true}
}

func (g *Guard) put(ctx context.Context, identity string, e *Entry) {
	ttl := 2 * g.cfg.Window
	if until := e.BannedUntil.Sub(g.now()); until > ttl {
		ttl = until
	}
	if err := g.store.Put(ctx, identity, e, ttl); err != nil {
		zap.L().Warn("ratelimit: store put failed", zap.String("identity", identity), zap.Error(err))
	}
}

// Identity derives the client identity from forwarded-address headers,
// falling back to the socket address and then a shared "unknown" bucket.
// Behind proxies that strip forwarding headers, all anonymous traffic
// lands in the same bucket.
func Identity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx > 0 {
			fwd = fwd[:idx]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return "unknown"
}
