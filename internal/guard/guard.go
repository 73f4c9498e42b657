// Package guard screens ticket submissions before they reach the engine.
package guard

import (
	"fmt"
	"sync"
	"time"

	"github.com/rogersf/ticketflow/internal/domain"
)

// GuardConfig holds intake rate and size limits. Zero disables a limit.
type GuardConfig struct {
	RateLimitPerMinute int
	MaxSubjectLen      int
	MaxDescriptionLen  int
}

// Guard coordinates ticket shape, size and per-client rate checks.
type Guard struct {
	Config GuardConfig

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
	now        func() time.Time
}

type rateBucket struct {
	count       int
	windowStart int64
}

// NewGuard creates a Guard with the given limits.
func NewGuard(cfg GuardConfig) *Guard {
	return &Guard{
		Config:     cfg,
		rateCounts: make(map[string]*rateBucket),
		now:        time.Now,
	}
}

// CheckAll runs all checks in order: shape, size, rate limit.
// It short-circuits on the first error.
func (g *Guard) CheckAll(clientKey string, ticket domain.Ticket) error {
	if !ticket.WellFormed() {
		return domain.ErrInvalidTicket
	}
	if err := g.CheckSize(ticket); err != nil {
		return err
	}
	return g.CheckRateLimit(clientKey)
}

// CheckSize rejects tickets whose fields exceed the configured rune counts.
func (g *Guard) CheckSize(ticket domain.Ticket) error {
	if n := len([]rune(ticket.Subject)); g.Config.MaxSubjectLen > 0 && n > g.Config.MaxSubjectLen {
		return domain.NewEngineError(domain.ErrTicketTooLarge.Code,
			fmt.Sprintf("subject is %d characters, limit %d", n, g.Config.MaxSubjectLen))
	}
	if n := len([]rune(ticket.Description)); g.Config.MaxDescriptionLen > 0 && n > g.Config.MaxDescriptionLen {
		return domain.NewEngineError(domain.ErrTicketTooLarge.Code,
			fmt.Sprintf("description is %d characters, limit %d", n, g.Config.MaxDescriptionLen))
	}
	return nil
}

// rateWindow is the fixed window length in seconds. A window covers
// [windowStart, windowStart+rateWindow).
const rateWindow = 60

// CheckRateLimit enforces a per-client fixed window rate limit.
// The window is 60 seconds. If the count exceeds the configured limit,
// ErrRateLimitExceeded is returned.
func (g *Guard) CheckRateLimit(clientKey string) error {
	if g.Config.RateLimitPerMinute <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	bucket, ok := g.rateCounts[clientKey]
	if !ok {
		g.rateCounts[clientKey] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart >= rateWindow {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// Prune drops rate buckets whose window has closed.
func (g *Guard) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	for key, b := range g.rateCounts {
		if now-b.windowStart >= rateWindow {
			delete(g.rateCounts, key)
		}
	}
}
