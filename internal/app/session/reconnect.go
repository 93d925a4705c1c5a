package session

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// reconnectScheduler arranges at most one pending reconnection at a time,
// spacing attempts with exponential backoff so failures never turn into a
// tight retry loop.
type reconnectScheduler struct {
	mu      sync.Mutex
	bo      backoff.BackOff
	pending bool

	after func(time.Duration, func()) *time.Timer
}

func newReconnectScheduler(initial, max time.Duration) *reconnectScheduler {
	b := backoff.NewExponentialBackOff()
	if initial > 0 {
		b.InitialInterval = initial
	}
	if max > 0 {
		b.MaxInterval = max
	}
	b.MaxElapsedTime = 0 // the session decides when to give up
	b.Reset()
	return &reconnectScheduler{bo: b, after: time.AfterFunc}
}

// Schedule queues fn after the current cooldown. Returns false when a
// reconnection is already pending; the caller must not queue another.
func (r *reconnectScheduler) Schedule(fn func()) bool {
	r.mu.Lock()
	if r.pending {
		r.mu.Unlock()
		return false
	}
	r.pending = true
	delay := r.bo.NextBackOff()
	r.mu.Unlock()

	log.Info().Str("module", "session.reconnect").Dur("cooldown", delay).Msg("reconnection scheduled")
	r.after(delay, func() {
		r.mu.Lock()
		r.pending = false
		r.mu.Unlock()
		fn()
	})
	return true
}

// Reset clears the cooldown after a successful connection.
func (r *reconnectScheduler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bo.Reset()
}

func (r *reconnectScheduler) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}
