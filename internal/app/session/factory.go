package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/core"
)

// DefaultSettleDelay is the minimum gap between closing one connection and
// creating the next. Creating a fresh engine connection immediately after a
// close races platform-level resource release.
const DefaultSettleDelay = 150 * time.Millisecond

// Factory creates engine connections with an explicit, scoped churn
// throttle. The settle window lives here rather than in ambient globals so
// every session owns its own pacing.
type Factory struct {
	builder core.ConnectionBuilder
	settle  time.Duration

	mu           sync.Mutex
	lastClosedAt time.Time
	spare        core.MediaConnection

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewFactory(builder core.ConnectionBuilder, settle time.Duration) *Factory {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return &Factory{
		builder: builder,
		settle:  settle,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// NoteClosed records a connection close, starting the settle window.
func (f *Factory) NoteClosed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastClosedAt = f.now()
}

// Create returns a fresh connection, waiting out the remainder of the
// settle window first. Callers must treat the wait as expected latency, not
// an error. A prewarmed spare, when present and still open, is returned
// immediately without waiting.
func (f *Factory) Create(ctx context.Context) (core.MediaConnection, error) {
	f.mu.Lock()
	if f.spare != nil && !f.spare.IsClosed() {
		conn := f.spare
		f.spare = nil
		f.mu.Unlock()
		log.Debug().Str("module", "session.factory").Msg("handing out prewarmed connection")
		return conn, nil
	}
	f.spare = nil
	wait := f.settle - f.now().Sub(f.lastClosedAt)
	f.mu.Unlock()

	if wait > 0 {
		if err := f.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return f.builder.NewConnection(ctx)
}

// Prewarm creates a spare connection ahead of need, cutting match-to-media
// latency on the next call. At most one spare is kept.
func (f *Factory) Prewarm(ctx context.Context) error {
	conn, err := f.builder.NewConnection(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	old := f.spare
	f.spare = conn
	f.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// DropSpare closes and forgets the prewarmed connection, if any.
func (f *Factory) DropSpare() {
	f.mu.Lock()
	old := f.spare
	f.spare = nil
	f.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
