package session

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/core"
)

// DefaultMonitorInterval is the connection poll period. State-change
// callbacks are not reliably delivered on every platform, so the session
// polls and synthesizes the same transitions a callback would trigger.
const DefaultMonitorInterval = 2 * time.Second

// Monitor polls a session's connection state on a fixed interval.
type Monitor struct {
	interval time.Duration
	poll     func()
}

func NewMonitor(interval time.Duration, poll func()) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{interval: interval, poll: poll}
}

// Run blocks until ctx is cancelled, invoking the poll on every tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

// pollConnection is the monitor's probe. It applies exactly the transition
// logic the state-change callback applies, with the same generation
// validation, and additionally recovers a missing remote stream from the
// connection's receivers.
func (s *Session) pollConnection() {
	s.mu.Lock()
	conn, gen := s.conn, s.connGen
	wasConnected := s.connected
	s.mu.Unlock()

	if conn != nil && !conn.IsClosed() {
		switch state := conn.ConnectionState(); state {
		case webrtc.PeerConnectionStateConnected:
			if !wasConnected {
				s.markConnected(gen)
			}
			s.recoverRemoteStream(conn, gen)
		case webrtc.PeerConnectionStateFailed:
			s.handleFailure(gen)
		case webrtc.PeerConnectionStateDisconnected:
			log.Debug().Str("module", "session.monitor").Str("state", state.String()).
				Msg("connection degraded, waiting for recovery or failure")
		}
	}

	// Track-level observation feeds the remote-state reconciliation.
	if remote := s.streams.Remote(); remote != nil {
		if vt := remote.VideoTrack(); vt != nil {
			s.remote.ObserveVideo(vt.Live() && vt.Enabled())
		}
	}
}

// recoverRemoteStream rebuilds the remote stream from receivers when the
// connection says media should be flowing but no stream was delivered.
func (s *Session) recoverRemoteStream(conn core.MediaConnection, gen uint64) {
	if s.streams.Remote() != nil {
		return
	}
	if !s.genValid(gen) {
		return
	}
	if s.streams.ReconcileFromReceivers(conn) {
		log.Info().Str("module", "session.monitor").Msg("remote stream recovered from receivers")
	}
}
