package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/domain"
)

// DefaultGraceWindow suppresses camera-off implications right after a stream
// or connection becomes established, while first frames are still arriving.
const DefaultGraceWindow = 2 * time.Second

// RemoteStateManager reconciles the authoritative remote camera/mic/PiP
// state from two inputs of different trust: explicit signals from the peer
// and the physically observed state of the inbound video track. Explicit
// signals win; codec-level enabled toggles lag them by hundreds of
// milliseconds and must not flip the flag back.
type RemoteStateManager struct {
	mu    sync.Mutex
	state domain.RemoteState

	// forcedOff is set once an explicit "camera off" has been applied to
	// the current remote stream. Only an explicit on-signal or a brand-new
	// stream clears it.
	forcedOff bool

	// pendingCam buffers an explicit signal that arrived before any remote
	// video track existed; applied when the track shows up.
	pendingCam *bool

	hasVideoTrack       bool
	streamEstablishedAt time.Time
	connectedAt         time.Time

	grace    time.Duration
	onChange func(domain.RemoteState)
	now      func() time.Time
}

func NewRemoteStateManager(grace time.Duration) *RemoteStateManager {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &RemoteStateManager{grace: grace, now: time.Now}
}

// OnChange registers the re-render notification. Fired outside the lock on
// every mutation, including mutations that change only the view key.
func (rs *RemoteStateManager) OnChange(fn func(domain.RemoteState)) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.onChange = fn
}

func (rs *RemoteStateManager) Snapshot() domain.RemoteState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.state
}

// ApplyCamSignal applies an explicit cam-toggle from the peer. Arriving
// before any video track exists, it is buffered and applied when the track
// arrives.
func (rs *RemoteStateManager) ApplyCamSignal(enabled bool) {
	rs.mu.Lock()
	if !rs.hasVideoTrack {
		v := enabled
		rs.pendingCam = &v
		rs.bumpLocked()
		log.Debug().Str("module", "session.remotestate").Bool("enabled", enabled).
			Msg("cam signal buffered, no video track yet")
		state, fn := rs.state, rs.onChange
		rs.mu.Unlock()
		notify(fn, state)
		return
	}
	rs.state.CamOn = enabled
	rs.forcedOff = !enabled
	rs.pendingCam = nil
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

func (rs *RemoteStateManager) ApplyMuteSignal(muted bool) {
	rs.mu.Lock()
	rs.state.Muted = muted
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

func (rs *RemoteStateManager) ApplyPiPSignal(inPiP bool) {
	rs.mu.Lock()
	rs.state.InPiP = inPiP
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

// NoteRemoteStream records that a brand-new remote stream replaced the old
// one. A new stream resets the forced-off precedence: whatever was forced
// applied to the previous stream only.
func (rs *RemoteStateManager) NoteRemoteStream() {
	rs.mu.Lock()
	rs.streamEstablishedAt = rs.now()
	rs.forcedOff = false
	rs.hasVideoTrack = false
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

// NoteVideoTrack records arrival of a remote video track and applies any
// buffered explicit signal; absent one, a fresh track means the camera is on.
func (rs *RemoteStateManager) NoteVideoTrack() {
	rs.mu.Lock()
	rs.hasVideoTrack = true
	rs.streamEstablishedAt = rs.now()
	if rs.pendingCam != nil {
		rs.state.CamOn = *rs.pendingCam
		rs.forcedOff = !*rs.pendingCam
		rs.pendingCam = nil
	} else {
		rs.state.CamOn = true
		rs.forcedOff = false
	}
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

// NoteConnected records the connection reaching connected, opening a grace
// window during which observation-driven "camera off" is suppressed.
func (rs *RemoteStateManager) NoteConnected() {
	rs.mu.Lock()
	rs.connectedAt = rs.now()
	rs.mu.Unlock()
}

// ObserveVideo feeds the polled state of the inbound video track.
// Precedence: an applied forced-off wins over observed enabled=true.
// Observed enabled=false is suppressed during the grace window after stream
// establishment or connection.
func (rs *RemoteStateManager) ObserveVideo(enabled bool) {
	rs.mu.Lock()
	if !rs.hasVideoTrack {
		rs.mu.Unlock()
		return
	}

	if enabled {
		if rs.forcedOff || rs.state.CamOn {
			rs.mu.Unlock()
			return
		}
		rs.state.CamOn = true
	} else {
		if rs.inGraceLocked() || !rs.state.CamOn {
			rs.mu.Unlock()
			return
		}
		rs.state.CamOn = false
		// Observation only; an explicit on-signal may still re-enable.
	}
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

// Reset returns to the initial state for a new generation, preserving the
// monotonic view key.
func (rs *RemoteStateManager) Reset() {
	rs.mu.Lock()
	key := rs.state.ViewKey
	rs.state = domain.RemoteState{ViewKey: key}
	rs.forcedOff = false
	rs.pendingCam = nil
	rs.hasVideoTrack = false
	rs.streamEstablishedAt = time.Time{}
	rs.connectedAt = time.Time{}
	rs.bumpLocked()
	state, fn := rs.state, rs.onChange
	rs.mu.Unlock()
	notify(fn, state)
}

func (rs *RemoteStateManager) inGraceLocked() bool {
	now := rs.now()
	if !rs.streamEstablishedAt.IsZero() && now.Sub(rs.streamEstablishedAt) < rs.grace {
		return true
	}
	if !rs.connectedAt.IsZero() && now.Sub(rs.connectedAt) < rs.grace {
		return true
	}
	return false
}

func (rs *RemoteStateManager) bumpLocked() {
	rs.state.ViewKey++
}

func notify(fn func(domain.RemoteState), state domain.RemoteState) {
	if fn != nil {
		fn(state)
	}
}
