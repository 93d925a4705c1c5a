package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/core"
)

// StreamManager owns the local and remote stream handles and enforces safe
// teardown: local tracks are never stopped while a live connection still
// sends them, and a delivered remote stream is never blanked by event
// ordering artifacts while the connection is active.
type StreamManager struct {
	mu                  sync.Mutex
	local               core.Stream
	remote              core.Stream
	remoteEstablishedAt time.Time

	onLocalChange  func(core.Stream)
	onRemoteChange func(core.Stream)

	now func() time.Time
}

func NewStreamManager() *StreamManager {
	return &StreamManager{now: time.Now}
}

// OnLocalChange and OnRemoteChange register change notifications. Each
// replacement fires exactly one notification.
func (sm *StreamManager) OnLocalChange(fn func(core.Stream))  { sm.onLocalChange = fn }
func (sm *StreamManager) OnRemoteChange(fn func(core.Stream)) { sm.onRemoteChange = fn }

func (sm *StreamManager) Local() core.Stream {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.local
}

func (sm *StreamManager) Remote() core.Stream {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.remote
}

func (sm *StreamManager) RemoteEstablishedAt() time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.remoteEstablishedAt
}

// SetLocal replaces the tracked local stream.
func (sm *StreamManager) SetLocal(s core.Stream) {
	sm.mu.Lock()
	sm.local = s
	fn := sm.onLocalChange
	sm.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// SetRemote replaces the tracked remote stream and timestamps establishment.
// The timestamp gates "is this track stable yet" decisions downstream.
func (sm *StreamManager) SetRemote(s core.Stream) {
	sm.mu.Lock()
	sm.remote = s
	if s != nil {
		sm.remoteEstablishedAt = sm.now()
	} else {
		sm.remoteEstablishedAt = time.Time{}
	}
	fn := sm.onRemoteChange
	sm.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// StopLocal stops the local stream's tracks. Without force it is a no-op
// while conn still sends tracks from this stream. With force (full
// teardown) tracks are disabled then stopped; hardware may release
// asynchronously, so a failed stop gets one delayed second attempt.
func (sm *StreamManager) StopLocal(conn core.MediaConnection, force bool) {
	sm.mu.Lock()
	local := sm.local
	sm.mu.Unlock()
	if local == nil {
		return
	}

	if !force && connSendsFrom(conn, local) {
		log.Debug().Str("module", "session.streams").Msg("local stream still referenced by live connection, keeping")
		return
	}

	for _, t := range local.Tracks() {
		t.SetEnabled(false)
		if err := t.Stop(); err != nil {
			track := t
			log.Debug().Str("module", "session.streams").Str("track", track.ID()).Err(err).
				Msg("track stop pending hardware release, retrying once")
			time.AfterFunc(250*time.Millisecond, func() {
				if err := track.Stop(); err != nil {
					log.Warn().Str("module", "session.streams").Str("track", track.ID()).Err(err).
						Msg("track did not stop on second attempt")
				}
			})
		}
	}

	sm.SetLocal(nil)
}

// StopRemote clears the remote stream handle, unless the connection's ICE or
// overall state is in an active sub-state. A remote stream already delivered
// must not be blanked while media can still flow.
func (sm *StreamManager) StopRemote(conn core.MediaConnection) {
	if connActive(conn) {
		log.Debug().Str("module", "session.streams").Msg("connection active, keeping remote stream")
		return
	}
	sm.mu.Lock()
	had := sm.remote != nil
	sm.mu.Unlock()
	if had {
		sm.SetRemote(nil)
	}
}

// ReconcileFromReceivers unions all live receiver tracks on conn into a
// synthetic stream and replaces the tracked remote stream with it, but only
// when at least one track id differs. Fallback for platforms where
// track-arrival events do not deliver a usable aggregate stream. Reports
// whether a replacement happened.
func (sm *StreamManager) ReconcileFromReceivers(conn core.MediaConnection) bool {
	if conn == nil {
		return false
	}
	var live []core.Track
	for _, t := range conn.ReceiverTracks() {
		if t.Live() {
			live = append(live, t)
		}
	}
	if len(live) == 0 {
		return false
	}

	sm.mu.Lock()
	current := sm.remote
	sm.mu.Unlock()
	if current != nil && sameTrackIDs(current.Tracks(), live) {
		return false
	}

	sm.SetRemote(NewSyntheticStream(live))
	return true
}

func sameTrackIDs(a, b []core.Track) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[string]struct{}, len(a))
	for _, t := range a {
		ids[t.ID()] = struct{}{}
	}
	for _, t := range b {
		if _, ok := ids[t.ID()]; !ok {
			return false
		}
	}
	return true
}

// connSendsFrom reports whether conn still has outbound senders bound to
// tracks of s.
func connSendsFrom(conn core.MediaConnection, s core.Stream) bool {
	if conn == nil || conn.IsClosed() {
		return false
	}
	owned := make(map[string]struct{})
	for _, t := range s.Tracks() {
		owned[t.ID()] = struct{}{}
	}
	for _, snd := range conn.Senders() {
		if _, ok := owned[snd.TrackID()]; ok {
			return true
		}
	}
	return false
}

// connActive reports whether conn is in an active sub-state: ICE
// checking/connected/completed, or overall connecting/connected.
func connActive(conn core.MediaConnection) bool {
	if conn == nil || conn.IsClosed() {
		return false
	}
	switch conn.ICEConnectionState() {
	case webrtc.ICEConnectionStateChecking,
		webrtc.ICEConnectionStateConnected,
		webrtc.ICEConnectionStateCompleted:
		return true
	}
	switch conn.ConnectionState() {
	case webrtc.PeerConnectionStateConnecting,
		webrtc.PeerConnectionStateConnected:
		return true
	}
	return false
}

// syntheticStream is a Stream assembled from loose tracks, used when the
// engine never delivered a usable aggregate stream.
type syntheticStream struct {
	id     string
	tracks []core.Track
}

// NewSyntheticStream groups tracks under a fresh stream id. At most one
// audio and one video track are kept; extras are dropped.
func NewSyntheticStream(tracks []core.Track) core.Stream {
	s := &syntheticStream{id: uuid.NewString()}
	var haveAudio, haveVideo bool
	for _, t := range tracks {
		switch t.Kind() {
		case core.TrackKindAudio:
			if haveAudio {
				continue
			}
			haveAudio = true
		case core.TrackKindVideo:
			if haveVideo {
				continue
			}
			haveVideo = true
		}
		s.tracks = append(s.tracks, t)
	}
	return s
}

func (s *syntheticStream) ID() string { return s.id }

func (s *syntheticStream) Tracks() []core.Track {
	out := make([]core.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *syntheticStream) AudioTrack() core.Track { return s.trackOf(core.TrackKindAudio) }
func (s *syntheticStream) VideoTrack() core.Track { return s.trackOf(core.TrackKindVideo) }

func (s *syntheticStream) trackOf(kind core.TrackKind) core.Track {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}
