package rtc

import (
	"sync/atomic"
	"time"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"

	"github.com/arlevm/paircall/internal/core"
)

// enabledWindow is how recently a remote track must have carried RTP to
// count as enabled. A paused remote camera stops sending media, so
// packet recency stands in for the flag browsers expose on a track.
const enabledWindow = 750 * time.Millisecond

func kindOf(t webrtc.RTPCodecType) core.TrackKind {
	if t == webrtc.RTPCodecTypeVideo {
		return core.TrackKindVideo
	}
	return core.TrackKindAudio
}

// localTrack wraps a captured mediadevices track.
type localTrack struct {
	raw     mediadevices.Track
	enabled atomic.Bool
	ended   atomic.Bool
}

func newLocalTrack(raw mediadevices.Track) *localTrack {
	lt := &localTrack{raw: raw}
	lt.enabled.Store(true)
	raw.OnEnded(func(error) { lt.ended.Store(true) })
	return lt
}

func (t *localTrack) ID() string           { return t.raw.ID() }
func (t *localTrack) Kind() core.TrackKind { return kindOf(t.raw.Kind()) }
func (t *localTrack) Live() bool           { return !t.ended.Load() }
func (t *localTrack) Enabled() bool        { return t.enabled.Load() }
func (t *localTrack) SetEnabled(v bool)    { t.enabled.Store(v) }

func (t *localTrack) Stop() error {
	if t.ended.Swap(true) {
		return nil
	}
	return t.raw.Close()
}

// remoteTrack wraps a pion TrackRemote and drains its RTP in a reader
// goroutine, recording packet arrival times.
type remoteTrack struct {
	tr      *webrtc.TrackRemote
	lastPkt atomic.Int64
	ended   atomic.Bool
}

func newRemoteTrack(tr *webrtc.TrackRemote) *remoteTrack {
	rt := &remoteTrack{tr: tr}
	rt.lastPkt.Store(time.Now().UnixNano())
	go rt.readLoop()
	return rt
}

func (t *remoteTrack) readLoop() {
	for {
		if _, _, err := t.tr.ReadRTP(); err != nil {
			t.ended.Store(true)
			return
		}
		t.lastPkt.Store(time.Now().UnixNano())
	}
}

func (t *remoteTrack) ID() string           { return t.tr.ID() }
func (t *remoteTrack) Kind() core.TrackKind { return kindOf(t.tr.Kind()) }
func (t *remoteTrack) Live() bool           { return !t.ended.Load() }

// Enabled reports whether media arrived within the recency window.
func (t *remoteTrack) Enabled() bool {
	if t.ended.Load() {
		return false
	}
	last := time.Unix(0, t.lastPkt.Load())
	return time.Since(last) < enabledWindow
}

// SetEnabled is a no-op: the sending side controls a remote track.
func (t *remoteTrack) SetEnabled(bool) {}

func (t *remoteTrack) Stop() error {
	t.markEnded()
	return nil
}

func (t *remoteTrack) markEnded() { t.ended.Store(true) }

// sender wraps a pion RTPSender.
type sender struct {
	s *webrtc.RTPSender
}

func (s *sender) TrackID() string {
	if tr := s.s.Track(); tr != nil {
		return tr.ID()
	}
	return ""
}

func (s *sender) Stop() error { return s.s.Stop() }
