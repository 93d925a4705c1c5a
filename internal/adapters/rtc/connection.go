// Package rtc adapts pion PeerConnections and captured media to the
// engine surface the session drives. The session never touches a
// *webrtc.PeerConnection directly.
package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/core"
)

var (
	_ core.MediaConnection   = (*Connection)(nil)
	_ core.ConnectionBuilder = (*Builder)(nil)
)

var errForeignTrack = errors.New("rtc: track was not produced by this media layer")

// Builder creates Connections from a shared API instance. The codec
// selector from the capture layer must be registered on the same media
// engine, otherwise captured tracks cannot bind to a connection.
type Builder struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func NewBuilder(iceServers []webrtc.ICEServer, selector *mediadevices.CodecSelector) (*Builder, error) {
	engine := webrtc.MediaEngine{}
	if selector != nil {
		selector.Populate(&engine)
	} else if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	return &Builder{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(&engine)),
		cfg: webrtc.Configuration{ICEServers: iceServers},
	}, nil
}

func (b *Builder) NewConnection(ctx context.Context) (core.MediaConnection, error) {
	pc, err := b.api.NewPeerConnection(b.cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{pc: pc}
	c.install()
	return c, nil
}

// Connection wraps one pion PeerConnection.
type Connection struct {
	pc     *webrtc.PeerConnection
	closed atomic.Bool

	mu        sync.Mutex
	receivers []*remoteTrack
	onICE     func(webrtc.ICECandidateInit)
	onTrack   func(core.Track)
	onState   func(webrtc.PeerConnectionState)
}

func (c *Connection) install() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // gathering complete
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("kind", tr.Kind().String()).
			Str("track_id", tr.ID()).
			Str("stream_id", tr.StreamID()).
			Msg("OnTrack received")
		rt := newRemoteTrack(tr)
		c.mu.Lock()
		c.receivers = append(c.receivers, rt)
		fn := c.onTrack
		c.mu.Unlock()
		if fn != nil {
			fn(rt)
		}
	})

	c.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", state.String()).Msg("peer state")
		if state == webrtc.PeerConnectionStateClosed {
			c.closed.Store(true)
		}
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(state)
		}
	})
}

// AddTrack binds a captured track to the connection. Only tracks from
// this package's capture layer are accepted.
func (c *Connection) AddTrack(t core.Track) (core.Sender, error) {
	lt, ok := t.(*localTrack)
	if !ok {
		return nil, errForeignTrack
	}
	s, err := c.pc.AddTrack(lt.raw)
	if err != nil {
		return nil, err
	}
	return &sender{s: s}, nil
}

func (c *Connection) Senders() []core.Sender {
	var out []core.Sender
	for _, s := range c.pc.GetSenders() {
		if s.Track() != nil {
			out = append(out, &sender{s: s})
		}
	}
	return out
}

func (c *Connection) ReceiverTracks() []core.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Track, len(c.receivers))
	for i, rt := range c.receivers {
		out[i] = rt
	}
	return out
}

func (c *Connection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *Connection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *Connection) SetLocalDescription(ctx context.Context, sdp webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(sdp)
}

func (c *Connection) SetRemoteDescription(ctx context.Context, sdp webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(sdp)
}

func (c *Connection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *Connection) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *Connection) ICEConnectionState() webrtc.ICEConnectionState {
	return c.pc.ICEConnectionState()
}

func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *Connection) OnTrack(fn func(core.Track)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	receivers := c.receivers
	c.mu.Unlock()
	for _, rt := range receivers {
		rt.markEnded()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
		return err
	}
	log.Info().Str("module", "rtc").Msg("closed")
	return nil
}

func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}
