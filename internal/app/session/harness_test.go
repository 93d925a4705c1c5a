package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/arlevm/paircall/internal/core"
	"github.com/arlevm/paircall/internal/domain"
)

// fakeTrack is an in-memory core.Track.
type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    core.TrackKind
	live    bool
	enabled bool
	stopErr error
}

func newFakeTrack(id string, kind core.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, live: true, enabled: true}
}

func (t *fakeTrack) ID() string           { return t.id }
func (t *fakeTrack) Kind() core.TrackKind { return t.kind }

func (t *fakeTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = v
}

func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopErr != nil {
		err := t.stopErr
		t.stopErr = nil
		return err
	}
	t.live = false
	return nil
}

// fakeStream groups fake tracks.
type fakeStream struct {
	id     string
	tracks []core.Track
}

func newFakeStream(id string, tracks ...core.Track) *fakeStream {
	return &fakeStream{id: id, tracks: tracks}
}

func (s *fakeStream) ID() string           { return s.id }
func (s *fakeStream) Tracks() []core.Track { return append([]core.Track(nil), s.tracks...) }

func (s *fakeStream) AudioTrack() core.Track { return s.trackOf(core.TrackKindAudio) }
func (s *fakeStream) VideoTrack() core.Track { return s.trackOf(core.TrackKindVideo) }

func (s *fakeStream) trackOf(kind core.TrackKind) core.Track {
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// fakeDevices hands out fresh capture streams, optionally failing video to
// exercise the audio-only fallback.
type fakeDevices struct {
	mu        sync.Mutex
	failVideo bool
	failAll   bool
	captures  int
}

func (d *fakeDevices) GetUserMedia(ctx context.Context, audio, video bool) (core.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll {
		return nil, errors.New("no devices")
	}
	if video && d.failVideo {
		return nil, errors.New("camera unavailable")
	}
	d.captures++
	id := fmt.Sprintf("capture-%d", d.captures)
	tracks := []core.Track{newFakeTrack(id+"-audio", core.TrackKindAudio)}
	if video {
		tracks = append(tracks, newFakeTrack(id+"-video", core.TrackKindVideo))
	}
	return newFakeStream(id, tracks...), nil
}

// fakeSender pairs a track id with the owning fake connection.
type fakeSender struct {
	conn    *fakeConn
	trackID string
}

func (s *fakeSender) TrackID() string { return s.trackID }

func (s *fakeSender) Stop() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	for i, snd := range s.conn.senders {
		if snd == s {
			s.conn.senders = append(s.conn.senders[:i], s.conn.senders[i+1:]...)
			break
		}
	}
	return nil
}

// fakeConn is a scriptable core.MediaConnection. Signaling state follows
// the description setters the way an engine connection would.
type fakeConn struct {
	mu        sync.Mutex
	closed    bool
	senders   []*fakeSender
	receivers []core.Track

	local  *webrtc.SessionDescription
	remote *webrtc.SessionDescription

	iceState  webrtc.ICEConnectionState
	connState webrtc.PeerConnectionState

	candidates []webrtc.ICECandidateInit

	addTrackErr  error
	offerErrs    int
	answerErrs   int
	candidateErr error

	onICE   func(webrtc.ICECandidateInit)
	onTrack func(core.Track)
	onState func(webrtc.PeerConnectionState)

	sdpSeq int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		iceState:  webrtc.ICEConnectionStateNew,
		connState: webrtc.PeerConnectionStateNew,
	}
}

func (c *fakeConn) AddTrack(t core.Track) (core.Sender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addTrackErr != nil {
		return nil, c.addTrackErr
	}
	s := &fakeSender{conn: c, trackID: t.ID()}
	c.senders = append(c.senders, s)
	return s, nil
}

func (c *fakeConn) Senders() []core.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Sender, len(c.senders))
	for i, s := range c.senders {
		out[i] = s
	}
	return out
}

func (c *fakeConn) ReceiverTracks() []core.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Track(nil), c.receivers...)
}

func (c *fakeConn) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offerErrs > 0 {
		c.offerErrs--
		return webrtc.SessionDescription{}, errors.New("offer creation failed")
	}
	c.sdpSeq++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 offer %d", c.sdpSeq)}, nil
}

func (c *fakeConn) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.answerErrs > 0 {
		c.answerErrs--
		return webrtc.SessionDescription{}, errors.New("answer creation failed")
	}
	c.sdpSeq++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("v=0 answer %d", c.sdpSeq)}, nil
}

func (c *fakeConn) SetLocalDescription(ctx context.Context, sdp webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.local = &sdp
	return nil
}

func (c *fakeConn) SetRemoteDescription(ctx context.Context, sdp webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.remote = &sdp
	return nil
}

func (c *fakeConn) LocalDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *fakeConn) RemoteDescription() *webrtc.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

func (c *fakeConn) AddICECandidate(cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candidateErr != nil {
		return c.candidateErr
	}
	if c.closed {
		return errors.New("connection closed")
	}
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *fakeConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.local != nil && c.remote != nil:
		return webrtc.SignalingStateStable
	case c.local != nil && c.local.Type == webrtc.SDPTypeOffer:
		return webrtc.SignalingStateHaveLocalOffer
	case c.remote != nil && c.remote.Type == webrtc.SDPTypeOffer:
		return webrtc.SignalingStateHaveRemoteOffer
	default:
		return webrtc.SignalingStateStable
	}
}

func (c *fakeConn) ICEConnectionState() webrtc.ICEConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iceState
}

func (c *fakeConn) ConnectionState() webrtc.PeerConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connState
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onICE = fn
}

func (c *fakeConn) OnTrack(fn func(core.Track)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrack = fn
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.iceState = webrtc.ICEConnectionStateClosed
	c.connState = webrtc.PeerConnectionStateClosed
	return nil
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fireState drives the registered state callback the way the engine would.
func (c *fakeConn) fireState(state webrtc.PeerConnectionState) {
	c.mu.Lock()
	c.connState = state
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// deliverTrack registers a remote track and fires the track callback.
func (c *fakeConn) deliverTrack(t core.Track) {
	c.mu.Lock()
	c.receivers = append(c.receivers, t)
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// gatherCandidate drives the registered ICE callback.
func (c *fakeConn) gatherCandidate(cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	fn := c.onICE
	c.mu.Unlock()
	if fn != nil {
		fn(cand)
	}
}

// fakeBuilder hands out fakeConns and remembers them in creation order.
type fakeBuilder struct {
	mu       sync.Mutex
	conns    []*fakeConn
	buildErr error
	prepare  func(*fakeConn)
}

func (b *fakeBuilder) NewConnection(ctx context.Context) (core.MediaConnection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	c := newFakeConn()
	if b.prepare != nil {
		b.prepare(c)
	}
	b.conns = append(b.conns, c)
	return c, nil
}

func (b *fakeBuilder) last() *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.conns) == 0 {
		return nil
	}
	return b.conns[len(b.conns)-1]
}

func (b *fakeBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// pairSignaler routes outbound signaling of one session synchronously into
// the handler methods of its peer, the way an in-process signaling server
// would. SDP payloads double as dedup payload bytes.
type pairSignaler struct {
	mu     sync.Mutex
	selfID domain.PeerID
	roomID domain.RoomID
	peer   *Session

	controls []ControlOp
	offers   int
	answers  int
}

func (p *pairSignaler) setPeer(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peer = s
}

func (p *pairSignaler) getPeer() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

func (p *pairSignaler) SendOffer(to domain.PeerID, room domain.RoomID, sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	p.offers++
	p.mu.Unlock()
	if peer := p.getPeer(); peer != nil {
		return peer.HandleOffer(context.Background(), p.selfID, room, sdp, []byte(sdp.SDP))
	}
	return nil
}

func (p *pairSignaler) SendAnswer(to domain.PeerID, room domain.RoomID, sdp webrtc.SessionDescription) error {
	p.mu.Lock()
	p.answers++
	p.mu.Unlock()
	if peer := p.getPeer(); peer != nil {
		return peer.HandleAnswer(context.Background(), p.selfID, room, sdp, []byte(sdp.SDP))
	}
	return nil
}

func (p *pairSignaler) SendCandidate(to domain.PeerID, cand webrtc.ICECandidateInit) error {
	if peer := p.getPeer(); peer != nil {
		peer.HandleCandidate(p.selfID, cand)
	}
	return nil
}

func (p *pairSignaler) SendCamToggle(to domain.PeerID, room domain.RoomID, enabled bool) error {
	if peer := p.getPeer(); peer != nil {
		peer.HandleCamToggle(p.selfID, room, enabled)
	}
	return nil
}

func (p *pairSignaler) SendMuteToggle(to domain.PeerID, room domain.RoomID, muted bool) error {
	if peer := p.getPeer(); peer != nil {
		peer.HandleMuteToggle(p.selfID, room, muted)
	}
	return nil
}

func (p *pairSignaler) SendPiPState(room domain.RoomID, inPiP bool) error {
	if peer := p.getPeer(); peer != nil {
		peer.HandlePiPState(p.selfID, room, inPiP)
	}
	return nil
}

func (p *pairSignaler) SendControl(op ControlOp, room domain.RoomID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controls = append(p.controls, op)
	return nil
}

func (p *pairSignaler) sentOffers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offers
}

func (p *pairSignaler) sentAnswers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answers
}

func (p *pairSignaler) sentControls() []ControlOp {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ControlOp(nil), p.controls...)
}

// newSessionPair wires two sessions whose signaling is routed to each other.
func newSessionPair(aID, bID domain.PeerID, room domain.RoomID) (*Session, *Session, *pairSignaler, *pairSignaler, *fakeBuilder, *fakeBuilder) {
	sigA := &pairSignaler{selfID: aID, roomID: room}
	sigB := &pairSignaler{selfID: bID, roomID: room}
	builderA := &fakeBuilder{}
	builderB := &fakeBuilder{}

	a := New(Config{SelfID: aID, SettleDelay: time.Millisecond}, sigA, &fakeDevices{}, builderA)
	b := New(Config{SelfID: bID, SettleDelay: time.Millisecond}, sigB, &fakeDevices{}, builderB)
	sigA.setPeer(b)
	sigB.setPeer(a)
	return a, b, sigA, sigB, builderA, builderB
}
