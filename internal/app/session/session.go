// Package session implements the per-call signaling state machine: it
// negotiates the media connection, keeps exactly one authoritative
// connection alive per call, deduplicates retransmitted signaling,
// reconciles signaled against observed remote track state, and recovers
// from failures without tight retry loops.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/core"
	"github.com/arlevm/paircall/internal/domain"
)

// defaultEnsureWait bounds how long a concurrent ensureConnection caller
// waits for an in-flight creation before giving up.
const defaultEnsureWait = 2 * time.Second

// Config tunes one session. Zero values fall back to sane defaults.
type Config struct {
	SelfID domain.PeerID
	Kind   domain.CallKind

	SettleDelay      time.Duration
	EnsureWait       time.Duration
	MonitorInterval  time.Duration
	GraceWindow      time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.EnsureWait <= 0 {
		c.EnsureWait = defaultEnsureWait
	}
	return c
}

// Session owns call identity, the generation token and the offer/answer/ICE
// protocol. All state mutation happens under one mutex; every continuation
// resumed after an engine await re-validates the generation token before
// touching anything.
type Session struct {
	cfg     Config
	sig     Signaler
	devices core.MediaDevices
	factory *Factory

	mu            sync.Mutex
	generation    uint64
	partnerID     domain.PeerID
	roomID        domain.RoomID
	callID        domain.CallID
	connected     bool
	establishedAt time.Time
	conn          core.MediaConnection
	connGen       uint64
	creating      bool

	foreground atomic.Bool

	streams   *StreamManager
	dedup     *Deduper
	remote    *RemoteStateManager
	remoteICE *candidateBuffer
	localICE  *localCandidateCache
	reconnect *reconnectScheduler
	monitor   *Monitor

	errs chan error
	now  func() time.Time
}

func New(cfg Config, sig Signaler, devices core.MediaDevices, builder core.ConnectionBuilder) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:       cfg,
		sig:       sig,
		devices:   devices,
		factory:   NewFactory(builder, cfg.SettleDelay),
		streams:   NewStreamManager(),
		dedup:     NewDeduper(),
		remote:    NewRemoteStateManager(cfg.GraceWindow),
		remoteICE: newCandidateBuffer(),
		localICE:  newLocalCandidateCache(),
		reconnect: newReconnectScheduler(cfg.ReconnectInitial, cfg.ReconnectMax),
		errs:      make(chan error, 8),
		now:       time.Now,
	}
	s.foreground.Store(true)
	s.monitor = NewMonitor(cfg.MonitorInterval, s.pollConnection)
	s.streams.OnRemoteChange(func(stream core.Stream) {
		if stream != nil {
			s.remote.NoteRemoteStream()
			if stream.VideoTrack() != nil {
				s.remote.NoteVideoTrack()
			}
		}
	})
	return s
}

// Run starts the connection monitor. Blocks until ctx is cancelled, then
// tears the session down. Registration with the server happens in
// HandleTransportUp, once the transport is actually writable.
func (s *Session) Run(ctx context.Context) {
	s.monitor.Run(ctx)
	s.teardown(false, false)
}

// Errors delivers fatal, application-visible failures: conditions that
// abort the current attempt and must surface to the user instead of being
// silently retried.
func (s *Session) Errors() <-chan error { return s.errs }

// SetForeground records app visibility; reconnections are only attempted
// while foregrounded.
func (s *Session) SetForeground(v bool) { s.foreground.Store(v) }

func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) PartnerID() domain.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partnerID
}

func (s *Session) RoomID() domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// RemoteState returns the reconciled remote camera/mic/PiP view.
func (s *Session) RemoteState() domain.RemoteState { return s.remote.Snapshot() }

// Streams exposes the stream manager to the UI layer.
func (s *Session) Streams() *StreamManager { return s.streams }

func (s *Session) genValid(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

// ---------------------------------------------------------------------------
// Connection lifecycle

// ensureConnection returns the current open connection or creates one.
// Concurrent callers are deferred with a bounded wait until the in-flight
// creation completes, then observe the same result. An existing open
// connection tagged with the current generation is reused unmodified; a
// closed one is discarded and replaced.
func (s *Session) ensureConnection(ctx context.Context, stream core.Stream) (core.MediaConnection, uint64, error) {
	deadline := s.now().Add(s.cfg.EnsureWait)
	for {
		s.mu.Lock()
		if s.conn != nil && s.connGen == s.generation && !s.conn.IsClosed() {
			conn, gen := s.conn, s.connGen
			s.mu.Unlock()
			return conn, gen, nil
		}
		if !s.creating {
			s.creating = true
			gen := s.generation
			stale := s.conn
			s.conn = nil
			s.mu.Unlock()
			return s.createConnection(ctx, gen, stale, stream)
		}
		s.mu.Unlock()

		if s.now().After(deadline) {
			return nil, 0, ErrCreationBusy
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (s *Session) createConnection(ctx context.Context, gen uint64, stale core.MediaConnection, stream core.Stream) (core.MediaConnection, uint64, error) {
	defer func() {
		s.mu.Lock()
		s.creating = false
		s.mu.Unlock()
	}()

	if stale != nil {
		_ = stale.Close()
		s.factory.NoteClosed()
		log.Debug().Str("module", "session").Uint64("gen", gen).Msg("discarded closed connection")
	}

	conn, err := s.factory.Create(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("creating connection: %w", err)
	}

	if stream != nil && len(stream.Tracks()) > 0 {
		for _, t := range stream.Tracks() {
			if _, err := conn.AddTrack(t); err != nil {
				log.Warn().Str("module", "session").Str("track", t.ID()).Err(err).Msg("attaching local track failed")
			}
		}
		if len(conn.Senders()) == 0 {
			_ = conn.Close()
			s.factory.NoteClosed()
			s.fatal(ErrNoSenders)
			return nil, 0, ErrNoSenders
		}
	}

	s.bindConnection(conn, gen)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		_ = conn.Close()
		s.factory.NoteClosed()
		return nil, 0, ErrSuperseded
	}
	s.conn = conn
	s.connGen = gen
	s.mu.Unlock()

	log.Info().Str("module", "session").Uint64("gen", gen).Msg("connection ready")
	return conn, gen, nil
}

// bindConnection registers engine callbacks. Every callback captures the
// generation valid at bind time and no-ops once the token advances.
func (s *Session) bindConnection(conn core.MediaConnection, gen uint64) {
	conn.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		s.onLocalCandidate(gen, cand)
	})
	conn.OnTrack(func(t core.Track) {
		s.onRemoteTrack(conn, gen, t)
	})
	conn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.applyConnectionState(gen, state)
	})
}

// applyConnectionState is shared between the engine callback and the
// monitor poll: identical transitions, identical generation validation.
func (s *Session) applyConnectionState(gen uint64, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.markConnected(gen)
	case webrtc.PeerConnectionStateFailed:
		s.handleFailure(gen)
	case webrtc.PeerConnectionStateDisconnected:
		log.Debug().Str("module", "session").Uint64("gen", gen).Msg("connection disconnected, awaiting recovery")
	case webrtc.PeerConnectionStateClosed:
		log.Debug().Str("module", "session").Uint64("gen", gen).Msg("connection closed")
	}
}

func (s *Session) markConnected(gen uint64) {
	s.mu.Lock()
	if s.generation != gen || s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = true
	s.establishedAt = s.now()
	s.mu.Unlock()

	s.remote.NoteConnected()
	s.reconnect.Reset()
	log.Info().Str("module", "session").Uint64("gen", gen).Msg("connected")
}

// handleFailure tears the failed attempt down and schedules exactly one
// reconnection, honoring the active cooldown. Only acts while the room is
// still set and the app is foregrounded.
func (s *Session) handleFailure(gen uint64) {
	if !s.genValid(gen) {
		return
	}
	log.Warn().Str("module", "session").Uint64("gen", gen).Msg("connection failed")

	s.teardown(true, true)

	s.mu.Lock()
	room := s.roomID
	s.mu.Unlock()
	if room == "" || !s.foreground.Load() {
		return
	}
	s.reconnect.Schedule(func() {
		if s.foreground.Load() && s.RoomID() != "" {
			if err := s.sig.SendControl(OpStart, s.RoomID()); err != nil {
				log.Warn().Str("module", "session").Err(err).Msg("reconnect announce failed")
			}
		}
	})
}

// teardown advances the generation token, invalidating every captured
// continuation, and releases per-call state. keepRoom preserves the room
// identity for a reconnect; keepLocalStream keeps the camera running across
// a "next".
func (s *Session) teardown(keepRoom, keepLocalStream bool) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	conn := s.conn
	s.conn = nil
	s.connGen = 0
	s.connected = false
	s.partnerID = ""
	if !keepRoom {
		s.roomID = ""
		s.callID = ""
	}
	s.establishedAt = time.Time{}
	s.mu.Unlock()

	s.dedup.Rollover(gen)
	s.remoteICE.Discard()
	s.localICE.Discard()
	s.factory.DropSpare()

	if conn != nil {
		_ = conn.Close()
		s.factory.NoteClosed()
	}
	if !keepLocalStream {
		s.streams.StopLocal(nil, true)
	}
	// The connection is closed by now, so this always clears.
	s.streams.StopRemote(nil)
	s.remote.Reset()

	log.Info().Str("module", "session").Uint64("gen", gen).
		Bool("keep_room", keepRoom).Msg("teardown complete")
}

// ---------------------------------------------------------------------------
// Public call operations

// Stop ends the session entirely: camera released, identity cleared.
func (s *Session) Stop() error {
	room := s.RoomID()
	s.teardown(false, false)
	return s.sig.SendControl(OpStop, room)
}

// Next abandons the current partner and asks for a new match. The local
// stream keeps running so the camera does not blink between matches.
func (s *Session) Next(ctx context.Context) error {
	room := s.RoomID()
	s.teardown(false, true)
	// Prewarm a spare so the upcoming match negotiates faster.
	if err := s.factory.Prewarm(ctx); err != nil {
		log.Debug().Str("module", "session").Err(err).Msg("prewarm failed, next match pays full setup")
	}
	return s.sig.SendControl(OpNext, room)
}

// AcceptCall, DeclineCall and EndCall drive the direct-call lifecycle.
func (s *Session) AcceptCall(room domain.RoomID) error {
	s.mu.Lock()
	s.roomID = room
	if s.callID == "" {
		s.callID = domain.NewCallID()
	}
	s.mu.Unlock()
	return s.sig.SendControl(OpCallAccept, room)
}

func (s *Session) DeclineCall(room domain.RoomID) error {
	return s.sig.SendControl(OpCallDecline, room)
}

func (s *Session) EndCall() error {
	room := s.RoomID()
	s.teardown(false, false)
	return s.sig.SendControl(OpCallEnd, room)
}

// ---------------------------------------------------------------------------
// Local media

// ensureLocalStream returns the existing local stream or captures one.
// Capture degrades: camera+mic first, then audio only. Total failure is
// fatal for the attempt.
func (s *Session) ensureLocalStream(ctx context.Context) (core.Stream, error) {
	if local := s.streams.Local(); local != nil {
		return local, nil
	}

	stream, err := s.devices.GetUserMedia(ctx, true, true)
	if err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("audio+video capture failed, retrying audio only")
		stream, err = s.devices.GetUserMedia(ctx, true, false)
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrNoLocalStream, err)
		s.fatal(err)
		return nil, err
	}

	s.streams.SetLocal(stream)
	return stream, nil
}

// ---------------------------------------------------------------------------
// ICE plumbing

// onLocalCandidate forwards a gathered candidate to the partner, or caches
// it until a partner id is assigned.
func (s *Session) onLocalCandidate(gen uint64, cand webrtc.ICECandidateInit) {
	if !s.genValid(gen) {
		return
	}
	partner := s.PartnerID()
	if partner == "" {
		s.localICE.Push(cand)
		return
	}
	if err := s.sig.SendCandidate(partner, cand); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("sending candidate failed")
	}
}

// flushLocalCandidates sends candidates cached before the partner id was
// known.
func (s *Session) flushLocalCandidates(partner domain.PeerID) {
	for _, cand := range s.localICE.DrainAll() {
		if err := s.sig.SendCandidate(partner, cand); err != nil {
			log.Warn().Str("module", "session").Err(err).Msg("flushing cached candidate failed")
		}
	}
}

// flushRemoteCandidates applies candidates buffered for peer, in arrival
// order. Per-candidate races that already resolved are logged and skipped.
func (s *Session) flushRemoteCandidates(conn core.MediaConnection, peer domain.PeerID) {
	for _, cand := range s.remoteICE.Drain(peer) {
		if err := conn.AddICECandidate(cand); err != nil {
			if benignCandidateErr(err) {
				log.Debug().Str("module", "session").Err(err).Msg("buffered candidate skipped")
				continue
			}
			log.Warn().Str("module", "session").Err(err).Msg("buffered candidate rejected")
		}
	}
}

// HandleCandidate processes an inbound ICE candidate. Before the remote
// description exists the candidate is queued in arrival order; after, it is
// applied directly.
func (s *Session) HandleCandidate(from domain.PeerID, cand webrtc.ICECandidateInit) {
	s.mu.Lock()
	partner := s.partnerID
	conn := s.conn
	s.mu.Unlock()

	if partner != "" && from != partner {
		log.Debug().Str("module", "session").Str("from", string(from)).Msg("candidate from superseded peer dropped")
		return
	}
	if conn == nil || conn.IsClosed() || conn.RemoteDescription() == nil {
		s.remoteICE.Push(from, cand)
		return
	}
	if err := conn.AddICECandidate(cand); err != nil {
		if benignCandidateErr(err) {
			log.Debug().Str("module", "session").Err(err).Msg("candidate skipped")
			return
		}
		log.Warn().Str("module", "session").Err(err).Msg("candidate rejected")
	}
}

// benignCandidateErr matches per-candidate failures from races that already
// resolved: duplicates, invalid state, closed connections.
func benignCandidateErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already") ||
		strings.Contains(msg, "invalid state") ||
		strings.Contains(msg, "closed")
}

// ---------------------------------------------------------------------------
// Remote media

// onRemoteTrack reconciles the remote stream when the engine delivers a
// track. Aggregation goes through the receiver union so platforms that
// deliver tracks without a usable stream behave identically.
func (s *Session) onRemoteTrack(conn core.MediaConnection, gen uint64, t core.Track) {
	if !s.genValid(gen) {
		return
	}
	log.Info().Str("module", "session").Str("track", t.ID()).Str("kind", string(t.Kind())).Msg("remote track")
	s.streams.ReconcileFromReceivers(conn)
}

// ---------------------------------------------------------------------------
// Remote state signals

// HandleCamToggle applies an explicit camera toggle. Addressing depends on
// the call kind: roulette matches check the transient peer id, direct calls
// the durable room id.
func (s *Session) HandleCamToggle(from domain.PeerID, room domain.RoomID, enabled bool) {
	if !s.addressedToUs(from, room) {
		log.Debug().Str("module", "session").Str("from", string(from)).Msg("cam toggle for another call dropped")
		return
	}
	s.remote.ApplyCamSignal(enabled)
}

// HandleMuteToggle applies an explicit mute toggle from the peer.
func (s *Session) HandleMuteToggle(from domain.PeerID, room domain.RoomID, muted bool) {
	if !s.addressedToUs(from, room) {
		return
	}
	s.remote.ApplyMuteSignal(muted)
}

// HandlePiPState applies the peer's Picture-in-Picture presentation state.
func (s *Session) HandlePiPState(from domain.PeerID, room domain.RoomID, inPiP bool) {
	if !s.addressedToUs(from, room) {
		return
	}
	s.remote.ApplyPiPSignal(inPiP)
}

func (s *Session) addressedToUs(from domain.PeerID, room domain.RoomID) bool {
	s.mu.Lock()
	partner, current := s.partnerID, s.roomID
	s.mu.Unlock()
	if s.cfg.Kind == domain.KindDirect {
		return current != "" && room == current
	}
	return partner != "" && from == partner
}

// ---------------------------------------------------------------------------
// Lifecycle events

// HandleMatchFound begins a call with a freshly matched partner. The side
// with the lexicographically smaller id is the canonical offerer, which
// resolves simultaneous-offer glare without extra signaling.
func (s *Session) HandleMatchFound(ctx context.Context, partner domain.PeerID, room domain.RoomID) {
	s.mu.Lock()
	hadPartner := s.partnerID != ""
	s.mu.Unlock()
	if hadPartner {
		s.teardown(false, true)
	}

	s.mu.Lock()
	s.partnerID = partner
	s.roomID = room
	s.callID = domain.NewCallID()
	s.mu.Unlock()
	s.remoteICE.Bind(partner)
	s.flushLocalCandidates(partner)

	log.Info().Str("module", "session").Str("partner", string(partner)).Str("room", string(room)).Msg("match found")

	if s.cfg.SelfID < partner {
		if err := s.Negotiate(ctx); err != nil {
			log.Warn().Str("module", "session").Err(err).Msg("initial negotiation failed")
		}
	}
}

// HandlePeerLeft tears down after the partner disappeared. Roulette
// sessions auto-advance to the next match while foregrounded.
func (s *Session) HandlePeerLeft(ctx context.Context, peer domain.PeerID) {
	s.mu.Lock()
	partner := s.partnerID
	s.mu.Unlock()
	if partner == "" || peer != partner {
		return
	}

	if s.cfg.Kind.AutoAdvance() && s.foreground.Load() {
		if err := s.Next(ctx); err != nil {
			log.Warn().Str("module", "session").Err(err).Msg("auto-advance failed")
		}
		return
	}
	s.teardown(false, false)
}

// HandleHangup ends the call on an explicit hangup or server disconnect.
func (s *Session) HandleHangup() {
	s.teardown(false, false)
}

// HandleTransportUp announces the client each time the signaling transport
// comes up, on the first connect and after every redial. Sending any
// earlier loses the announce, and an unannounced client is never matched.
func (s *Session) HandleTransportUp() {
	room := s.RoomID()
	if err := s.sig.SendControl(OpStart, room); err != nil {
		log.Warn().Str("module", "session").Err(err).Msg("start announce failed")
		return
	}
	log.Info().Str("module", "session").Str("room", string(room)).Msg("announced to server")
}

// HandleTransportDown reacts to the signaling transport dropping: the media
// stays up as long as it lives, and call identity is preserved so the
// transport-up announce rejoins the same room after the redial.
func (s *Session) HandleTransportDown() {
	log.Warn().Str("module", "session").Str("room", string(s.RoomID())).Msg("signaling transport down")
}

func (s *Session) fatal(err error) {
	log.Error().Str("module", "session").Err(err).Msg("fatal session error")
	select {
	case s.errs <- err:
	default:
		log.Warn().Str("module", "session").Msg("error channel full, dropping")
	}
}
