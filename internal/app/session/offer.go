package session

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/core"
	"github.com/arlevm/paircall/internal/domain"
)

// HandleOffer runs the inbound offer pipeline: dedup, identity adoption,
// stream + connection setup, double-offer guard, remote description, answer
// creation/validation/dispatch, and finally the ICE flush for the peer.
// payload is the raw wire bytes the dedup key is derived from.
func (s *Session) HandleOffer(ctx context.Context, from domain.PeerID, room domain.RoomID, offer webrtc.SessionDescription, payload []byte) error {
	claim, ok := s.dedup.Claim(from, payload)
	if !ok {
		log.Debug().Str("module", "session").Str("from", string(from)).Msg("duplicate offer dropped")
		return nil
	}

	if !s.adoptIdentity(from, room) {
		// Offer from someone other than the current partner: a race already
		// resolved against them. Mark processed so retransmits stay quiet.
		claim.Done()
		log.Debug().Str("module", "session").Str("from", string(from)).Msg("offer from non-partner dropped")
		return nil
	}

	if err := validateSDP(offer, webrtc.SDPTypeOffer); err != nil {
		claim.Release()
		return err
	}

	stream, err := s.ensureLocalStream(ctx)
	if err != nil {
		claim.Release()
		return err
	}

	conn, gen, err := s.ensureConnection(ctx, stream)
	if err != nil {
		claim.Release()
		return err
	}

	// Double-offer guard: a remote description means a previous offer for
	// this connection already won.
	if conn.RemoteDescription() != nil {
		claim.Done()
		log.Debug().Str("module", "session").Msg("offer dropped, remote description already set")
		return nil
	}

	if !s.genValid(gen) {
		claim.Release()
		return ErrSuperseded
	}
	if err := conn.SetRemoteDescription(ctx, offer); err != nil {
		if benignCandidateErr(err) {
			// Invalid-state or closed: the race resolved while we were
			// suspended. Processed, not retryable.
			claim.Done()
			log.Debug().Str("module", "session").Err(err).Msg("remote description skipped")
			return nil
		}
		claim.Release()
		return fmt.Errorf("setting remote description: %w", err)
	}

	answer, err := s.createAnswer(ctx, conn, gen)
	if err != nil {
		claim.Release()
		return err
	}

	if err := s.sig.SendAnswer(from, room, answer); err != nil {
		claim.Release()
		return fmt.Errorf("sending answer: %w", err)
	}

	s.flushRemoteCandidates(conn, from)
	claim.Done()
	return nil
}

// createAnswer creates, validates and applies the answer. The engine call
// is a suspension point, so state is re-validated on both sides of it; an
// unexpected failure is retried once with a fresh answer if state still
// permits.
func (s *Session) createAnswer(ctx context.Context, conn core.MediaConnection, gen uint64) (webrtc.SessionDescription, error) {
	answer, err := conn.CreateAnswer(ctx)
	if err != nil {
		if conn.SignalingState() != webrtc.SignalingStateHaveRemoteOffer {
			return webrtc.SessionDescription{}, fmt.Errorf("creating answer: %w", err)
		}
		log.Warn().Str("module", "session").Err(err).Msg("answer creation failed, retrying once")
		answer, err = conn.CreateAnswer(ctx)
		if err != nil {
			return webrtc.SessionDescription{}, fmt.Errorf("creating answer (retry): %w", err)
		}
	}
	if err := validateSDP(answer, webrtc.SDPTypeAnswer); err != nil {
		return webrtc.SessionDescription{}, err
	}

	// State may have shifted across the await: validate again immediately
	// before applying.
	if !s.genValid(gen) {
		return webrtc.SessionDescription{}, ErrSuperseded
	}
	if conn.IsClosed() || conn.SignalingState() != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("answer discarded: signaling state %s", conn.SignalingState())
	}
	if err := conn.SetLocalDescription(ctx, answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("setting local description: %w", err)
	}
	return answer, nil
}

// HandleAnswer applies the partner's answer to our outstanding offer.
func (s *Session) HandleAnswer(ctx context.Context, from domain.PeerID, room domain.RoomID, answer webrtc.SessionDescription, payload []byte) error {
	claim, ok := s.dedup.Claim(from, payload)
	if !ok {
		log.Debug().Str("module", "session").Str("from", string(from)).Msg("duplicate answer dropped")
		return nil
	}

	s.mu.Lock()
	partner := s.partnerID
	conn := s.conn
	gen := s.connGen
	s.mu.Unlock()

	if partner == "" || from != partner || conn == nil {
		claim.Done()
		log.Debug().Str("module", "session").Str("from", string(from)).Msg("answer without matching offer dropped")
		return nil
	}
	if err := validateSDP(answer, webrtc.SDPTypeAnswer); err != nil {
		claim.Release()
		return err
	}
	// Only valid while our offer is outstanding.
	if conn.SignalingState() != webrtc.SignalingStateHaveLocalOffer || conn.RemoteDescription() != nil {
		claim.Done()
		log.Debug().Str("module", "session").Str("state", conn.SignalingState().String()).Msg("answer dropped, negotiation already settled")
		return nil
	}

	if !s.genValid(gen) {
		claim.Release()
		return ErrSuperseded
	}
	if err := conn.SetRemoteDescription(ctx, answer); err != nil {
		if benignCandidateErr(err) {
			claim.Done()
			log.Debug().Str("module", "session").Err(err).Msg("answer skipped")
			return nil
		}
		claim.Release()
		return fmt.Errorf("applying answer: %w", err)
	}

	s.flushRemoteCandidates(conn, from)
	claim.Done()
	return nil
}

// Negotiate creates and sends an offer to the current partner. Valid only
// from a stable connection with neither description set; any other state
// means a race already resolved negotiation, so the attempt aborts with a
// log instead of retrying blindly.
func (s *Session) Negotiate(ctx context.Context) error {
	s.mu.Lock()
	partner := s.partnerID
	room := s.roomID
	s.mu.Unlock()
	if partner == "" {
		return fmt.Errorf("negotiate: no partner")
	}

	stream, err := s.ensureLocalStream(ctx)
	if err != nil {
		return err
	}
	conn, gen, err := s.ensureConnection(ctx, stream)
	if err != nil {
		return err
	}

	if conn.SignalingState() != webrtc.SignalingStateStable ||
		conn.LocalDescription() != nil || conn.RemoteDescription() != nil {
		log.Warn().Str("module", "session").Str("state", conn.SignalingState().String()).
			Msg("negotiation aborted, connection not pristine")
		return nil
	}

	offer, err := conn.CreateOffer(ctx)
	if err != nil {
		if conn.SignalingState() != webrtc.SignalingStateStable {
			return fmt.Errorf("creating offer: %w", err)
		}
		log.Warn().Str("module", "session").Err(err).Msg("offer creation failed, retrying once")
		offer, err = conn.CreateOffer(ctx)
		if err != nil {
			return fmt.Errorf("creating offer (retry): %w", err)
		}
	}
	if err := validateSDP(offer, webrtc.SDPTypeOffer); err != nil {
		return err
	}

	// Re-validate across the await before applying.
	if !s.genValid(gen) {
		return ErrSuperseded
	}
	if conn.IsClosed() || conn.SignalingState() != webrtc.SignalingStateStable || conn.LocalDescription() != nil {
		log.Warn().Str("module", "session").Msg("offer discarded, state shifted during creation")
		return nil
	}
	if err := conn.SetLocalDescription(ctx, offer); err != nil {
		return fmt.Errorf("setting local description: %w", err)
	}

	if err := s.sig.SendOffer(partner, room, offer); err != nil {
		return fmt.Errorf("sending offer: %w", err)
	}
	return nil
}

// Renegotiate restarts negotiation within the current generation, e.g.
// after tracks changed. The occurrence advance lets an identical SDP pass
// the deduper again.
func (s *Session) Renegotiate(ctx context.Context) error {
	partner := s.PartnerID()
	if partner == "" {
		return fmt.Errorf("renegotiate: no partner")
	}
	s.dedup.AdvanceOccurrence(partner)
	return s.Negotiate(ctx)
}

// adoptIdentity claims partner and room ids from an inbound offer when they
// are unset. Returns false when the offer comes from a different peer than
// the current partner.
func (s *Session) adoptIdentity(from domain.PeerID, room domain.RoomID) bool {
	s.mu.Lock()
	if s.partnerID == "" {
		s.partnerID = from
		if s.roomID == "" {
			s.roomID = room
		}
		if s.callID == "" {
			s.callID = domain.NewCallID()
		}
		s.mu.Unlock()
		s.remoteICE.Bind(from)
		s.flushLocalCandidates(from)
		return true
	}
	current := s.partnerID
	s.mu.Unlock()
	return from == current
}

// validateSDP rejects descriptions that are empty or mistyped. Called right
// after creation and again right before application, because engine state
// can shift across the intervening asynchronous boundary.
func validateSDP(sdp webrtc.SessionDescription, want webrtc.SDPType) error {
	if sdp.SDP == "" {
		return fmt.Errorf("%w: empty payload", ErrBadSDP)
	}
	if sdp.Type != want {
		return fmt.Errorf("%w: type %q, want %q", ErrBadSDP, sdp.Type, want)
	}
	return nil
}
