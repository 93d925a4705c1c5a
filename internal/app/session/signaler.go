package session

import (
	"github.com/pion/webrtc/v4"

	"github.com/arlevm/paircall/internal/domain"
)

//go:generate mockgen -source=signaler.go -destination=mocks/signaler.go -package=mocks

// ControlOp is a lifecycle operation emitted to the signaling server.
type ControlOp string

const (
	OpStart       ControlOp = "start"
	OpStop        ControlOp = "stop"
	OpNext        ControlOp = "next"
	OpCallAccept  ControlOp = "call:accept"
	OpCallDecline ControlOp = "call:decline"
	OpCallEnd     ControlOp = "call:end"
)

// Signaler is the outbound half of the signaling transport. The transport
// delivers named messages reliably but gives no cross-message ordering
// guarantee, which is why the session buffers ICE candidates itself.
type Signaler interface {
	SendOffer(to domain.PeerID, room domain.RoomID, sdp webrtc.SessionDescription) error
	SendAnswer(to domain.PeerID, room domain.RoomID, sdp webrtc.SessionDescription) error
	SendCandidate(to domain.PeerID, cand webrtc.ICECandidateInit) error
	SendCamToggle(to domain.PeerID, room domain.RoomID, enabled bool) error
	SendMuteToggle(to domain.PeerID, room domain.RoomID, muted bool) error
	SendPiPState(room domain.RoomID, inPiP bool) error
	SendControl(op ControlOp, room domain.RoomID) error
}
