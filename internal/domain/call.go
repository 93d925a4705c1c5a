// Package domain contains entities without logic, just meta-data.
package domain

import "github.com/google/uuid"

type (
	// PeerID identifies the remote participant in signaling. For roulette
	// calls it is transient and changes on every match; for direct calls it
	// is the callee's durable id.
	PeerID string

	// RoomID addresses the signaling room both participants share.
	RoomID string

	// CallID identifies one call attempt end to end.
	CallID string
)

// NewCallID is a tiny helper to avoid ad-hoc uuid calls in the session.
func NewCallID() CallID { return CallID(uuid.NewString()) }

// CallKind selects the policy differences between the two call flavours.
// Everything else about a session is identical.
type CallKind int

const (
	// KindRoulette is a random-match call: camera state is addressed by the
	// transient peer id and a dropped partner triggers an automatic advance
	// to the next match.
	KindRoulette CallKind = iota
	// KindDirect is a direct call to a known contact: camera state is
	// addressed by the durable room id and a drop ends the call.
	KindDirect
)

func (k CallKind) String() string {
	switch k {
	case KindRoulette:
		return "roulette"
	case KindDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// AutoAdvance reports whether a dropped partner should trigger an automatic
// search for the next one.
func (k CallKind) AutoAdvance() bool { return k == KindRoulette }

// ParseCallKind maps a config string to a CallKind, defaulting to roulette.
func ParseCallKind(s string) CallKind {
	if s == "direct" {
		return KindDirect
	}
	return KindRoulette
}

// RemoteState is the reconciled view of the partner's signaled media state.
// ViewKey increases on every mutation so consumers can re-render even when
// none of the booleans changed.
type RemoteState struct {
	CamOn   bool   `json:"cam_on"`
	Muted   bool   `json:"muted"`
	InPiP   bool   `json:"in_pip"`
	ViewKey uint64 `json:"view_key"`
}
