package session

import "errors"

var (
	// ErrNoSenders means a non-empty local stream produced zero outbound
	// senders: the call would be silent and blind to the peer.
	ErrNoSenders = errors.New("no senders attached from a non-empty local stream")

	// ErrNoLocalStream means capture failed after all fallbacks.
	ErrNoLocalStream = errors.New("no usable local stream after capture fallbacks")

	// ErrCreationBusy means a concurrent connection creation did not finish
	// within the bounded wait.
	ErrCreationBusy = errors.New("connection creation still in flight")

	// ErrSuperseded means the generation token advanced while an operation
	// was suspended; the result must be discarded.
	ErrSuperseded = errors.New("superseded by a newer generation")

	// ErrBadSDP marks a description that is empty or carries the wrong type.
	ErrBadSDP = errors.New("invalid session description")
)
