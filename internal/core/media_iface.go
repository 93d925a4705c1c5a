package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// TrackKind distinguishes the two media types a stream can carry.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// Track is the engine-agnostic view of a single media track. Local tracks
// come from device capture; remote tracks are delivered by the engine.
type Track interface {
	ID() string
	Kind() TrackKind
	// Live reports whether the track has not ended.
	Live() bool
	// Enabled reports the observed producing state. For remote tracks this
	// is derived from media arrival and lags explicit signaling by hundreds
	// of milliseconds; callers must not treat it as authoritative.
	Enabled() bool
	SetEnabled(bool)
	// Stop releases the underlying device or reader. Stopping an already
	// stopped track is a no-op.
	Stop() error
}

// Stream groups at most one audio and one video track under a shared id.
type Stream interface {
	ID() string
	Tracks() []Track
	// AudioTrack and VideoTrack return nil when the stream has no track of
	// that kind.
	AudioTrack() Track
	VideoTrack() Track
}

// Sender is an outbound track binding on a connection.
type Sender interface {
	TrackID() string
	Stop() error
}

// MediaConnection is the slice of the media engine the session drives:
// create/describe/negotiate/add-candidate primitives plus state queries.
// The session never reaches past this interface into the engine.
type MediaConnection interface {
	AddTrack(Track) (Sender, error)
	Senders() []Sender
	// ReceiverTracks returns every remote track the engine has delivered on
	// this connection, live or not.
	ReceiverTracks() []Track

	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(ctx context.Context, sdp webrtc.SessionDescription) error
	SetRemoteDescription(ctx context.Context, sdp webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error

	SignalingState() webrtc.SignalingState
	ICEConnectionState() webrtc.ICEConnectionState
	ConnectionState() webrtc.PeerConnectionState

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(Track))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))

	Close() error
	IsClosed() bool
}

// ConnectionBuilder creates engine connections. Implemented by the rtc
// adapter; the session's factory wraps it with churn throttling.
type ConnectionBuilder interface {
	NewConnection(ctx context.Context) (MediaConnection, error)
}

// MediaDevices captures local tracks. Capture failures are the engine's to
// report; the session decides whether a degraded stream is acceptable.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, audio, video bool) (Stream, error)
}
