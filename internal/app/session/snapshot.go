package session

import (
	"time"

	"github.com/arlevm/paircall/internal/domain"
)

// Snapshot is a read-only view of the session for APIs; no engine or
// transport handles leak through it.
type Snapshot struct {
	Generation uint64          `json:"generation"`
	PartnerID  domain.PeerID   `json:"partner_id,omitempty"`
	RoomID     domain.RoomID   `json:"room_id,omitempty"`
	CallID     domain.CallID   `json:"call_id,omitempty"`
	Kind       string          `json:"kind"`
	Connected  bool            `json:"connected"`
	Foreground bool            `json:"foreground"`

	ConnectionState string `json:"connection_state,omitempty"`
	ICEState        string `json:"ice_state,omitempty"`
	SignalingState  string `json:"signaling_state,omitempty"`

	LocalTracks  []string `json:"local_tracks,omitempty"`
	RemoteTracks []string `json:"remote_tracks,omitempty"`

	Remote domain.RemoteState `json:"remote"`

	ConnectionEstablishedAt   time.Time `json:"connection_established_at,omitzero"`
	RemoteStreamEstablishedAt time.Time `json:"remote_stream_established_at,omitzero"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Generation: s.generation,
		PartnerID:  s.partnerID,
		RoomID:     s.roomID,
		CallID:     s.callID,
		Kind:       s.cfg.Kind.String(),
		Connected:  s.connected,

		ConnectionEstablishedAt: s.establishedAt,
	}
	conn := s.conn
	s.mu.Unlock()

	snap.Foreground = s.foreground.Load()
	snap.Remote = s.remote.Snapshot()
	snap.RemoteStreamEstablishedAt = s.streams.RemoteEstablishedAt()

	if conn != nil && !conn.IsClosed() {
		snap.ConnectionState = conn.ConnectionState().String()
		snap.ICEState = conn.ICEConnectionState().String()
		snap.SignalingState = conn.SignalingState().String()
	}
	if local := s.streams.Local(); local != nil {
		for _, t := range local.Tracks() {
			snap.LocalTracks = append(snap.LocalTracks, t.ID())
		}
	}
	if remote := s.streams.Remote(); remote != nil {
		for _, t := range remote.Tracks() {
			snap.RemoteTracks = append(snap.RemoteTracks, t.ID())
		}
	}
	return snap
}
