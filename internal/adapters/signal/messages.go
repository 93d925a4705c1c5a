package signal

// Wire envelopes. Every frame is a JSON object with a "type" field; the
// remaining fields depend on the type. Offers and answers carry the SDP
// inline so the raw frame doubles as the dedup payload upstream.

type envelope struct {
	Type string `json:"type"`
}

type sdpMessage struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	SDP    string `json:"sdp"`
}

type candidateMessage struct {
	Type          string  `json:"type"`
	From          string  `json:"from,omitempty"`
	To            string  `json:"to,omitempty"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type camToggleMessage struct {
	Type    string `json:"type"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
	Enabled bool   `json:"enabled"`
}

type muteToggleMessage struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	Muted  bool   `json:"muted"`
}

type pipStateMessage struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	InPiP  bool   `json:"inPiP"`
}

type matchFoundMessage struct {
	Type      string `json:"type"`
	PartnerID string `json:"partnerId"`
	RoomID    string `json:"roomId,omitempty"`
}

type peerEventMessage struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
	RoomID string `json:"roomId,omitempty"`
}

type controlMessage struct {
	Type   string `json:"type"`
	From   string `json:"from,omitempty"`
	RoomID string `json:"roomId,omitempty"`
}
