package session

// Local media controls. Each toggle mutates the local track state and
// signals the partner so the far side can update its view without waiting
// for codec-level observation to catch up.

// SetCamEnabled enables or disables the local camera track and signals the
// change. With no call in progress only the track state changes.
func (s *Session) SetCamEnabled(enabled bool) error {
	if local := s.streams.Local(); local != nil {
		if vt := local.VideoTrack(); vt != nil {
			vt.SetEnabled(enabled)
		}
	}
	s.mu.Lock()
	partner, room := s.partnerID, s.roomID
	s.mu.Unlock()
	if partner == "" && room == "" {
		return nil
	}
	return s.sig.SendCamToggle(partner, room, enabled)
}

// SetMicEnabled enables or disables the local microphone track and signals
// the mute state.
func (s *Session) SetMicEnabled(enabled bool) error {
	if local := s.streams.Local(); local != nil {
		if at := local.AudioTrack(); at != nil {
			at.SetEnabled(enabled)
		}
	}
	s.mu.Lock()
	partner, room := s.partnerID, s.roomID
	s.mu.Unlock()
	if partner == "" && room == "" {
		return nil
	}
	return s.sig.SendMuteToggle(partner, room, !enabled)
}

// SetPiP broadcasts the local Picture-in-Picture presentation state to the
// room. A no-op outside a call.
func (s *Session) SetPiP(inPiP bool) error {
	room := s.RoomID()
	if room == "" {
		return nil
	}
	return s.sig.SendPiPState(room, inPiP)
}
