package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/arlevm/paircall/internal/app/session"
	"github.com/arlevm/paircall/internal/domain"
)

// recordingHandler captures dispatched events.
type recordingHandler struct {
	offers     []string
	answers    []string
	candidates []webrtc.ICECandidateInit
	camToggles []bool
	mutes      []bool
	pips       []bool
	matches    []domain.PeerID
	lefts      []domain.PeerID
	hangups    int
	ups        int
	downs      int

	lastFrom domain.PeerID
	lastRoom domain.RoomID
}

func (h *recordingHandler) HandleOffer(_ context.Context, from domain.PeerID, room domain.RoomID, offer webrtc.SessionDescription, _ []byte) error {
	h.offers = append(h.offers, offer.SDP)
	h.lastFrom, h.lastRoom = from, room
	return nil
}

func (h *recordingHandler) HandleAnswer(_ context.Context, from domain.PeerID, room domain.RoomID, answer webrtc.SessionDescription, _ []byte) error {
	h.answers = append(h.answers, answer.SDP)
	h.lastFrom, h.lastRoom = from, room
	return nil
}

func (h *recordingHandler) HandleCandidate(from domain.PeerID, cand webrtc.ICECandidateInit) {
	h.candidates = append(h.candidates, cand)
	h.lastFrom = from
}

func (h *recordingHandler) HandleCamToggle(from domain.PeerID, room domain.RoomID, enabled bool) {
	h.camToggles = append(h.camToggles, enabled)
	h.lastFrom, h.lastRoom = from, room
}

func (h *recordingHandler) HandleMuteToggle(from domain.PeerID, room domain.RoomID, muted bool) {
	h.mutes = append(h.mutes, muted)
	h.lastFrom, h.lastRoom = from, room
}

func (h *recordingHandler) HandlePiPState(from domain.PeerID, room domain.RoomID, inPiP bool) {
	h.pips = append(h.pips, inPiP)
	h.lastFrom, h.lastRoom = from, room
}

func (h *recordingHandler) HandleMatchFound(_ context.Context, partner domain.PeerID, room domain.RoomID) {
	h.matches = append(h.matches, partner)
	h.lastRoom = room
}

func (h *recordingHandler) HandlePeerLeft(_ context.Context, peer domain.PeerID) {
	h.lefts = append(h.lefts, peer)
}

func (h *recordingHandler) HandleHangup()        { h.hangups++ }
func (h *recordingHandler) HandleTransportUp()   { h.ups++ }
func (h *recordingHandler) HandleTransportDown() { h.downs++ }

func newTestClient(h Handler) *Client {
	c := NewClient("ws://localhost:1/ws", "self", 0)
	c.SetHandler(h)
	return c
}

func TestDispatchOffer(t *testing.T) {
	rec := &recordingHandler{}
	c := newTestClient(rec)

	c.dispatch(context.Background(), []byte(`{"type":"offer","from":"beta","roomId":"room-1","sdp":"v=0 test offer"}`))

	if len(rec.offers) != 1 || rec.offers[0] != "v=0 test offer" {
		t.Fatalf("offers = %v", rec.offers)
	}
	if rec.lastFrom != "beta" || rec.lastRoom != "room-1" {
		t.Errorf("addressing = %q/%q, want beta/room-1", rec.lastFrom, rec.lastRoom)
	}
}

func TestDispatchAnswer(t *testing.T) {
	rec := &recordingHandler{}
	c := newTestClient(rec)

	c.dispatch(context.Background(), []byte(`{"type":"answer","from":"beta","sdp":"v=0 test answer"}`))

	if len(rec.answers) != 1 || rec.answers[0] != "v=0 test answer" {
		t.Fatalf("answers = %v", rec.answers)
	}
}

func TestDispatchCandidate(t *testing.T) {
	rec := &recordingHandler{}
	c := newTestClient(rec)

	c.dispatch(context.Background(), []byte(`{"type":"candidate","from":"beta","candidate":"candidate:1 1 udp 1 192.0.2.1 54400 typ host","sdpMid":"0","sdpMLineIndex":0}`))

	if len(rec.candidates) != 1 {
		t.Fatal("candidate not dispatched")
	}
	cand := rec.candidates[0]
	if cand.SDPMid == nil || *cand.SDPMid != "0" {
		t.Error("sdpMid lost in dispatch")
	}
	if cand.SDPMLineIndex == nil || *cand.SDPMLineIndex != 0 {
		t.Error("sdpMLineIndex lost in dispatch")
	}
}

func TestDispatchStateSignals(t *testing.T) {
	rec := &recordingHandler{}
	c := newTestClient(rec)
	ctx := context.Background()

	c.dispatch(ctx, []byte(`{"type":"cam-toggle","from":"beta","roomId":"room-1","enabled":false}`))
	c.dispatch(ctx, []byte(`{"type":"mute-toggle","from":"beta","roomId":"room-1","muted":true}`))
	c.dispatch(ctx, []byte(`{"type":"pip:state","from":"beta","roomId":"room-1","inPiP":true}`))

	if len(rec.camToggles) != 1 || rec.camToggles[0] {
		t.Errorf("camToggles = %v, want [false]", rec.camToggles)
	}
	if len(rec.mutes) != 1 || !rec.mutes[0] {
		t.Errorf("mutes = %v, want [true]", rec.mutes)
	}
	if len(rec.pips) != 1 || !rec.pips[0] {
		t.Errorf("pips = %v, want [true]", rec.pips)
	}
}

func TestDispatchLifecycle(t *testing.T) {
	rec := &recordingHandler{}
	c := newTestClient(rec)
	ctx := context.Background()

	c.dispatch(ctx, []byte(`{"type":"match_found","partnerId":"beta","roomId":"room-1"}`))
	c.dispatch(ctx, []byte(`{"type":"peer:left","peerId":"beta"}`))
	c.dispatch(ctx, []byte(`{"type":"disconnected","peerId":"beta"}`))
	c.dispatch(ctx, []byte(`{"type":"hangup"}`))

	if len(rec.matches) != 1 || rec.matches[0] != "beta" {
		t.Errorf("matches = %v", rec.matches)
	}
	if len(rec.lefts) != 2 {
		t.Errorf("peer-left events = %d, want 2", len(rec.lefts))
	}
	if rec.hangups != 1 {
		t.Errorf("hangups = %d, want 1", rec.hangups)
	}
}

func TestDispatchIgnoresGarbage(t *testing.T) {
	rec := &recordingHandler{}
	c := newTestClient(rec)
	ctx := context.Background()

	c.dispatch(ctx, []byte(`not json`))
	c.dispatch(ctx, []byte(`{"type":"unknown-kind"}`))

	if len(rec.offers)+len(rec.answers)+len(rec.candidates) != 0 {
		t.Error("garbage frames reached the handler")
	}
}

func TestSendWithoutConnection(t *testing.T) {
	c := newTestClient(&recordingHandler{})
	err := c.SendOffer("beta", "room-1", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("send without connection = %v, want ErrNotConnected", err)
	}
}

// announcingHandler registers on transport-up, the way the session does.
type announcingHandler struct {
	recordingHandler
	c *Client
}

func (h *announcingHandler) HandleTransportUp() {
	// An error here would surface as the test timing out on the announce.
	_ = h.c.SendControl(session.OpStart, "")
}

func TestRunAnnouncesOnceConnected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan []byte, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), "self", time.Second)
	c.SetHandler(&announcingHandler{c: c})
	go c.Run(ctx)

	select {
	case data := <-received:
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		if env.Type != string(session.OpStart) {
			t.Errorf("first frame after connect = %q, want %q", env.Type, session.OpStart)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no announce reached the server after connect")
	}

	cancel()
	srv.Close()
}
