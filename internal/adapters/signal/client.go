// Package signal is the websocket client for the signaling server. It
// implements the session's outbound Signaler and dispatches inbound
// frames to a Handler.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/app/session"
	"github.com/arlevm/paircall/internal/core"
	"github.com/arlevm/paircall/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")
var ErrNotConnected = errors.New("signal: not connected")

const (
	sendQueueSize = 32
	writeDeadline = 5 * time.Second
)

// Handler consumes inbound signaling events. *session.Session satisfies it.
type Handler interface {
	HandleOffer(ctx context.Context, from domain.PeerID, room domain.RoomID, offer webrtc.SessionDescription, payload []byte) error
	HandleAnswer(ctx context.Context, from domain.PeerID, room domain.RoomID, answer webrtc.SessionDescription, payload []byte) error
	HandleCandidate(from domain.PeerID, cand webrtc.ICECandidateInit)
	HandleCamToggle(from domain.PeerID, room domain.RoomID, enabled bool)
	HandleMuteToggle(from domain.PeerID, room domain.RoomID, muted bool)
	HandlePiPState(from domain.PeerID, room domain.RoomID, inPiP bool)
	HandleMatchFound(ctx context.Context, partner domain.PeerID, room domain.RoomID)
	HandlePeerLeft(ctx context.Context, peer domain.PeerID)
	HandleHangup()
	HandleTransportUp()
	HandleTransportDown()
}

var (
	_ Handler               = (*session.Session)(nil)
	_ session.Signaler      = (*Client)(nil)
	_ core.SignalConnection = (*wsConn)(nil)
)

// Client maintains one websocket to the signaling server, redialing with
// exponential backoff when it drops.
type Client struct {
	url     string
	selfID  domain.PeerID
	timeout time.Duration
	handler Handler

	mu   sync.RWMutex
	conn *wsConn
}

func NewClient(url string, selfID domain.PeerID, connectTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	return &Client{
		url:     url,
		selfID:  selfID,
		timeout: connectTimeout,
	}
}

// SetHandler wires the inbound consumer. Must be called before Run; the
// session and the client reference each other, so one side binds late.
func (c *Client) SetHandler(h Handler) { c.handler = h }

// Run dials and serves the connection until ctx is cancelled, redialing
// on every drop. The handler's HandleTransportUp fires once per successful
// dial, when sends are accepted; HandleTransportDown fires once per drop,
// after the pumps have stopped.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.dial(ctx)
		if err != nil {
			wait := bo.NextBackOff()
			log.Warn().Err(err).Str("module", "signal").Dur("retry_in", wait).Msg("dial failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		log.Info().Str("module", "signal").Str("url", c.url).Msg("connected")
		c.handler.HandleTransportUp()

		c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Str("module", "signal").Msg("connection lost")
		c.handler.HandleTransportDown()
	}
}

func (c *Client) dial(ctx context.Context) (*wsConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, err
	}
	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, sendQueueSize),
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return conn, nil
}

// serve runs the pumps and blocks until the read side fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *wsConn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	// The read pump blocks in ReadMessage; closing the socket is the only
	// way to unblock it when ctx ends.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go c.writePump(ctx, conn)
	c.readPump(ctx, conn)
}

func (c *Client) writePump(ctx context.Context, conn *wsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-conn.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := conn.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *wsConn) {
	defer log.Info().Str("module", "signal").Msg("readPump closing")
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := conn.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			c.dispatch(ctx, data)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "offer":
		var m sdpMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad offer")
			return
		}
		sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: m.SDP}
		if err := c.handler.HandleOffer(ctx, domain.PeerID(m.From), domain.RoomID(m.RoomID), sdp, data); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("from", m.From).Msg("offer handling failed")
		}
	case "answer":
		var m sdpMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad answer")
			return
		}
		sdp := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}
		if err := c.handler.HandleAnswer(ctx, domain.PeerID(m.From), domain.RoomID(m.RoomID), sdp, data); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("from", m.From).Msg("answer handling failed")
		}
	case "candidate":
		var m candidateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad candidate")
			return
		}
		c.handler.HandleCandidate(domain.PeerID(m.From), webrtc.ICECandidateInit{
			Candidate:     m.Candidate,
			SDPMid:        m.SDPMid,
			SDPMLineIndex: m.SDPMLineIndex,
		})
	case "cam-toggle":
		var m camToggleMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad cam-toggle")
			return
		}
		c.handler.HandleCamToggle(domain.PeerID(m.From), domain.RoomID(m.RoomID), m.Enabled)
	case "mute-toggle":
		var m muteToggleMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad mute-toggle")
			return
		}
		c.handler.HandleMuteToggle(domain.PeerID(m.From), domain.RoomID(m.RoomID), m.Muted)
	case "pip:state":
		var m pipStateMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad pip:state")
			return
		}
		c.handler.HandlePiPState(domain.PeerID(m.From), domain.RoomID(m.RoomID), m.InPiP)
	case "match_found":
		var m matchFoundMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad match_found")
			return
		}
		c.handler.HandleMatchFound(ctx, domain.PeerID(m.PartnerID), domain.RoomID(m.RoomID))
	case "peer:left", "disconnected":
		var m peerEventMessage
		if err := json.Unmarshal(data, &m); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("bad peer event")
			return
		}
		c.handler.HandlePeerLeft(ctx, domain.PeerID(m.PeerID))
	case "hangup":
		c.handler.HandleHangup()
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (c *Client) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.TrySend(b)
}

func (c *Client) SendOffer(to domain.PeerID, room domain.RoomID, sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMessage{Type: "offer", From: string(c.selfID), To: string(to), RoomID: string(room), SDP: sdp.SDP})
}

func (c *Client) SendAnswer(to domain.PeerID, room domain.RoomID, sdp webrtc.SessionDescription) error {
	return c.sendJSON(sdpMessage{Type: "answer", From: string(c.selfID), To: string(to), RoomID: string(room), SDP: sdp.SDP})
}

func (c *Client) SendCandidate(to domain.PeerID, cand webrtc.ICECandidateInit) error {
	return c.sendJSON(candidateMessage{
		Type:          "candidate",
		From:          string(c.selfID),
		To:            string(to),
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *Client) SendCamToggle(to domain.PeerID, room domain.RoomID, enabled bool) error {
	return c.sendJSON(camToggleMessage{Type: "cam-toggle", From: string(c.selfID), To: string(to), RoomID: string(room), Enabled: enabled})
}

func (c *Client) SendMuteToggle(to domain.PeerID, room domain.RoomID, muted bool) error {
	return c.sendJSON(muteToggleMessage{Type: "mute-toggle", From: string(c.selfID), RoomID: string(room), Muted: muted})
}

func (c *Client) SendPiPState(room domain.RoomID, inPiP bool) error {
	return c.sendJSON(pipStateMessage{Type: "pip:state", From: string(c.selfID), RoomID: string(room), InPiP: inPiP})
}

func (c *Client) SendControl(op session.ControlOp, room domain.RoomID) error {
	return c.sendJSON(controlMessage{Type: string(op), From: string(c.selfID), RoomID: string(room)})
}

// wsConn owns one websocket plus its bounded send queue.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}
