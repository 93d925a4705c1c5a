package session

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/arlevm/paircall/internal/domain"
)

// candidateBuffer holds inbound ICE candidates for the current peer until
// the remote description is set. Candidates keep arrival order. Binding a
// different peer discards everything buffered for the previous one.
type candidateBuffer struct {
	mu      sync.Mutex
	peer    domain.PeerID
	pending []webrtc.ICECandidateInit
}

func newCandidateBuffer() *candidateBuffer {
	return &candidateBuffer{}
}

// Bind sets the peer the buffer belongs to. A change of peer discards the
// previous queue: those candidates belong to a superseded partner.
func (b *candidateBuffer) Bind(peer domain.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peer != peer {
		b.peer = peer
		b.pending = nil
	}
}

// Push buffers a candidate for peer. Returns false when the candidate is
// addressed to someone other than the bound peer.
func (b *candidateBuffer) Push(peer domain.PeerID, cand webrtc.ICECandidateInit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.peer == "" {
		b.peer = peer
	}
	if peer != b.peer {
		return false
	}
	b.pending = append(b.pending, cand)
	return true
}

// Drain returns the buffered candidates for peer in arrival order and
// empties the queue. A mismatched peer yields nothing.
func (b *candidateBuffer) Drain(peer domain.PeerID) []webrtc.ICECandidateInit {
	b.mu.Lock()
	defer b.mu.Unlock()
	if peer != b.peer {
		return nil
	}
	out := b.pending
	b.pending = nil
	return out
}

func (b *candidateBuffer) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.peer = ""
	b.pending = nil
}

func (b *candidateBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// localCandidateCache holds locally gathered candidates produced before the
// partner id is known. Order is not significant here; the receiving side
// buffers them against its own remote description anyway.
type localCandidateCache struct {
	mu      sync.Mutex
	pending []webrtc.ICECandidateInit
}

func newLocalCandidateCache() *localCandidateCache {
	return &localCandidateCache{}
}

func (c *localCandidateCache) Push(cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, cand)
}

func (c *localCandidateCache) DrainAll() []webrtc.ICECandidateInit {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

func (c *localCandidateCache) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
}
