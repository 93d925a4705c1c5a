package session

import (
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/arlevm/paircall/internal/domain"
)

type recordState int

const (
	stateProcessing recordState = iota
	stateProcessed
)

// dedupKey identifies one signaling message exactly once per connection
// generation. The occurrence counter separates a legitimate repeat of an
// identical payload (renegotiation after a restart) from a retransmit.
type dedupKey struct {
	peer       domain.PeerID
	generation uint64
	payload    uint64
	occurrence uint64
}

// Deduper assigns idempotency keys to offers and answers and enforces
// exactly-once processing per generation. A generation rollover implicitly
// invalidates every prior key.
type Deduper struct {
	mu          sync.Mutex
	generation  uint64
	records     map[dedupKey]recordState
	occurrences map[domain.PeerID]uint64
}

func NewDeduper() *Deduper {
	return &Deduper{
		records:     make(map[dedupKey]recordState),
		occurrences: make(map[domain.PeerID]uint64),
	}
}

// Claim registers a message as in-flight. The second return is false when
// the same key is already processing or processed, in which case the caller
// must drop the message.
func (d *Deduper) Claim(peer domain.PeerID, payload []byte) (Claim, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := dedupKey{
		peer:       peer,
		generation: d.generation,
		payload:    hashPayload(payload),
		occurrence: d.occurrences[peer],
	}
	if _, seen := d.records[key]; seen {
		return Claim{}, false
	}
	d.records[key] = stateProcessing
	return Claim{d: d, key: key}, true
}

// AdvanceOccurrence allows payloads from peer to be processed again.
// Called when the session intentionally restarts negotiation within one
// generation; never called for retransmits. Keys claimed under the old
// occurrence still block their own retransmits.
func (d *Deduper) AdvanceOccurrence(peer domain.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.occurrences[peer]++
}

// Rollover moves the deduper to a new generation and drops all prior keys.
func (d *Deduper) Rollover(generation uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if generation <= d.generation {
		log.Warn().Str("module", "session.dedup").
			Uint64("current", d.generation).Uint64("requested", generation).
			Msg("rollover to a non-advancing generation ignored")
		return
	}
	d.generation = generation
	d.records = make(map[dedupKey]recordState)
	d.occurrences = make(map[domain.PeerID]uint64)
}

// Claim is a claimed in-flight record. Done marks it terminally processed;
// Release forgets it so a later retry can claim it again.
type Claim struct {
	d   *Deduper
	key dedupKey
}

func (c Claim) Done() {
	if c.d == nil {
		return
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if _, ok := c.d.records[c.key]; ok {
		c.d.records[c.key] = stateProcessed
	}
}

func (c Claim) Release() {
	if c.d == nil {
		return
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	delete(c.d.records, c.key)
}

func hashPayload(payload []byte) uint64 {
	h := fnv.New64a()
	h.Write(payload)
	return h.Sum64()
}
