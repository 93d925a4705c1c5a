package session

import (
	"testing"
)

func TestDeduperDuplicateDropped(t *testing.T) {
	d := NewDeduper()
	payload := []byte("v=0 offer 1")

	claim, ok := d.Claim("peer-a", payload)
	if !ok {
		t.Fatal("first claim rejected")
	}

	// Retransmit while the first is still processing.
	if _, ok := d.Claim("peer-a", payload); ok {
		t.Error("in-flight duplicate was claimed")
	}

	claim.Done()

	// Retransmit after processing completed.
	if _, ok := d.Claim("peer-a", payload); ok {
		t.Error("processed duplicate was claimed")
	}
}

func TestDeduperReleaseAllowsRetry(t *testing.T) {
	d := NewDeduper()
	payload := []byte("v=0 offer 1")

	claim, ok := d.Claim("peer-a", payload)
	if !ok {
		t.Fatal("first claim rejected")
	}
	claim.Release()

	if _, ok := d.Claim("peer-a", payload); !ok {
		t.Error("released key could not be reclaimed")
	}
}

func TestDeduperPerPeerKeys(t *testing.T) {
	d := NewDeduper()
	payload := []byte("v=0 offer 1")

	claim, _ := d.Claim("peer-a", payload)
	claim.Done()

	if _, ok := d.Claim("peer-b", payload); !ok {
		t.Error("identical payload from a different peer was rejected")
	}
}

func TestDeduperOccurrenceAdvance(t *testing.T) {
	d := NewDeduper()
	payload := []byte("v=0 offer 1")

	claim, _ := d.Claim("peer-a", payload)
	claim.Done()

	if _, ok := d.Claim("peer-a", payload); ok {
		t.Fatal("duplicate claimed before occurrence advance")
	}

	d.AdvanceOccurrence("peer-a")

	claim2, ok := d.Claim("peer-a", payload)
	if !ok {
		t.Fatal("intentional repeat rejected after occurrence advance")
	}
	claim2.Done()

	// The retransmit of the repeat is again a duplicate.
	if _, ok := d.Claim("peer-a", payload); ok {
		t.Error("retransmit claimed after occurrence consumed")
	}
}

func TestDeduperOccurrenceAdvanceScopedToPeer(t *testing.T) {
	d := NewDeduper()
	payload := []byte("v=0 offer 1")

	claimA, _ := d.Claim("peer-a", payload)
	claimA.Done()
	claimB, _ := d.Claim("peer-b", payload)
	claimB.Done()

	d.AdvanceOccurrence("peer-a")

	if _, ok := d.Claim("peer-a", payload); !ok {
		t.Error("advanced peer could not repeat its payload")
	}
	if _, ok := d.Claim("peer-b", payload); ok {
		t.Error("advance for one peer unblocked another peer's retransmit")
	}
}

func TestDeduperRollover(t *testing.T) {
	d := NewDeduper()
	payload := []byte("v=0 offer 1")

	claim, _ := d.Claim("peer-a", payload)
	claim.Done()

	d.Rollover(1)

	if _, ok := d.Claim("peer-a", payload); !ok {
		t.Error("key from a previous generation still blocks after rollover")
	}
}

func TestDeduperRolloverNonAdvancingIgnored(t *testing.T) {
	d := NewDeduper()
	d.Rollover(2)

	payload := []byte("v=0 offer 1")
	claim, _ := d.Claim("peer-a", payload)
	claim.Done()

	// Neither a stale nor a repeated generation may clear current keys.
	d.Rollover(1)
	d.Rollover(2)

	if _, ok := d.Claim("peer-a", payload); ok {
		t.Error("non-advancing rollover cleared dedup records")
	}
}
