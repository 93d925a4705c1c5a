package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arlevm/paircall/internal/app/session"
)

func TestHealthz(t *testing.T) {
	r := SetupRouter("release", func() session.Snapshot { return session.Snapshot{} })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestDebugSessionServesSnapshot(t *testing.T) {
	snap := session.Snapshot{
		Generation: 3,
		PartnerID:  "beta",
		RoomID:     "room-1",
		Kind:       "roulette",
		Connected:  true,
	}
	r := SetupRouter("release", func() session.Snapshot { return snap })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/session", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got session.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Generation != 3 || got.PartnerID != "beta" || !got.Connected {
		t.Errorf("snapshot round-trip = %+v", got)
	}
}
