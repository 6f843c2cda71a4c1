package leaderboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jfuginay/flexport-cross-platform-game/internal/economy"
)

func emptyView() economy.EmpireView {
	return economy.EmpireView{}
}

func TestDisabledClient(t *testing.T) {
	if NewClient("") != nil {
		t.Fatal("empty URL should yield nil client")
	}
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client reports enabled")
	}
	// SubmitEmpire on a nil client must be a no-op, not a panic.
	c.SubmitEmpire(emptyView(), "web", 0, 0)
}

func TestSubmit(t *testing.T) {
	var mu sync.Mutex
	var got Submission

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	err := c.Submit(Submission{
		PlayerID: "p1",
		Platform: "web",
		NetWorth: 2_500_000,
		Level:    9,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.PlayerID != "p1" || got.NetWorth != 2_500_000 {
		t.Errorf("server received %+v", got)
	}
	if got.SubmittedAt.IsZero() {
		t.Error("submission timestamp not filled")
	}
}

func TestSubmitServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	if err := c.Submit(Submission{PlayerID: "p1"}); err == nil {
		t.Fatal("expected error on 500")
	}
}
