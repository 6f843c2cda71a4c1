package singularity

import (
	"math"
	"testing"

	"github.com/jfuginay/flexport-cross-platform-game/internal/events"
)

func TestProgressMonotonicAndClamped(t *testing.T) {
	c := New(nil)

	last := 0.0
	for _, amt := range []float64{5, -3, 0, 12.5, 40, 60, 10} {
		c.Advance(amt)
		if c.Progress() < last {
			t.Fatalf("progress decreased: %v -> %v", last, c.Progress())
		}
		last = c.Progress()
	}
	if c.Progress() != 100 {
		t.Errorf("progress = %v, want clamped at 100", c.Progress())
	}
}

func TestTerminalFiresExactlyOnce(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	c := New(bus, 75, 95)
	c.Advance(99)
	c.Advance(1)
	c.Advance(50) // no-op after terminal
	c.Advance(50)

	if !c.Terminal() {
		t.Fatal("expected terminal state")
	}
	if c.Progress() != 100 {
		t.Errorf("progress = %v, want 100", c.Progress())
	}

	gameOvers := 0
	for {
		select {
		case ev := <-ch:
			if _, ok := ev.(events.GameOver); ok {
				gameOvers++
			}
			continue
		default:
		}
		break
	}
	if gameOvers != 1 {
		t.Errorf("GameOver events = %d, want exactly 1", gameOvers)
	}
}

func TestThresholdsFireOnce(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(32)
	defer cancel()

	c := New(bus, 75, 95)
	for i := 0; i < 20; i++ {
		c.Advance(5)
	}

	seen := make(map[float64]int)
	for {
		select {
		case ev := <-ch:
			if ph, ok := ev.(events.SingularityPhase); ok {
				seen[ph.Threshold]++
			}
			continue
		default:
		}
		break
	}
	if seen[75] != 1 || seen[95] != 1 {
		t.Errorf("threshold notifications = %v, want each exactly once", seen)
	}
}

func TestSetProgressNeverRewinds(t *testing.T) {
	c := New(nil)
	c.Advance(60)

	c.SetProgress(40) // stale authoritative value
	if c.Progress() != 60 {
		t.Errorf("progress = %v, want 60 (no rewind)", c.Progress())
	}

	c.SetProgress(80)
	if c.Progress() != 80 {
		t.Errorf("progress = %v, want 80", c.Progress())
	}
}

func TestPhaseBands(t *testing.T) {
	cases := map[float64]Phase{
		0: PhaseDormant, 24.9: PhaseDormant,
		25: PhaseStirring, 50: PhaseAwakening,
		75: PhaseAscendant, 95: PhaseCritical,
		100: PhaseTerminal,
	}
	for p, want := range cases {
		if got := PhaseFor(p); got != want {
			t.Errorf("PhaseFor(%v) = %v, want %v", p, got, want)
		}
	}
}

func TestAdvanceAmountWeighting(t *testing.T) {
	w := DefaultWeights()

	// Everything at or above its cap contributes its full weight.
	full := AdvanceAmount(w, w.WealthCap*2, 100, 100, 10_000)
	if math.Abs(full-1.0) > 1e-9 {
		t.Errorf("full contribution = %v, want 1.0", full)
	}

	// Half wealth only: 0.5 * 0.30.
	half := AdvanceAmount(w, w.WealthCap/2, 0, 0, 0)
	if math.Abs(half-0.15) > 1e-9 {
		t.Errorf("half-wealth contribution = %v, want 0.15", half)
	}
}
