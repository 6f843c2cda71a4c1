package entropy

import "testing"

func TestSeededDeterminism(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)

	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("draw %d diverged for identical seeds", i)
		}
	}
}

func TestDriftBoundedAndDeterministic(t *testing.T) {
	a := NewDrift(7)
	b := NewDrift(7)

	for ch := 0; ch < 4; ch++ {
		for i := 0; i < 200; i++ {
			ti := float64(i) * 0.05
			va, vb := a.Sample(ch, ti), b.Sample(ch, ti)
			if va != vb {
				t.Fatalf("drift diverged at channel %d t=%v", ch, ti)
			}
			if va < -1 || va > 1 {
				t.Fatalf("drift sample %v out of [-1,1]", va)
			}
		}
	}
}
