package localeval

import "testing"

func TestStubEvaluateIsDeterministic(t *testing.T) {
	w := Stub(9)
	p1, pp1, wr1 := w.Evaluate(12345, 9)
	p2, pp2, wr2 := w.Evaluate(12345, 9)
	if pp1 != pp2 || wr1 != wr2 {
		t.Fatalf("Evaluate not deterministic: (%v,%v) vs (%v,%v)", pp1, wr1, pp2, wr2)
	}
	if len(p1) != 9 || len(p2) != 9 {
		t.Fatalf("policy length = %d, want 9", len(p1))
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Errorf("policy[%d] differs across calls", i)
		}
	}
}

func TestStubWinrateIsInUnitRange(t *testing.T) {
	w := Stub(9)
	_, _, wr := w.Evaluate(987654321, 9)
	if wr < 0 || wr >= 1 {
		t.Errorf("winrate = %v, want in [0,1)", wr)
	}
}
