package evaluator

import (
	"context"
	"testing"

	"github.com/lp200/leela-zero/internal/config"
)

type stubLocal struct{}

func (stubLocal) Evaluate(fingerprint uint64, boardSize int) ([]float32, float32, float32) {
	policy := make([]float32, boardSize)
	policy[0] = float32(fingerprint%10) / 10.0
	return policy, 0.02, float32(fingerprint%100) / 100.0
}

func TestEvaluateMissThenHit(t *testing.T) {
	cfg := &config.Config{
		DesiredThreads:   1,
		NumIntersections: 9,
		CacheSizeHint:    10,
	}
	ev, err := New(cfg, stubLocal{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ev.Close()

	r1, err := ev.Evaluate(context.Background(), 42, make([]byte, 18))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	r2, err := ev.Evaluate(context.Background(), 42, make([]byte, 18))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r1.Winrate != r2.Winrate {
		t.Errorf("cached winrate %v differs from first computed %v", r2.Winrate, r1.Winrate)
	}

	stats := ev.Stats()
	if stats.Lookups != 2 {
		t.Errorf("Lookups = %d, want 2", stats.Lookups)
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1 (second call should hit)", stats.Hits)
	}
}

func TestEvaluateWithNoServersAndNoLocalFails(t *testing.T) {
	cfg := &config.Config{
		DesiredThreads:   1,
		NumIntersections: 9,
		CacheSizeHint:    10,
	}
	_, err := New(cfg, nil)
	if err == nil {
		t.Fatal("expected New to fail with no servers and no local fallback")
	}
}

func TestSelfCheckModeStillReturnsCachedResult(t *testing.T) {
	cfg := &config.Config{
		DesiredThreads:   1,
		NumIntersections: 9,
		CacheSizeHint:    10,
		SelfCheck:        true,
	}
	ev, err := New(cfg, stubLocal{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer ev.Close()

	r1, err := ev.Evaluate(context.Background(), 7, make([]byte, 18))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	r2, err := ev.Evaluate(context.Background(), 7, make([]byte, 18))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if r1.Winrate != r2.Winrate {
		t.Errorf("selfcheck mode changed returned value: %v vs %v", r1.Winrate, r2.Winrate)
	}
}
