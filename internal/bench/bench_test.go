package bench

import (
	"context"
	"testing"
	"time"

	"github.com/hailam/ttable/internal/tt"
)

func TestFingerprintDeterministic(t *testing.T) {
	if Fingerprint(1, 100) != Fingerprint(1, 100) {
		t.Fatal("fingerprint not deterministic")
	}
	if Fingerprint(1, 100) == Fingerprint(2, 100) {
		t.Error("seed does not change the key stream")
	}
	if Fingerprint(1, 100) == Fingerprint(1, 101) {
		t.Error("index does not change the key stream")
	}
}

func TestRunConfigValidation(t *testing.T) {
	pool := tt.NewThreadPool(1)
	defer pool.Close()
	table := tt.New(1, pool)

	if _, err := Run(context.Background(), table, Config{Threads: 0, Duration: time.Millisecond, Positions: 10}); err == nil {
		t.Error("expected error for zero threads")
	}
	if _, err := Run(context.Background(), table, Config{Threads: 1, Duration: time.Millisecond, Positions: 0}); err == nil {
		t.Error("expected error for empty population")
	}
}

func TestRunFillsTable(t *testing.T) {
	pool := tt.NewThreadPool(2)
	defer pool.Close()
	table := tt.New(4, pool)

	cfg := Config{
		Threads:   2,
		Duration:  100 * time.Millisecond,
		Positions: 1 << 12,
		Seed:      42,
	}

	res, err := Run(context.Background(), table, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Ops == 0 {
		t.Fatal("round did zero work")
	}
	if res.HashFull == 0 {
		t.Error("table still empty after a round")
	}
	if res.Elapsed < cfg.Duration {
		t.Errorf("round ended early: %v", res.Elapsed)
	}

	// A small population revisited for another round should mostly hit.
	res2, err := Run(context.Background(), table, cfg)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res2.Hits == 0 {
		t.Error("no hits on a revisited population")
	}
	t.Logf("round 1: %d ops, %.1f%% hits; round 2: %d ops, %.1f%% hits, hashfull %d",
		res.Ops, res.HitRate(), res2.Ops, res2.HitRate(), res2.HashFull)
}

func TestRunRespectsGenerations(t *testing.T) {
	pool := tt.NewThreadPool(1)
	defer pool.Close()
	table := tt.New(1, pool)

	cfg := Config{Threads: 1, Duration: 50 * time.Millisecond, Positions: 1 << 10, Seed: 7}
	if _, err := Run(context.Background(), table, cfg); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Advancing the generation makes last round's entries stale, so the
	// fresh-only occupancy estimate drops to zero before any new saves.
	table.NewSearch()
	if hf := table.HashFull(); hf != 0 {
		t.Errorf("HashFull() = %d after generation advance, want 0", hf)
	}
}
