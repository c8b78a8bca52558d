// Package bench drives synthetic search traffic against a transposition
// table: many workers probing and saving a shared key population, the way
// Lazy SMP workers hammer the real table during a search.
package bench

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hailam/ttable/internal/tt"
)

// Config describes one benchmark round.
type Config struct {
	Threads   int           // concurrent workers
	Duration  time.Duration // wall-clock length of the round
	Positions uint64        // distinct fingerprints in the workload
	Seed      uint64        // fingerprint stream seed
}

// Result aggregates one round.
type Result struct {
	Ops      uint64
	Hits     uint64
	Elapsed  time.Duration
	HashFull int
}

// OpsPerSec returns the probe+save throughput of the round.
func (r Result) OpsPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Ops) / r.Elapsed.Seconds()
}

// HitRate returns the cache hit rate as a percentage.
func (r Result) HitRate() float64 {
	if r.Ops == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Ops) * 100
}

// Fingerprint derives the n-th position key of a seeded workload. xxhash
// gives the uniform 64-bit spread the table's multiply-shift indexing
// expects from real Zobrist keys.
func Fingerprint(seed, n uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], seed)
	binary.LittleEndian.PutUint64(buf[8:], n)
	return xxhash.Sum64(buf[:])
}

// stopCheckInterval matches the every-few-thousand-nodes cadence search
// workers use for their stop flag.
const stopCheckInterval = 1024

// Run executes one round of probe/save traffic against table. Workers walk
// the key population in interleaved strides, so revisits produce genuine
// hits and fragment evictions. Run returns once the round's deadline has
// passed and every worker has drained.
func Run(ctx context.Context, table *tt.Table, cfg Config) (Result, error) {
	if cfg.Threads < 1 {
		return Result{}, fmt.Errorf("bench: thread count %d", cfg.Threads)
	}
	if cfg.Positions == 0 {
		return Result{}, fmt.Errorf("bench: empty position population")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var ops, hits atomic.Uint64
	gen := table.Generation()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Threads; w++ {
		g.Go(func() error {
			var localOps, localHits uint64
			defer func() {
				ops.Add(localOps)
				hits.Add(localHits)
			}()

			for n := uint64(w); ; n += uint64(cfg.Threads) {
				if localOps%stopCheckInterval == 0 {
					select {
					case <-ctx.Done():
						return nil
					default:
					}
				}

				key := Fingerprint(cfg.Seed, n%cfg.Positions)
				entry, found := table.Probe(key)
				if found {
					localHits++
				}

				// Derive plausible node results from the key so depth,
				// bound, PV and move retention paths all get traffic.
				depth := int(key>>16) % 24
				value := tt.Value(int16(key>>24) % 1000)
				bound := tt.Bound(1 + (key>>40)%3)
				pv := key&(1<<43) != 0
				move := tt.Move(key >> 32)
				entry.Save(key, value, pv, bound, depth, move, value, gen)

				localOps++
			}
		})
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	return Result{
		Ops:      ops.Load(),
		Hits:     hits.Load(),
		Elapsed:  time.Since(start),
		HashFull: table.HashFull(),
	}, nil
}
