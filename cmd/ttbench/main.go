// ttbench drives synthetic search traffic against the transposition table
// and records throughput, hit rate and occupancy per run.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/google/uuid"

	"github.com/hailam/ttable/internal/bench"
	"github.com/hailam/ttable/internal/storage"
	"github.com/hailam/ttable/internal/tt"
)

var (
	hashMB     = flag.Int("hash", 64, "transposition table size in MB")
	threads    = flag.Int("threads", runtime.NumCPU(), "concurrent probe/save workers")
	rounds     = flag.Int("rounds", 4, "search generations to simulate")
	roundTime  = flag.Duration("time", 2*time.Second, "duration of each round")
	positions  = flag.Uint64("positions", 1<<20, "distinct positions in the workload")
	seed       = flag.Uint64("seed", 0x9E3779B97F4A7C15, "fingerprint stream seed")
	noStore    = flag.Bool("nostore", false, "do not record the run")
	list       = flag.Bool("list", false, "print recorded runs and exit")
	cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()

	if *list {
		listRuns()
		return
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", *cpuprofile)
	}

	pool := tt.NewThreadPool(*threads)
	defer pool.Close()

	table := tt.New(*hashMB, pool)
	log.Printf("table: %dMB, %d clusters, %d workers", *hashMB, table.ClusterCount(), *threads)

	cfg := bench.Config{
		Threads:   *threads,
		Duration:  *roundTime,
		Positions: *positions,
		Seed:      *seed,
	}

	var totalOps, totalHits uint64
	var totalElapsed time.Duration
	lastHashFull := 0

	for round := 1; round <= *rounds; round++ {
		res, err := bench.Run(context.Background(), table, cfg)
		if err != nil {
			log.Fatalf("round %d: %v", round, err)
		}

		log.Printf("round %d: %d ops in %v (%.0f ops/s), hits %.1f%%, hashfull %d",
			round, res.Ops, res.Elapsed.Round(time.Millisecond),
			res.OpsPerSec(), res.HitRate(), res.HashFull)

		totalOps += res.Ops
		totalHits += res.Hits
		totalElapsed += res.Elapsed
		lastHashFull = res.HashFull

		// Each round models one iteration of the deepening search loop.
		table.NewSearch()
	}

	start := time.Now()
	table.Clear(pool)
	log.Printf("cleared %d clusters in %v", table.ClusterCount(), time.Since(start).Round(time.Microsecond))

	total := bench.Result{Ops: totalOps, Hits: totalHits, Elapsed: totalElapsed}
	log.Printf("total: %d ops, %.0f ops/s, hits %.1f%%", total.Ops, total.OpsPerSec(), total.HitRate())

	if *noStore {
		return
	}

	store, err := storage.NewStorage()
	if err != nil {
		log.Printf("Warning: run not recorded: %v", err)
		return
	}
	defer store.Close()

	rec := &storage.RunRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		HashMB:    *hashMB,
		Threads:   *threads,
		Rounds:    *rounds,
		Positions: *positions,
		Ops:       totalOps,
		OpsPerSec: total.OpsPerSec(),
		HitRate:   total.HitRate(),
		HashFull:  lastHashFull,
		Elapsed:   totalElapsed,
	}
	if err := store.SaveRun(rec); err != nil {
		log.Printf("Warning: run not recorded: %v", err)
		return
	}
	log.Printf("recorded run %s", rec.ID)
}

func listRuns() {
	store, err := storage.NewStorage()
	if err != nil {
		log.Fatalf("open run store: %v", err)
	}
	defer store.Close()

	runs, err := store.ListRuns()
	if err != nil {
		log.Fatalf("list runs: %v", err)
	}
	if len(runs) == 0 {
		log.Println("no recorded runs")
		return
	}
	for _, r := range runs {
		log.Printf("%s  %s  hash %dMB threads %d  %.0f ops/s  hits %.1f%%  hashfull %d",
			r.Timestamp.Format(time.RFC3339), r.ID, r.HashMB, r.Threads,
			r.OpsPerSec, r.HitRate, r.HashFull)
	}
}
