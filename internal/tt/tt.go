// Package tt implements a fixed-capacity transposition table shared by all
// search workers. Entries are packed into cache-line-sized clusters and are
// read and written without locks: a torn entry costs at most one spurious
// hit or miss, which the search re-verifies anyway.
package tt

import (
	"log"
	"math/bits"
	"unsafe"
)

// Move is a compactly encoded best move as produced by the search. The
// encoding is opaque to the table; only equality with NoMove matters here.
type Move uint16

// NoMove represents an invalid or null move.
const NoMove Move = 0

// Value is a search score in centipawn-like units.
type Value int16

// ValueNone marks a missing score or static eval.
const ValueNone Value = 32002

// Bound classifies a stored value relative to the true search value.
type Bound uint8

const (
	BoundNone  Bound = 0
	BoundUpper Bound = 1 // Failed low, value is an upper bound
	BoundLower Bound = 2 // Failed high (beta cutoff), value is a lower bound
	BoundExact Bound = BoundUpper | BoundLower
)

// Generation is packed into the high bits of the same byte as the bound and
// PV flag, so it advances in steps of GenerationDelta and its cyclic
// distance is computed under generationMask.
const (
	generationBits = 3

	// GenerationDelta is the aging step applied between searches.
	GenerationDelta = 1 << generationBits

	generationCycle = 255 + GenerationDelta
	generationMask  = (0xFF << generationBits) & 0xFF
)

// depthEntryOffset is subtracted from the stored depth so that the small
// negative depths used by quiescence search fit an unsigned byte while
// depth8 == 0 still means "empty slot".
const depthEntryOffset = -3

// Replacement tuning. replaceAgeWeight scales relative age against depth
// when picking an eviction victim; pvDepthBonus credits PV nodes in the
// overwrite decision; replaceDepthMargin is the slack subtracted from the
// stored depth before a new save must beat it.
const (
	replaceAgeWeight   = 2
	pvDepthBonus       = 2
	replaceDepthMargin = 0
)

// Entry is one cached search result, 10 bytes packed. key16 keeps only the
// low 16 bits of the position fingerprint; full-width collisions are
// accepted and bounded by rarity.
type Entry struct {
	key16     uint16
	move16    Move
	value16   int16
	eval16    int16
	depth8    uint8
	genBound8 uint8
}

// Move returns the stored best move, or NoMove.
func (e *Entry) Move() Move { return e.move16 }

// Value returns the stored search score.
func (e *Entry) Value() Value { return Value(e.value16) }

// Eval returns the stored raw static evaluation.
func (e *Entry) Eval() Value { return Value(e.eval16) }

// Depth returns the search depth the entry was stored at.
func (e *Entry) Depth() int { return int(e.depth8) + depthEntryOffset }

// Bound returns the bound type of the stored value.
func (e *Entry) Bound() Bound { return Bound(e.genBound8 & 0x3) }

// IsPV reports whether the position was on a principal-variation path.
func (e *Entry) IsPV() bool { return e.genBound8&0x4 != 0 }

// Occupied reports whether the slot has ever been written.
func (e *Entry) Occupied() bool { return e.depth8 != 0 }

// relativeAge returns the cyclic distance from the entry's generation to
// generation. The cycle length over-counts by GenerationDelta so that the
// bound and PV bits packed below the generation never affect the result,
// even after the 8-bit counter wraps.
func (e *Entry) relativeAge(generation uint8) int {
	return (generationCycle + int(generation) - int(e.genBound8)) & generationMask
}

// Save populates the entry with a new node's data, possibly overwriting an
// old position. The update is not atomic and can be racy.
func (e *Entry) Save(key uint64, v Value, pv bool, b Bound, depth int, m Move, ev Value, generation uint8) {
	// Preserve the old move if we don't have a new one
	if m != NoMove || uint16(key) != e.key16 {
		e.move16 = m
	}

	bonus := 0
	if pv {
		bonus = pvDepthBonus
	}

	// Overwrite less valuable entries (cheapest checks first): exact
	// results, a different position claiming the slot, deeper results,
	// and anything replacing a stale entry all win.
	if b == BoundExact || uint16(key) != e.key16 ||
		depth-depthEntryOffset+bonus > int(e.depth8)-replaceDepthMargin ||
		e.relativeAge(generation) != 0 {

		e.key16 = uint16(key)
		e.depth8 = uint8(depth - depthEntryOffset)
		pvBit := uint8(0)
		if pv {
			pvBit = 1
		}
		e.genBound8 = generation | pvBit<<2 | uint8(b)
		e.value16 = int16(v)
		e.eval16 = int16(ev)
	}
}

// ClusterSize is the number of entries sharing one cluster. A cluster is 32
// bytes, so a single cache-line fetch covers the whole linear scan.
const ClusterSize = 3

type cluster struct {
	entry [ClusterSize]Entry
	_     [2]byte // pad to 32 bytes
}

// Compile-time layout asserts; the sizing and indexing math depend on them.
var (
	_ [32 - unsafe.Sizeof(cluster{})]byte
	_ [unsafe.Sizeof(cluster{}) - 32]byte
)

// Table is the shared transposition table: a single contiguous block of
// clusters plus the current search generation. Probe and Save may be called
// from any number of workers concurrently; Resize and Clear must only run
// while the search is quiescent.
type Table struct {
	clusters     []cluster
	clusterCount uint64
	generation8  uint8
}

// New creates a table of the given size in megabytes, zeroed by pool.
func New(mb int, pool *ThreadPool) *Table {
	t := &Table{}
	t.Resize(mb, pool)
	return t
}

// Resize sets the size of the table in megabytes, discarding every stored
// entry. The cluster count is the requested byte size divided by the
// cluster size, so it is generally not a power of two. A size too small for
// a single cluster is fatal: the engine cannot run without its table.
func (t *Table) Resize(mb int, pool *ThreadPool) {
	t.clusters = nil

	t.clusterCount = uint64(mb) * 1024 * 1024 / uint64(unsafe.Sizeof(cluster{}))
	if mb <= 0 || t.clusterCount == 0 {
		log.Fatalf("failed to allocate %dMB for transposition table", mb)
	}

	// One allocation for the whole table. An out-of-memory condition here
	// aborts the process, matching the fatal contract above.
	t.clusters = make([]cluster, t.clusterCount)

	t.Clear(pool)
}

// Clear zeroes the entire table, splitting the cluster range into one
// contiguous stride per pool thread. It blocks until every stride is done
// and must never overlap probe/save traffic.
func (t *Table) Clear(pool *ThreadPool) {
	n := uint64(pool.Size())

	for i := uint64(0); i < n; i++ {
		pool.RunOnThread(int(i), func() {
			stride := t.clusterCount / n
			start := stride * i
			count := stride
			if i+1 == n {
				count = t.clusterCount - start
			}
			clear(t.clusters[start : start+count])
		})
	}

	for i := 0; i < int(n); i++ {
		pool.WaitOnThread(i)
	}
}

// firstEntry maps a fingerprint onto its cluster without a modulo: the high
// word of key*clusterCount is uniform over [0, clusterCount) for any count,
// which lets the table size follow the megabyte request exactly.
func (t *Table) firstEntry(key uint64) *cluster {
	idx, _ := bits.Mul64(key, t.clusterCount)
	return &t.clusters[idx]
}

// Probe looks up a position in the table. If the position is found it
// returns its entry and true (true only if the slot is genuinely occupied,
// not just a fragment match on an empty slot). Otherwise it returns false
// and the least valuable entry of the cluster for a later Save; the value
// of an entry is its depth minus replaceAgeWeight times its relative age.
func (t *Table) Probe(key uint64) (*Entry, bool) {
	c := t.firstEntry(key)
	key16 := uint16(key)

	for i := range c.entry {
		if c.entry[i].key16 == key16 {
			return &c.entry[i], c.entry[i].depth8 != 0
		}
	}

	replace := &c.entry[0]
	for i := 1; i < ClusterSize; i++ {
		if int(replace.depth8)-replace.relativeAge(t.generation8)*replaceAgeWeight >
			int(c.entry[i].depth8)-c.entry[i].relativeAge(t.generation8)*replaceAgeWeight {
			replace = &c.entry[i]
		}
	}
	return replace, false
}

// NewSearch advances the table to the next generation. Called by the search
// orchestration between iterations, never from inside the workers.
func (t *Table) NewSearch() {
	t.generation8 += GenerationDelta
}

// Generation returns the current generation byte, pre-shifted for packing
// into Entry.Save.
func (t *Table) Generation() uint8 {
	return t.generation8
}

// ClusterCount returns the number of clusters in the table.
func (t *Table) ClusterCount() uint64 {
	return t.clusterCount
}

// HashFull returns an approximation of the table occupancy in permille, as
// reported to the operator during search. It samples the first 1000
// clusters and counts only entries stamped with the current generation, so
// leftovers from earlier searches are deliberately ignored.
func (t *Table) HashFull() int {
	sample := uint64(1000)
	if t.clusterCount < sample {
		sample = t.clusterCount
	}

	cnt := 0
	for i := uint64(0); i < sample; i++ {
		for j := 0; j < ClusterSize; j++ {
			e := &t.clusters[i].entry[j]
			if e.depth8 != 0 && e.genBound8&generationMask == t.generation8 {
				cnt++
			}
		}
	}
	return cnt / ClusterSize
}
