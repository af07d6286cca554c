// Package shuffler implements a klet-mer frequency preserving shuffle of
// nucleotide sequences, used as the probabilistic background for u-shuffle
// enrichment analysis. The shuffle is a random walk on the de Bruijn graph
// whose nodes are (klet-1)-mer prefixes and whose edges are the klet-mers
// of the input sequence; taking every edge exactly once and in the order it
// was consumed from the input reproduces the input, so permuting the order
// in which edges leave each node yields a different sequence with the same
// klet-mer composition.
package shuffler

import (
	"fmt"
	"math/rand"
	"sync"
)

// maxWalkAttempts bounds the number of times Shuffle will re-permute a
// node's outgoing edges and retry the walk after hitting a dead end. Real
// sequence graphs are well connected for the small klet values katss uses
// (2-4), so a dead end is rare and a handful of retries resolves it.
const maxWalkAttempts = 100

// Shuffler performs seeded, repeatable klet-mer preserving shuffles. A
// Shuffler is safe for concurrent use; callers that need reproducibility
// across goroutines should serialize on a single instance the way the
// counting passes do.
type Shuffler struct {
	lock *sync.Mutex
	rng  *rand.Rand
}

// New creates a Shuffler seeded with seed.
func New(seed int64) *Shuffler {
	return &Shuffler{
		lock: new(sync.Mutex),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Reset reseeds the shuffler. Shuffle counting passes call Reset(1) at the
// start of each pass so the shuffled corpus is reproducible run to run.
func (s *Shuffler) Reset(seed int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rng = rand.New(rand.NewSource(seed))
}

func (s *Shuffler) shuffleBytes(b []byte) {
	for i := len(b) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		b[i], b[j] = b[j], b[i]
	}
}

// Shuffle returns a klet-mer frequency preserving permutation of seq. The
// output has the same length as seq and is never null-terminated; callers
// that need a terminator append it themselves. Sequences shorter than klet
// bases are returned unchanged, since there is nothing to preserve.
func (s *Shuffler) Shuffle(seq string, klet int) (string, error) {
	if klet < 1 {
		return "", fmt.Errorf("shuffler: klet must be >= 1, got %d", klet)
	}
	n := len(seq)
	if n < klet || n == 0 {
		return seq, nil
	}
	if klet == 1 {
		return s.shuffleWholeSequence(seq), nil
	}

	prefixLen := klet - 1
	firstPrefix := seq[0:prefixLen]

	edges := make(map[string][]byte, n)
	order := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for i := 0; i+klet <= n; i++ {
		prefix := seq[i : i+prefixLen]
		last := seq[i+klet-1]
		if !seen[prefix] {
			seen[prefix] = true
			order = append(order, prefix)
		}
		edges[prefix] = append(edges[prefix], last)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	for attempt := 0; attempt < maxWalkAttempts; attempt++ {
		for _, prefix := range order {
			s.shuffleBytes(edges[prefix])
		}
		out, ok := walk(seq, firstPrefix, prefixLen, n, edges)
		if ok {
			return out, nil
		}
	}
	return "", fmt.Errorf("shuffler: could not find an Eulerian walk for klet=%d after %d attempts", klet, maxWalkAttempts)
}

// walk reconstructs a sequence of length n by following, from firstPrefix,
// the next unused outgoing edge of the current (klet-1)-mer node until
// every edge has been consumed. It reports false on a dead end rather than
// panicking, so Shuffle can retry with a fresh permutation.
func walk(seq, firstPrefix string, prefixLen, n int, edges map[string][]byte) (string, bool) {
	cursor := make(map[string]int, len(edges))
	out := make([]byte, n)
	copy(out, firstPrefix)
	node := firstPrefix
	pos := prefixLen
	for pos < n {
		remaining := edges[node]
		idx := cursor[node]
		if idx >= len(remaining) {
			return "", false
		}
		out[pos] = remaining[idx]
		cursor[node]++
		pos++
		if prefixLen > 0 {
			node = string(out[pos-prefixLen : pos])
		}
	}
	return string(out), true
}

// shuffleWholeSequence performs a plain Fisher-Yates shuffle, the klet=1
// case where base composition is the only thing to preserve.
func (s *Shuffler) shuffleWholeSequence(seq string) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	b := []byte(seq)
	s.shuffleBytes(b)
	return string(b)
}

var (
	processWide     = New(1)
	processWideLock sync.Mutex
)

// ResetShuffleRNG reseeds the process-wide shuffler shared by counting
// passes. Every shuffle counting pass calls ResetShuffleRNG(1) at pass
// entry so the shuffled corpus is reproducible regardless of what ran
// before it.
func ResetShuffleRNG(seed int64) {
	processWideLock.Lock()
	defer processWideLock.Unlock()
	processWide.Reset(seed)
}

// ShuffleSeq shuffles seq with the process-wide shuffler.
func ShuffleSeq(seq string, klet int) (string, error) {
	processWideLock.Lock()
	sh := processWide
	processWideLock.Unlock()
	return sh.Shuffle(seq, klet)
}
