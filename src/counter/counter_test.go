package counter

import (
	"io/ioutil"
	"strings"
	"testing"

	"github.com/ntkmer/katss/src/hasher"
	"github.com/ntkmer/katss/src/kmertable"
	"github.com/ntkmer/katss/src/seqio"
)

func openRaw(t *testing.T, data string) *seqio.Stream {
	t.Helper()
	s, err := seqio.OpenReader(ioutil.NopCloser(strings.NewReader(data)))
	if err != nil {
		t.Fatalf("unexpected error opening stream: %v", err)
	}
	return s
}

func TestCountMatchesHandCountedKmers(t *testing.T) {
	data := strings.Repeat("ACGTACGT\n", 10)
	s := openRaw(t, data)
	table, err := Count(s, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ac, _ := hasher.HashString("AC")
	got, _ := table.GetByHash(ac, kmertable.Uint64)
	// each ACGTACGT line holds AC twice: 10 lines -> 20
	if got.(uint64) != 20 {
		t.Fatalf("expected count 20 for AC, got %v", got)
	}
}

func TestCountMTSumMatchesSingleThreaded(t *testing.T) {
	data := strings.Repeat("ACGTTGCATGCATGACGTACGTTTGGGCATGC\n", 200)

	single := openRaw(t, data)
	seqTable, err := Count(single, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	multi := openRaw(t, data)
	mtTable, err := CountMT(multi, 3, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if seqTable.Total() != mtTable.Total() {
		t.Fatalf("totals diverged: single=%d multi=%d", seqTable.Total(), mtTable.Total())
	}
}

func TestCountBootstrapIsReproducible(t *testing.T) {
	data := strings.Repeat("ACGTACGTACGTTTGCATGCATGACG\n", 50)

	s1 := openRaw(t, data)
	t1, err := CountBootstrap(s1, 3, 30000, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2 := openRaw(t, data)
	t2, err := CountBootstrap(s2, 3, 30000, 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if t1.Total() != t2.Total() {
		t.Fatalf("bootstrap not reproducible across identical seeds: %d != %d", t1.Total(), t2.Total())
	}
}

func TestCountBootstrapSubsamples(t *testing.T) {
	data := strings.Repeat("ACGTACGTACGTTTGCATGCATGACG\n", 200)

	full := openRaw(t, data)
	fullTable, err := CountBootstrap(full, 3, 100000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	partial := openRaw(t, data)
	partialTable, err := CountBootstrap(partial, 3, 10000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if partialTable.Total() >= fullTable.Total() {
		t.Fatalf("expected a 10%% sample to produce fewer counts than a full pass: partial=%d full=%d",
			partialTable.Total(), fullTable.Total())
	}
}

func TestCountBootstrapMTMatchesSingleThreadedTotal(t *testing.T) {
	data := strings.Repeat("ACGTACGTACGTTTGCATGCATGACG\n", 200)

	single := openRaw(t, data)
	singleTable, err := CountBootstrap(single, 3, 50000, 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	multi := openRaw(t, data)
	multiTable, err := CountBootstrapMT(multi, 3, 50000, 7, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if singleTable.Total() != multiTable.Total() {
		t.Fatalf("bootstrap sample set should be seed-determined regardless of thread count: single=%d multi=%d",
			singleTable.Total(), multiTable.Total())
	}
}

func TestCountShuffledPreservesTotalCount(t *testing.T) {
	data := strings.Repeat("ACGTACGTTTGCATGCAAGGCCTTACGTACGT\n", 20)

	plain := openRaw(t, data)
	plainTable, err := Count(plain, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shuffled := openRaw(t, data)
	shuffledTable, err := CountShuffled(shuffled, 2, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plainTable.Total() != shuffledTable.Total() {
		t.Fatalf("shuffled pass should count the same number of k-mers: plain=%d shuffled=%d",
			plainTable.Total(), shuffledTable.Total())
	}
}

func TestRecountMasksPreviousKmer(t *testing.T) {
	data := "AAAACCCCAAAACCCCAAAA\n"
	s := openRaw(t, data)
	table, err := Count(s, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _ := table.GetByString("AAAA", kmertable.Uint64)
	if before.(uint64) == 0 {
		t.Fatal("expected AAAA to be counted before recount")
	}

	reopened := openRaw(t, data)
	if err := Recount(reopened, table, "AAAA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after, _ := table.GetByString("AAAA", kmertable.Uint64)
	if after.(uint64) != 0 {
		t.Fatalf("expected AAAA to be masked out after recount, got %v", after)
	}
}
