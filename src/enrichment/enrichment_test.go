package enrichment

import (
	"io/ioutil"
	"math"
	"strings"
	"testing"

	"github.com/ntkmer/katss/src/counter"
	"github.com/ntkmer/katss/src/hasher"
	"github.com/ntkmer/katss/src/kmertable"
	"github.com/ntkmer/katss/src/seqio"
)

func openerFor(data string) Opener {
	return func() (*seqio.Stream, error) {
		return seqio.OpenReader(ioutil.NopCloser(strings.NewReader(data)))
	}
}

func countFrom(t *testing.T, data string, k int) *kmertable.Table {
	t.Helper()
	s, err := openerFor(data)()
	if err != nil {
		t.Fatalf("unexpected error opening stream: %v", err)
	}
	table, err := counter.Count(s, k)
	if err != nil {
		t.Fatalf("unexpected error counting: %v", err)
	}
	return table
}

func TestComputeRanksEnrichedKmerFirst(t *testing.T) {
	test := countFrom(t, strings.Repeat("AAAA\n", 20)+strings.Repeat("CCCC\n", 1), 2)
	control := countFrom(t, strings.Repeat("AAAA\n", 1)+strings.Repeat("CCCC\n", 20), 2)

	enrichments, err := Compute(test, control, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	aa, _ := hasher.HashString("AA")
	if enrichments.Rows[0].Key != aa {
		t.Fatalf("expected AA (overrepresented in test) to rank first, got hash %d", enrichments.Rows[0].Key)
	}
}

func TestComputeRejectsMismatchedK(t *testing.T) {
	test := countFrom(t, "AAAA\n", 2)
	control := countFrom(t, "AAA\n", 3)
	if _, err := Compute(test, control, false); err == nil {
		t.Fatal("expected error for mismatched k")
	}
}

func TestComputeNaNRowsSortLast(t *testing.T) {
	test := countFrom(t, "AACC\n", 2)
	control := countFrom(t, "AA\n", 2)

	enrichments, err := Compute(test, control, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := enrichments.Rows[len(enrichments.Rows)-1]
	if !math.IsNaN(last.Enrichment) {
		t.Fatalf("expected the final row to be NaN, got %v", last.Enrichment)
	}
}

func TestComputePredictedValidatesMonoAndDiTableSizes(t *testing.T) {
	test := countFrom(t, "AACC\n", 2)
	badMono := countFrom(t, "AACC\n", 2)
	di := countFrom(t, "AACC\n", 2)
	if _, err := ComputePredicted(test, badMono, di, false); err == nil {
		t.Fatal("expected error for wrong mono/di table sizes")
	}
}

func TestTopReturnsNegativeInfinityOnEmptyCorpus(t *testing.T) {
	test, _ := kmertable.New(2)
	control, _ := kmertable.New(2)
	top := Top(test, control, false)
	if !math.IsInf(top.Enrichment, -1) {
		t.Fatalf("expected -Inf for an empty corpus, got %v", top.Enrichment)
	}
}

func TestTopFindsTheMostEnrichedKmer(t *testing.T) {
	test := countFrom(t, strings.Repeat("GGGG\n", 30)+strings.Repeat("TTTT\n", 5), 2)
	control := countFrom(t, strings.Repeat("GGGG\n", 1)+strings.Repeat("TTTT\n", 30), 2)

	top := Top(test, control, false)
	gg, _ := hasher.HashString("GG")
	if top.Key != gg {
		t.Fatalf("expected GG to be top-enriched, got hash %d", top.Key)
	}
}

func TestIKKEMasksOutEachIterationsTopKmer(t *testing.T) {
	testData := strings.Repeat("AAAA\n", 40) + strings.Repeat("CCCC\n", 10) + strings.Repeat("GGGG\n", 2)
	controlData := strings.Repeat("AAAA\n", 2) + strings.Repeat("CCCC\n", 10) + strings.Repeat("GGGG\n", 40)

	enrichments, err := IKKE(openerFor(testData), openerFor(controlData), 2, 3, false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enrichments.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(enrichments.Rows))
	}
	seen := map[uint32]bool{}
	for _, row := range enrichments.Rows {
		if seen[row.Key] {
			t.Fatalf("expected each IKKE iteration to surface a distinct k-mer, saw %d twice", row.Key)
		}
		seen[row.Key] = true
	}
}

func TestIKKEIterationsClampToTableCapacity(t *testing.T) {
	testData := "AAAA\nCCCC\n"
	controlData := "AAAA\nCCCC\n"
	enrichments, err := IKKE(openerFor(testData), openerFor(controlData), 2, 1000000, false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uint64(len(enrichments.Rows)) != 16 { // 4^2
		t.Fatalf("expected iterations clamped to 4^k=16, got %d", len(enrichments.Rows))
	}
}

func TestIKKEPredictedProducesRequestedRowCount(t *testing.T) {
	testData := strings.Repeat("ACGTACGTTGCATGCA\n", 30)
	enrichments, err := IKKEPredicted(openerFor(testData), 2, 4, false, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enrichments.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(enrichments.Rows))
	}
}

func TestIKKEShuffledProducesRequestedRowCount(t *testing.T) {
	testData := strings.Repeat("ACGTACGTTGCATGCAAGGCCTTACGTACGT\n", 10)
	enrichments, err := IKKEShuffled(openerFor(testData), 2, 2, 3, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(enrichments.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(enrichments.Rows))
	}
}
