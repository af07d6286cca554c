package api

import (
	"io/ioutil"
	"math"
	"path/filepath"
	"testing"
)

func writeCorpus(t *testing.T, data string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.fasta")
	if err := ioutil.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write test corpus: %v", err)
	}
	return path
}

func TestDefaultOptionsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default options to validate, got %v", err)
	}
}

func TestValidateRejectsOutOfRangeK(t *testing.T) {
	opts := Default()
	opts.K = 0
	if err := opts.Validate(); err == nil {
		t.Fatal("expected an error for k=0")
	}
	opts.K = 17
	if err := opts.Validate(); err == nil {
		t.Fatal("expected an error for k=17")
	}
}

func TestValidateRejectsBadBootstrapSample(t *testing.T) {
	opts := Default()
	opts.BootstrapIters = 5
	opts.BootstrapSample = 0
	if err := opts.Validate(); err == nil {
		t.Fatal("expected an error for bootstrap_sample=0 with bootstrap_iters>0")
	}
}

func TestProbAlgoNumericMapping(t *testing.T) {
	cases := map[ProbAlgo]int{
		ProbNone:     0,
		ProbUshuffle: 1,
		ProbRegular:  2,
		ProbBoth:     3,
	}
	for algo, want := range cases {
		if int(algo) != want {
			t.Fatalf("expected %v to equal %d, got %d", algo, want, int(algo))
		}
	}
}

func TestNtprecDefaultsToRoundedSqrtOfK(t *testing.T) {
	opts := Default()
	opts.K = 9
	if got := opts.ntprec(); got != 3 {
		t.Fatalf("expected ntprec=3 for k=9, got %d", got)
	}
}

func TestCountProducesOneRowPerKmerInHashOrderByDefault(t *testing.T) {
	path := writeCorpus(t, ">seq1\nACGTACGTTGCATGCAAGGCCTTACGTACGT\n")
	opts := Default()
	opts.K = 2
	opts.Threads = 1

	rows, diag, err := Count(opts, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 16 {
		t.Fatalf("expected 16 rows for k=2, got %d", len(rows))
	}
	for i, r := range rows {
		if r.KmerHash != uint32(i) {
			t.Fatalf("expected ascending hash order by default, row %d has hash %d", i, r.KmerHash)
		}
		if r.Count == nil {
			t.Fatalf("expected a non-nil count for plain counting, row %d", i)
		}
	}
	if len(diag.Messages()) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diag.Messages())
	}
}

func TestCountSortDescendingByScore(t *testing.T) {
	path := writeCorpus(t, ">seq1\n"+repeat("AAAA", 20)+repeat("CCCC", 5)+"\n")
	opts := Default()
	opts.K = 2
	opts.Sort = true

	rows, _, err := Count(opts, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Score > rows[i-1].Score {
			t.Fatalf("expected descending score order, row %d (%v) > row %d (%v)", i, rows[i].Score, i-1, rows[i-1].Score)
		}
	}
}

func TestCountBootstrapProducesMeanAndStdev(t *testing.T) {
	path := writeCorpus(t, ">seq1\n"+repeat("ACGTACGTTGCATGCA", 50)+"\n")
	opts := Default()
	opts.K = 2
	opts.BootstrapIters = 4
	opts.BootstrapSample = 100000
	opts.Seed = 42

	rows, _, err := Count(opts, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 16 {
		t.Fatalf("expected 16 rows for k=2, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Stdev == nil {
			t.Fatal("expected a non-nil stdev for bootstrap counting")
		}
		if r.Count != nil {
			t.Fatal("expected a nil count for bootstrap counting, only a fractional mean score")
		}
	}
}

func TestEnrichmentRequiresControlWhenProbAlgoNone(t *testing.T) {
	path := writeCorpus(t, ">seq1\nAAAACCCC\n")
	opts := Default()
	opts.K = 2

	_, _, err := Enrichment(opts, path, "")
	if err == nil {
		t.Fatal("expected an error when no control file is supplied with prob_algo=none")
	}
}

func TestEnrichmentControlBasedRanksEnrichedKmerFirst(t *testing.T) {
	testPath := writeCorpus(t, ">seq1\n"+repeat("AAAA", 30)+repeat("CCCC", 10)+"\n")
	controlPath := writeCorpus(t, ">seq1\n"+repeat("AAAA", 10)+repeat("CCCC", 30)+"\n")

	opts := Default()
	opts.K = 4
	opts.Sort = true

	rows, _, err := Enrichment(opts, testPath, controlPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0].Kmer != "AAAA" {
		t.Fatalf("expected AAAA to be the most enriched k-mer, got %v", rows[0].Kmer)
	}
}

func TestEnrichmentProbAlgoRegularIgnoresControlFile(t *testing.T) {
	testPath := writeCorpus(t, ">seq1\n"+repeat("ACGT", 40)+"\n")
	controlPath := writeCorpus(t, ">seq1\nTTTT\n")

	opts := Default()
	opts.K = 2
	opts.ProbAlgo = ProbRegular
	opts.EnableWarnings = true

	rows, diag, err := Enrichment(opts, testPath, controlPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 16 {
		t.Fatalf("expected 16 rows for k=2, got %d", len(rows))
	}
	if len(diag.Messages()) == 0 {
		t.Fatal("expected a diagnostic warning about the ignored control file")
	}
}

func TestEnrichmentBothReturnsTwoTables(t *testing.T) {
	testPath := writeCorpus(t, ">seq1\n"+repeat("AAAA", 30)+repeat("CCCC", 10)+"\n")
	controlPath := writeCorpus(t, ">seq1\n"+repeat("AAAA", 10)+repeat("CCCC", 30)+"\n")

	opts := Default()
	opts.K = 4

	controlBased, predicted, _, err := EnrichmentBoth(opts, testPath, controlPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(controlBased) != len(predicted) {
		t.Fatalf("expected equal row counts, got %d vs %d", len(controlBased), len(predicted))
	}
}

func TestIKKERequiresControlWhenProbAlgoNone(t *testing.T) {
	path := writeCorpus(t, ">seq1\nAAAACCCCGGGG\n")
	opts := Default()
	opts.K = 2

	_, _, err := IKKE(opts, path, "")
	if err == nil {
		t.Fatal("expected an error when no control file is supplied with prob_algo=none")
	}
}

func TestIKKERejectsBootstrap(t *testing.T) {
	testPath := writeCorpus(t, ">seq1\nAAAACCCC\n")
	controlPath := writeCorpus(t, ">seq1\nCCCCAAAA\n")

	opts := Default()
	opts.K = 2
	opts.BootstrapIters = 3

	_, _, err := IKKE(opts, testPath, controlPath)
	if err == nil {
		t.Fatal("expected bootstrap-sampled ikke to be rejected")
	}
}

func TestIKKEMasksOutADistinctKmerEachIteration(t *testing.T) {
	testPath := writeCorpus(t, ">seq1\n"+repeat("AAAA", 30)+repeat("CCCC", 20)+repeat("GGGG", 10)+"\n")
	controlPath := writeCorpus(t, ">seq1\n"+repeat("AAAA", 10)+repeat("CCCC", 20)+repeat("GGGG", 30)+"\n")

	opts := Default()
	opts.K = 4
	opts.Iters = 3

	rows, _, err := IKKE(opts, testPath, controlPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	seen := map[uint32]bool{}
	for _, r := range rows {
		if seen[r.KmerHash] {
			t.Fatalf("expected each ikke row to mask a distinct k-mer, saw hash %d twice", r.KmerHash)
		}
		seen[r.KmerHash] = true
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestApplyOrderSendsNaNToTheEnd(t *testing.T) {
	rows := KmerData{
		{KmerHash: 0, Score: 1.0},
		{KmerHash: 1, Score: math.NaN()},
		{KmerHash: 2, Score: 3.0},
	}
	applyOrder(rows, true)
	if rows[0].KmerHash != 2 || rows[1].KmerHash != 0 {
		t.Fatalf("unexpected order: %+v", rows)
	}
	if !math.IsNaN(rows[2].Score) {
		t.Fatalf("expected NaN row last, got %+v", rows[2])
	}
}
