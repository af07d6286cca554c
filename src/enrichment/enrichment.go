/*
	the enrichment package scores every k-mer's relative enrichment
	between a test corpus and a background - either a control corpus, a
	mono/dinucleotide probabilistic model, or a klet-preserving shuffle of
	the test corpus itself - and drives the iterative knockout (IKKE)
	loop that repeatedly finds and masks the top-enriched k-mer
*/
package enrichment

import (
	"fmt"
	"math"
	"sort"

	"github.com/ntkmer/katss/src/counter"
	"github.com/ntkmer/katss/src/hasher"
	"github.com/ntkmer/katss/src/kmertable"
	"github.com/ntkmer/katss/src/seqio"
)

// Row is a single k-mer's enrichment score, keyed by its rolling hash.
// TestFrq and CtrlFrq are the two frequency components the ratio was
// computed from (test's own frequency, and either the control's or the
// predicted background's), zero when the k-mer is absent from that side.
// bootstrap.Enrichment/EnrichmentPredicted pair these across replicates
// to drive a two-sample t-test per k-mer.
type Row struct {
	Key        uint32
	Enrichment float64
	TestFrq    float64
	CtrlFrq    float64
}

// Enrichments is a k-mer enrichment table. Compute and ComputePredicted
// sort it by descending enrichment with NaN rows (k-mers absent from
// either side) trailing; the IKKE functions return one row per iteration,
// in discovery order.
type Enrichments struct {
	Rows []Row
}

func newTableError(format string, args ...interface{}) error {
	return fmt.Errorf("enrichment: "+format, args...)
}

// Compute scores every k-mer hash test and control share by the plain
// frequency ratio r = (test[h]/test.Total()) / (control[h]/control.Total()),
// optionally log2-normalized. A k-mer absent from either side scores NaN.
func Compute(test, control *kmertable.Table, normalize bool) (*Enrichments, error) {
	if test.K() != control.K() {
		return nil, newTableError("test and control k-mer length differ: %d vs %d", test.K(), control.K())
	}
	rows := make([]Row, test.Capacity()+1)
	for i := uint64(0); i <= test.Capacity(); i++ {
		h := uint32(i)
		testCount := rawFloat(test, h)
		controlCount := rawFloat(control, h)
		rows[i].Key = h
		if testCount == 0 || controlCount == 0 {
			rows[i].Enrichment = math.NaN()
			continue
		}
		testFrq := testCount / float64(test.Total())
		ctrlFrq := controlCount / float64(control.Total())
		rows[i].TestFrq = testFrq
		rows[i].CtrlFrq = ctrlFrq
		r := testFrq / ctrlFrq
		if normalize {
			r = math.Log2(r)
		}
		rows[i].Enrichment = r
	}
	sortDescendingNaNLast(rows)
	return &Enrichments{Rows: rows}, nil
}

// ComputePredicted scores every k-mer hash in test against a predicted
// background frequency derived from the overlapping mono-nucleotide and
// dinucleotide frequencies of the same corpus (mono.K() must be 1 and
// dint.K() must be 2).
func ComputePredicted(test, mono, dint *kmertable.Table, normalize bool) (*Enrichments, error) {
	if mono.K() != 1 || dint.K() != 2 {
		return nil, newTableError("mono table must have k=1 and dinucleotide table k=2, got %d and %d", mono.K(), dint.K())
	}
	rows := make([]Row, test.Capacity()+1)
	for i := uint64(0); i <= test.Capacity(); i++ {
		h := uint32(i)
		kseq := hasher.Unhash(h, test.K(), true)
		testFrq := rawFloat(test, h) / float64(test.Total())
		ctrlFrq := predictKmer(kseq, mono, dint)

		rows[i].Key = h
		if testFrq == 0 || ctrlFrq == 0 {
			rows[i].Enrichment = math.NaN()
			continue
		}
		rows[i].TestFrq = testFrq
		rows[i].CtrlFrq = ctrlFrq
		r := testFrq / ctrlFrq
		if normalize {
			r = math.Log2(r)
		}
		rows[i].Enrichment = r
	}
	sortDescendingNaNLast(rows)
	return &Enrichments{Rows: rows}, nil
}

// predictKmer estimates kseq's probability as the ratio of its cumulative
// overlapping dinucleotide frequencies to its cumulative overlapping
// interior mononucleotide frequencies.
func predictKmer(kseq string, mono, dint *kmertable.Table) float64 {
	monoprob := 1.0
	for i := 1; i < len(kseq)-1; i++ {
		count := rawStringFloat(mono, kseq[i:i+1])
		monoprob *= count / float64(mono.Total())
	}

	diprob := 1.0
	for i := 0; i < len(kseq)-1; i++ {
		count := rawStringFloat(dint, kseq[i:i+2])
		diprob *= count / float64(dint.Total())
	}

	return diprob / monoprob
}

// Top scans test and control once and returns the single most-enriched
// k-mer, skipping any hash where either count is zero. Ties resolve to the
// smallest hash, since the scan is ascending and only a strictly greater
// score replaces the current leader. The zero Row with Enrichment
// -Inf is returned if either corpus is empty or nothing clears it.
func Top(test, control *kmertable.Table, normalize bool) Row {
	top := Row{Enrichment: math.Inf(-1)}
	if test.Total() == 0 || control.Total() == 0 {
		return top
	}
	for i := uint64(0); i <= control.Capacity(); i++ {
		h := uint32(i)
		testFrq := rawFloat(test, h)
		controlFrq := rawFloat(control, h)
		if testFrq == 0 || controlFrq == 0 {
			continue
		}
		testFrq /= float64(test.Total())
		controlFrq /= float64(control.Total())

		cur := testFrq / controlFrq
		if normalize {
			cur = math.Log2(cur)
		}
		if cur > top.Enrichment {
			top = Row{Key: h, Enrichment: cur}
		}
	}
	return top
}

// TopPredicted is the single-scan argmax counterpart of ComputePredicted.
func TopPredicted(test, mono, dint *kmertable.Table, normalize bool) Row {
	top := Row{Enrichment: math.Inf(-1)}
	for i := uint64(0); i <= test.Capacity(); i++ {
		h := uint32(i)
		kseq := hasher.Unhash(h, test.K(), true)

		kmerFrq := rawFloat(test, h) / float64(test.Total())
		predFrq := predictKmer(kseq, mono, dint)
		if predFrq == 0 {
			continue
		}

		cur := kmerFrq / predFrq
		if normalize {
			cur = math.Log2(cur)
		}
		if cur > top.Enrichment {
			top = Row{Key: h, Enrichment: cur}
		}
	}
	return top
}

// Opener produces a fresh, independently readable Stream over the same
// corpus every time it is called. IKKE needs to reread its input once per
// iteration, so callers open from a path (or any other repeatable source)
// rather than handing over a single-use Stream.
type Opener func() (*seqio.Stream, error)

func openAndCount(open Opener, k, threads int) (*kmertable.Table, error) {
	s, err := open()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if threads <= 1 {
		return counter.Count(s, k)
	}
	return counter.CountMT(s, k, threads)
}

func recountFrom(open Opener, table *kmertable.Table, kmer string, threads int) error {
	s, err := open()
	if err != nil {
		return err
	}
	defer s.Close()
	if threads <= 1 {
		return counter.Recount(s, table, kmer)
	}
	return counter.RecountMT(s, table, kmer, threads)
}

func recountShuffledFrom(open Opener, table *kmertable.Table, kmer string, klet int) error {
	s, err := open()
	if err != nil {
		return err
	}
	defer s.Close()
	return counter.RecountShuffled(s, table, kmer, klet)
}

func ikkeIterations(requested int, capacity uint64) int {
	if uint64(requested) > capacity+1 || requested <= 0 {
		return int(capacity + 1)
	}
	return requested
}

// IKKE repeatedly finds the top control-based enrichment, masks that
// k-mer out of both the test and control corpora, and recounts - each
// iteration's table reflects every k-mer masked so far, never just the
// latest one, so the loop is order-independent the way a plain Decrement
// of a single slot would not be. It returns min(iterations, 4^k) rows.
func IKKE(openTest, openControl Opener, k, iterations int, normalize bool, threads int) (*Enrichments, error) {
	testTable, err := openAndCount(openTest, k, threads)
	if err != nil {
		return nil, err
	}
	controlTable, err := openAndCount(openControl, k, threads)
	if err != nil {
		return nil, err
	}

	iterations = ikkeIterations(iterations, testTable.Capacity())
	rows := make([]Row, iterations)
	rows[0] = Top(testTable, controlTable, normalize)

	for i := 1; i < iterations; i++ {
		kseq := hasher.Unhash(rows[i-1].Key, k, true)
		if err := recountFrom(openTest, testTable, kseq, threads); err != nil {
			return nil, err
		}
		if err := recountFrom(openControl, controlTable, kseq, threads); err != nil {
			return nil, err
		}
		rows[i] = Top(testTable, controlTable, normalize)
	}
	return &Enrichments{Rows: rows}, nil
}

// IKKEPredicted is the probabilistic-background counterpart of IKKE: each
// iteration recounts the test corpus and its mono/dinucleotide tables
// under the cumulative mask before computing the next top prediction.
func IKKEPredicted(openTest Opener, k, iterations int, normalize bool, threads int) (*Enrichments, error) {
	testTable, err := openAndCount(openTest, k, threads)
	if err != nil {
		return nil, err
	}
	monoTable, err := openAndCount(openTest, 1, threads)
	if err != nil {
		return nil, err
	}
	dintTable, err := openAndCount(openTest, 2, threads)
	if err != nil {
		return nil, err
	}

	iterations = ikkeIterations(iterations, testTable.Capacity())
	rows := make([]Row, iterations)
	rows[0] = TopPredicted(testTable, monoTable, dintTable, normalize)

	for i := 1; i < iterations; i++ {
		kseq := hasher.Unhash(rows[i-1].Key, k, true)
		if err := recountFrom(openTest, testTable, kseq, threads); err != nil {
			return nil, err
		}
		if err := recountFrom(openTest, monoTable, kseq, threads); err != nil {
			return nil, err
		}
		if err := recountFrom(openTest, dintTable, kseq, threads); err != nil {
			return nil, err
		}
		rows[i] = TopPredicted(testTable, monoTable, dintTable, normalize)
	}
	return &Enrichments{Rows: rows}, nil
}

// IKKEShuffled is the shuffle-background counterpart of IKKE: the control
// side is a klet-mer preserving shuffle of the test corpus itself,
// regenerated (with the cumulative mask applied and the shuffle RNG reset
// to seed 1) every iteration, rather than coming from a separate control
// file.
func IKKEShuffled(openTest Opener, k, klet, iterations int, normalize bool) (*Enrichments, error) {
	testTable, err := openAndCount(openTest, k, 1)
	if err != nil {
		return nil, err
	}
	controlStream, err := openTest()
	if err != nil {
		return nil, err
	}
	controlTable, err := counter.CountShuffled(controlStream, k, klet)
	controlStream.Close()
	if err != nil {
		return nil, err
	}

	iterations = ikkeIterations(iterations, testTable.Capacity())
	rows := make([]Row, iterations)
	rows[0] = Top(testTable, controlTable, normalize)

	for i := 1; i < iterations; i++ {
		kseq := hasher.Unhash(rows[i-1].Key, k, true)
		if err := recountFrom(openTest, testTable, kseq, 1); err != nil {
			return nil, err
		}
		if err := recountShuffledFrom(openTest, controlTable, kseq, klet); err != nil {
			return nil, err
		}
		rows[i] = Top(testTable, controlTable, normalize)
	}
	return &Enrichments{Rows: rows}, nil
}

func rawFloat(t *kmertable.Table, h uint32) float64 {
	v, _ := t.GetByHash(h, kmertable.Float64)
	return v.(float64)
}

func rawStringFloat(t *kmertable.Table, s string) float64 {
	v, err := t.GetByString(s, kmertable.Float64)
	if err != nil {
		return 0
	}
	return v.(float64)
}

func sortDescendingNaNLast(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Enrichment, rows[j].Enrichment
		aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
		if aNaN && bNaN {
			return false
		}
		if aNaN {
			return false
		}
		if bNaN {
			return true
		}
		return a > b
	})
}
