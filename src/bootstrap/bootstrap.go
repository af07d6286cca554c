/*
	the bootstrap package repeats a counting or enrichment pass under
	repeated random subsampling, tracking a running mean/variance per
	k-mer with Welford's online algorithm, and (for two-sample
	comparisons) a Welch's t-test aggregate finalized with gonum's
	Student's T distribution
*/
package bootstrap

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ntkmer/katss/src/counter"
	"github.com/ntkmer/katss/src/enrichment"
	"github.com/ntkmer/katss/src/kmertable"
	"github.com/ntkmer/katss/src/seqio"
)

// WelfordAggregate tracks a running mean and (unbiased sample) variance
// over a stream of values via Welford's online algorithm, the same
// running-update shape as the katss core's running_stdev.
type WelfordAggregate struct {
	mean  float64
	m2    float64
	count uint64
}

// Update folds value into the aggregate. NaN values are ignored, since a
// k-mer that never appears in a given bootstrap replicate contributes no
// observation rather than an undefined one.
func (a *WelfordAggregate) Update(value float64) {
	if math.IsNaN(value) {
		return
	}
	a.count++
	delta := value - a.mean
	a.mean += delta / float64(a.count)
	delta2 := value - a.mean
	a.m2 += delta * delta2
}

// Count returns the number of non-NaN observations folded in so far.
func (a *WelfordAggregate) Count() uint64 { return a.count }

// Mean returns the running mean.
func (a *WelfordAggregate) Mean() float64 { return a.mean }

// Variance returns the unbiased sample variance, or NaN with fewer than
// two observations.
func (a *WelfordAggregate) Variance() float64 {
	if a.count < 2 {
		return math.NaN()
	}
	return a.m2 / float64(a.count-1)
}

// Stdev returns the sample standard deviation.
func (a *WelfordAggregate) Stdev() float64 {
	return math.Sqrt(a.Variance())
}

// WelchTTest is a two-sample Welch's t-test aggregate: independent
// running mean/variance for each sample, finalized into a t-statistic,
// Welch-Satterthwaite degrees of freedom, and a two-tailed p-value.
type WelchTTest struct {
	X WelfordAggregate
	Y WelfordAggregate

	TStat float64
	DF    float64
	PVal  float64
}

// Update folds one observation into each sample. Either value may be NaN
// if that sample has no observation for this update.
func (w *WelchTTest) Update(x, y float64) {
	w.X.Update(x)
	w.Y.Update(y)
}

// Finalize computes TStat, DF, and PVal from the observations folded in
// so far. It is a no-op, leaving the zero values, if either sample has
// fewer than two observations. The p-value comes from
// gonum.org/v1/gonum/stat/distuv.StudentsT.CDF in place of the katss
// core's hand-rolled regularized incomplete beta function (toms708.c) -
// see DESIGN.md.
func (w *WelchTTest) Finalize() {
	if w.X.Count() < 2 || w.Y.Count() < 2 {
		return
	}
	xVar, yVar := w.X.Variance(), w.Y.Variance()
	xN, yN := float64(w.X.Count()), float64(w.Y.Count())

	w.TStat = (w.X.Mean() - w.Y.Mean()) / math.Sqrt(xVar/xN+yVar/yN)

	xVarAvg := xVar / xN
	yVarAvg := yVar / yN
	num := (xVarAvg + yVarAvg) * (xVarAvg + yVarAvg)
	denom := (xVarAvg*xVarAvg)/(xN-1) + (yVarAvg*yVarAvg)/(yN-1)
	w.DF = num / denom

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: w.DF}
	w.PVal = 2 * dist.CDF(-math.Abs(w.TStat))
}

// Row is one k-mer's bootstrap summary, keyed by its rolling hash. PVal is
// only meaningful for the two-sample engines (Enrichment,
// EnrichmentPredicted) - Count has no second sample to compare against and
// leaves it zero.
type Row struct {
	Key   uint32
	Mean  float64
	Stdev float64
	PVal  float64
}

// Opener produces a fresh, independently readable Stream over the same
// corpus every time it is called - a bootstrap run rereads its input once
// per replicate.
type Opener func() (*seqio.Stream, error)

func openCount(open Opener, k, sample int, seed int64, threads int) (*kmertable.Table, error) {
	s, err := open()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if threads <= 1 {
		return counter.CountBootstrap(s, k, sample, seed)
	}
	return counter.CountBootstrapMT(s, k, sample, seed, threads)
}

// replicateSeeds derives iters distinct, reproducible per-replicate seeds
// from a single master seed, so one seed determines the whole bootstrap
// run while every replicate still draws an independent subsample.
func replicateSeeds(seed int64, iters int) []int64 {
	master := rand.New(rand.NewSource(seed))
	seeds := make([]int64, iters)
	for i := range seeds {
		seeds[i] = master.Int63()
	}
	return seeds
}

// Count runs iters bootstrap-subsampled counting passes over stream and
// returns the running mean/stdev of each k-mer's count, sorted by
// descending mean (ties broken by ascending hash).
func Count(open Opener, k, sample, iters int, seed int64, threads int) ([]Row, error) {
	capacity, err := capacityFor(k)
	if err != nil {
		return nil, err
	}
	aggs := make([]WelfordAggregate, capacity+1)
	for _, replicateSeed := range replicateSeeds(seed, iters) {
		table, err := openCount(open, k, sample, replicateSeed, threads)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i <= capacity; i++ {
			v, _ := table.GetByHash(uint32(i), kmertable.Float64)
			aggs[i].Update(v.(float64))
		}
	}
	return finalizeRows(aggs), nil
}

// Enrichment runs iters bootstrap-subsampled control-based enrichment
// passes and returns the running mean/stdev of each k-mer's enrichment
// ratio, alongside a per-k-mer p-value from a Welch's t-test over the
// test/control frequency pairs each replicate contributed. Test and control
// draw their subsamples from separate sub-seeds in every replicate.
func Enrichment(openTest, openControl Opener, k, sample, iters int, normalize bool, seed int64, threads int) ([]Row, error) {
	capacity, err := capacityFor(k)
	if err != nil {
		return nil, err
	}
	aggs := make([]WelfordAggregate, capacity+1)
	welch := make([]WelchTTest, capacity+1)
	seeds := replicateSeeds(seed, 2*iters)
	for i := 0; i < iters; i++ {
		testTable, err := openCount(openTest, k, sample, seeds[2*i], threads)
		if err != nil {
			return nil, err
		}
		controlTable, err := openCount(openControl, k, sample, seeds[2*i+1], threads)
		if err != nil {
			return nil, err
		}
		enrichments, err := enrichment.Compute(testTable, controlTable, normalize)
		if err != nil {
			return nil, err
		}
		for _, row := range enrichments.Rows {
			if !math.IsNaN(row.Enrichment) {
				aggs[row.Key].Update(row.Enrichment)
			}
			if row.TestFrq == 0 || row.CtrlFrq == 0 {
				continue
			}
			welch[row.Key].Update(row.TestFrq, row.CtrlFrq)
		}
	}
	return finalizeEnrichmentRows(aggs, welch), nil
}

// EnrichmentPredicted is the probabilistic-background counterpart of
// Enrichment, pairing each k-mer's test frequency against its predicted
// background frequency for the t-test in place of a control corpus.
func EnrichmentPredicted(openTest Opener, k, sample, iters int, normalize bool, seed int64, threads int) ([]Row, error) {
	capacity, err := capacityFor(k)
	if err != nil {
		return nil, err
	}
	aggs := make([]WelfordAggregate, capacity+1)
	welch := make([]WelchTTest, capacity+1)
	for _, replicateSeed := range replicateSeeds(seed, iters) {
		testTable, err := openCount(openTest, k, sample, replicateSeed, threads)
		if err != nil {
			return nil, err
		}
		monoTable, err := openCount(openTest, 1, sample, replicateSeed, threads)
		if err != nil {
			return nil, err
		}
		dintTable, err := openCount(openTest, 2, sample, replicateSeed, threads)
		if err != nil {
			return nil, err
		}
		enrichments, err := enrichment.ComputePredicted(testTable, monoTable, dintTable, normalize)
		if err != nil {
			return nil, err
		}
		for _, row := range enrichments.Rows {
			if !math.IsNaN(row.Enrichment) {
				aggs[row.Key].Update(row.Enrichment)
			}
			if row.TestFrq == 0 || row.CtrlFrq == 0 {
				continue
			}
			welch[row.Key].Update(row.TestFrq, row.CtrlFrq)
		}
	}
	return finalizeEnrichmentRows(aggs, welch), nil
}

func capacityFor(k int) (uint64, error) {
	t, err := kmertable.New(k)
	if err != nil {
		return 0, err
	}
	return t.Capacity(), nil
}

func finalizeRows(aggs []WelfordAggregate) []Row {
	rows := make([]Row, len(aggs))
	for i := range aggs {
		rows[i] = Row{
			Key:   uint32(i),
			Mean:  aggs[i].Mean(),
			Stdev: aggs[i].Stdev(),
		}
	}
	sortRows(rows)
	return rows
}

// finalizeEnrichmentRows is finalizeRows plus a finalized Welch's t-test
// p-value per k-mer, for the two-sample bootstrap engines.
func finalizeEnrichmentRows(aggs []WelfordAggregate, welch []WelchTTest) []Row {
	rows := make([]Row, len(aggs))
	for i := range aggs {
		welch[i].Finalize()
		rows[i] = Row{
			Key:   uint32(i),
			Mean:  aggs[i].Mean(),
			Stdev: aggs[i].Stdev(),
			PVal:  welch[i].PVal,
		}
	}
	sortRows(rows)
	return rows
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Mean != rows[j].Mean {
			return rows[i].Mean > rows[j].Mean
		}
		return rows[i].Key < rows[j].Key
	})
}
