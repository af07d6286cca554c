/*
	the api package is the single validated entry point into the katss
	core: it fills in Options defaults, dispatches across the
	bootstrap x prob-algo matrix of count/enrichment/ikke pipelines, and
	always returns a KmerData row set (possibly empty) plus non-fatal
	diagnostics rather than partially printing or exiting
*/
package api

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ntkmer/katss/src/bootstrap"
	"github.com/ntkmer/katss/src/counter"
	"github.com/ntkmer/katss/src/enrichment"
	"github.com/ntkmer/katss/src/hasher"
	"github.com/ntkmer/katss/src/kmertable"
	"github.com/ntkmer/katss/src/misc"
	"github.com/ntkmer/katss/src/seqio"
)

// ProbAlgo selects the enrichment background model. The numeric values
// follow the corrected 0/1/2/3 mapping documented as an open question in
// the katss core's option parser (none/ushuffle/regular/both), not
// declaration order.
type ProbAlgo int

const (
	ProbNone     ProbAlgo = 0
	ProbUshuffle ProbAlgo = 1
	ProbRegular  ProbAlgo = 2
	ProbBoth     ProbAlgo = 3
)

func (p ProbAlgo) String() string {
	switch p {
	case ProbNone:
		return "none"
	case ProbUshuffle:
		return "ushuffle"
	case ProbRegular:
		return "regular"
	case ProbBoth:
		return "both"
	default:
		return fmt.Sprintf("ProbAlgo(%d)", int(p))
	}
}

// Options configures every pipeline the api package exposes.
type Options struct {
	K               int
	Iters           int
	Threads         int
	Normalize       bool
	Sort            bool
	BootstrapIters  int
	BootstrapSample int
	ProbAlgo        ProbAlgo
	ProbNtprec      int
	Seed            int64
	UseT            bool
	EnableWarnings  bool
	VerboseOutput   bool
}

// Default returns the Options katss core's katss_init_default_opts ships:
// k=5, 8 threads, no bootstrap, no probabilistic background.
func Default() Options {
	return Options{
		K:               5,
		Iters:           1,
		Threads:         8,
		BootstrapSample: 10,
		ProbAlgo:        ProbNone,
		Seed:            -1,
		UseT:            true,
	}
}

// Validate checks every field, returning the first problem found.
func (o Options) Validate() error {
	if o.K < 1 || o.K > 16 {
		return fmt.Errorf("api: k must be in [1,16], got %d", o.K)
	}
	if o.Iters < 1 {
		return fmt.Errorf("api: iters must be >= 1, got %d", o.Iters)
	}
	if o.Threads < 1 {
		return fmt.Errorf("api: threads must be >= 1, got %d", o.Threads)
	}
	if o.BootstrapIters < 0 {
		return fmt.Errorf("api: bootstrap_iters must be >= 0, got %d", o.BootstrapIters)
	}
	if o.BootstrapIters > 0 && (o.BootstrapSample < 1 || o.BootstrapSample > 100000) {
		return fmt.Errorf("api: bootstrap_sample must be in [1,100000], got %d", o.BootstrapSample)
	}
	if o.ProbAlgo < ProbNone || o.ProbAlgo > ProbBoth {
		return fmt.Errorf("api: unrecognized prob_algo %d", o.ProbAlgo)
	}
	if o.ProbNtprec < 0 {
		return fmt.Errorf("api: prob_ntprec must be >= 0, got %d", o.ProbNtprec)
	}
	return nil
}

// ntprec returns the configured k-let length for shuffling, defaulting
// to round(sqrt(k)) when unset.
func (o Options) ntprec() int {
	if o.ProbNtprec > 0 {
		return o.ProbNtprec
	}
	n := int(math.Round(math.Sqrt(float64(o.K))))
	if n < 1 {
		return 1
	}
	return n
}

func (o Options) resolvedSeed() int64 {
	if o.Seed < 0 {
		return time.Now().UnixNano()
	}
	return o.Seed
}

// Row is one k-mer's result. Count, Stdev, and Pval are nil when the
// pipeline that produced the row doesn't compute them.
type Row struct {
	KmerHash uint32
	Kmer     string
	Score    float64
	Count    *uint32
	Stdev    *float64
	Pval     *float64
}

// KmerData is the emitted, ordered result of every api entry point.
type KmerData []Row

func open(path string) (*seqio.Stream, error) {
	return seqio.Open(path)
}

func openerFor(path string) enrichment.Opener {
	return func() (*seqio.Stream, error) { return seqio.Open(path) }
}

func bootstrapOpenerFor(path string) bootstrap.Opener {
	return func() (*seqio.Stream, error) { return seqio.Open(path) }
}

func countTable(path string, k, threads int) (*kmertable.Table, error) {
	s, err := open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	if threads <= 1 {
		return counter.Count(s, k)
	}
	return counter.CountMT(s, k, threads)
}

// Count runs a plain or bootstrap-subsampled counting pass over testPath.
func Count(opts Options, testPath string) (KmerData, *misc.Diagnostics, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	diag := &misc.Diagnostics{}

	if opts.BootstrapIters > 0 {
		rows, err := bootstrap.Count(bootstrapOpenerFor(testPath), opts.K, opts.BootstrapSample, opts.BootstrapIters, opts.resolvedSeed(), opts.Threads)
		if err != nil {
			return nil, diag, err
		}
		data := make(KmerData, len(rows))
		for i, r := range rows {
			stdev := r.Stdev
			data[i] = Row{
				KmerHash: r.Key,
				Kmer:     hasher.Unhash(r.Key, opts.K, opts.UseT),
				Score:    r.Mean,
				Stdev:    &stdev,
			}
		}
		applyOrder(data, opts.Sort)
		return data, diag, nil
	}

	table, err := countTable(testPath, opts.K, opts.Threads)
	if err != nil {
		return nil, diag, err
	}
	data := countRows(table, opts)
	applyOrder(data, opts.Sort)
	return data, diag, nil
}

func countRows(table *kmertable.Table, opts Options) KmerData {
	rows := make(KmerData, table.Capacity()+1)
	for i := uint64(0); i <= table.Capacity(); i++ {
		h := uint32(i)
		v, _ := table.GetByHash(h, kmertable.Uint32)
		count := v.(uint32)
		rows[i] = Row{
			KmerHash: h,
			Kmer:     hasher.Unhash(h, table.K(), opts.UseT),
			Score:    float64(count),
			Count:    &count,
		}
	}
	return rows
}

// Enrichment runs a single-pass enrichment scoring, dispatching on
// opts.ProbAlgo and opts.BootstrapIters. controlPath is ignored (with a
// diagnostic, if warnings are enabled) when a probabilistic background is
// requested.
func Enrichment(opts Options, testPath, controlPath string) (KmerData, *misc.Diagnostics, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	diag := &misc.Diagnostics{}
	if opts.ProbAlgo != ProbNone && controlPath != "" && opts.EnableWarnings {
		diag.Warnf("control file %q supplied together with prob_algo=%s; ignoring control file", controlPath, opts.ProbAlgo)
	}
	if opts.ProbAlgo == ProbBoth {
		if opts.EnableWarnings {
			diag.Warnf("prob_algo=both is not a single-table pipeline; use EnrichmentBoth instead - falling back to the control-based path")
		}
		opts.ProbAlgo = ProbNone
	}

	if opts.BootstrapIters > 0 {
		return enrichmentBootstrap(opts, testPath, controlPath, diag)
	}
	return enrichmentPlain(opts, testPath, controlPath, diag)
}

func enrichmentPlain(opts Options, testPath, controlPath string, diag *misc.Diagnostics) (KmerData, *misc.Diagnostics, error) {
	switch opts.ProbAlgo {
	case ProbRegular:
		enrichments, err := computePredictedFromPath(testPath, opts)
		if err != nil {
			return nil, diag, err
		}
		data := enrichmentRows(enrichments, opts)
		applyOrder(data, opts.Sort)
		return data, diag, nil

	case ProbUshuffle:
		test, err := countTable(testPath, opts.K, opts.Threads)
		if err != nil {
			return nil, diag, err
		}
		controlStream, err := open(testPath)
		if err != nil {
			return nil, diag, err
		}
		control, err := counter.CountShuffled(controlStream, opts.K, opts.ntprec())
		controlStream.Close()
		if err != nil {
			return nil, diag, err
		}
		enrichments, err := enrichment.Compute(test, control, opts.Normalize)
		if err != nil {
			return nil, diag, err
		}
		data := enrichmentRows(enrichments, opts)
		applyOrder(data, opts.Sort)
		return data, diag, nil

	default: // ProbNone
		if controlPath == "" {
			return nil, diag, fmt.Errorf("api: a control file is required when prob_algo=none")
		}
		test, err := countTable(testPath, opts.K, opts.Threads)
		if err != nil {
			return nil, diag, err
		}
		control, err := countTable(controlPath, opts.K, opts.Threads)
		if err != nil {
			return nil, diag, err
		}
		enrichments, err := enrichment.Compute(test, control, opts.Normalize)
		if err != nil {
			return nil, diag, err
		}
		data := enrichmentRows(enrichments, opts)
		applyOrder(data, opts.Sort)
		return data, diag, nil
	}
}

func enrichmentBootstrap(opts Options, testPath, controlPath string, diag *misc.Diagnostics) (KmerData, *misc.Diagnostics, error) {
	if opts.ProbAlgo == ProbUshuffle {
		return nil, diag, fmt.Errorf("api: bootstrap enrichment does not support prob_algo=ushuffle")
	}
	if opts.ProbAlgo == ProbRegular {
		rows, err := bootstrap.EnrichmentPredicted(bootstrapOpenerFor(testPath), opts.K, opts.BootstrapSample, opts.BootstrapIters, opts.Normalize, opts.resolvedSeed(), opts.Threads)
		if err != nil {
			return nil, diag, err
		}
		data := bootstrapEnrichmentRows(rows, opts)
		applyOrder(data, opts.Sort)
		return data, diag, nil
	}
	if controlPath == "" {
		return nil, diag, fmt.Errorf("api: a control file is required when prob_algo=none")
	}
	rows, err := bootstrap.Enrichment(bootstrapOpenerFor(testPath), bootstrapOpenerFor(controlPath), opts.K, opts.BootstrapSample, opts.BootstrapIters, opts.Normalize, opts.resolvedSeed(), opts.Threads)
	if err != nil {
		return nil, diag, err
	}
	data := bootstrapEnrichmentRows(rows, opts)
	applyOrder(data, opts.Sort)
	return data, diag, nil
}

func bootstrapEnrichmentRows(rows []bootstrap.Row, opts Options) KmerData {
	data := make(KmerData, len(rows))
	for i, r := range rows {
		stdev := r.Stdev
		pval := r.PVal
		data[i] = Row{
			KmerHash: r.Key,
			Kmer:     hasher.Unhash(r.Key, opts.K, opts.UseT),
			Score:    r.Mean,
			Stdev:    &stdev,
			Pval:     &pval,
		}
	}
	return data
}

func computePredictedFromPath(testPath string, opts Options) (*enrichment.Enrichments, error) {
	test, err := countTable(testPath, opts.K, opts.Threads)
	if err != nil {
		return nil, err
	}
	mono, err := countTable(testPath, 1, opts.Threads)
	if err != nil {
		return nil, err
	}
	dint, err := countTable(testPath, 2, opts.Threads)
	if err != nil {
		return nil, err
	}
	return enrichment.ComputePredicted(test, mono, dint, opts.Normalize)
}

func enrichmentRows(enrichments *enrichment.Enrichments, opts Options) KmerData {
	data := make(KmerData, len(enrichments.Rows))
	for i, r := range enrichments.Rows {
		data[i] = Row{
			KmerHash: r.Key,
			Kmer:     hasher.Unhash(r.Key, opts.K, opts.UseT),
			Score:    r.Enrichment,
		}
	}
	return data
}

// EnrichmentBoth runs the control-based and probabilistic enrichment
// pipelines over the same test corpus and returns both tables, the
// KATSS_PROBS_BOTH behavior from the original option enum.
func EnrichmentBoth(opts Options, testPath, controlPath string) (controlBased, predicted KmerData, diag *misc.Diagnostics, err error) {
	if verr := opts.Validate(); verr != nil {
		return nil, nil, nil, verr
	}
	diag = &misc.Diagnostics{}
	if controlPath == "" {
		return nil, nil, diag, fmt.Errorf("api: EnrichmentBoth requires a control file")
	}

	test, err := countTable(testPath, opts.K, opts.Threads)
	if err != nil {
		return nil, nil, diag, err
	}
	control, err := countTable(controlPath, opts.K, opts.Threads)
	if err != nil {
		return nil, nil, diag, err
	}
	controlEnrichments, err := enrichment.Compute(test, control, opts.Normalize)
	if err != nil {
		return nil, nil, diag, err
	}
	controlBased = enrichmentRows(controlEnrichments, opts)
	applyOrder(controlBased, opts.Sort)

	mono, err := countTable(testPath, 1, opts.Threads)
	if err != nil {
		return nil, nil, diag, err
	}
	dint, err := countTable(testPath, 2, opts.Threads)
	if err != nil {
		return nil, nil, diag, err
	}
	predictedEnrichments, err := enrichment.ComputePredicted(test, mono, dint, opts.Normalize)
	if err != nil {
		return nil, nil, diag, err
	}
	predicted = enrichmentRows(predictedEnrichments, opts)
	applyOrder(predicted, opts.Sort)

	return controlBased, predicted, diag, nil
}

// IKKE runs the iterative knockout enrichment loop, dispatching on
// opts.ProbAlgo. Bootstrap is not supported for IKKE - the katss core
// never implemented bootstrap-sampled IKKE (bootstrap.c's
// process_ikke_prob unconditionally fails), and this preserves that
// limitation rather than inventing new semantics for it.
func IKKE(opts Options, testPath, controlPath string) (KmerData, *misc.Diagnostics, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	diag := &misc.Diagnostics{}
	if opts.BootstrapIters > 0 {
		return nil, diag, fmt.Errorf("api: bootstrap_iters > 0 is not supported for ikke")
	}
	if opts.ProbAlgo == ProbBoth {
		return nil, diag, fmt.Errorf("api: prob_algo=both is not a single-table ikke pipeline")
	}

	var enrichments *enrichment.Enrichments
	var err error
	switch opts.ProbAlgo {
	case ProbRegular:
		enrichments, err = enrichment.IKKEPredicted(openerFor(testPath), opts.K, opts.Iters, opts.Normalize, opts.Threads)
	case ProbUshuffle:
		enrichments, err = enrichment.IKKEShuffled(openerFor(testPath), opts.K, opts.ntprec(), opts.Iters, opts.Normalize)
	default:
		if controlPath == "" {
			return nil, diag, fmt.Errorf("api: a control file is required when prob_algo=none")
		}
		enrichments, err = enrichment.IKKE(openerFor(testPath), openerFor(controlPath), opts.K, opts.Iters, opts.Normalize, opts.Threads)
	}
	if err != nil {
		return nil, diag, err
	}

	data := make(KmerData, len(enrichments.Rows))
	for i, r := range enrichments.Rows {
		data[i] = Row{
			KmerHash: r.Key,
			Kmer:     hasher.Unhash(r.Key, opts.K, opts.UseT),
			Score:    r.Enrichment,
		}
	}
	// IKKE rows are already in discovery order - row i is the ith
	// masked motif, and reordering by score would destroy that meaning.
	return data, diag, nil
}

func applyOrder(rows KmerData, descending bool) {
	if descending {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i].Score, rows[j].Score
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
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].KmerHash < rows[j].KmerHash
	})
}
