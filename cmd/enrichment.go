package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/ntkmer/katss/src/api"
	"github.com/ntkmer/katss/src/misc"
	"github.com/ntkmer/katss/src/reporting"
	"github.com/ntkmer/katss/src/version"
)

// the command line arguments
var (
	enrichTest     *string // test sequence file
	enrichControl  *string // control sequence file
	enrichKmer     *int    // k-mer length
	enrichOut      *string // file to write the TSV report to
	enrichSort     *bool   // sort output by descending score
	enrichNorm     *bool   // log2 normalize the enrichment ratio
	enrichUseT     *bool   // report k-mers with T rather than U
	enrichProbAlgo *string // background model: none, ushuffle, regular, both
	enrichNtprec   *int    // k-let length for the ushuffle background (0 defaults to round(sqrt(k)))
	enrichBsIters  *int    // number of bootstrap subsampling iterations (0 disables bootstrap)
	enrichBsFrac   *int    // bootstrap subsample fraction, out of 100000
	enrichSeed     *int64  // RNG seed (negative uses the current time)
)

// enrichmentCmd scores every k-mer's relative enrichment between a test corpus
// and a background
var enrichmentCmd = &cobra.Command{
	Use:   "enrichment",
	Short: "Score k-mer enrichment between a test corpus and a background",
	Long: `Score k-mer enrichment between a test corpus and a background - either a
control corpus, a mono/dinucleotide probabilistic model, or a k-let-preserving
shuffle of the test corpus itself`,
	Run: func(cmd *cobra.Command, args []string) {
		runEnrichment()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

func init() {
	enrichTest = enrichmentCmd.Flags().StringP("test", "t", "", "test sequence file - required")
	enrichControl = enrichmentCmd.Flags().StringP("control", "c", "", "control sequence file - required unless --probAlgo is not \"none\"")
	enrichKmer = enrichmentCmd.Flags().IntP("kmer", "k", 5, "k-mer length")
	enrichOut = enrichmentCmd.Flags().StringP("out", "o", "katss-enrichment.tsv", "file to write the TSV report to")
	enrichSort = enrichmentCmd.Flags().Bool("sort", true, "sort output by descending score")
	enrichNorm = enrichmentCmd.Flags().Bool("normalize", false, "log2 normalize the enrichment ratio")
	enrichUseT = enrichmentCmd.Flags().Bool("useT", true, "report k-mers with T rather than U")
	enrichProbAlgo = enrichmentCmd.Flags().String("probAlgo", "none", "background model: none, ushuffle, regular, both")
	enrichNtprec = enrichmentCmd.Flags().Int("probNtprec", 0, "k-let length for the ushuffle background (0 defaults to round(sqrt(k)))")
	enrichBsIters = enrichmentCmd.Flags().Int("bootstrapIters", 0, "number of bootstrap subsampling iterations (0 disables bootstrap)")
	enrichBsFrac = enrichmentCmd.Flags().Int("bootstrapSample", 10, "bootstrap subsample fraction, out of 100000")
	enrichSeed = enrichmentCmd.Flags().Int64("seed", -1, "RNG seed for bootstrap subsampling (negative uses the current time)")
	enrichmentCmd.MarkFlagRequired("test")
	RootCmd.AddCommand(enrichmentCmd)
}

// parseProbAlgo converts the --probAlgo flag to an api.ProbAlgo, following
// the none/ushuffle/regular/both vocabulary accepted everywhere else in
// katss
func parseProbAlgo(s string) (api.ProbAlgo, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return api.ProbNone, nil
	case "ushuffle":
		return api.ProbUshuffle, nil
	case "regular":
		return api.ProbRegular, nil
	case "both":
		return api.ProbBoth, nil
	default:
		return api.ProbNone, fmt.Errorf("unrecognized --probAlgo %q: must be one of none, ushuffle, regular, both", s)
	}
}

func runEnrichment() {
	if *profiling {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
	if *logFile != "" {
		logFH := misc.StartLogging(*logFile)
		defer logFH.Close()
		log.SetOutput(logFH)
	} else {
		log.SetOutput(os.Stdout)
	}

	start := time.Now()
	log.Printf("i am katss (version %s)", version.GetVersion())
	log.Printf("starting the enrichment subcommand")
	misc.ErrorCheck(misc.CheckFile(*enrichTest))
	if *enrichControl != "" {
		misc.ErrorCheck(misc.CheckFile(*enrichControl))
	}

	algo, err := parseProbAlgo(*enrichProbAlgo)
	misc.ErrorCheck(err)

	opts := api.Default()
	opts.K = *enrichKmer
	opts.Threads = misc.SetProcessors(*proc)
	opts.Sort = *enrichSort
	opts.Normalize = *enrichNorm
	opts.UseT = *enrichUseT
	opts.ProbAlgo = algo
	opts.ProbNtprec = *enrichNtprec
	opts.BootstrapIters = *enrichBsIters
	opts.BootstrapSample = *enrichBsFrac
	opts.Seed = *enrichSeed
	opts.EnableWarnings = true
	misc.ErrorCheck(opts.Validate())
	log.Printf("\tk-mer size: %d", opts.K)
	log.Printf("\tbackground: %s", opts.ProbAlgo)
	log.Printf("\tprocessors: %d", opts.Threads)

	if algo == api.ProbBoth {
		controlBased, predicted, diag, err := api.EnrichmentBoth(opts, *enrichTest, *enrichControl)
		misc.ErrorCheck(err)
		for _, msg := range diag.Messages() {
			log.Printf("\twarning: %s", msg)
		}
		misc.ErrorCheck(reporting.Write(*enrichOut, controlBased))
		predictedOut := strings.TrimSuffix(*enrichOut, ".tsv") + ".predicted.tsv"
		misc.ErrorCheck(reporting.Write(predictedOut, predicted))
		log.Printf("wrote reports to %q and %q", *enrichOut, predictedOut)
	} else {
		rows, diag, err := api.Enrichment(opts, *enrichTest, *enrichControl)
		misc.ErrorCheck(err)
		for _, msg := range diag.Messages() {
			log.Printf("\twarning: %s", msg)
		}
		misc.ErrorCheck(reporting.Write(*enrichOut, rows))
		misc.ErrorCheck(reporting.WriteDiagnostics(*enrichOut, diag.Messages()))
		log.Printf("wrote report to %q", *enrichOut)
	}
	log.Printf("finished in %s", time.Since(start))
}
