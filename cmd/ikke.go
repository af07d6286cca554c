package cmd

import (
	"log"
	"os"
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
	ikkeTest     *string // test sequence file
	ikkeControl  *string // control sequence file
	ikkeKmer     *int    // k-mer length
	ikkeIters    *int    // number of knockout iterations
	ikkeOut      *string // file to write the TSV report to
	ikkeNorm     *bool   // log2 normalize the enrichment ratio
	ikkeUseT     *bool   // report k-mers with T rather than U
	ikkeProbAlgo *string // background model: none, ushuffle, regular
	ikkeNtprec   *int    // k-let length for the ushuffle background (0 defaults to round(sqrt(k)))
)

// ikkeCmd runs iterative k-mer knockout enrichment: repeatedly find and mask
// the top-enriched k-mer
var ikkeCmd = &cobra.Command{
	Use:   "ikke",
	Short: "Iteratively knock out the top-enriched k-mer",
	Long: `Iterative k-mer knockout enrichment (IKKE): find the top-enriched k-mer,
mask it out of the corpus, recount, and repeat for a requested number of
iterations to surface a ranked motif list`,
	Run: func(cmd *cobra.Command, args []string) {
		runIkke()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

func init() {
	ikkeTest = ikkeCmd.Flags().StringP("test", "t", "", "test sequence file - required")
	ikkeControl = ikkeCmd.Flags().StringP("control", "c", "", "control sequence file - required unless --probAlgo is not \"none\"")
	ikkeKmer = ikkeCmd.Flags().IntP("kmer", "k", 5, "k-mer length")
	ikkeIters = ikkeCmd.Flags().IntP("iters", "i", 10, "number of knockout iterations")
	ikkeOut = ikkeCmd.Flags().StringP("out", "o", "katss-ikke.tsv", "file to write the TSV report to")
	ikkeNorm = ikkeCmd.Flags().Bool("normalize", false, "log2 normalize the enrichment ratio")
	ikkeUseT = ikkeCmd.Flags().Bool("useT", true, "report k-mers with T rather than U")
	ikkeProbAlgo = ikkeCmd.Flags().String("probAlgo", "none", "background model: none, ushuffle, regular")
	ikkeNtprec = ikkeCmd.Flags().Int("probNtprec", 0, "k-let length for the ushuffle background (0 defaults to round(sqrt(k)))")
	ikkeCmd.MarkFlagRequired("test")
	RootCmd.AddCommand(ikkeCmd)
}

func runIkke() {
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
	log.Printf("starting the ikke subcommand")
	misc.ErrorCheck(misc.CheckFile(*ikkeTest))
	if *ikkeControl != "" {
		misc.ErrorCheck(misc.CheckFile(*ikkeControl))
	}

	algo, err := parseProbAlgo(*ikkeProbAlgo)
	misc.ErrorCheck(err)

	opts := api.Default()
	opts.K = *ikkeKmer
	opts.Iters = *ikkeIters
	opts.Threads = misc.SetProcessors(*proc)
	opts.Normalize = *ikkeNorm
	opts.UseT = *ikkeUseT
	opts.ProbAlgo = algo
	opts.ProbNtprec = *ikkeNtprec
	misc.ErrorCheck(opts.Validate())
	log.Printf("\tk-mer size: %d", opts.K)
	log.Printf("\titerations: %d", opts.Iters)
	log.Printf("\tbackground: %s", opts.ProbAlgo)
	log.Printf("\tprocessors: %d", opts.Threads)

	rows, diag, err := api.IKKE(opts, *ikkeTest, *ikkeControl)
	misc.ErrorCheck(err)
	log.Printf("\tfound %d top-enriched k-mers", len(rows))

	misc.ErrorCheck(reporting.Write(*ikkeOut, rows))
	misc.ErrorCheck(reporting.WriteDiagnostics(*ikkeOut, diag.Messages()))
	log.Printf("wrote report to %q", *ikkeOut)
	log.Printf("finished in %s", time.Since(start))
}
