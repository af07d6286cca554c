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
	countTest    *string // FASTA/FASTQ/raw sequence file to count k-mers in
	countKmer    *int    // k-mer length
	countOut     *string // file to write the TSV report to
	countSort    *bool   // sort output by descending score
	countUseT    *bool   // report k-mers with T rather than U
	countBsIters *int    // number of bootstrap subsampling iterations (0 disables bootstrap)
	countBsFrac  *int    // bootstrap subsample fraction, out of 100000
	countSeed    *int64  // RNG seed (negative uses the current time)
)

// countCmd counts k-mers in a single corpus, optionally under bootstrap subsampling
var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count k-mers in a sequence file",
	Long:  `Count k-mers in a sequence file, optionally under repeated random subsampling`,
	Run: func(cmd *cobra.Command, args []string) {
		runCount()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

func init() {
	countTest = countCmd.Flags().StringP("test", "t", "", "sequence file to count k-mers in - required")
	countKmer = countCmd.Flags().IntP("kmer", "k", 5, "k-mer length")
	countOut = countCmd.Flags().StringP("out", "o", "katss-count.tsv", "file to write the TSV report to")
	countSort = countCmd.Flags().Bool("sort", false, "sort output by descending score")
	countUseT = countCmd.Flags().Bool("useT", true, "report k-mers with T rather than U")
	countBsIters = countCmd.Flags().Int("bootstrapIters", 0, "number of bootstrap subsampling iterations (0 disables bootstrap)")
	countBsFrac = countCmd.Flags().Int("bootstrapSample", 10, "bootstrap subsample fraction, out of 100000")
	countSeed = countCmd.Flags().Int64("seed", -1, "RNG seed for bootstrap subsampling (negative uses the current time)")
	countCmd.MarkFlagRequired("test")
	RootCmd.AddCommand(countCmd)
}

func runCount() {
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
	log.Printf("starting the count subcommand")
	misc.ErrorCheck(misc.CheckFile(*countTest))

	opts := api.Default()
	opts.K = *countKmer
	opts.Threads = misc.SetProcessors(*proc)
	opts.Sort = *countSort
	opts.UseT = *countUseT
	opts.BootstrapIters = *countBsIters
	opts.BootstrapSample = *countBsFrac
	opts.Seed = *countSeed
	misc.ErrorCheck(opts.Validate())
	log.Printf("\tk-mer size: %d", opts.K)
	log.Printf("\tprocessors: %d", opts.Threads)

	rows, diag, err := api.Count(opts, *countTest)
	misc.ErrorCheck(err)
	log.Printf("\treporting all %d k-mers of length %d", len(rows), opts.K)

	misc.ErrorCheck(reporting.Write(*countOut, rows))
	misc.ErrorCheck(reporting.WriteDiagnostics(*countOut, diag.Messages()))
	log.Printf("wrote report to %q", *countOut)
	log.Printf("finished in %s", time.Since(start))
}
