// Copyright © 2017 Will Rowe <will.rowe@stfc.ac.uk>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// the command line arguments
var (
	proc      *int    // number of processors to use
	profiling *bool   // create profile for go pprof
	logFile   *string // file to write the run log to
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "katss",
	Short: "count, enrich, and knock out k-mers from sequencing data",
	Long: `
#####################################################################################
		KATSS: K-mer Analysis Toolkit for Sequence Signals
#####################################################################################

 KATSS counts k-mers in FASTA/FASTQ/raw sequence data and scores their relative
 enrichment against a control corpus, a mono/dinucleotide probabilistic background,
 or a k-let-frequency-preserving shuffle of the test corpus itself.

 The ikke subcommand runs iterative k-mer knockout enrichment: the top-enriched
 k-mer is masked out and the corpus recounted, repeated for a requested number of
 iterations to surface a ranked motif list. Counting passes, and enrichment passes
 against a control corpus or the mono/dinucleotide background, can be bootstrapped
 under repeated random subsampling to attach a mean and standard deviation to every
 k-mer's score.`,
}

/*
  A function to add all child commands to the root command and sets flags appropriately
*/
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

/*
  A function to initalise the command line arguments
*/
func init() {
	proc = RootCmd.PersistentFlags().IntP("processors", "p", 1, "number of processors to use")
	profiling = RootCmd.PersistentFlags().Bool("profiling", false, "create the files needed to profile KATSS using the go tool pprof")
	logFile = RootCmd.PersistentFlags().String("logFile", "", "file to write the run log to (default: stdout)")
}
