// Package reporting writes katss results out as a simple TSV report.
package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/ntkmer/katss/src/api"
)

// Write dumps rows as a tab-separated report to path, one row per k-mer.
// Count, Stdev, and Pval columns are left blank for rows that don't carry
// that value, rather than printing a sentinel.
func Write(path string, rows api.KmerData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = '\t'
	defer w.Flush()

	if err := w.Write([]string{"kmer", "hash", "score", "count", "stdev", "pval"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Kmer,
			strconv.FormatUint(uint64(row.KmerHash), 10),
			strconv.FormatFloat(row.Score, 'g', -1, 64),
			optionalUint32(row.Count),
			optionalFloat64(row.Stdev),
			optionalFloat64(row.Pval),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

// WriteDiagnostics appends any accumulated warnings to path, one per line,
// prefixed so they're distinguishable from a TSV data row if the two are
// ever concatenated by a caller.
func WriteDiagnostics(path string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer file.Close()
	for _, msg := range messages {
		if _, err := fmt.Fprintf(file, "# warning: %s\n", msg); err != nil {
			return err
		}
	}
	return nil
}

func optionalUint32(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}

func optionalFloat64(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
