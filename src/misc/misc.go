// contains some misc helper functions etc. for katss
package misc

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// ErrorCheck is a function to throw error to the log and exit the program.
// It is only ever called from the cmd/ layer - the core library packages
// (seqio, hasher, kmertable, counter, shuffler, enrichment, bootstrap, api)
// return errors instead of calling this.
func ErrorCheck(msg error) {
	if msg != nil {
		log.Fatalf("terminated\n\nERROR --> %v\n\n", msg)
	}
}

// CheckRequiredFlags is a function to check for required flags before running katss
func CheckRequiredFlags(flags *pflag.FlagSet) error {
	requiredError := false
	flagName := ""

	flags.VisitAll(func(flag *pflag.Flag) {
		requiredAnnotation := flag.Annotations[cobra.BashCompOneRequiredFlag]
		if len(requiredAnnotation) == 0 {
			return
		}
		flagRequired := requiredAnnotation[0] == "true"
		if flagRequired && !flag.Changed {
			requiredError = true
			flagName = flag.Name
		}
	})

	if requiredError {
		return errors.New("required flag `" + flagName + "` has not been set")
	}

	return nil
}

// StartLogging is a function to start the log...
func StartLogging(logFile string) *os.File {
	logPath := strings.Split(logFile, "/")
	joinedLogPath := strings.Join(logPath[:len(logPath)-1], "/")
	if len(logPath) > 1 {
		if _, err := os.Stat(joinedLogPath); os.IsNotExist(err) {
			if err := os.MkdirAll(joinedLogPath, 0700); err != nil {
				log.Fatal("can't create specified directory for log")
			}
		}
	}
	logFH, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		log.Fatal(err)
	}
	return logFH
}

// CheckFile is a function to check that a file can be read
func CheckFile(file string) error {
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %v", file)
		}
		return fmt.Errorf("can't access file (check permissions): %v", file)
	}
	return nil
}

// SetProcessors applies the requested processor count via GOMAXPROCS and
// returns it, using NumCPU instead when the request is not positive or
// exceeds NumCPU.
func SetProcessors(requested int) int {
	if requested <= 0 || requested > runtime.NumCPU() {
		requested = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(requested)
	return requested
}

// Diagnostics accumulates non-fatal warnings for the Api layer's opt-in
// diagnostic channel. These are returned to the caller, never printed
// directly - Api must never partially print and always return.
type Diagnostics struct {
	messages []string
}

// Warnf records a formatted warning.
func (d *Diagnostics) Warnf(format string, args ...interface{}) {
	d.messages = append(d.messages, fmt.Sprintf(format, args...))
}

// Messages returns the accumulated warnings in insertion order.
func (d *Diagnostics) Messages() []string {
	return d.messages
}
