// Command authgate-benchcheck compares two `go test -bench` outputs and fails when
// a tracked engine benchmark regressed past the threshold.
//
//	go test -run '^$' -bench 'Authenticate|Refresh|Login' -count 5 . > new.txt
//	authgate-benchcheck -baseline old.txt -candidate new.txt
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

const defaultThreshold = 0.30

// tracked lists the benchmarks and units that gate a change.
var tracked = map[string][]string{
	"BenchmarkAuthenticate": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":      {"ns/op"},
	"BenchmarkLogin":        {"ns/op"},
}

func main() {
	var (
		baselinePath  = flag.String("baseline", "", "path to baseline benchmark output")
		candidatePath = flag.String("candidate", "", "path to candidate benchmark output")
		threshold     = flag.Float64("threshold", defaultThreshold, "maximum allowed regression ratio (0.30 = +30%)")
	)
	flag.Parse()

	if *baselinePath == "" || *candidatePath == "" {
		fmt.Fprintln(os.Stderr, "-baseline and -candidate are required")
		os.Exit(2)
	}
	if *threshold < 0 {
		fmt.Fprintln(os.Stderr, "-threshold must be >= 0")
		os.Exit(2)
	}

	failures, err := run(*baselinePath, *candidatePath, *threshold, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(failures) > 0 {
		fmt.Fprintln(os.Stderr, "performance regression threshold exceeded:")
		for _, f := range failures {
			fmt.Fprintf(os.Stderr, "  - %s\n", f)
		}
		os.Exit(1)
	}
}

func run(baselinePath, candidatePath string, threshold float64, out io.Writer) ([]string, error) {
	baseline, err := parseFile(baselinePath)
	if err != nil {
		return nil, fmt.Errorf("parse baseline: %w", err)
	}
	candidate, err := parseFile(candidatePath)
	if err != nil {
		return nil, fmt.Errorf("parse candidate: %w", err)
	}
	return compare(baseline, candidate, threshold, out), nil
}

func parseFile(path string) (samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}
