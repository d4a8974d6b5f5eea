package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// samples maps benchmark name to unit to observed values.
type samples map[string]map[string][]float64

func parse(r io.Reader) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		if out[name] == nil {
			out[name] = map[string][]float64{}
		}
		// fields[1] is the iteration count; the rest are value/unit pairs.
		for i := 2; i+1 < len(fields); i += 2 {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], v)
		}
	}
	return out, scanner.Err()
}

// trimProcs drops the -N GOMAXPROCS suffix.
func trimProcs(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// compare writes one report line per tracked metric and returns the failures in
// a stable order.
func compare(baseline, candidate samples, threshold float64, out io.Writer) []string {
	names := make([]string, 0, len(tracked))
	for name := range tracked {
		names = append(names, name)
	}
	sort.Strings(names)

	var failures []string
	fmt.Fprintln(out, "benchmark unit baseline candidate delta")
	for _, name := range names {
		for _, unit := range tracked[name] {
			base, cand := median(baseline[name][unit]), median(candidate[name][unit])
			switch {
			case len(baseline[name][unit]) == 0 || len(candidate[name][unit]) == 0:
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			case base <= 0:
				// Zero-alloc baselines regress on any allocation.
				if cand > 0 {
					failures = append(failures, fmt.Sprintf("%s %s went from 0 to %.0f", name, unit, cand))
				}
				fmt.Fprintf(out, "%s %s %.3f %.3f n/a\n", name, unit, base, cand)
				continue
			}
			delta := (cand - base) / base
			fmt.Fprintf(out, "%s %s %.3f %.3f %+0.2f%%\n", name, unit, base, cand, delta*100)
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, delta*100, threshold*100))
			}
		}
	}
	return failures
}
