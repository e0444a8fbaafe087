// Command perf-regression compares two `go test -bench` outputs and exits non-zero
// when a tracked gateway benchmark got slower than the threshold allows.
//
//	go test -run '^$' -bench . -count 5 . > new.txt
//	perf-regression -baseline old.txt -candidate new.txt
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
)

// defaultTracked is benchmark name -> units compared.
var defaultTracked = map[string][]string{
	"BenchmarkGatewayGet":            {"ns/op", "allocs/op"},
	"BenchmarkGatewayGetRateLimited": {"ns/op", "allocs/op"},
	"BenchmarkRefresh":               {"ns/op"},
	"BenchmarkCollect":               {"allocs/op"},
}

// sampleSet is benchmark -> unit -> samples, one per -count run.
type sampleSet map[string]map[string][]float64

func (s sampleSet) add(name, unit string, v float64) {
	units := s[name]
	if units == nil {
		units = map[string][]float64{}
		s[name] = units
	}
	units[unit] = append(units[unit], v)
}

type comparison struct {
	benchmark string
	unit      string
	baseline  float64
	candidate float64
	delta     float64
}

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns 0 when nothing regressed, 1 on regression or read failure and 2 on bad
// flags.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("perf-regression", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baselinePath := fs.String("baseline", "", "benchmark output of the reference build")
	candidatePath := fs.String("candidate", "", "benchmark output of the build under test")
	threshold := fs.Float64("threshold", 0.30, "largest tolerated slowdown as a ratio (0.30 = +30%)")
	only := fs.String("only", "", "comma-separated subset of tracked benchmarks")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	tracked, err := selectTracked(defaultTracked, *only)
	switch {
	case *baselinePath == "" || *candidatePath == "":
		err = fmt.Errorf("%w: -baseline and -candidate are required", errUsage)
	case *threshold < 0:
		err = fmt.Errorf("%w: -threshold cannot be negative", errUsage)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var sets [2]sampleSet
	for i, path := range []string{*baselinePath, *candidatePath} {
		if sets[i], err = readSamples(path, tracked); err != nil {
			fmt.Fprintf(stderr, "read %s: %v\n", path, err)
			return 1
		}
	}

	rows, failures := compare(tracked, sets[0], sets[1], *threshold)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "benchmark\tunit\tbaseline\tcandidate\tdelta\t")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%+.1f%%\t\n", r.benchmark, r.unit, r.baseline, r.candidate, r.delta*100)
	}
	_ = tw.Flush()

	if len(failures) == 0 {
		return 0
	}
	fmt.Fprintf(stderr, "%d regression(s):\n", len(failures))
	for _, f := range failures {
		fmt.Fprintln(stderr, "  "+f)
	}
	return 1
}

func selectTracked(all map[string][]string, only string) (map[string][]string, error) {
	if strings.TrimSpace(only) == "" {
		return all, nil
	}
	out := map[string][]string{}
	for name := range strings.SplitSeq(only, ",") {
		name = strings.TrimSpace(name)
		units, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q is not tracked", errUsage, name)
		}
		out[name] = units
	}
	return out, nil
}

// compare returns rows in benchmark order and one failure per regression or missing
// sample.
func compare(tracked map[string][]string, baseline, candidate sampleSet, threshold float64) ([]comparison, []string) {
	var (
		rows     []comparison
		failures []string
	)
	for _, name := range slices.Sorted(maps.Keys(tracked)) {
		for _, unit := range tracked[name] {
			before, after := baseline[name][unit], candidate[name][unit]
			if len(before) == 0 || len(after) == 0 {
				failures = append(failures, fmt.Sprintf("%s %s: no samples", name, unit))
				continue
			}

			row := comparison{benchmark: name, unit: unit, baseline: median(before), candidate: median(after)}
			switch {
			case row.baseline > 0:
				row.delta = row.candidate/row.baseline - 1
				if row.delta > threshold {
					failures = append(failures, fmt.Sprintf("%s %s: %+.1f%% exceeds %+.1f%%", name, unit, row.delta*100, threshold*100))
				}
			case row.baseline == 0 && unit == "allocs/op":
				// an allocation-free path must stay allocation-free
				if row.candidate > 0 {
					failures = append(failures, fmt.Sprintf("%s %s: 0 -> %.0f", name, unit, row.candidate))
				}
			default:
				failures = append(failures, fmt.Sprintf("%s %s: baseline median %.1f is unusable", name, unit, row.baseline))
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows, failures
}

func readSamples(path string, tracked map[string][]string) (sampleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseBenchmarks(f, tracked)
}

// parseBenchmarks collects value/unit pairs from result lines of tracked benchmarks.
// A result line is "BenchmarkName-P  iterations  v1 unit1  v2 unit2 ...".
func parseBenchmarks(r io.Reader, tracked map[string][]string) (sampleSet, error) {
	set := sampleSet{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
			continue
		}
		name := trimProcs(fields[0])
		if _, ok := tracked[name]; !ok {
			continue
		}
		for pair := fields[2:]; len(pair) >= 2; pair = pair[2:] {
			if v, err := strconv.ParseFloat(pair[0], 64); err == nil {
				set.add(name, pair[1], v)
			}
		}
	}
	return set, sc.Err()
}

// trimProcs drops the -GOMAXPROCS suffix go test appends.
func trimProcs(name string) string {
	base, procs, ok := cutLast(name, "-")
	if !ok {
		return name
	}
	if _, err := strconv.Atoi(procs); err != nil || base == "" {
		return name
	}
	return base
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := slices.Sorted(slices.Values(values))
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
