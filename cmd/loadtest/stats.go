package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// stats collects results per operation.
type stats struct {
	mu     sync.Mutex
	ops    map[string]*opStats
	errors int64
}

type opStats struct {
	latencies []time.Duration
	codes     map[int]int64
}

func newStats() *stats {
	return &stats{ops: make(map[string]*opStats)}
}

// record counts r under op. Transport errors have no latency worth keeping.
func (s *stats) record(op string, r result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.err != nil {
		s.errors++
		return
	}
	o, ok := s.ops[op]
	if !ok {
		o = &opStats{codes: make(map[int]int64)}
		s.ops[op] = o
	}
	o.latencies = append(o.latencies, r.latency)
	o.codes[r.status]++
}

func (s *stats) total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.errors
	for _, o := range s.ops {
		n += int64(len(o.latencies))
	}
	return n
}

func (s *stats) report(w io.Writer, duration time.Duration) {
	total := s.total()
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Transport Errors: %d\n", s.errors)
	if total > 0 {
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	names := make([]string, 0, len(s.ops))
	for name := range s.ops {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		o := s.ops[name]
		sorted := slices.Clone(o.latencies)
		slices.Sort(sorted)

		fmt.Fprintln(w)
		fmt.Fprintf(w, "=== %s (%d) ===\n", name, len(sorted))
		fmt.Fprintf(w, "Min:    %s\n", sorted[0])
		fmt.Fprintf(w, "Avg:    %s\n", mean(sorted))
		fmt.Fprintf(w, "P50:    %s\n", percentile(sorted, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(sorted, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(sorted, 99))
		fmt.Fprintf(w, "Max:    %s\n", sorted[len(sorted)-1])

		codes := make([]int, 0, len(o.codes))
		for code := range o.codes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			fmt.Fprintf(w, "  %d: %d\n", code, o.codes[code])
		}
	}
}

func mean(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

// percentile returns the nearest-rank p-th percentile of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
