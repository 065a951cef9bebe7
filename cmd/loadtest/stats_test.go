package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	var ds []time.Duration
	for i := 1; i <= 100; i++ {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}
	cases := map[float64]time.Duration{
		50: 50 * time.Millisecond,
		90: 90 * time.Millisecond,
		99: 99 * time.Millisecond,
		0:  1 * time.Millisecond,
	}
	for p, want := range cases {
		if got := percentile(ds, p); got != want {
			t.Errorf("p%v = %s, want %s", p, got, want)
		}
	}
	if percentile(nil, 50) != 0 {
		t.Error("empty input should yield 0")
	}
}

func TestStatsReport(t *testing.T) {
	st := newStats()
	st.record("fetch", result{status: 200, latency: 2 * time.Millisecond})
	st.record("fetch", result{status: 200, latency: 4 * time.Millisecond})
	st.record("fetch", result{status: 404, latency: time.Millisecond})
	st.record("evict", result{status: 200, latency: time.Millisecond})
	st.record("fetch", result{err: errors.New("connection refused")})

	if st.total() != 5 {
		t.Fatalf("total = %d", st.total())
	}
	var out bytes.Buffer
	st.report(&out, time.Second)
	s := out.String()
	for _, want := range []string{"Total Requests:  5", "Transport Errors: 1", "=== evict (1) ===", "=== fetch (3) ===", "  404: 1", "Avg:    2.333333ms"} {
		if !strings.Contains(s, want) {
			t.Errorf("report missing %q:\n%s", want, s)
		}
	}
}
