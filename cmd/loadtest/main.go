// Command loadtest drives a running schemad with concurrent schema fetches
// and reports throughput, latency percentiles and the service's own cache
// statistics.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

type options struct {
	baseURL     string
	uris        []string
	concurrency int
	duration    time.Duration
	// evictEvery makes each worker evict its uri after that many fetches so
	// the cold import path is measured too; 0 keeps everything cached.
	evictEvery int
}

func main() {
	baseURL := flag.String("url", "http://localhost:8090", "base URL of the schema service")
	uris := flag.String("uris", "", "comma-separated schema uris to fetch (required)")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	evictEvery := flag.Int("evict-every", 0, "evict after this many fetches per worker (0 never evicts)")
	flag.Parse()

	if *uris == "" {
		fmt.Fprintln(os.Stderr, "loadtest: -uris is required")
		flag.Usage()
		os.Exit(2)
	}
	opts := options{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		uris:        strings.Split(*uris, ","),
		concurrency: *concurrency,
		duration:    *duration,
		evictEvery:  *evictEvery,
	}

	fmt.Println("=== Schema Service Load Test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Documents:   %d\n", len(opts.uris))
	if opts.evictEvery > 0 {
		fmt.Printf("Evicting:    every %d fetches\n", opts.evictEvery)
	}
	fmt.Println()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	st := run(context.Background(), client, opts)
	st.report(os.Stdout, opts.duration)
	printServerStats(client, opts.baseURL)

	if st.total() == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func run(parent context.Context, client *http.Client, opts options) *stats {
	st := newStats()
	ctx, cancel := context.WithTimeout(parent, opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := 0; ctx.Err() == nil; n++ {
				uri := opts.uris[(worker+n)%len(opts.uris)]
				if opts.evictEvery > 0 && n > 0 && n%opts.evictEvery == 0 {
					st.record("evict", do(ctx, client, http.MethodDelete, opts.baseURL, uri))
				}
				st.record("fetch", do(ctx, client, http.MethodGet, opts.baseURL, uri))
			}
		}(w)
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return st
}

type result struct {
	status  int
	latency time.Duration
	err     error
}

func do(ctx context.Context, client *http.Client, method, baseURL, uri string) result {
	req, err := http.NewRequestWithContext(ctx, method, baseURL+"/api/v1/schemas?uri="+url.QueryEscape(uri), nil)
	if err != nil {
		return result{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{latency: time.Since(start), err: err}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{status: resp.StatusCode, latency: time.Since(start)}
}

// printServerStats prints the service's cache counters after the run.
func printServerStats(client *http.Client, baseURL string) {
	resp, err := client.Get(baseURL + "/api/v1/cache/stats")
	if err != nil {
		fmt.Printf("\ncache stats unavailable: %v\n", err)
		return
	}
	defer resp.Body.Close()
	var body map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Printf("\ncache stats unreadable: %v\n", err)
		return
	}
	fmt.Println()
	fmt.Println("=== Service Caches ===")
	for _, name := range []string{"imports", "documents"} {
		fmt.Printf("  %-10s %v\n", name+":", body[name])
	}
}
