// main.go - Load generator for the tracking and report endpoints
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"trackly/internal/events"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	EventsPerSec int
	ReportEvery  int
	Timeout      time.Duration
	Output       string
}

// Result captures the result of a single request
type Result struct {
	Kind       string
	Duration   time.Duration
	StatusCode int
	Error      error
}

// PerfStats aggregates results per request kind.
type PerfStats struct {
	mu        sync.Mutex
	StartTime time.Time
	EndTime   time.Time
	Kinds     map[string]*KindStats
}

// KindStats holds latency and status data for one request kind.
type KindStats struct {
	Total       int64
	Successful  int64
	Failed      int64
	Unavailable int64
	StatusCodes map[int]int64
	Latencies   []time.Duration
}

var paths = []string{"/", "/pricing", "/features", "/blog", "/blog/article-1", "/docs", "/about", "/signup"}

var sources = []string{"", "", "google", "newsletter", "twitter"}

var reportTargets = []string{
	"/analytics/top-pages/?days=7",
	"/analytics/traffic-sources/",
	"/analytics/sessions/",
	"/analytics/daily/",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "Base URL of the server")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	eventsPerSec := flag.Int("rate", 0, "Target requests per second (0 = unlimited)")
	reportEvery := flag.Int("reports", 0, "Issue one report query every N requests per client (0 = never)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	output := flag.String("o", "perf_results.json", "File receiving the JSON summary")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	config := &PerfConfig{
		BaseURL:      strings.TrimSuffix(*baseURL, "/"),
		Concurrency:  max(*concurrency, 1),
		Duration:     *duration,
		EventsPerSec: *eventsPerSec,
		ReportEvery:  *reportEvery,
		Timeout:      *timeout,
		Output:       *output,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	testCtx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	logger.Info("Starting load test",
		slog.String("url", config.BaseURL),
		slog.Int("concurrency", config.Concurrency),
		slog.Duration("duration", config.Duration),
		slog.Int("rate", config.EventsPerSec))

	stats := &PerfStats{StartTime: time.Now(), Kinds: make(map[string]*KindStats)}
	for result := range runTest(testCtx, config) {
		stats.record(result)
	}
	stats.EndTime = time.Now()

	printResults(stats)
	if err := exportResults(stats, config.Output); err != nil {
		logger.Error("Failed to write results", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Results written", slog.String("file", config.Output))
}

// runTest starts the clients and returns a channel closed once all stop.
func runTest(ctx context.Context, config *PerfConfig) <-chan Result {
	results := make(chan Result, config.Concurrency*10)
	var wg sync.WaitGroup

	var interval time.Duration
	if config.EventsPerSec > 0 {
		interval = time.Duration(float64(time.Second) * float64(config.Concurrency) / float64(config.EventsPerSec))
	}

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c := newClient(config, uint64(workerID))

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for n := 1; ; n++ {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				var result Result
				if config.ReportEvery > 0 && n%config.ReportEvery == 0 {
					result = c.queryReport(ctx)
				} else {
					result = c.track(ctx)
				}
				if ctx.Err() != nil && result.Error != nil {
					return
				}
				results <- result
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// client simulates one visitor stream: a session that ends after a few
// pageviews and is then replaced.
type client struct {
	config    *PerfConfig
	http      *http.Client
	rand      *rand.Rand
	sessionID string
	userID    string
	source    string
	remaining int
}

func newClient(config *PerfConfig, seed uint64) *client {
	return &client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), seed)),
	}
}

func (c *client) nextPayload() events.Payload {
	if c.remaining == 0 {
		c.sessionID = uuid.NewString()
		c.userID = uuid.NewString()
		c.source = sources[c.rand.IntN(len(sources))]
		c.remaining = 1 + c.rand.IntN(5)
	}
	c.remaining--

	path := paths[c.rand.IntN(len(paths))]
	now := time.Now().UTC().Format(time.RFC3339Nano)
	payload := events.Payload{
		EventName:  events.EventPageview,
		Timestamp:  now,
		ReceivedAt: now,
		URL:        "https://example.com" + path,
		Path:       path,
		SessionID:  &c.sessionID,
		UserID:     &c.userID,
	}
	if c.source != "" {
		source := c.source
		payload.UTMSource = &source
		payload.URL += "?utm_source=" + source
	}
	return payload
}

func (c *client) track(ctx context.Context) Result {
	body, err := json.Marshal(c.nextPayload())
	if err != nil {
		return Result{Kind: "track", Error: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/track/", bytes.NewReader(body))
	if err != nil {
		return Result{Kind: "track", Error: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, "track", http.StatusCreated)
}

func (c *client) queryReport(ctx context.Context) Result {
	target := reportTargets[c.rand.IntN(len(reportTargets))]
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+target, nil)
	if err != nil {
		return Result{Kind: "report", Error: fmt.Errorf("failed to create request: %w", err)}
	}
	return c.do(req, "report", http.StatusOK)
}

func (c *client) do(req *http.Request, kind string, expected int) Result {
	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		return Result{Kind: kind, Duration: duration, Error: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	result := Result{Kind: kind, Duration: duration, StatusCode: resp.StatusCode}
	if resp.StatusCode != expected {
		result.Error = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return result
}

func (s *PerfStats) record(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.Kinds[result.Kind]
	if !ok {
		k = &KindStats{StatusCodes: make(map[int]int64)}
		s.Kinds[result.Kind] = k
	}

	k.Total++
	if result.StatusCode != 0 {
		k.StatusCodes[result.StatusCode]++
	}
	if result.StatusCode == http.StatusServiceUnavailable {
		k.Unavailable++
	}
	if result.Error != nil {
		k.Failed++
		return
	}
	k.Successful++
	k.Latencies = append(k.Latencies, result.Duration)
}

// percentile expects sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (s *PerfStats) kindNames() []string {
	names := make([]string, 0, len(s.Kinds))
	for name := range s.Kinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func printResults(stats *PerfStats) {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	fmt.Printf("\nTest Duration: %v\n", elapsed.Round(time.Millisecond))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tTOTAL\tOK\tFAILED\t503\tRPS\tP50\tP95\tP99\tMAX")
	for _, name := range stats.kindNames() {
		k := stats.Kinds[name]
		slices.Sort(k.Latencies)

		var maxLatency time.Duration
		if len(k.Latencies) > 0 {
			maxLatency = k.Latencies[len(k.Latencies)-1]
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f\t%v\t%v\t%v\t%v\n",
			name, k.Total, k.Successful, k.Failed, k.Unavailable,
			float64(k.Total)/elapsed.Seconds(),
			percentile(k.Latencies, 0.5), percentile(k.Latencies, 0.95), percentile(k.Latencies, 0.99), maxLatency)
	}
	w.Flush()
}

func exportResults(stats *PerfStats, path string) error {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	summary := map[string]any{
		"startTime":       stats.StartTime.Format(time.RFC3339),
		"endTime":         stats.EndTime.Format(time.RFC3339),
		"totalDurationMs": elapsed.Milliseconds(),
	}

	kinds := map[string]any{}
	for _, name := range stats.kindNames() {
		k := stats.Kinds[name]
		slices.Sort(k.Latencies)
		kinds[name] = map[string]any{
			"totalRequests":      k.Total,
			"successfulRequests": k.Successful,
			"failedRequests":     k.Failed,
			"unavailable":        k.Unavailable,
			"statusCodes":        k.StatusCodes,
			"p50LatencyMs":       percentile(k.Latencies, 0.5).Milliseconds(),
			"p95LatencyMs":       percentile(k.Latencies, 0.95).Milliseconds(),
			"p99LatencyMs":       percentile(k.Latencies, 0.99).Milliseconds(),
		}
	}
	summary["kinds"] = kinds

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("error creating JSON output: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
