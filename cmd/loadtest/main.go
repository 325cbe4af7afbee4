// Command loadtest drives the calculator API: each worker submits a
// calculation and long-polls until its result arrives, recording submit and
// end-to-end latency.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s]
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	WaitTimeout time.Duration
}

type Stats struct {
	submitted     atomic.Int64
	completed     atomic.Int64
	computeErrors atomic.Int64
	mismatches    atomic.Int64
	timeouts      atomic.Int64
	errorCount    atomic.Int64

	submitLatencies []time.Duration
	e2eLatencies    []time.Duration
	latenciesMu     sync.Mutex

	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		submitLatencies: make([]time.Duration, 0, 100000),
		e2eLatencies:    make([]time.Duration, 0, 100000),
		statusCodes:     make(map[int]*atomic.Int64),
	}
}

func (s *Stats) recordStatus(code int) {
	s.statusCodesMu.Lock()
	defer s.statusCodesMu.Unlock()
	if _, ok := s.statusCodes[code]; !ok {
		s.statusCodes[code] = &atomic.Int64{}
	}
	s.statusCodes[code].Add(1)
}

func (s *Stats) recordLatency(submit, e2e time.Duration) {
	s.latenciesMu.Lock()
	defer s.latenciesMu.Unlock()
	s.submitLatencies = append(s.submitLatencies, submit)
	if e2e > 0 {
		s.e2eLatencies = append(s.e2eLatencies, e2e)
	}
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the calculator api")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	waitTimeout := flag.Duration("wait", 10*time.Second, "how long to wait for each result")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		WaitTimeout: *waitTimeout,
	}

	fmt.Println("=== Calculator Pipeline Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Wait:        %s\n", cfg.WaitTimeout)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

type job struct {
	first, second float64
	op            calculator.Operation
}

func randomJob(r *rand.Rand) job {
	j := job{
		first:  float64(r.IntN(1000)),
		second: float64(r.IntN(100) + 1),
		op:     calculator.Operations[r.IntN(len(calculator.Operations))],
	}
	return j
}

func (j job) expected() float64 {
	v, _ := j.op.Apply(j.first, j.second)
	return v
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: cfg.WaitTimeout + 10*time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(workerID), uint64(time.Now().UnixNano())))
			for ctx.Err() == nil {
				runOne(ctx, client, cfg, stats, randomJob(r))
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
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
	return stats
}

func runOne(ctx context.Context, client *http.Client, cfg Config, stats *Stats, j job) {
	body, _ := json.Marshal(map[string]any{
		"firstNumber":  j.first,
		"secondNumber": j.second,
		"operation":    j.op.String(),
	})

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/calculator/calculate", bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	submitLatency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			stats.errorCount.Add(1)
		}
		return
	}
	var submitted calculator.SubmitResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&submitted)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	stats.recordStatus(resp.StatusCode)
	if resp.StatusCode != http.StatusAccepted || decodeErr != nil {
		stats.errorCount.Add(1)
		stats.recordLatency(submitLatency, 0)
		return
	}
	stats.submitted.Add(1)

	// Results are awaited past the end of the run so in-flight work is counted.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.WaitTimeout+5*time.Second)
	defer cancel()
	waitURL := fmt.Sprintf("%s/api/v1/results/%s/wait?timeout=%s", cfg.BaseURL, submitted.RequestID, cfg.WaitTimeout)
	wreq, err := http.NewRequestWithContext(waitCtx, http.MethodGet, waitURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	wresp, err := client.Do(wreq)
	if err != nil {
		stats.errorCount.Add(1)
		stats.recordLatency(submitLatency, 0)
		return
	}
	defer wresp.Body.Close()
	stats.recordStatus(wresp.StatusCode)

	switch wresp.StatusCode {
	case http.StatusOK:
		var result calculator.CalculationResponse
		if err := json.NewDecoder(wresp.Body).Decode(&result); err != nil {
			stats.errorCount.Add(1)
			return
		}
		stats.completed.Add(1)
		stats.recordLatency(submitLatency, time.Since(start))
		switch {
		case !result.IsSuccess:
			stats.computeErrors.Add(1)
		case math.Abs(result.Result-j.expected()) > 1e-9:
			stats.mismatches.Add(1)
		}
	case http.StatusAccepted:
		stats.timeouts.Add(1)
		stats.recordLatency(submitLatency, 0)
	default:
		stats.errorCount.Add(1)
		stats.recordLatency(submitLatency, 0)
	}
}

func printReport(stats *Stats, duration time.Duration) {
	submitted := stats.submitted.Load()
	completed := stats.completed.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Submitted:       %d\n", submitted)
	fmt.Printf("Completed:       %d\n", completed)
	fmt.Printf("Compute errors:  %d\n", stats.computeErrors.Load())
	fmt.Printf("Wrong results:   %d\n", stats.mismatches.Load())
	fmt.Printf("Not ready:       %d\n", stats.timeouts.Load())
	fmt.Printf("Errors:          %d\n", stats.errorCount.Load())
	if submitted > 0 {
		fmt.Printf("Submits/sec:     %.2f\n", float64(submitted)/duration.Seconds())
		fmt.Printf("Completion rate: %.2f%%\n", float64(completed)/float64(submitted)*100)
	}

	stats.latenciesMu.Lock()
	submitLat := append([]time.Duration(nil), stats.submitLatencies...)
	e2eLat := append([]time.Duration(nil), stats.e2eLatencies...)
	stats.latenciesMu.Unlock()

	printLatencies("Submit Latency", submitLat)
	printLatencies("End-to-end Latency", e2eLat)

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if submitted == 0 {
		fmt.Println()
		fmt.Println("WARNING: No calculations were accepted. Is the api running?")
		os.Exit(1)
	}
}

func printLatencies(title string, latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := sum / time.Duration(len(latencies))

	fmt.Println()
	fmt.Printf("=== %s ===\n", title)
	fmt.Printf("Min:    %s\n", latencies[0])
	fmt.Printf("Avg:    %s\n", avg)
	fmt.Printf("P50:    %s\n", percentile(latencies, 50))
	fmt.Printf("P90:    %s\n", percentile(latencies, 90))
	fmt.Printf("P99:    %s\n", percentile(latencies, 99))
	fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
