package main

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type workflowResult struct {
	Success bool
	Latency time.Duration
}

// Summary aggregates the workflows of a concurrency run
type Summary struct {
	Total      int64
	Successful int64
	Failed     int64
	Elapsed    time.Duration
	TotalTime  time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration
}

func (s *Summary) add(r workflowResult) {
	s.Total++
	if !r.Success {
		s.Failed++
		return
	}
	s.Successful++
	s.TotalTime += r.Latency
	if s.MinLatency == 0 || r.Latency < s.MinLatency {
		s.MinLatency = r.Latency
	}
	if r.Latency > s.MaxLatency {
		s.MaxLatency = r.Latency
	}
}

// TPS is completed workflows per second
func (s *Summary) TPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Successful) / s.Elapsed.Seconds()
}

func (s *Summary) AvgLatency() time.Duration {
	if s.Successful == 0 {
		return 0
	}
	return s.TotalTime / time.Duration(s.Successful)
}

// runConcurrency runs workflows from several workers until the duration elapses
func runConcurrency(ctx context.Context, b *bench, workers int, duration time.Duration, filename string) error {
	fmt.Println("========================================")
	fmt.Println("   CONCURRENCY BENCHMARK")
	fmt.Println("========================================")
	fmt.Printf("Workers:    %d\n", workers)
	fmt.Printf("Duration:   %s\n", duration)
	fmt.Printf("Output:     %s\n", filename)
	fmt.Println("========================================")

	fmt.Println("Granting roles...")
	parties := make([]*party, workers)
	for i := range parties {
		p, err := b.newParty(ctx)
		if err != nil {
			return err
		}
		parties[i] = p
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	results := make(chan workflowResult, workers*10)
	var wg sync.WaitGroup
	fmt.Println("Starting workers...")
	startTime := time.Now()
	for _, p := range parties {
		wg.Add(1)
		go func(p *party) {
			defer wg.Done()
			for runCtx.Err() == nil {
				start := time.Now()
				_, err := b.runWorkflow(runCtx, p)
				if runCtx.Err() != nil {
					return
				}
				results <- workflowResult{Success: err == nil, Latency: time.Since(start)}
			}
		}(p)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for r := range results {
		summary.add(r)
		if summary.Total%10 == 0 {
			fmt.Printf("\rWorkflows: %d | Success: %d | Failed: %d", summary.Total, summary.Successful, summary.Failed)
		}
	}
	summary.Elapsed = time.Since(startTime)

	fmt.Println("\n\n========================================")
	fmt.Println("   BENCHMARK RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Total Workflows:   %d\n", summary.Total)
	fmt.Printf("Successful:        %d\n", summary.Successful)
	fmt.Printf("Failed:            %d\n", summary.Failed)
	fmt.Printf("Duration:          %v\n", summary.Elapsed)
	fmt.Printf("Throughput:        %.2f workflows/s\n", summary.TPS())
	fmt.Printf("Avg Latency:       %v\n", summary.AvgLatency())
	fmt.Printf("Min Latency:       %v\n", summary.MinLatency)
	fmt.Printf("Max Latency:       %v\n", summary.MaxLatency)
	fmt.Println("========================================")

	return writeCSV(filename, [][]string{
		{"Workers", "Duration_s", "Total", "Successful", "Failed", "TPS", "Avg_Latency_ms", "Min_Latency_ms", "Max_Latency_ms"},
		{
			fmt.Sprintf("%d", workers),
			fmt.Sprintf("%.0f", duration.Seconds()),
			fmt.Sprintf("%d", summary.Total),
			fmt.Sprintf("%d", summary.Successful),
			fmt.Sprintf("%d", summary.Failed),
			fmt.Sprintf("%.2f", summary.TPS()),
			fmt.Sprintf("%d", summary.AvgLatency().Milliseconds()),
			fmt.Sprintf("%d", summary.MinLatency.Milliseconds()),
			fmt.Sprintf("%d", summary.MaxLatency.Milliseconds()),
		},
	})
}
