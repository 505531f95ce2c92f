package main

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// runLatency runs workflows one after another and records every step
func runLatency(ctx context.Context, b *bench, iterations int, filename string) error {
	fmt.Println("========================================")
	fmt.Println("   LATENCY BENCHMARK")
	fmt.Println("========================================")
	fmt.Printf("Iterations: %d\n", iterations)
	fmt.Printf("Chain ID:   %s\n", b.chainID)
	fmt.Printf("Output:     %s\n", filename)
	fmt.Println("========================================")

	p, err := b.newParty(ctx)
	if err != nil {
		return err
	}

	rows := [][]string{{"Iteration", "Step", "Latency_ms", "BlockHeight"}}
	successCount := 0
	for i := 0; i < iterations; i++ {
		fmt.Printf("\r[%d/%d] ", i+1, iterations)

		steps, err := b.runWorkflow(ctx, p)
		if err != nil {
			fmt.Printf("✗ %v\n", err)
			continue
		}
		successCount++
		fmt.Print("✓")
		for _, s := range steps {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				s.Name,
				strconv.FormatInt(s.Latency.Milliseconds(), 10),
				strconv.FormatInt(s.BlockHeight, 10),
			})
		}

		time.Sleep(50 * time.Millisecond)
	}

	fmt.Printf("\n\n========================================\n")
	fmt.Printf("Success: %d/%d\n", successCount, iterations)
	if failed := iterations - successCount; failed > 0 {
		fmt.Printf("Failed:  %d\n", failed)
	}
	fmt.Println("========================================")
	return writeCSV(filename, rows)
}
