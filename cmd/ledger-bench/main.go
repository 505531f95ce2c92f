package main

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/spf13/pflag"

	"github.com/ahmadzakiakmal/produce-registry/client"
)

func main() {
	flags := pflag.NewFlagSet("ledger-bench", pflag.ExitOnError)
	mode := flags.String("mode", "latency", "Benchmark to run: latency or concurrency")
	endpoint := flags.String("endpoint", "http://127.0.0.1:5000", "Ledger API of the node")
	chainID := flags.String("chain-id", "", "Chain id the transactions are signed for")
	adminKey := flags.String("admin-key", os.Getenv("REGISTRY_ADMIN_KEY"), "Hex ed25519 private key of the genesis administrator")
	iterations := flags.Int("n", 100, "Number of workflows in latency mode")
	workers := flags.Int("workers", 10, "Number of concurrent workers in concurrency mode")
	duration := flags.Duration("duration", 30*time.Second, "Test duration in concurrency mode")
	recordsDir := flags.String("records", "./records", "Directory the CSV results are written to")
	flags.Parse(os.Args[1:])

	if *chainID == "" {
		fmt.Println("--chain-id is required")
		os.Exit(1)
	}
	key, err := parseKey(*adminKey)
	if err != nil {
		fmt.Printf("Invalid admin key: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	c := client.NewClient(*endpoint)
	if err := c.HealthCheck(ctx); err != nil {
		fmt.Printf("Node is not reachable: %v\n", err)
		os.Exit(1)
	}

	os.MkdirAll(*recordsDir, 0755)
	timestamp := time.Now().Format("2006-01-02_15-04-05")

	b := &bench{client: c, chainID: *chainID}
	if err := b.setupAdmin(ctx, key); err != nil {
		fmt.Printf("Failed to load administrator nonce: %v\n", err)
		os.Exit(1)
	}

	switch *mode {
	case "latency":
		filename := filepath.Join(*recordsDir, fmt.Sprintf("latency_%s_n%d.csv", timestamp, *iterations))
		err = runLatency(ctx, b, *iterations, filename)
	case "concurrency":
		filename := filepath.Join(*recordsDir, fmt.Sprintf("concurrency_%s_w%d_d%s.csv", timestamp, *workers, *duration))
		err = runConcurrency(ctx, b, *workers, *duration, filename)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fmt.Printf("Benchmark failed: %v\n", err)
		os.Exit(1)
	}
}

func parseKey(s string) (ed25519.PrivKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivKey(raw), nil
}

func writeCSV(filename string, rows [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	fmt.Printf("Results: %s\n", filename)
	return nil
}
