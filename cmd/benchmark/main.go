// Benchmark tool for the Kestrel detection engine.
//
// Usage:
//   go run cmd/benchmark/main.go -transactions 100000 -customers 2000
//
// This tool:
//   1. Generates a seeded synthetic transaction batch
//   2. Runs the full scenario engine over it
//   3. Reports throughput, per-rule alert counts and determinism
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/generate"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func main() {
	transactions := flag.Int("transactions", 100000, "Number of transactions to generate")
	customers := flag.Int("customers", 2000, "Number of distinct customers")
	workers := flag.Int("workers", 8, "Evaluation worker count")
	seed := flag.Int64("seed", 1, "Generation seed (0 = random)")
	scenariosPath := flag.String("scenarios", "", "Scenario configuration file (default: built-in benchmark config)")
	verify := flag.Bool("verify", true, "Run twice and compare alert logs")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	scenarios, err := loadScenarios(*scenariosPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	genCfg := generate.DefaultConfig()
	genCfg.Seed = *seed
	genCfg.Transactions = *transactions
	genCfg.Customers = *customers

	fmt.Println("Kestrel engine benchmark")
	fmt.Printf("  Transactions: %d\n", *transactions)
	fmt.Printf("  Customers:    %d\n", *customers)
	fmt.Printf("  Workers:      %d\n", *workers)
	fmt.Printf("  Seed:         %d\n", *seed)
	fmt.Println()

	genStart := time.Now()
	txs, err := generate.Batch(genCfg)
	if err != nil {
		fmt.Printf("ERROR: generation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d transactions in %s\n", len(txs), time.Since(genStart).Round(time.Millisecond))

	engine, err := rules.NewEngine(scenarios, *workers)
	if err != nil {
		fmt.Printf("ERROR: engine init failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	runStart := time.Now()
	result, err := engine.Run(ctx, txs)
	if err != nil {
		fmt.Printf("ERROR: evaluation failed: %v\n", err)
		os.Exit(1)
	}
	elapsed := time.Since(runStart)

	fmt.Println()
	fmt.Printf("Evaluated in %s (%.0f tx/s)\n",
		elapsed.Round(time.Millisecond),
		float64(len(txs))/elapsed.Seconds(),
	)
	fmt.Printf("Alerts: %d (render failures: %d)\n", result.AlertCount, result.RenderFailures)

	byType := make(map[domain.AlertType]int)
	for _, a := range result.Alerts {
		byType[a.Type]++
	}
	for _, at := range []domain.AlertType{
		domain.AlertHighVolume,
		domain.AlertHighAmount,
		domain.AlertUnusualPatterns,
		domain.AlertFrequentInternational,
		domain.AlertRapidConsecutive,
		domain.AlertLocationMismatch,
	} {
		fmt.Printf("  %-40s %d\n", at, byType[at])
	}

	if *verify {
		second, err := engine.Run(ctx, txs)
		if err != nil {
			fmt.Printf("ERROR: verification run failed: %v\n", err)
			os.Exit(1)
		}
		if sameAlertLog(result, second) {
			fmt.Println("\nDeterminism: PASS (alert logs identical across runs)")
		} else {
			fmt.Println("\nDeterminism: FAIL (alert logs differ across runs)")
			os.Exit(1)
		}
	}
}

func loadScenarios(path string) (*domain.ScenarioConfig, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return domain.ParseScenarioConfig(data)
	}
	return domain.ParseScenarioConfig([]byte(benchmarkScenarios))
}

// sameAlertLog compares two runs field by field, ignoring run metadata.
func sameAlertLog(a, b *domain.RunResult) bool {
	if len(a.Alerts) != len(b.Alerts) {
		return false
	}
	for i := range a.Alerts {
		x, _ := json.Marshal(a.Alerts[i])
		y, _ := json.Marshal(b.Alerts[i])
		if string(x) != string(y) {
			return false
		}
	}
	return true
}

const benchmarkScenarios = `{
	"domestic_country": "UK",
	"high_transaction_volume": {
		"enabled": true,
		"transactions_per_day_threshold": 4,
		"crime_type": "Card Fraud"
	},
	"high_transaction_amount": {
		"enabled": true,
		"amount_threshold": 2500,
		"crime_type": "Money Laundering"
	},
	"unusual_transaction_patterns": {
		"enabled": true,
		"days_threshold": 7,
		"international_transaction_threshold": 3,
		"crime_type": "Money Laundering"
	},
	"frequent_international_transactions": {
		"enabled": true,
		"international_to_domestic_ratio": 0.5,
		"crime_type": "Money Laundering"
	},
	"rapid_consecutive_transactions": {
		"enabled": true,
		"time_interval_minutes": 60,
		"transaction_count_threshold": 3,
		"crime_type": "Card Fraud"
	},
	"location_mismatch": {
		"enabled": true,
		"distance_threshold_km": 2000,
		"time_interval_hours": 12,
		"crime_type": "Card Fraud"
	}
}`
