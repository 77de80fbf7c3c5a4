//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel batch
// monitoring engine.
//
// These tests verify the COMPLETE evaluation pipeline against a running
// server:
//
//	CSV/JSON batch → scenario engine → narratives → persistence → retrieval
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be started first, with the default scenario thresholds
// used below:
//
//	go run ./cmd/kestrel -serve -scenarios alert_scenarios.json
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

type testConfig struct {
	BaseURL string
}

func loadConfig() testConfig {
	baseURL := os.Getenv("KESTREL_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return testConfig{BaseURL: baseURL}
}

type alert struct {
	ID             string `json:"alertId"`
	CustomerID     string `json:"customerId"`
	TxID           string `json:"txId"`
	Type           string `json:"alertType"`
	Details        string `json:"details"`
	Narrative      string `json:"narrative"`
	NarrativeError string `json:"narrativeError"`
}

type runResult struct {
	RunID            string  `json:"runId"`
	TransactionCount int     `json:"transactionCount"`
	AlertCount       int     `json:"alertCount"`
	Alerts           []alert `json:"alerts"`
}

func evaluate(t *testing.T, cfg testConfig, body map[string]interface{}) (*runResult, int) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	resp, err := http.Post(cfg.BaseURL+"/evaluate", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode
	}

	var result runResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return &result, resp.StatusCode
}

func tx(id, customer, card, amount, country, ts string) map[string]interface{} {
	return map[string]interface{}{
		"id":              id,
		"customerId":      customer,
		"cardId":          card,
		"amount":          amount,
		"currency":        "GBP",
		"timestamp":       ts,
		"merchantCountry": country,
	}
}

func TestServerIsReachable(t *testing.T) {
	cfg := loadConfig()

	resp, err := http.Get(cfg.BaseURL + "/health")
	if err != nil {
		t.Fatalf("Kestrel not reachable at %s: %v", cfg.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", resp.StatusCode)
	}
}

func TestHighAmountBatch(t *testing.T) {
	cfg := loadConfig()

	result, status := evaluate(t, cfg, map[string]interface{}{
		"transactions": []interface{}{
			tx("it-1", "cust-int-1", "card-int-1", "15000.00", "UK", "2025-03-01T10:00:00Z"),
			tx("it-2", "cust-int-1", "card-int-1", "25.00", "UK", "2025-03-02T10:00:00Z"),
		},
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	if result.TransactionCount != 2 {
		t.Errorf("expected 2 transactions, got %d", result.TransactionCount)
	}

	var found bool
	for _, a := range result.Alerts {
		if a.TxID == "it-1" && a.Type == "High Transaction Amount" {
			found = true
			if a.Narrative == "" && a.NarrativeError == "" {
				t.Error("expected a narrative or a recorded render error")
			}
		}
	}
	if !found {
		t.Errorf("expected a high amount alert for it-1, got %+v", result.Alerts)
	}
}

func TestMalformedBatchRejected(t *testing.T) {
	cfg := loadConfig()

	_, status := evaluate(t, cfg, map[string]interface{}{
		"transactions": []interface{}{
			tx("", "cust-int-2", "card-int-2", "10.00", "UK", "2025-03-01T10:00:00Z"),
		},
	})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed batch, got %d", status)
	}
}

func TestRunRetrieval(t *testing.T) {
	cfg := loadConfig()

	result, status := evaluate(t, cfg, map[string]interface{}{
		"transactions": []interface{}{
			tx("rt-1", "cust-int-3", "card-int-3", "12000.00", "UK", "2025-03-01T10:00:00Z"),
		},
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	// Give asynchronous persistence a moment.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get(cfg.BaseURL + "/runs/" + result.RunID)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for stored run, got %d", resp.StatusCode)
	}

	var stored runResult
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stored.RunID != result.RunID {
		t.Errorf("expected run %s, got %s", result.RunID, stored.RunID)
	}
	if stored.AlertCount != result.AlertCount {
		t.Errorf("alert count mismatch: %d vs %d", stored.AlertCount, result.AlertCount)
	}
}

func TestScenarioListing(t *testing.T) {
	cfg := loadConfig()

	resp, err := http.Get(cfg.BaseURL + "/scenarios")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Scenarios []struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"scenarios"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if len(body.Scenarios) < 6 {
		t.Fatalf("expected at least 6 scenarios, got %d", len(body.Scenarios))
	}

	codes := make(map[string]bool)
	for _, s := range body.Scenarios {
		codes[s.Code] = true
	}
	for _, code := range []string{"A1", "A2", "A3", "A4", "A5", "A6"} {
		if !codes[code] {
			t.Errorf("missing scenario %s in %v", code, codes)
		}
	}
}

func TestDeterministicRuns(t *testing.T) {
	cfg := loadConfig()

	batch := map[string]interface{}{
		"transactions": []interface{}{
			tx("dt-1", "cust-int-4", "card-int-4", "11000.00", "FR", "2025-03-01T10:00:00Z"),
			tx("dt-2", "cust-int-4", "card-int-4", "50.00", "FR", "2025-03-01T10:05:00Z"),
			tx("dt-3", "cust-int-4", "card-int-4", "60.00", "FR", "2025-03-01T10:10:00Z"),
		},
	}

	first, status := evaluate(t, cfg, batch)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	second, status := evaluate(t, cfg, batch)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	if len(first.Alerts) != len(second.Alerts) {
		t.Fatalf("alert counts differ: %d vs %d", len(first.Alerts), len(second.Alerts))
	}
	for i := range first.Alerts {
		a, b := first.Alerts[i], second.Alerts[i]
		if a.ID != b.ID || a.Type != b.Type || a.TxID != b.TxID {
			t.Errorf("alert %d differs: %+v vs %+v", i, a, b)
		}
	}

	fmt.Printf("determinism verified over %d alerts\n", len(first.Alerts))
}
