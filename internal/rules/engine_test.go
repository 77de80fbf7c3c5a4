package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestRunHighVolumeExample(t *testing.T) {
	// threshold 3, four transactions on one card and date: every focal
	// transaction produces a volume alert carrying the count 4.
	cfg := baseConfig()
	cfg.HighAmount.Enabled = false
	cfg.UnusualPatterns.Enabled = false
	cfg.FrequentInternational.Enabled = false
	cfg.RapidConsecutive.Enabled = false
	cfg.LocationMismatch.Enabled = false

	engine, err := NewEngine(cfg, 4)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	day := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	var txs []*domain.Transaction
	for i := 0; i < 4; i++ {
		txs = append(txs, makeTx(fmt.Sprintf("t%d", i), "CU1", "C1", day.Add(time.Duration(i*2)*time.Hour), "100", "UK"))
	}

	result, err := engine.Run(context.Background(), txs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.AlertCount != 4 {
		t.Fatalf("AlertCount = %d, want 4", result.AlertCount)
	}
	for _, a := range result.Alerts {
		if a.Type != domain.AlertHighVolume {
			t.Errorf("alert type = %s", a.Type)
		}
		if !strings.Contains(a.Details, "4 transactions") {
			t.Errorf("details should carry count 4: %q", a.Details)
		}
		if !strings.Contains(a.Narrative, "conducted 4 transactions on 2024-01-05") {
			t.Errorf("narrative malformed: %q", a.Narrative)
		}
	}
}

func TestRunDeterminism(t *testing.T) {
	cfg := baseConfig()
	engine, err := NewEngine(cfg, 3)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var txs []*domain.Transaction
	for c := 0; c < 10; c++ {
		customer := fmt.Sprintf("CU%d", c)
		card := fmt.Sprintf("CARD%d", c)
		for i := 0; i < 8; i++ {
			tx := makeTx(fmt.Sprintf("%s-t%d", customer, i), customer, card,
				base.Add(time.Duration(i*5)*time.Minute), "12000", "FR")
			if i%2 == 0 {
				tx.Latitude, tx.Longitude = ptr(51.5+float64(i)), ptr(-0.12+float64(i)*20)
			}
			txs = append(txs, tx)
		}
	}

	first, err := engine.Run(context.Background(), txs)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := engine.Run(context.Background(), txs)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.Alerts) == 0 {
		t.Fatal("expected the batch to produce alerts")
	}

	a, _ := json.Marshal(first.Alerts)
	b, _ := json.Marshal(second.Alerts)
	if string(a) != string(b) {
		t.Error("re-running an unchanged batch must yield a byte-identical alert log")
	}
}

func TestRunAlertIDsUnique(t *testing.T) {
	// High-amount alerts on every transaction of a large batch, including
	// a pair of ids that collide under a 32-bit FNV-1a digest: every alert
	// id in the log must still be distinct.
	cfg := baseConfig()
	cfg.HighVolume.Enabled = false
	cfg.UnusualPatterns.Enabled = false
	cfg.FrequentInternational.Enabled = false
	cfg.RapidConsecutive.Enabled = false
	cfg.LocationMismatch.Enabled = false

	engine, err := NewEngine(cfg, 4)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	ids := []string{"tx-560719", "tx-1005136"}
	for i := 0; i < 200; i++ {
		ids = append(ids, fmt.Sprintf("tx-%d", i))
	}

	var txs []*domain.Transaction
	for i, id := range ids {
		txs = append(txs, makeTx(id, fmt.Sprintf("CU%d", i%8), "K1", base.Add(time.Duration(i)*time.Hour), "50000", "UK"))
	}

	result, err := engine.Run(context.Background(), txs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.AlertCount != len(txs) {
		t.Fatalf("AlertCount = %d, want %d", result.AlertCount, len(txs))
	}

	seen := make(map[string]string, len(result.Alerts))
	for _, a := range result.Alerts {
		if prev, dup := seen[a.ID]; dup {
			t.Fatalf("duplicate alert id %s for transactions %s and %s", a.ID, prev, a.TxID)
		}
		seen[a.ID] = a.TxID
	}
}

func TestRunRejectsMalformedTransaction(t *testing.T) {
	engine, err := NewEngine(baseConfig(), 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	ts := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	good := makeTx("t1", "C1", "K1", ts, "100", "UK")
	bad := makeTx("t2", "", "K1", ts, "100", "UK") // no customer id

	_, err = engine.Run(context.Background(), []*domain.Transaction{good, bad})
	if err == nil {
		t.Fatal("expected run to fail on malformed transaction")
	}
	if !strings.Contains(err.Error(), "t2") {
		t.Errorf("error should name the offending transaction: %v", err)
	}
}

func TestRunLocationExample(t *testing.T) {
	// Two transactions 2 hours apart, London and New York, 1000 km
	// threshold, 6 hour window: the later transaction fires.
	cfg := baseConfig()
	cfg.HighVolume.Enabled = false
	cfg.HighAmount.Enabled = false
	cfg.UnusualPatterns.Enabled = false
	cfg.FrequentInternational.Enabled = false
	cfg.RapidConsecutive.Enabled = false

	engine, err := NewEngine(cfg, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	first := makeTx("t1", "C1", "K1", base, "100", "UK")
	first.Latitude, first.Longitude = ptr(51.5), ptr(-0.12)
	second := makeTx("t2", "C1", "K1", base.Add(2*time.Hour), "100", "UK")
	second.Latitude, second.Longitude = ptr(40.7), ptr(-74.0)

	result, err := engine.Run(context.Background(), []*domain.Transaction{first, second})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.AlertCount != 1 {
		t.Fatalf("AlertCount = %d, want 1", result.AlertCount)
	}
	a := result.Alerts[0]
	if a.TxID != "t2" {
		t.Errorf("alert should be on the later transaction, got %s", a.TxID)
	}
	if a.Type != domain.AlertLocationMismatch {
		t.Errorf("alert type = %s", a.Type)
	}
}

func TestRunPatternAlertGetsFallbackNarrative(t *testing.T) {
	cfg := baseConfig()
	cfg.HighVolume.Enabled = false
	cfg.HighAmount.Enabled = false
	cfg.FrequentInternational.Enabled = false
	cfg.RapidConsecutive.Enabled = false
	cfg.LocationMismatch.Enabled = false
	cfg.UnusualPatterns.InternationalTransaction = 2

	engine, err := NewEngine(cfg, 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	var txs []*domain.Transaction
	for i := 0; i < 3; i++ {
		txs = append(txs, makeTx(fmt.Sprintf("t%d", i), "C1", "K1", base.Add(time.Duration(i)*time.Hour), "100", "FR"))
	}

	result, err := engine.Run(context.Background(), txs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.AlertCount == 0 {
		t.Fatal("expected pattern alerts")
	}
	for _, a := range result.Alerts {
		if a.Narrative != "No narrative available for this alert type." {
			t.Errorf("pattern alerts render the fallback narrative, got %q", a.Narrative)
		}
		if a.NarrativeError != "" {
			t.Errorf("fallback is not a render failure: %q", a.NarrativeError)
		}
	}
}

func TestRunEmptyBatch(t *testing.T) {
	engine, err := NewEngine(baseConfig(), 2)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	result, err := engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.AlertCount != 0 || result.TransactionCount != 0 {
		t.Errorf("empty batch should produce an empty log, got %+v", result)
	}
}
