package generate

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestBatchShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.Transactions = 200
	cfg.Customers = 10

	txs, err := Batch(cfg)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	if len(txs) != 200 {
		t.Fatalf("expected 200 transactions, got %d", len(txs))
	}

	customers := make(map[string]bool)
	var domestic, located int
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			t.Fatalf("generated malformed transaction: %v", err)
		}
		if tx.CardID == "" {
			t.Error("expected every row to carry a card id")
		}
		customers[tx.CustomerID] = true
		if tx.MerchantCountry == cfg.DomesticCountry {
			domestic++
		}
		if tx.HasLocation() {
			located++
		}
	}

	if len(customers) > cfg.Customers {
		t.Errorf("expected at most %d customers, got %d", cfg.Customers, len(customers))
	}
	// With an 80% domestic share over 200 rows, well over half must be domestic.
	if domestic < 100 {
		t.Errorf("expected mostly domestic rows, got %d/200", domestic)
	}
	// With a 20% missing-geo share, most rows carry coordinates.
	if located < 100 {
		t.Errorf("expected mostly located rows, got %d/200", located)
	}
}

func TestBatchReproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.Transactions = 50
	cfg.Customers = 5

	a, err := Batch(cfg)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	b, err := Batch(cfg)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("row %d: ids differ: %s vs %s", i, a[i].ID, b[i].ID)
		}
		if !a[i].Amount.Equal(b[i].Amount) {
			t.Fatalf("row %d: amounts differ: %s vs %s", i, a[i].Amount, b[i].Amount)
		}
		if !a[i].Timestamp.Equal(b[i].Timestamp) {
			t.Fatalf("row %d: timestamps differ", i)
		}
	}
}

func TestBatchAmountsPositive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 99
	cfg.Transactions = 500

	txs, err := Batch(cfg)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	for _, tx := range txs {
		if tx.Amount.IsNegative() {
			t.Fatalf("negative amount generated: %s", tx.Amount)
		}
	}
}

func TestBatchValidation(t *testing.T) {
	if _, err := Batch(Config{Transactions: 0, Customers: 5}); err == nil {
		t.Error("expected error for zero transactions")
	}
	if _, err := Batch(Config{Transactions: 10, Customers: 0}); err == nil {
		t.Error("expected error for zero customers")
	}
}

func TestGeneratedBatchFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 3
	cfg.Transactions = 100
	cfg.Customers = 5

	txs, err := Batch(cfg)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	foreign := false
	for _, tx := range txs {
		if tx.Timestamp.IsZero() {
			t.Fatal("zero timestamp in generated batch")
		}
		if tx.MerchantCountry == "" {
			t.Fatal("empty merchant country in generated batch")
		}
		if tx.MerchantCountry != domain.DefaultDomesticCountry {
			foreign = true
		}
	}

	if !foreign {
		t.Error("expected at least one international row in 100 samples")
	}
}
