package csvio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const sampleCSV = `transaction_id,customer_id,card_id,transaction_date_time,transaction_amount,currency,payment_channel,merchant_country,latitude,longitude
t1,c1,card-1,2025-03-01 10:00:00,125.50,GBP,online,UK,51.5074,-0.1278
t2,c1,,2025-03-01T11:30:00Z,9999.99,EUR,POS,FR,,
t3,c2,card-2,2025-03-02 09:15:30,42.00,GBP,mobile_app,UK,40.7128,-74.0060
`

func TestReadTransactions(t *testing.T) {
	txs, err := ReadTransactions(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadTransactions failed: %v", err)
	}

	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	// Row order preserved
	if txs[0].ID != "t1" || txs[1].ID != "t2" || txs[2].ID != "t3" {
		t.Errorf("row order not preserved: %s, %s, %s", txs[0].ID, txs[1].ID, txs[2].ID)
	}

	first := txs[0]
	if first.CustomerID != "c1" || first.CardID != "card-1" {
		t.Errorf("unexpected identifiers: %+v", first)
	}
	if !first.Amount.Equal(decimal.RequireFromString("125.50")) {
		t.Errorf("expected amount 125.50, got %s", first.Amount)
	}
	want := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if !first.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %s, got %s", want, first.Timestamp)
	}
	if !first.HasLocation() {
		t.Error("expected coordinates on first row")
	}
	if *first.Latitude != 51.5074 || *first.Longitude != -0.1278 {
		t.Errorf("unexpected coordinates: %v, %v", *first.Latitude, *first.Longitude)
	}

	second := txs[1]
	if second.CardID != "" {
		t.Errorf("expected empty card id, got %q", second.CardID)
	}
	if second.HasLocation() {
		t.Error("expected missing coordinates on second row")
	}
	if second.MerchantCountry != "FR" {
		t.Errorf("expected FR, got %s", second.MerchantCountry)
	}
}

func TestReadTransactionsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "empty input",
			input: "",
		},
		{
			name:  "missing required column",
			input: "transaction_id,customer_id\nt1,c1\n",
		},
		{
			name: "bad amount",
			input: "transaction_id,customer_id,transaction_date_time,transaction_amount\n" +
				"t1,c1,2025-03-01 10:00:00,not-a-number\n",
		},
		{
			name: "bad timestamp",
			input: "transaction_id,customer_id,transaction_date_time,transaction_amount\n" +
				"t1,c1,yesterday,10.00\n",
		},
		{
			name: "bad coordinate",
			input: "transaction_id,customer_id,transaction_date_time,transaction_amount,latitude,longitude\n" +
				"t1,c1,2025-03-01 10:00:00,10.00,north,west\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadTransactions(strings.NewReader(tc.input))
			if !errors.Is(err, domain.ErrMalformedTransaction) {
				t.Errorf("expected ErrMalformedTransaction, got %v", err)
			}
		})
	}
}

func TestReadTransactionsIgnoresExtraColumns(t *testing.T) {
	input := "transaction_id,customer_id,transaction_date_time,transaction_amount,fraud_risk_score\n" +
		"t1,c1,2025-03-01 10:00:00,10.00,87\n"

	txs, err := ReadTransactions(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadTransactions failed: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "t1" {
		t.Errorf("unexpected result: %+v", txs)
	}
}

func TestWriteAlerts(t *testing.T) {
	alerts := []*domain.Alert{
		{
			ID:         "A1-00000001",
			CustomerID: "c1",
			CardID:     "card-1",
			TxID:       "t1",
			Type:       domain.AlertHighVolume,
			CrimeType:  "Card Fraud",
			Details:    "4 transactions in a single day",
			Narrative:  "Customer c1 made 4 transactions",
		},
		{
			ID:             "A3-00000002",
			CustomerID:     "c2",
			TxID:           "t2",
			Type:           domain.AlertUnusualPatterns,
			Details:        "5 international transactions in the last 7 days",
			NarrativeError: "render failed",
		},
	}

	var buf bytes.Buffer
	if err := WriteAlerts(&buf, alerts); err != nil {
		t.Fatalf("WriteAlerts failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "alert_id,customer_id") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "A1-00000001") || !strings.Contains(lines[1], "4 transactions in a single day") {
		t.Errorf("unexpected first row: %s", lines[1])
	}
	if !strings.Contains(lines[2], "render failed") {
		t.Errorf("expected narrative error in second row: %s", lines[2])
	}
}

func TestWriteRunJSON(t *testing.T) {
	result := &domain.RunResult{
		RunID:            "run-1",
		TransactionCount: 10,
		AlertCount:       1,
		Alerts: []*domain.Alert{
			{ID: "A2-cafe0001", CustomerID: "c1", TxID: "t1", Type: domain.AlertHighAmount},
		},
	}

	var buf bytes.Buffer
	if err := WriteRunJSON(&buf, result); err != nil {
		t.Fatalf("WriteRunJSON failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"runId": "run-1"`) || !strings.Contains(out, `"A2-cafe0001"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}
}
