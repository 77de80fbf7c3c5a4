// Package csvio reads transaction batches and writes alert logs in the
// flat CSV layout produced by upstream card processors.
package csvio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Input column names. Extra columns are ignored.
const (
	colTransactionID   = "transaction_id"
	colCustomerID      = "customer_id"
	colCardID          = "card_id"
	colDateTime        = "transaction_date_time"
	colAmount          = "transaction_amount"
	colCurrency        = "currency"
	colPaymentChannel  = "payment_channel"
	colMerchantCountry = "merchant_country"
	colLatitude        = "latitude"
	colLongitude       = "longitude"
)

// Accepted timestamp layouts, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ReadTransactions decodes a transaction batch from CSV. Row order is
// preserved; it fixes the order of the resulting alert log.
func ReadTransactions(r io.Reader) ([]*domain.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty input", domain.ErrMalformedTransaction)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{colTransactionID, colCustomerID, colDateTime, colAmount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrMalformedTransaction, required)
		}
	}

	field := func(record []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return record[idx]
	}

	var txs []*domain.Transaction
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", row, err)
		}
		row++

		tx := &domain.Transaction{
			ID:              field(record, colTransactionID),
			CustomerID:      field(record, colCustomerID),
			CardID:          field(record, colCardID),
			Currency:        field(record, colCurrency),
			PaymentChannel:  field(record, colPaymentChannel),
			MerchantCountry: field(record, colMerchantCountry),
		}

		ts, err := parseTime(field(record, colDateTime))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrMalformedTransaction, row, err)
		}
		tx.Timestamp = ts

		amount, err := decimal.NewFromString(field(record, colAmount))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: bad amount %q", domain.ErrMalformedTransaction, row, field(record, colAmount))
		}
		tx.Amount = amount

		tx.Latitude, err = parseCoordinate(field(record, colLatitude))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrMalformedTransaction, row, err)
		}
		tx.Longitude, err = parseCoordinate(field(record, colLongitude))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", domain.ErrMalformedTransaction, row, err)
		}

		txs = append(txs, tx)
	}

	return txs, nil
}

// ReadTransactionsFile reads a transaction batch from a CSV file.
func ReadTransactionsFile(path string) ([]*domain.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return ReadTransactions(f)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("missing transaction_date_time")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseCoordinate(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("bad coordinate %q", s)
	}
	return &v, nil
}

// WriteAlerts encodes the alert log as CSV in evaluation order.
func WriteAlerts(w io.Writer, alerts []*domain.Alert) error {
	writer := csv.NewWriter(w)

	header := []string{
		"alert_id", "customer_id", "card_id", "transaction_id",
		"alert_type", "crime_type", "details", "narrative", "narrative_error",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, a := range alerts {
		record := []string{
			a.ID, a.CustomerID, a.CardID, a.TxID,
			string(a.Type), a.CrimeType, a.Details, a.Narrative, a.NarrativeError,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write alert %s: %w", a.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteAlertsFile writes the alert log to a CSV file.
func WriteAlertsFile(path string, alerts []*domain.Alert) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	return WriteAlerts(f, alerts)
}

// WriteRunJSON encodes the full run result as indented JSON.
func WriteRunJSON(w io.Writer, result *domain.RunResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
