package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedTransaction marks a transaction missing a required scoping
// field. The engine rejects the whole batch before evaluation rather than
// letting such rows skew window counts.
var ErrMalformedTransaction = errors.New("malformed transaction")

// DateLayout is the calendar-date form used in daily tallies and narratives.
const DateLayout = "2006-01-02"

// Transaction is a single row of the input log to be evaluated.
type Transaction struct {
	// Core identifiers
	ID         string `json:"id"`
	CustomerID string `json:"customerId"`
	CardID     string `json:"cardId,omitempty"`

	// Financial details
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`

	// Channel and counterparty
	PaymentChannel  string `json:"paymentChannel,omitempty"`
	MerchantCountry string `json:"merchantCountry"`

	// Geolocation, often absent for card-not-present channels.
	// Rows without coordinates are still evaluated by every scenario
	// except the location mismatch check.
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// HasLocation reports whether both coordinates are present.
func (t *Transaction) HasLocation() bool {
	return t.Latitude != nil && t.Longitude != nil
}

// Date returns the transaction's calendar date.
func (t *Transaction) Date() string {
	return t.Timestamp.Format(DateLayout)
}

// Validate checks the fields every scenario relies on for scoping.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrMalformedTransaction)
	}
	if t.CustomerID == "" {
		return fmt.Errorf("%w: transaction %s has no customer id", ErrMalformedTransaction, t.ID)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: transaction %s has no timestamp", ErrMalformedTransaction, t.ID)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("%w: transaction %s has negative amount %s", ErrMalformedTransaction, t.ID, t.Amount)
	}
	return nil
}
