package domain

import (
	"time"
)

// AlertType identifies the scenario that produced an alert.
type AlertType string

// The six built-in detection scenarios. Custom CEL scenarios use their
// configured name as the alert type.
const (
	AlertHighVolume            AlertType = "High Transaction Volume"
	AlertHighAmount            AlertType = "High Transaction Amount"
	AlertUnusualPatterns       AlertType = "Unusual Transaction Patterns"
	AlertFrequentInternational AlertType = "Frequent International Transactions"
	AlertRapidConsecutive      AlertType = "Rapid Consecutive Transactions"
	AlertLocationMismatch      AlertType = "Location Mismatch"
)

// Short per-rule codes used as the alert identifier prefix.
const (
	CodeHighVolume            = "A1"
	CodeHighAmount            = "A2"
	CodeUnusualPatterns       = "A3"
	CodeFrequentInternational = "A4"
	CodeRapidConsecutive      = "A5"
	CodeLocationMismatch      = "A6"
	CodeCustom                = "AX"
)

// Alert is a single fired rule instance for one focal transaction.
// Alerts are created once and never mutated; the full alert log is the
// terminal output of a run.
type Alert struct {
	ID         string    `json:"alertId"`
	CustomerID string    `json:"customerId"`
	CardID     string    `json:"cardId,omitempty"`
	TxID       string    `json:"txId"`
	Type       AlertType `json:"alertType"`
	CrimeType  string    `json:"crimeType"`
	Details    string    `json:"details"`
	Narrative  string    `json:"narrative,omitempty"`

	// NarrativeError carries a render failure scoped to this alert.
	// The rest of the batch is unaffected.
	NarrativeError string `json:"narrativeError,omitempty"`
}

// RunResult is the terminal output of one engine pass over a batch.
type RunResult struct {
	RunID            string        `json:"runId"`
	StartedAt        time.Time     `json:"startedAt"`
	Duration         time.Duration `json:"-"`
	DurationMs       int64         `json:"durationMs"`
	TransactionCount int           `json:"transactionCount"`
	AlertCount       int           `json:"alertCount"`
	RenderFailures   int           `json:"renderFailures"`
	Alerts           []*Alert      `json:"alerts"`
}
