package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrConfiguration marks a scenario configuration that is missing a required
// key or threshold. Configuration errors are fatal at load, before any
// evaluation starts.
var ErrConfiguration = errors.New("scenario configuration error")

// DefaultDomesticCountry is the home jurisdiction marker used when the
// configuration does not set one. Transactions whose merchant country equals
// the marker are domestic; everything else is international.
const DefaultDomesticCountry = "UK"

// ScenarioConfig enumerates the per-rule detection configuration.
// Loaded once at startup and read-only for the rest of the run, so it is
// safely shared across evaluation workers without synchronization.
type ScenarioConfig struct {
	DomesticCountry string `json:"domestic_country"`

	HighVolume            HighVolumeConfig            `json:"high_transaction_volume"`
	HighAmount            HighAmountConfig            `json:"high_transaction_amount"`
	UnusualPatterns       UnusualPatternsConfig       `json:"unusual_transaction_patterns"`
	FrequentInternational FrequentInternationalConfig `json:"frequent_international_transactions"`
	RapidConsecutive      RapidConsecutiveConfig      `json:"rapid_consecutive_transactions"`
	LocationMismatch      LocationMismatchConfig      `json:"location_mismatch"`

	// Custom CEL scenarios evaluated per focal transaction in addition
	// to the six built-ins.
	Custom []CustomScenarioConfig `json:"custom_scenarios,omitempty"`
}

// HighVolumeConfig drives the card-scoped daily volume check.
type HighVolumeConfig struct {
	Enabled            bool   `json:"enabled"`
	TransactionsPerDay int    `json:"transactions_per_day_threshold"`
	CrimeType          string `json:"crime_type"`
}

// HighAmountConfig drives the single-transaction amount check.
type HighAmountConfig struct {
	Enabled         bool            `json:"enabled"`
	AmountThreshold decimal.Decimal `json:"amount_threshold"`
	CrimeType       string          `json:"crime_type"`
}

// UnusualPatternsConfig drives the windowed international-count check.
type UnusualPatternsConfig struct {
	Enabled                  bool   `json:"enabled"`
	DaysThreshold            int    `json:"days_threshold"`
	InternationalTransaction int    `json:"international_transaction_threshold"`
	CrimeType                string `json:"crime_type"`
}

// FrequentInternationalConfig drives the whole-history ratio check.
type FrequentInternationalConfig struct {
	Enabled                    bool    `json:"enabled"`
	InternationalDomesticRatio float64 `json:"international_to_domestic_ratio"`
	CrimeType                  string  `json:"crime_type"`
}

// RapidConsecutiveConfig drives the symmetric-window velocity check.
type RapidConsecutiveConfig struct {
	Enabled             bool   `json:"enabled"`
	TimeIntervalMinutes int    `json:"time_interval_minutes"`
	TransactionCount    int    `json:"transaction_count_threshold"`
	CrimeType           string `json:"crime_type"`
}

// LocationMismatchConfig drives the geodistance check.
type LocationMismatchConfig struct {
	Enabled             bool    `json:"enabled"`
	DistanceThresholdKm float64 `json:"distance_threshold_km"`
	TimeIntervalHours   int     `json:"time_interval_hours"`
	CrimeType           string  `json:"crime_type"`
}

// CustomScenarioConfig is a user-defined CEL expression evaluated against
// each focal transaction. A true result fires an alert.
type CustomScenarioConfig struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	CrimeType  string `json:"crime_type"`
	Enabled    bool   `json:"enabled"`
}

// scenarioConfigWire mirrors ScenarioConfig with pointer thresholds so that
// absent keys can be told apart from zero values during validation.
type scenarioConfigWire struct {
	DomesticCountry *string `json:"domestic_country"`

	HighVolume *struct {
		Enabled            bool   `json:"enabled"`
		TransactionsPerDay *int   `json:"transactions_per_day_threshold"`
		CrimeType          string `json:"crime_type"`
	} `json:"high_transaction_volume"`
	HighAmount *struct {
		Enabled         bool             `json:"enabled"`
		AmountThreshold *decimal.Decimal `json:"amount_threshold"`
		CrimeType       string           `json:"crime_type"`
	} `json:"high_transaction_amount"`
	UnusualPatterns *struct {
		Enabled                  bool   `json:"enabled"`
		DaysThreshold            *int   `json:"days_threshold"`
		InternationalTransaction *int   `json:"international_transaction_threshold"`
		CrimeType                string `json:"crime_type"`
	} `json:"unusual_transaction_patterns"`
	FrequentInternational *struct {
		Enabled                    bool     `json:"enabled"`
		InternationalDomesticRatio *float64 `json:"international_to_domestic_ratio"`
		CrimeType                  string   `json:"crime_type"`
	} `json:"frequent_international_transactions"`
	RapidConsecutive *struct {
		Enabled             bool   `json:"enabled"`
		TimeIntervalMinutes *int   `json:"time_interval_minutes"`
		TransactionCount    *int   `json:"transaction_count_threshold"`
		CrimeType           string `json:"crime_type"`
	} `json:"rapid_consecutive_transactions"`
	LocationMismatch *struct {
		Enabled             bool     `json:"enabled"`
		DistanceThresholdKm *float64 `json:"distance_threshold_km"`
		TimeIntervalHours   *int     `json:"time_interval_hours"`
		CrimeType           string   `json:"crime_type"`
	} `json:"location_mismatch"`

	Custom []CustomScenarioConfig `json:"custom_scenarios"`
}

// ParseScenarioConfig decodes and validates a scenario configuration
// document. Every scenario key must be present; an enabled scenario missing
// a threshold is a fatal configuration error.
func ParseScenarioConfig(data []byte) (*ScenarioConfig, error) {
	var wire scenarioConfigWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg := &ScenarioConfig{
		DomesticCountry: DefaultDomesticCountry,
		Custom:          wire.Custom,
	}
	if wire.DomesticCountry != nil {
		cfg.DomesticCountry = *wire.DomesticCountry
	}

	if wire.HighVolume == nil {
		return nil, missingKey("high_transaction_volume")
	}
	cfg.HighVolume.Enabled = wire.HighVolume.Enabled
	cfg.HighVolume.CrimeType = wire.HighVolume.CrimeType
	if wire.HighVolume.Enabled {
		if wire.HighVolume.TransactionsPerDay == nil {
			return nil, missingThreshold("high_transaction_volume", "transactions_per_day_threshold")
		}
		cfg.HighVolume.TransactionsPerDay = *wire.HighVolume.TransactionsPerDay
	}

	if wire.HighAmount == nil {
		return nil, missingKey("high_transaction_amount")
	}
	cfg.HighAmount.Enabled = wire.HighAmount.Enabled
	cfg.HighAmount.CrimeType = wire.HighAmount.CrimeType
	if wire.HighAmount.Enabled {
		if wire.HighAmount.AmountThreshold == nil {
			return nil, missingThreshold("high_transaction_amount", "amount_threshold")
		}
		cfg.HighAmount.AmountThreshold = *wire.HighAmount.AmountThreshold
	}

	if wire.UnusualPatterns == nil {
		return nil, missingKey("unusual_transaction_patterns")
	}
	cfg.UnusualPatterns.Enabled = wire.UnusualPatterns.Enabled
	cfg.UnusualPatterns.CrimeType = wire.UnusualPatterns.CrimeType
	if wire.UnusualPatterns.Enabled {
		if wire.UnusualPatterns.DaysThreshold == nil {
			return nil, missingThreshold("unusual_transaction_patterns", "days_threshold")
		}
		if wire.UnusualPatterns.InternationalTransaction == nil {
			return nil, missingThreshold("unusual_transaction_patterns", "international_transaction_threshold")
		}
		cfg.UnusualPatterns.DaysThreshold = *wire.UnusualPatterns.DaysThreshold
		cfg.UnusualPatterns.InternationalTransaction = *wire.UnusualPatterns.InternationalTransaction
	}

	if wire.FrequentInternational == nil {
		return nil, missingKey("frequent_international_transactions")
	}
	cfg.FrequentInternational.Enabled = wire.FrequentInternational.Enabled
	cfg.FrequentInternational.CrimeType = wire.FrequentInternational.CrimeType
	if wire.FrequentInternational.Enabled {
		if wire.FrequentInternational.InternationalDomesticRatio == nil {
			return nil, missingThreshold("frequent_international_transactions", "international_to_domestic_ratio")
		}
		cfg.FrequentInternational.InternationalDomesticRatio = *wire.FrequentInternational.InternationalDomesticRatio
	}

	if wire.RapidConsecutive == nil {
		return nil, missingKey("rapid_consecutive_transactions")
	}
	cfg.RapidConsecutive.Enabled = wire.RapidConsecutive.Enabled
	cfg.RapidConsecutive.CrimeType = wire.RapidConsecutive.CrimeType
	if wire.RapidConsecutive.Enabled {
		if wire.RapidConsecutive.TimeIntervalMinutes == nil {
			return nil, missingThreshold("rapid_consecutive_transactions", "time_interval_minutes")
		}
		if wire.RapidConsecutive.TransactionCount == nil {
			return nil, missingThreshold("rapid_consecutive_transactions", "transaction_count_threshold")
		}
		cfg.RapidConsecutive.TimeIntervalMinutes = *wire.RapidConsecutive.TimeIntervalMinutes
		cfg.RapidConsecutive.TransactionCount = *wire.RapidConsecutive.TransactionCount
	}

	if wire.LocationMismatch == nil {
		return nil, missingKey("location_mismatch")
	}
	cfg.LocationMismatch.Enabled = wire.LocationMismatch.Enabled
	cfg.LocationMismatch.CrimeType = wire.LocationMismatch.CrimeType
	if wire.LocationMismatch.Enabled {
		if wire.LocationMismatch.DistanceThresholdKm == nil {
			return nil, missingThreshold("location_mismatch", "distance_threshold_km")
		}
		if wire.LocationMismatch.TimeIntervalHours == nil {
			return nil, missingThreshold("location_mismatch", "time_interval_hours")
		}
		cfg.LocationMismatch.DistanceThresholdKm = *wire.LocationMismatch.DistanceThresholdKm
		cfg.LocationMismatch.TimeIntervalHours = *wire.LocationMismatch.TimeIntervalHours
	}

	for _, c := range cfg.Custom {
		if c.Enabled && c.Expression == "" {
			return nil, fmt.Errorf("%w: custom scenario %q has no expression", ErrConfiguration, c.Name)
		}
	}

	return cfg, nil
}

func missingKey(key string) error {
	return fmt.Errorf("%w: missing scenario key %q", ErrConfiguration, key)
}

func missingThreshold(key, field string) error {
	return fmt.Errorf("%w: scenario %q is enabled but missing %q", ErrConfiguration, key, field)
}
