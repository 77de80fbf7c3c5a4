// Package rules implements the six built-in detection scenarios, optional
// CEL custom scenarios, and the engine that drives them over a batch.
package rules

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/geo"
	"github.com/opensource-finance/kestrel/internal/narrative"
	"github.com/opensource-finance/kestrel/internal/store"
)

// candidate is a fired rule instance before narrative rendering.
type candidate struct {
	alert   *domain.Alert
	details narrative.Details
}

// customerContext carries per-customer aggregates shared by every focal
// transaction of that customer, computed once per shard.
type customerContext struct {
	domesticCount      int
	internationalCount int
}

func buildCustomerContext(txs []*domain.Transaction, domesticCountry string) customerContext {
	var cc customerContext
	for _, tx := range txs {
		if tx.MerchantCountry == domesticCountry {
			cc.domesticCount++
		} else {
			cc.internationalCount++
		}
	}
	return cc
}

// alertID joins the rule code and the focal transaction id. Transaction
// ids are unique within a batch and each rule fires at most once per
// focal transaction, so the pair is unique within a run and survives
// reordering and parallel evaluation.
func alertID(code, txID string) string {
	return code + "-" + txID
}

// evalHighVolume counts all of the focal card's transactions on the focal
// calendar date, inclusive of the focal transaction. Card-scoped; skipped
// for cardless transactions.
func evalHighVolume(focal *domain.Transaction, st *store.Store, cfg *domain.ScenarioConfig) *candidate {
	if !cfg.HighVolume.Enabled || focal.CardID == "" {
		return nil
	}

	date := focal.Date()
	count := st.CardCountOnDate(focal.CardID, date)
	if count <= cfg.HighVolume.TransactionsPerDay {
		return nil
	}

	return &candidate{
		alert: &domain.Alert{
			ID:         alertID(domain.CodeHighVolume, focal.ID),
			CustomerID: focal.CustomerID,
			CardID:     focal.CardID,
			TxID:       focal.ID,
			Type:       domain.AlertHighVolume,
			CrimeType:  cfg.HighVolume.CrimeType,
			Details:    fmt.Sprintf("%d transactions in a single day", count),
		},
		details: narrative.VolumeDetails{
			CustomerID:       focal.CustomerID,
			TransactionCount: count,
			Date:             date,
		},
	}
}

// evalHighAmount is a stateless single-transaction check: fires iff the
// amount strictly exceeds the threshold.
func evalHighAmount(focal *domain.Transaction, cfg *domain.ScenarioConfig) *candidate {
	if !cfg.HighAmount.Enabled {
		return nil
	}
	if !focal.Amount.GreaterThan(cfg.HighAmount.AmountThreshold) {
		return nil
	}

	return &candidate{
		alert: &domain.Alert{
			ID:         alertID(domain.CodeHighAmount, focal.ID),
			CustomerID: focal.CustomerID,
			CardID:     focal.CardID,
			TxID:       focal.ID,
			Type:       domain.AlertHighAmount,
			CrimeType:  cfg.HighAmount.CrimeType,
			Details:    fmt.Sprintf("Transaction amount of %s %s exceeds threshold", focal.Amount, focal.Currency),
		},
		details: narrative.AmountDetails{
			CustomerID: focal.CustomerID,
			Amount:     focal.Amount,
			Currency:   focal.Currency,
			Date:       focal.Date(),
		},
	}
}

// evalUnusualPatterns counts non-domestic transactions in the trailing
// window [focal - days, focal], customer-scoped.
func evalUnusualPatterns(focal *domain.Transaction, st *store.Store, cfg *domain.ScenarioConfig) *candidate {
	if !cfg.UnusualPatterns.Enabled {
		return nil
	}

	from := focal.Timestamp.Add(-time.Duration(cfg.UnusualPatterns.DaysThreshold) * 24 * time.Hour)
	window := st.CustomerBetween(focal.CustomerID, from, focal.Timestamp)

	international := 0
	for _, tx := range window {
		if tx.MerchantCountry != cfg.DomesticCountry {
			international++
		}
	}
	if international <= cfg.UnusualPatterns.InternationalTransaction {
		return nil
	}

	// No narrative template exists for this type; the renderer falls back.
	return &candidate{
		alert: &domain.Alert{
			ID:         alertID(domain.CodeUnusualPatterns, focal.ID),
			CustomerID: focal.CustomerID,
			TxID:       focal.ID,
			Type:       domain.AlertUnusualPatterns,
			CrimeType:  cfg.UnusualPatterns.CrimeType,
			Details: fmt.Sprintf("%d international transactions within %d days",
				international, cfg.UnusualPatterns.DaysThreshold),
		},
	}
}

// evalFrequentInternational compares the customer's whole-history
// international/domestic ratio against the threshold. Customers with no
// domestic baseline never fire, by explicit guard rather than an infinite
// ratio.
func evalFrequentInternational(focal *domain.Transaction, cc customerContext, cfg *domain.ScenarioConfig) *candidate {
	if !cfg.FrequentInternational.Enabled {
		return nil
	}
	if cc.domesticCount == 0 {
		return nil
	}

	ratio := float64(cc.internationalCount) / float64(cc.domesticCount)
	if ratio <= cfg.FrequentInternational.InternationalDomesticRatio {
		return nil
	}

	return &candidate{
		alert: &domain.Alert{
			ID:         alertID(domain.CodeFrequentInternational, focal.ID),
			CustomerID: focal.CustomerID,
			TxID:       focal.ID,
			Type:       domain.AlertFrequentInternational,
			CrimeType:  cfg.FrequentInternational.CrimeType,
			Details:    fmt.Sprintf("International to domestic transaction ratio is %.2f", ratio),
		},
		details: narrative.InternationalDetails{
			CustomerID:         focal.CustomerID,
			InternationalCount: cc.internationalCount,
			ReceiverCountry:    focal.MerchantCountry,
		},
	}
}

// evalRapidConsecutive counts the customer's transactions in the symmetric
// window [focal - interval, focal + interval], inclusive both ends and
// including the focal transaction itself.
func evalRapidConsecutive(focal *domain.Transaction, st *store.Store, cfg *domain.ScenarioConfig) *candidate {
	if !cfg.RapidConsecutive.Enabled {
		return nil
	}

	interval := time.Duration(cfg.RapidConsecutive.TimeIntervalMinutes) * time.Minute
	window := st.CustomerBetween(focal.CustomerID, focal.Timestamp.Add(-interval), focal.Timestamp.Add(interval))

	if len(window) <= cfg.RapidConsecutive.TransactionCount {
		return nil
	}

	return &candidate{
		alert: &domain.Alert{
			ID:         alertID(domain.CodeRapidConsecutive, focal.ID),
			CustomerID: focal.CustomerID,
			CardID:     focal.CardID,
			TxID:       focal.ID,
			Type:       domain.AlertRapidConsecutive,
			CrimeType:  cfg.RapidConsecutive.CrimeType,
			Details: fmt.Sprintf("%d transactions within %d minutes",
				len(window), cfg.RapidConsecutive.TimeIntervalMinutes),
		},
		details: narrative.RapidDetails{
			CustomerID:       focal.CustomerID,
			TransactionCount: len(window),
			TimeInterval:     cfg.RapidConsecutive.TimeIntervalMinutes,
			Date:             focal.Date(),
		},
	}
}

// evalLocationMismatch scans the retrospective window [focal - hours, focal]
// in store order and fires on the first comparison transaction farther away
// than the distance threshold, then stops: at most one alert per focal
// transaction. Rows without coordinates are excluded both as focal and as
// comparison rows, for this rule only.
func evalLocationMismatch(focal *domain.Transaction, st *store.Store, cfg *domain.ScenarioConfig) *candidate {
	if !cfg.LocationMismatch.Enabled || !focal.HasLocation() {
		return nil
	}

	from := focal.Timestamp.Add(-time.Duration(cfg.LocationMismatch.TimeIntervalHours) * time.Hour)
	window := st.CustomerBetween(focal.CustomerID, from, focal.Timestamp)

	for _, other := range window {
		if !other.HasLocation() {
			continue
		}
		distance := geo.Haversine(*focal.Latitude, *focal.Longitude, *other.Latitude, *other.Longitude)
		if distance <= cfg.LocationMismatch.DistanceThresholdKm {
			continue
		}

		loc1 := fmt.Sprintf("%v, %v", *focal.Latitude, *focal.Longitude)
		loc2 := fmt.Sprintf("%v, %v", *other.Latitude, *other.Longitude)
		return &candidate{
			alert: &domain.Alert{
				ID:         alertID(domain.CodeLocationMismatch, focal.ID),
				CustomerID: focal.CustomerID,
				CardID:     focal.CardID,
				TxID:       focal.ID,
				Type:       domain.AlertLocationMismatch,
				CrimeType:  cfg.LocationMismatch.CrimeType,
				Details: fmt.Sprintf("Transaction locations (%s) and (%s) are more than %v km apart within %d hours",
					loc1, loc2, cfg.LocationMismatch.DistanceThresholdKm, cfg.LocationMismatch.TimeIntervalHours),
			},
			details: narrative.LocationDetails{
				CustomerID:   focal.CustomerID,
				Location1:    loc1,
				Location2:    loc2,
				TimeInterval: cfg.LocationMismatch.TimeIntervalHours,
			},
		}
	}

	return nil
}
