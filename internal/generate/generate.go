// Package generate produces synthetic transaction batches for testing and
// benchmarking the detection engine.
package generate

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Config controls the shape of the generated batch.
type Config struct {
	// Seed makes generation reproducible. Zero seeds from the clock.
	Seed int64

	Transactions     int
	Customers        int
	CardsPerCustomer int

	// PeriodDays spreads timestamps over the trailing window ending now.
	PeriodDays int

	// Gamma distribution parameters for transaction amounts.
	Alpha float64
	Beta  float64

	// DomesticCountry and DomesticShare control how many rows carry the
	// home jurisdiction marker versus a foreign one.
	DomesticCountry string
	DomesticShare   float64

	// MissingGeoShare is the fraction of rows without coordinates,
	// mimicking card-not-present channels.
	MissingGeoShare float64
}

// DefaultConfig returns generation parameters that produce a plausible mix
// of alert-firing and quiet activity.
func DefaultConfig() Config {
	return Config{
		Transactions:     1000,
		Customers:        50,
		CardsPerCustomer: 3,
		PeriodDays:       30,
		Alpha:            2.0,
		Beta:             200.0,
		DomesticCountry:  domain.DefaultDomesticCountry,
		DomesticShare:    0.8,
		MissingGeoShare:  0.2,
	}
}

var foreignCountries = []string{"FR", "DE", "ES", "US", "JP", "NG", "AE", "HK"}

var paymentChannels = []string{"POS", "online", "mobile_app"}

var currencies = []string{"GBP", "EUR", "USD"}

// Batch generates a synthetic transaction batch.
func Batch(cfg Config) ([]*domain.Transaction, error) {
	if cfg.Transactions <= 0 {
		return nil, fmt.Errorf("transactions must be positive")
	}
	if cfg.Customers <= 0 {
		return nil, fmt.Errorf("customers must be positive")
	}
	if cfg.CardsPerCustomer <= 0 {
		cfg.CardsPerCustomer = 1
	}
	if cfg.PeriodDays <= 0 {
		cfg.PeriodDays = 30
	}
	if cfg.Alpha <= 0 || cfg.Beta <= 0 {
		cfg.Alpha, cfg.Beta = 2.0, 200.0
	}
	if cfg.DomesticCountry == "" {
		cfg.DomesticCountry = domain.DefaultDomesticCountry
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	// Identifiers come from a UUID space keyed by the seeded rng so the
	// whole batch is reproducible.
	newID := func() string {
		var b [16]byte
		rng.Read(b[:])
		id, err := uuid.FromBytes(b[:])
		if err != nil {
			return uuid.New().String()
		}
		return id.String()
	}

	customers := make([]string, cfg.Customers)
	cards := make([][]string, cfg.Customers)
	for i := range customers {
		customers[i] = newID()
		n := 1 + rng.Intn(cfg.CardsPerCustomer)
		cards[i] = make([]string, n)
		for j := range cards[i] {
			cards[i][j] = newID()
		}
	}

	end := time.Now().UTC().Truncate(time.Second)
	start := end.AddDate(0, 0, -cfg.PeriodDays)
	span := end.Sub(start)

	txs := make([]*domain.Transaction, 0, cfg.Transactions)
	for i := 0; i < cfg.Transactions; i++ {
		ci := rng.Intn(cfg.Customers)

		tx := &domain.Transaction{
			ID:             newID(),
			CustomerID:     customers[ci],
			CardID:         cards[ci][rng.Intn(len(cards[ci]))],
			Amount:         gammaAmount(rng, cfg.Alpha, cfg.Beta),
			Currency:       currencies[rng.Intn(len(currencies))],
			Timestamp:      start.Add(time.Duration(rng.Int63n(int64(span)))),
			PaymentChannel: paymentChannels[rng.Intn(len(paymentChannels))],
		}

		if rng.Float64() < cfg.DomesticShare {
			tx.MerchantCountry = cfg.DomesticCountry
		} else {
			tx.MerchantCountry = foreignCountries[rng.Intn(len(foreignCountries))]
		}

		if rng.Float64() >= cfg.MissingGeoShare {
			lat := rng.Float64()*180 - 90
			lon := rng.Float64()*360 - 180
			tx.Latitude = &lat
			tx.Longitude = &lon
		}

		txs = append(txs, tx)
	}

	return txs, nil
}

// gammaAmount samples a gamma-distributed amount rounded to two decimal
// places, using the Marsaglia-Tsang method.
func gammaAmount(rng *rand.Rand, alpha, beta float64) decimal.Decimal {
	a := alpha
	boost := 1.0
	if a < 1 {
		boost = math.Pow(rng.Float64(), 1/a)
		a++
	}

	d := a - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)

	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()

		if u < 1-0.0331*x*x*x*x ||
			math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return decimal.NewFromFloat(boost * d * v * beta).Round(2)
		}
	}
}
