package rules

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/narrative"
	"github.com/opensource-finance/kestrel/internal/store"
)

var tracer = otel.Tracer("kestrel-engine")

// Engine drives every enabled scenario across a transaction batch and
// assembles the ordered alert log.
type Engine struct {
	cfg        *domain.ScenarioConfig
	custom     []*customScenario
	maxWorkers int
}

// NewEngine validates the scenario configuration and compiles any custom
// scenarios.
func NewEngine(cfg *domain.ScenarioConfig, maxWorkers int) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("scenario config is required")
	}
	if maxWorkers <= 0 {
		maxWorkers = 8
	}

	custom, err := compileCustomScenarios(cfg.Custom)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		custom:     custom,
		maxWorkers: maxWorkers,
	}, nil
}

// ScenarioConfig returns the engine's read-only scenario configuration.
func (e *Engine) ScenarioConfig() *domain.ScenarioConfig {
	return e.cfg
}

// Run evaluates the batch and returns the alert log.
//
// Every comparison window is scoped to a single customer or card, so the
// batch is sharded by customer id and shards are evaluated concurrently
// against the shared read-only store. Each worker writes candidates into a
// per-focal-index slot; the final log is the flatten in input order with a
// fixed per-focal rule order, so output is byte-identical across runs
// regardless of shard scheduling.
//
// A malformed transaction fails the whole run before any evaluation.
func (e *Engine) Run(ctx context.Context, txs []*domain.Transaction) (*domain.RunResult, error) {
	ctx, span := tracer.Start(ctx, "engine.run",
		trace.WithAttributes(attribute.Int("batch.size", len(txs))),
	)
	defer span.End()

	started := time.Now().UTC()

	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return nil, err
		}
	}

	st := store.New(txs)

	// Group focal indices by customer, preserving first-seen order.
	shards := make(map[string][]int)
	var customers []string
	for i, tx := range txs {
		if _, seen := shards[tx.CustomerID]; !seen {
			customers = append(customers, tx.CustomerID)
		}
		shards[tx.CustomerID] = append(shards[tx.CustomerID], i)
	}

	perFocal := make([][]*candidate, len(txs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for _, customerID := range customers {
		wg.Add(1)
		go func(customerID string, focals []int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			cc := buildCustomerContext(st.ByCustomer(customerID), e.cfg.DomesticCountry)
			for _, idx := range focals {
				perFocal[idx] = e.evaluateFocal(txs[idx], st, cc)
			}
		}(customerID, shards[customerID])
	}

	wg.Wait()

	result := &domain.RunResult{
		RunID:            uuid.New().String(),
		StartedAt:        started,
		TransactionCount: len(txs),
	}

	for _, cands := range perFocal {
		for _, c := range cands {
			text, err := narrative.Render(c.details)
			if err != nil {
				c.alert.NarrativeError = err.Error()
				result.RenderFailures++
				slog.Warn("narrative render failed",
					"alert_id", c.alert.ID,
					"alert_type", c.alert.Type,
					"error", err,
				)
			} else {
				c.alert.Narrative = text
			}
			result.Alerts = append(result.Alerts, c.alert)
		}
	}

	result.AlertCount = len(result.Alerts)
	result.Duration = time.Since(started)
	result.DurationMs = result.Duration.Milliseconds()

	span.SetAttributes(
		attribute.Int("alerts.count", result.AlertCount),
		attribute.Int("alerts.render_failures", result.RenderFailures),
	)

	slog.Info("transaction batch evaluated",
		"run_id", result.RunID,
		"transactions", result.TransactionCount,
		"alerts", result.AlertCount,
		"render_failures", result.RenderFailures,
		"duration_ms", result.DurationMs,
	)

	return result, nil
}

// evaluateFocal runs every enabled scenario against one focal transaction.
// The rule order here fixes the per-focal order of the output log.
func (e *Engine) evaluateFocal(focal *domain.Transaction, st *store.Store, cc customerContext) []*candidate {
	var out []*candidate

	if c := evalHighVolume(focal, st, e.cfg); c != nil {
		out = append(out, c)
	}
	if c := evalHighAmount(focal, e.cfg); c != nil {
		out = append(out, c)
	}
	if c := evalUnusualPatterns(focal, st, e.cfg); c != nil {
		out = append(out, c)
	}
	if c := evalFrequentInternational(focal, cc, e.cfg); c != nil {
		out = append(out, c)
	}
	if c := evalRapidConsecutive(focal, st, e.cfg); c != nil {
		out = append(out, c)
	}
	if c := evalLocationMismatch(focal, st, e.cfg); c != nil {
		out = append(out, c)
	}
	for _, s := range e.custom {
		if c := s.evaluate(focal); c != nil {
			out = append(out, c)
		}
	}

	return out
}
