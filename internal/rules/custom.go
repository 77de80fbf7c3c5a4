package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// customScenario holds a pre-compiled CEL program for a user-defined check.
type customScenario struct {
	cfg     domain.CustomScenarioConfig
	program cel.Program
}

// newCELEnv declares the transaction variables available to custom
// scenario expressions.
func newCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("card_id", cel.StringType),
		cel.Variable("merchant_country", cel.StringType),
		cel.Variable("payment_channel", cel.StringType),
	)
}

// compileCustomScenarios compiles every enabled custom scenario. A compile
// error is a configuration error and fatal at load.
func compileCustomScenarios(cfgs []domain.CustomScenarioConfig) ([]*customScenario, error) {
	enabled := make([]domain.CustomScenarioConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	if len(enabled) == 0 {
		return nil, nil
	}

	env, err := newCELEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: creating CEL environment: %v", domain.ErrConfiguration, err)
	}

	scenarios := make([]*customScenario, 0, len(enabled))
	for _, cfg := range enabled {
		ast, issues := env.Compile(cfg.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%w: compiling custom scenario %q: %v", domain.ErrConfiguration, cfg.Name, issues.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("%w: custom scenario %q must return bool, got %s", domain.ErrConfiguration, cfg.Name, ast.OutputType())
		}

		program, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%w: building program for custom scenario %q: %v", domain.ErrConfiguration, cfg.Name, err)
		}

		scenarios = append(scenarios, &customScenario{cfg: cfg, program: program})
	}

	return scenarios, nil
}

// evaluate runs the compiled expression against a focal transaction and
// returns a candidate when it fires. Evaluation errors skip the scenario
// for this transaction only.
func (s *customScenario) evaluate(focal *domain.Transaction) *candidate {
	amount, _ := focal.Amount.Float64()
	activation := map[string]any{
		"amount":           amount,
		"currency":         focal.Currency,
		"customer_id":      focal.CustomerID,
		"card_id":          focal.CardID,
		"merchant_country": focal.MerchantCountry,
		"payment_channel":  focal.PaymentChannel,
	}

	out, _, err := s.program.Eval(activation)
	if err != nil {
		slog.Warn("custom scenario evaluation failed",
			"scenario", s.cfg.Name,
			"tx_id", focal.ID,
			"error", err,
		)
		return nil
	}

	fired, ok := out.(types.Bool)
	if !ok || !bool(fired) {
		return nil
	}

	// Custom scenarios carry no narrative template; the renderer falls back.
	return &candidate{
		alert: &domain.Alert{
			ID:         alertID(domain.CodeCustom, focal.ID+":"+s.cfg.ID),
			CustomerID: focal.CustomerID,
			CardID:     focal.CardID,
			TxID:       focal.ID,
			Type:       domain.AlertType(s.cfg.Name),
			CrimeType:  s.cfg.CrimeType,
			Details:    fmt.Sprintf("Custom scenario %q matched", s.cfg.Name),
		},
	}
}
