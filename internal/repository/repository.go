// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransactions stores a batch, recording each row's input position so
// the batch can be replayed in its original order.
func (r *SQLRepository) SaveTransactions(ctx context.Context, txs []*domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := r.rebind(`
		INSERT INTO transactions (
			id, position, customer_id, card_id, amount, currency,
			timestamp, payment_channel, merchant_country, latitude, longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, tx := range txs {
		var lat, lon sql.NullFloat64
		if tx.Latitude != nil {
			lat = sql.NullFloat64{Float64: *tx.Latitude, Valid: true}
		}
		if tx.Longitude != nil {
			lon = sql.NullFloat64{Float64: *tx.Longitude, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			tx.ID, i, tx.CustomerID, nullString(tx.CardID),
			tx.Amount.String(), tx.Currency, tx.Timestamp,
			nullString(tx.PaymentChannel), nullString(tx.MerchantCountry),
			lat, lon,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
		}
	}

	return dbTx.Commit()
}

// ListTransactions returns the stored batch in input order.
func (r *SQLRepository) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	query := `
		SELECT id, customer_id, card_id, amount, currency,
			   timestamp, payment_channel, merchant_country, latitude, longitude
		FROM transactions
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var tx domain.Transaction
	var cardID, channel, country sql.NullString
	var amount string
	var lat, lon sql.NullFloat64

	if err := rows.Scan(
		&tx.ID, &tx.CustomerID, &cardID, &amount, &tx.Currency,
		&tx.Timestamp, &channel, &country, &lat, &lon,
	); err != nil {
		return nil, err
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: bad stored amount %q: %w", tx.ID, amount, err)
	}
	tx.Amount = parsed

	tx.CardID = cardID.String
	tx.PaymentChannel = channel.String
	tx.MerchantCountry = country.String
	if lat.Valid {
		tx.Latitude = &lat.Float64
	}
	if lon.Valid {
		tx.Longitude = &lon.Float64
	}

	return &tx, nil
}

// SaveRun stores a run summary and its full alert log.
func (r *SQLRepository) SaveRun(ctx context.Context, result *domain.RunResult) error {
	if result == nil || result.RunID == "" {
		return fmt.Errorf("%w: run result with id is required", ErrInvalidInput)
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	runQuery := r.rebind(`
		INSERT INTO runs (id, started_at, duration_ms, transaction_count, alert_count, render_failures)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if _, err := dbTx.ExecContext(ctx, runQuery,
		result.RunID, result.StartedAt, result.DurationMs,
		result.TransactionCount, result.AlertCount, result.RenderFailures,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", result.RunID, err)
	}

	alertQuery := r.rebind(`
		INSERT INTO alerts (
			id, run_id, position, customer_id, card_id, tx_id,
			alert_type, crime_type, details, narrative, narrative_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	stmt, err := dbTx.PrepareContext(ctx, alertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare alert insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range result.Alerts {
		if _, err := stmt.ExecContext(ctx,
			a.ID, result.RunID, i, a.CustomerID, nullString(a.CardID), a.TxID,
			string(a.Type), nullString(a.CrimeType), a.Details,
			nullString(a.Narrative), nullString(a.NarrativeError),
		); err != nil {
			return fmt.Errorf("failed to insert alert %s: %w", a.ID, err)
		}
	}

	return dbTx.Commit()
}

// GetRun retrieves a run summary and its alert log in evaluation order.
func (r *SQLRepository) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := r.rebind(`
		SELECT id, started_at, duration_ms, transaction_count, alert_count, render_failures
		FROM runs WHERE id = ?
	`)

	var result domain.RunResult
	err := r.db.QueryRowContext(ctx, query, runID).Scan(
		&result.RunID, &result.StartedAt, &result.DurationMs,
		&result.TransactionCount, &result.AlertCount, &result.RenderFailures,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	result.Duration = time.Duration(result.DurationMs) * time.Millisecond

	alerts, err := r.ListAlertsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	result.Alerts = alerts

	return &result, nil
}

// ListAlertsByRun returns a run's alerts in evaluation order.
func (r *SQLRepository) ListAlertsByRun(ctx context.Context, runID string) ([]*domain.Alert, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := r.rebind(`
		SELECT id, customer_id, card_id, tx_id, alert_type, crime_type, details, narrative, narrative_error
		FROM alerts
		WHERE run_id = ?
		ORDER BY position
	`)

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// GetAlert retrieves a single alert from a run.
func (r *SQLRepository) GetAlert(ctx context.Context, runID, alertID string) (*domain.Alert, error) {
	if runID == "" || alertID == "" {
		return nil, fmt.Errorf("%w: runID and alertID are required", ErrInvalidInput)
	}

	query := r.rebind(`
		SELECT id, customer_id, card_id, tx_id, alert_type, crime_type, details, narrative, narrative_error
		FROM alerts
		WHERE run_id = ? AND id = ?
	`)

	row := r.db.QueryRowContext(ctx, query, runID, alertID)

	var a domain.Alert
	var cardID, crimeType, narrative, narrativeErr sql.NullString
	var alertType string

	err := row.Scan(
		&a.ID, &a.CustomerID, &cardID, &a.TxID,
		&alertType, &crimeType, &a.Details, &narrative, &narrativeErr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Type = domain.AlertType(alertType)
	a.CardID = cardID.String
	a.CrimeType = crimeType.String
	a.Narrative = narrative.String
	a.NarrativeError = narrativeErr.String

	return &a, nil
}

func scanAlert(rows *sql.Rows) (*domain.Alert, error) {
	var a domain.Alert
	var cardID, crimeType, narrative, narrativeErr sql.NullString
	var alertType string

	if err := rows.Scan(
		&a.ID, &a.CustomerID, &cardID, &a.TxID,
		&alertType, &crimeType, &a.Details, &narrative, &narrativeErr,
	); err != nil {
		return nil, err
	}

	a.Type = domain.AlertType(alertType)
	a.CardID = cardID.String
	a.CrimeType = crimeType.String
	a.Narrative = narrative.String
	a.NarrativeError = narrativeErr.String

	return &a, nil
}

// Ping checks database health.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind translates ? placeholders to $n for postgres.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
