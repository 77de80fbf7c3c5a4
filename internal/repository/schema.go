package repository

// Schema definitions for Kestrel storage.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    customer_id TEXT NOT NULL,
    card_id TEXT,
    amount TEXT NOT NULL,
    currency TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    payment_channel TEXT,
    merchant_country TEXT,
    latitude REAL,
    longitude REAL
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(card_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_position ON transactions(position);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at TIMESTAMP NOT NULL,
    duration_ms INTEGER NOT NULL,
    transaction_count INTEGER NOT NULL,
    alert_count INTEGER NOT NULL,
    render_failures INTEGER NOT NULL
);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT NOT NULL,
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    customer_id TEXT NOT NULL,
    card_id TEXT,
    tx_id TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    crime_type TEXT,
    details TEXT NOT NULL,
    narrative TEXT,
    narrative_error TEXT,
    PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_alerts_run ON alerts(run_id, position);
CREATE INDEX IF NOT EXISTS idx_alerts_customer ON alerts(customer_id);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaRuns,
		schemaAlerts,
	}
}
