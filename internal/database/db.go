package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// DB represents a database connection
type DB struct {
	*sqlx.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN builds the lib/pq connection string
func (p ConnectionParams) DSN() string {
	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, sslMode,
	)
}

// New creates a new database connection and makes sure the tables exist
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", params.DSN())
	if err != nil {
		return nil, fmt.Errorf("could not connect database: %w", err)
	}

	// Create tables if they don't exist
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not create tables: %w", err)
	}

	return &DB{db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trade_history (
		id UUID PRIMARY KEY,
		user_id BIGINT NOT NULL,
		ticker TEXT NOT NULL,
		action TEXT NOT NULL,
		price NUMERIC(18, 6) NOT NULL,
		quantity BIGINT NOT NULL,
		total NUMERIC(18, 6) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS trade_history_user_created_idx
		ON trade_history (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS signals (
		id BIGSERIAL PRIMARY KEY,
		ticker TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		value NUMERIC(18, 6) NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		user_id BIGINT NOT NULL,
		ticker TEXT NOT NULL,
		entry_price NUMERIC(18, 6) NOT NULL,
		quantity BIGINT NOT NULL,
		stop_loss NUMERIC(18, 6),
		take_profit NUMERIC(18, 6),
		highest_price NUMERIC(18, 6) NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, ticker)
	)`,
}

// createTables creates the necessary tables if they don't exist
func createTables(ctx context.Context, db *sqlx.DB) error {
	for _, statement := range schema {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}
