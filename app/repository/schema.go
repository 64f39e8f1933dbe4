package repository

import (
	"context"
	"fmt"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		payment_method VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		total DECIMAL(12,2) NOT NULL,
		currency CHAR(3) NOT NULL,
		transaction_id VARCHAR(128) NULL,
		paid_at DATETIME(6) NULL,
		stock_reduced BOOLEAN NOT NULL DEFAULT FALSE,
		meta_version BIGINT NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_meta (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		meta_key VARCHAR(64) NOT NULL,
		meta_value TEXT NOT NULL,
		KEY idx_order_meta_order_key (order_id, meta_key)
	)`,
	`CREATE TABLE IF NOT EXISTS order_refunds (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		amount DECIMAL(12,2) NOT NULL,
		reason VARCHAR(255) NOT NULL DEFAULT '',
		amazon_refund_id VARCHAR(128) NULL,
		refunded_payment BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_order_refunds_amazon_refund_id (amazon_refund_id),
		KEY idx_order_refunds_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS order_notes (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		note TEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_order_notes_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NOT NULL,
		kind VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_stock_adjustments_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS ipn_messages (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		order_id BIGINT UNSIGNED NULL,
		message_id VARCHAR(128) NOT NULL,
		object_type VARCHAR(32) NOT NULL,
		object_id VARCHAR(128) NOT NULL,
		status INT NOT NULL,
		error_class VARCHAR(32) NULL,
		error VARCHAR(1024) NULL,
		created_at DATETIME(6) NOT NULL,
		KEY idx_ipn_messages_order (order_id)
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		payment_method VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		total NUMERIC(12,2) NOT NULL,
		currency CHAR(3) NOT NULL,
		transaction_id VARCHAR(128) NULL,
		paid_at TIMESTAMPTZ NULL,
		stock_reduced BOOLEAN NOT NULL DEFAULT FALSE,
		meta_version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_meta (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		meta_key VARCHAR(64) NOT NULL,
		meta_value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_meta_order_key ON order_meta (order_id, meta_key)`,
	`CREATE TABLE IF NOT EXISTS order_refunds (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		reason VARCHAR(255) NOT NULL DEFAULT '',
		amazon_refund_id VARCHAR(128) NULL UNIQUE,
		refunded_payment BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_refunds_order ON order_refunds (order_id)`,
	`CREATE TABLE IF NOT EXISTS order_notes (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		note TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_notes_order ON order_notes (order_id)`,
	`CREATE TABLE IF NOT EXISTS stock_adjustments (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		kind VARCHAR(16) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_adjustments_order ON stock_adjustments (order_id)`,
	`CREATE TABLE IF NOT EXISTS ipn_messages (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NULL,
		message_id VARCHAR(128) NOT NULL,
		object_type VARCHAR(32) NOT NULL,
		object_id VARCHAR(128) NOT NULL,
		status INT NOT NULL,
		error_class VARCHAR(32) NULL,
		error VARCHAR(1024) NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ipn_messages_order ON ipn_messages (order_id)`,
}

// EnsureSchema creates the tables the repositories use when they are missing.
func EnsureSchema(ctx context.Context, db DBTX, dialect Dialect) error {
	statements := mysqlSchema
	if dialect == DialectPostgres {
		statements = postgresSchema
	}
	for i, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
