package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TxFunc defines a transaction function
type TxFunc func(ctx context.Context, tx *gorm.DB) error

// Transaction executes fn within a database transaction. The transaction is
// stored in the context passed to fn, so repositories called from fn with that
// context take part in it. A context that already carries a transaction joins it.
func (db *DB) Transaction(ctx context.Context, fn TxFunc) error {
	return db.TransactionWithOptions(ctx, db.txOptions(), fn)
}

// TransactionWithOptions executes a function within a database transaction with custom options
func (db *DB) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TxFunc) error {
	if tx, ok := TransactionFromContext(ctx); ok {
		return fn(ctx, tx)
	}

	db.logger.WithContext(ctx).Debug("starting database transaction")

	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := ContextWithTransaction(ctx, tx)
		if err := fn(txCtx, tx); err != nil {
			db.logger.WithContext(ctx).Debug("transaction failed, rolling back",
				zap.Error(err),
			)
			return err
		}

		db.logger.WithContext(ctx).Debug("transaction committed successfully")
		return nil
	}, opts)
}

func (db *DB) txOptions() *sql.TxOptions {
	if db.config.Driver == DriverPostgres && db.config.Serializable {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

// TransactionManager runs units of work with retry on serialization failures
type TransactionManager struct {
	db         *DB
	maxRetries int
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(db *DB) *TransactionManager {
	retries := db.config.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	return &TransactionManager{db: db, maxRetries: retries}
}

// InTx runs fn as one unit of work. fn receives a context carrying the transaction.
func (tm *TransactionManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return tm.ExecuteWithRetry(ctx, tm.maxRetries, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
}

// ExecuteWithRetry executes a function within a transaction with retry on specific errors
func (tm *TransactionManager) ExecuteWithRetry(ctx context.Context, maxRetries int, fn TxFunc) error {
	// Nested units of work join the outer transaction and never retry on their own
	if _, ok := TransactionFromContext(ctx); ok {
		return tm.db.Transaction(ctx, fn)
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			tm.db.logger.WithContext(ctx).Warn("retrying transaction",
				zap.Int("attempt", i+1),
				zap.Int("max_retries", maxRetries),
				zap.Error(lastErr),
			)
		}

		err := tm.db.Transaction(ctx, fn)
		if err == nil {
			return nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return err
		}
	}

	return fmt.Errorf("transaction failed after %d retries: %w", maxRetries, lastErr)
}

// isRetryableError reports serialization failures (40001) and deadlocks (40P01)
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 40001") || strings.Contains(msg, "SQLSTATE 40P01")
}

// TransactionKey is the context key for storing transaction
type TransactionKey struct{}

// ContextWithTransaction adds transaction to context
func ContextWithTransaction(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, TransactionKey{}, tx)
}

// TransactionFromContext extracts transaction from context
func TransactionFromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(TransactionKey{}).(*gorm.DB)
	return tx, ok
}

// Conn returns the transaction carried by ctx, or the pool bound to ctx
func (db *DB) Conn(ctx context.Context) *gorm.DB {
	if tx, ok := TransactionFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.DB.WithContext(ctx)
}
