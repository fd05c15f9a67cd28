package database

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testItem struct {
	ID   uint   `gorm:"primarykey"`
	Name string `gorm:"size:100;uniqueIndex;not null"`
	Kind string `gorm:"size:20"`
}

func (testItem) TableName() string { return "test_items" }

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(SQLiteConfig(":memory:"), nil)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&testItem{}))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countItems(t *testing.T, db *DB) int64 {
	var n int64
	require.NoError(t, db.DB.Model(&testItem{}).Count(&n).Error)
	return n
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"default postgres", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"bad ssl mode", func(c *Config) { c.SSLMode = "maybe" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"idle exceeds open", func(c *Config) { c.MaxIdleConns = 200 }, true},
		{"negative retries", func(c *Config) { c.MaxTxRetries = -1 }, true},
		{"unknown driver", func(c *Config) { c.Driver = "mysql" }, true},
		{"sqlite without path", func(c *Config) {
			c.Driver = DriverSQLite
			c.SQLitePath = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t,
		"host=localhost port=5432 user=metax password=metax dbname=metax sslmode=disable TimeZone=UTC",
		cfg.DSN())
}

func TestNew_SQLite(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.Equal(t, DriverSQLite, db.Config().Driver)
	assert.Nil(t, db.txOptions())
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&testItem{Name: "a"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countItems(t, db))

	boom := errors.New("boom")
	err = db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := db.Conn(ctx).Create(&testItem{Name: "b"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), countItems(t, db))
}

func TestTransaction_NestedJoinsOuter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.Transaction(ctx, func(ctx context.Context, outer *gorm.DB) error {
		err := db.Transaction(ctx, func(ctx context.Context, inner *gorm.DB) error {
			assert.Same(t, outer, inner)
			return inner.Create(&testItem{Name: "nested"}).Error
		})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), countItems(t, db))
}

func TestTransactionManager_InTx(t *testing.T) {
	db := setupTestDB(t)
	tm := NewTransactionManager(db)

	err := tm.InTx(context.Background(), func(ctx context.Context) error {
		_, ok := TransactionFromContext(ctx)
		assert.True(t, ok)
		return db.Conn(ctx).Create(&testItem{Name: "x"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countItems(t, db))
}

func TestTransactionManager_RetriesSerializationFailures(t *testing.T) {
	db := setupTestDB(t)
	tm := NewTransactionManager(db)

	attempts := 0
	err := tm.InTx(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("ERROR: could not serialize access (SQLSTATE 40001)")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	attempts = 0
	err = tm.InTx(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("not retryable")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDuplicateKeyTranslated(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.DB.Create(&testItem{Name: "dup"}).Error)

	err := db.DB.Create(&testItem{Name: "dup"}).Error
	assert.True(t, IsDuplicateKeyError(err))

	err = db.DB.Where("name = ?", "missing").First(&testItem{}).Error
	assert.True(t, IsRecordNotFoundError(err))
}

func TestHelpers(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.DB.Create(&[]testItem{
		{Name: "b", Kind: "file"},
		{Name: "a", Kind: "dir"},
		{Name: "c", Kind: "file"},
	}).Error)

	var items []testItem
	require.NoError(t, db.DB.Scopes(WhereIf(true, "kind = ?", "file"), OrderBy("name", true)).Find(&items).Error)
	require.Len(t, items, 2)
	assert.Equal(t, "c", items[0].Name)

	items = nil
	require.NoError(t, db.DB.Scopes(WhereIf(false, "kind = ?", "file")).Find(&items).Error)
	assert.Len(t, items, 3)
}

func TestQueryOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{gorm.ErrRecordNotFound, "not_found"},
		{fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), "duplicate"},
		{errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), "retryable"},
		{errors.New("connection reset"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryOutcome(tt.err))
	}
}
