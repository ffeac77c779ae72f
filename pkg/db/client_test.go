package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := FromGorm(db)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}))

	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count, "rollback should leave 1 record")
}

func TestPing(t *testing.T) {
	client := FromGorm(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestLifecycle(t *testing.T) {
	var zero Client
	require.Equal(t, StateUninitialized, zero.State())
	require.ErrorIs(t, zero.Acquire(), ErrNotReady)

	client := FromGorm(newTestDB(t))
	require.Equal(t, StateReady, client.State())

	require.NoError(t, client.Acquire())
	require.NoError(t, client.Acquire())
	require.Equal(t, 2, client.Refs())

	require.NoError(t, client.Close())
	require.Equal(t, StateClosed, client.State())
	require.ErrorIs(t, client.Acquire(), ErrClosed)
	require.ErrorIs(t, client.WithTx(context.Background(), func(*gorm.DB) error { return nil }), ErrClosed)

	// pool stays open for outstanding holders
	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, client.Release())
	require.NoError(t, sqlDB.Ping())

	require.NoError(t, client.Release())
	require.Error(t, sqlDB.Ping(), "pool should close after the last release")

	require.Error(t, client.Release(), "release without acquire")
	require.NoError(t, client.Close(), "second close is a no-op")
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "orders_pkey"}
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), ""))
	require.True(t, IsUniqueViolation(pgErr, "orders_pkey"))
	require.False(t, IsUniqueViolation(pgErr, "other"))

	require.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: orders.id"), "orders.id"))
	require.False(t, IsUniqueViolation(errors.New("boom"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}
