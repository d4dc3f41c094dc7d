//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"identity-reconciliation/internal/logger"
)

func TestPostgresContactStore(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("contacts"),
		tcpostgres.WithUsername("bitespeed"),
		tcpostgres.WithPassword("bitespeed"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(dsn, WithLogger(logger.Discard()), WithClock(steppingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.Equal(t, DialectPostgres, db.Dialect)

	suite.Run(t, &ContactStoreSuite{newStore: func() (contactStore, txRunner, func()) {
		_, err := db.Conn.ExecContext(ctx, `TRUNCATE contacts RESTART IDENTITY`)
		require.NoError(t, err)
		return NewContactStore(db), db, func() {}
	}})
}
