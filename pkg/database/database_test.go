package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energy-forecast/pkg/logging"
	"energy-forecast/pkg/metrics"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&Config{Driver: DriverSQLite, Path: ":memory:"}, logging.NewNopLogger(), metrics.NewNopCollector())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConfig_DSN(t *testing.T) {
	pg := &Config{Driver: DriverPostgres, Host: "db", Port: 5432, User: "u", Password: "p", Database: "energy", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=energy sslmode=disable", pg.DSN())

	lite := &Config{Driver: DriverSQLite, Path: "data/energy.db"}
	assert.Equal(t, "data/energy.db", lite.DSN())
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(&Config{Driver: "oracle"}, logging.NewNopLogger(), metrics.NewNopCollector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestDB_TableIntrospection(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	exists, err := db.TableExists(ctx, "clean_hubeau")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = db.ExecContext(ctx, "create", `CREATE TABLE clean_hubeau (date TEXT PRIMARY KEY, debit_l_s REAL)`)
	require.NoError(t, err)

	exists, err = db.TableExists(ctx, "clean_hubeau")
	require.NoError(t, err)
	assert.True(t, exists)

	cols, err := db.Columns(ctx, "clean_hubeau")
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "debit_l_s"}, cols)
}

func TestDB_RebindAndTx(t *testing.T) {
	db := openMemory(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "create", `CREATE TABLE t (k TEXT PRIMARY KEY, v REAL)`)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, db.Rebind(`INSERT INTO t (k, v) VALUES (?, ?)`), "a", 1.5)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var v float64
	require.NoError(t, db.GetContext(ctx, "get", &v, `SELECT v FROM t WHERE k = ?`, "a"))
	assert.Equal(t, 1.5, v)

	require.NoError(t, db.HealthCheck(ctx))
	assert.Equal(t, "REAL", db.Dialect().NumberType)
}
