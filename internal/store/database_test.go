package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	assert.Equal(t, DialectPostgres, DialectFor("postgres://linemate:pw@localhost:5432/linemate?sslmode=disable"))
	assert.Equal(t, DialectPostgres, DialectFor("postgresql://localhost/linemate"))
	assert.Equal(t, DialectPostgres, DialectFor("host=localhost dbname=linemate"))
	assert.Equal(t, DialectSQLite, DialectFor(":memory:"))
	assert.Equal(t, DialectSQLite, DialectFor("file:linemate.db"))
}

func TestRebind(t *testing.T) {
	sqlite := &Database{dialect: DialectSQLite}
	pg := &Database{dialect: DialectPostgres}

	q := "SELECT * FROM t WHERE a = $1 AND (b = $2 OR c = $2) LIMIT $10"
	assert.Equal(t, "SELECT * FROM t WHERE a = ?1 AND (b = ?2 OR c = ?2) LIMIT ?10", sqlite.Rebind(q))
	assert.Equal(t, q, pg.Rebind(q))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- header comment
CREATE TABLE a (id INTEGER);

CREATE INDEX i ON a (id);
-- trailing
`)
	assert.Equal(t, []string{"CREATE TABLE a (id INTEGER)", "CREATE INDEX i ON a (id)"}, stmts)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.RunMigrations(ctx))
	require.NoError(t, db.RunMigrations(ctx))

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 4, applied)

	for _, table := range []string{"game_logs", "scoring_plays", "correlations", "joined_correlations", "backfill_jobs", "pipeline_runs"} {
		var n int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n)
		assert.NoError(t, err, table)
	}

	assert.NoError(t, db.HealthCheck(ctx))
}
