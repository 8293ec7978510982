package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMigrationDB records executed statements and tracks applied files.
type fakeMigrationDB struct {
	applied   map[string]bool
	executed  []string
	execErr   error
	failApply string
	commits   int
	rollbacks int
}

func newFakeMigrationDB(applied ...string) *fakeMigrationDB {
	db := &fakeMigrationDB{applied: map[string]bool{}}
	for _, name := range applied {
		db.applied[name] = true
	}
	return db
}

func (f *fakeMigrationDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.executed = append(f.executed, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeMigrationDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	name, _ := args[0].(string)
	return fakeExistsRow{exists: f.applied[name]}
}

func (f *fakeMigrationDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeMigrationTx{db: f}, nil
}

type fakeExistsRow struct{ exists bool }

func (r fakeExistsRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = r.exists
	return nil
}

// fakeMigrationTx only implements what the runner calls.
type fakeMigrationTx struct {
	pgx.Tx
	db      *fakeMigrationDB
	pending []string
	marked  string
}

func (t *fakeMigrationTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.db.failApply != "" && strings.Contains(sql, t.db.failApply) {
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	if len(args) == 1 {
		t.marked, _ = args[0].(string)
	}
	t.pending = append(t.pending, sql)
	return pgconn.CommandTag{}, nil
}

func (t *fakeMigrationTx) Commit(ctx context.Context) error {
	t.db.commits++
	t.db.executed = append(t.db.executed, t.pending...)
	if t.marked != "" {
		t.db.applied[t.marked] = true
	}
	return nil
}

func (t *fakeMigrationTx) Rollback(ctx context.Context) error {
	t.db.rollbacks++
	return nil
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"migrations/002_seed.sql":   {Data: []byte("INSERT INTO roles VALUES (1, 'Administrator');")},
		"migrations/001_schema.sql": {Data: []byte("CREATE TABLE roles (role_id BIGINT);")},
		"migrations/README.md":      {Data: []byte("not a migration")},
	}
}

func TestRunMigrations_AppliesInOrder(t *testing.T) {
	db := newFakeMigrationDB()

	applied, err := runMigrations(context.Background(), db, testMigrations(), "migrations", logging.Logger)
	require.NoError(t, err)

	assert.Equal(t, []string{"001_schema.sql", "002_seed.sql"}, applied)
	assert.Equal(t, 2, db.commits)
	assert.True(t, db.applied["001_schema.sql"])
	assert.True(t, db.applied["002_seed.sql"])

	joined := strings.Join(db.executed, "\n")
	assert.Less(t, strings.Index(joined, "CREATE TABLE roles"), strings.Index(joined, "INSERT INTO roles"))
}

func TestRunMigrations_SkipsApplied(t *testing.T) {
	db := newFakeMigrationDB("001_schema.sql")

	applied, err := runMigrations(context.Background(), db, testMigrations(), "migrations", logging.Logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_seed.sql"}, applied)

	applied, err = runMigrations(context.Background(), db, testMigrations(), "migrations", logging.Logger)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestRunMigrations_FailureRollsBack(t *testing.T) {
	db := newFakeMigrationDB()
	db.failApply = "INSERT INTO roles"

	applied, err := runMigrations(context.Background(), db, testMigrations(), "migrations", logging.Logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 002_seed.sql")
	assert.Equal(t, []string{"001_schema.sql"}, applied)
	assert.Equal(t, 1, db.rollbacks)
	assert.False(t, db.applied["002_seed.sql"])
}

func TestRunMigrations_Errors(t *testing.T) {
	_, err := runMigrations(context.Background(), nil, testMigrations(), "migrations", logging.Logger)
	assert.Error(t, err)

	db := newFakeMigrationDB()
	db.execErr = errors.New("connection refused")
	_, err = runMigrations(context.Background(), db, testMigrations(), "migrations", logging.Logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create schema_migrations")
}

func TestEmbeddedMigrations(t *testing.T) {
	db := newFakeMigrationDB()

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	require.NotEmpty(t, applied)
	assert.Equal(t, "001_schema.sql", applied[0])

	joined := strings.Join(db.executed, "\n")
	assert.Contains(t, joined, "request_number_sequences")
	assert.Contains(t, joined, "'External Officer'")
}
