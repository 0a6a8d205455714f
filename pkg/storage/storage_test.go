package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	db, err := Open(Config{Driver: SQLite, DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, SQLite, db.DriverType())

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, `CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT);`))

	q, args, err := db.Builder().Insert("kv").Columns("k", "v").Values("a", "1").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO kv (k,v) VALUES (?,?)", q)
	_, err = db.ExecContext(ctx, q, args...)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, q, args...)
	assert.True(t, IsUniqueViolation(err), "expected unique violation, got %v", err)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	assert.Error(t, err)
}

func TestBuilderPostgresPlaceholders(t *testing.T) {
	db := Wrap(nil, Postgres)
	q, _, err := db.Builder().Select("id").From("articles").Where("sport = ?", "soccer").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM articles WHERE sport = $1", q)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"file:data/x.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqliteDSN("data/x.db"))
	assert.Equal(t, "file:x.db?_pragma=foreign_keys(0)", sqliteDSN("file:x.db?_pragma=foreign_keys(0)"))
}

func TestTransactionRollsBackOnError(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE newsletters").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	db := Wrap(raw, SQLite)
	boom := errors.New("boom")
	err = db.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("UPDATE newsletters SET status = 'sent'"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommits(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM articles").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	db := Wrap(raw, Postgres)
	err = db.Transaction(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM articles")
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
