package database

import (
	"io/fs"
	"strings"
	"testing"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"app:pw@tcp(db:3306)/cinema?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		DSN("app", "pw", "db", "3306", "cinema"))
	assert.Equal(t,
		"app@tcp(db:3306)/cinema?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		DSN("app", "", "db", "3306", "cinema"))
}

func TestMigrationDSNAllowsMultiStatements(t *testing.T) {
	dsn := MigrationDSN("app", "pw", "db", "3306", "cinema")
	assert.True(t, strings.HasPrefix(dsn, DSN("app", "pw", "db", "3306", "cinema")))
	assert.True(t, strings.HasSuffix(dsn, "&multiStatements=true"))
	assert.NotContains(t, DSN("app", "pw", "db", "3306", "cinema"), "multiStatements")

	cfg, err := mysqldrv.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, cfg.MultiStatements)
	assert.True(t, cfg.ParseTime)
	assert.True(t, cfg.ClientFoundRows)
	assert.Equal(t, "cinema", cfg.DBName)
}

// The init migration holds several statements and needs the option above.
func TestInitMigrationIsMultiStatement(t *testing.T) {
	up, err := migrationFiles.ReadFile("migrations/0001_init.up.sql")
	require.NoError(t, err)
	assert.Greater(t, strings.Count(string(up), ";"), 1)
}

func TestMigrateDownRejectsZeroSteps(t *testing.T) {
	err := MigrateDown(MigrationDSN("app", "", "127.0.0.1", "1", "cinema"), 0)
	assert.EqualError(t, err, "steps must be positive")
}

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFiles, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
