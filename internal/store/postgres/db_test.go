package postgres

import (
	"io/fs"
	"sort"
	"testing"

	"github.com/emperorhan/solana-tx-crawler/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveStatementTimeoutMS_ConfigOverride(t *testing.T) {
	resolved, err := resolveStatementTimeoutMS(Config{
		StatementTimeoutMS: 45000,
	})

	require.NoError(t, err)
	assert.Equal(t, 45000, resolved)
}

func TestResolveStatementTimeoutMS_ConfigInvalidValue(t *testing.T) {
	_, err := resolveStatementTimeoutMS(Config{
		StatementTimeoutMS: -1,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of allowed range")
}

func TestResolveStatementTimeoutMS_EnvFallback(t *testing.T) {
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "45000")

	resolved, err := resolveStatementTimeoutMS(Config{})
	require.NoError(t, err)
	assert.Equal(t, 45000, resolved)
}

func TestResolveStatementTimeoutMS_EnvInvalidValue(t *testing.T) {
	t.Setenv("DB_STATEMENT_TIMEOUT_MS", "invalid")

	_, err := resolveStatementTimeoutMS(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_STATEMENT_TIMEOUT_MS")
}

func TestEmbeddedMigrations_Sorted(t *testing.T) {
	files, err := fs.Glob(migrationFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.True(t, sort.StringsAreSorted(files))
	assert.Equal(t, "migrations/001_crawl_checkpoints.up.sql", files[0])
}

func TestAppendStatementTimeout(t *testing.T) {
	assert.Equal(t,
		"postgres://localhost/db?options=-c%20statement_timeout%3D500",
		appendStatementTimeout("postgres://localhost/db", 500))
	assert.Equal(t,
		"postgres://localhost/db?sslmode=disable&options=-c%20statement_timeout%3D500",
		appendStatementTimeout("postgres://localhost/db?sslmode=disable", 500))
}

func TestFlattenAccounts(t *testing.T) {
	res := model.NewCrawlResult([]string{"metadata", "mint"})
	res.Accounts["metadata"] = []model.Address{{1}, {2}}
	res.Accounts["mint"] = []model.Address{{3}}

	labels, ordinals, addrs := flattenAccounts(res)
	assert.Equal(t, []string{"metadata", "metadata", "mint"}, labels)
	assert.Equal(t, []int64{0, 1, 0}, ordinals)
	assert.Equal(t, []string{
		model.Address{1}.String(),
		model.Address{2}.String(),
		model.Address{3}.String(),
	}, addrs)
}

func TestFlattenAccounts_Empty(t *testing.T) {
	labels, ordinals, addrs := flattenAccounts(model.NewCrawlResult([]string{"mint"}))
	assert.Empty(t, labels)
	assert.Empty(t, ordinals)
	assert.Empty(t, addrs)
}
