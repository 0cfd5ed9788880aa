package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/erp/kksync/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add sync runs", "add_sync_runs"},
		{"Add-Staging-Index", "add_staging_index"},
		{"ADD_OPTION_CACHE", "add_option_cache"},
		{"add__runs__table", "add_runs_table"},
		{"Add Runs 123", "add_runs_123"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	tmpDir := t.TempDir()

	first, err := CreateMigration(tmpDir, "add run index", "Index sync runs by start time")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.True(t, strings.HasSuffix(first.UpPath, "000001_add_run_index.up.sql"))
	assert.True(t, strings.HasSuffix(first.DownPath, "000001_add_run_index.down.sql"))

	upContent, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "add run index")
	assert.Contains(t, string(upContent), "Index sync runs by start time")

	downContent, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")

	second, err := CreateMigration(tmpDir, "seed mappings", "")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nestedPath, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNextVersion(t *testing.T) {
	assert.Equal(t, 1, nextVersion(nil))
	assert.Equal(t, 4, nextVersion([]string{"000001_a", "000003_b", "notes"}))
}

func TestListMigrations(t *testing.T) {
	tmpDir := t.TempDir()
	files := []string{
		"000002_create_sync_runs.up.sql",
		"000002_create_sync_runs.down.sql",
		"000001_create_staging_tables.up.sql",
		"000001_create_staging_tables.down.sql",
		"README.md",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, f), []byte("-- test"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "subdir.up.sql"), 0o755))

	got, err := ListMigrations(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_staging_tables", "000002_create_sync_runs"}, got)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	got, err := ListMigrations("/nonexistent/path/to/migrations")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListMigrationsFS(t *testing.T) {
	fsys := fstest.MapFS{
		"000001_init.up.sql":   {Data: []byte("CREATE TABLE t (id int);")},
		"000001_init.down.sql": {Data: []byte("DROP TABLE t;")},
	}
	got, err := ListMigrationsFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init"}, got)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := ListMigrationsFS(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, base := range ups {
		_, err := migrations.FS.Open(base + ".down.sql")
		assert.NoError(t, err, "missing rollback for %s", base)
	}

	schema, err := migrations.FS.ReadFile("000002_create_sync_runs.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(schema), "uq_sync_runs_processing")
	assert.Contains(t, string(schema), "WHERE status = 'processing'")
}
