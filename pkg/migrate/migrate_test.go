package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := ValidateEmbedded(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestRevenueSettingsMigrationContainsConstraints(t *testing.T) {
	matches, err := fs.Glob(embedded, "migrations/*_create_revenue_settings.sql")
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no revenue_settings migration found")
	}

	data, err := fs.ReadFile(embedded, matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS revenue_settings",
		"CONSTRAINT ux_revenue_settings_tenant_provider UNIQUE (tenant_id, provider)",
		"CHECK (provider IN ('stripe', 'paddle'))",
		"last_sync_watermark TIMESTAMPTZ NULL",
		"DROP TABLE IF EXISTS revenue_settings",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"m/create_things.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"duplicate version": {
			"m/20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"m/20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"m/20260101000000_a.sql": {Data: []byte("-- +goose Up\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := validateFS(fsys, "m"); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Sync Columns!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_sync_columns.sql") {
		t.Fatalf("unexpected filename %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("migration file missing: %v", err)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestDialect(t *testing.T) {
	if got := Dialect("sqlite"); got != "sqlite3" {
		t.Fatalf("expected sqlite3, got %s", got)
	}
	if got := Dialect(""); got != "postgres" {
		t.Fatalf("expected postgres default, got %s", got)
	}
}
