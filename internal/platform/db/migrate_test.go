package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMigrationsSortsByVersion(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"010_delivery.sql": "CREATE TABLE delivery_records (id UUID);",
		"001_core.sql":     "CREATE TABLE users (id UUID);",
		"002_alerts.sql":   "CREATE TABLE emergency_alerts (id UUID);",
	}
	for name, sql := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("got %d migrations, want 3", len(migrations))
	}
	wantOrder := []int{1, 2, 10}
	for i, mig := range migrations {
		if mig.Version != wantOrder[i] {
			t.Errorf("migration %d: version = %d, want %d", i, mig.Version, wantOrder[i])
		}
	}
}

func TestLoadMigrationsSkipsNonNumericAndNonSQL(t *testing.T) {
	dir := t.TempDir()
	files := []string{"README.md", "notes.sql", "001_core.sql"}
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMigrator(nil, dir)
	migrations, err := m.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("got %d migrations, want 1", len(migrations))
	}
	if migrations[0].Name != "001_core.sql" {
		t.Errorf("name = %s, want 001_core.sql", migrations[0].Name)
	}
}
