package db

import (
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"001_ipd_core.sql":  {Data: []byte("CREATE TABLE ward (id UUID PRIMARY KEY);")},
		"002_vitals.sql":    {Data: []byte("CREATE TABLE vital_sign (id UUID PRIMARY KEY);")},
		"010_reporting.sql": {Data: []byte("SELECT 10;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_ipd_core.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE ward (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 10 {
		t.Errorf("expected last version 10, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SkipsNonMigrationFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":       {Data: []byte("SELECT 1;")},
		"README.md":          {Data: []byte("docs")},
		"seed.sql":           {Data: []byte("SELECT 0;")},
		"abc_notversion.sql": {Data: []byte("SELECT 0;")},
		"old/002_nested.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d", len(migrations))
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewMigrator(nil, files).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}
