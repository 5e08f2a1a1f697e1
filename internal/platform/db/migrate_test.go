package db

import (
	"testing"
	"testing/fstest"
)

func TestMigrator_Load(t *testing.T) {
	files := fstest.MapFS{
		"001_geography.sql": {Data: []byte("CREATE TABLE country (id UUID PRIMARY KEY);")},
		"002_parameter.sql": {Data: []byte("CREATE TABLE param_type (id UUID PRIMARY KEY);")},
		"003_network.sql":   {Data: []byte("CREATE TABLE partner (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, files).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_geography.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE country (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestMigrator_Load_SortOrder(t *testing.T) {
	files := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migrations, err := NewMigrator(nil, files).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := []int{1, 2, 5, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("position %d: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestMigrator_Load_SkipsNonMigrations(t *testing.T) {
	files := fstest.MapFS{
		"001_first.sql":     {Data: []byte("SELECT 1;")},
		"README.md":         {Data: []byte("docs")},
		"notes.sql":         {Data: []byte("SELECT 0;")},
		"abc_letters.sql":   {Data: []byte("SELECT 0;")},
		"sub/002_inner.sql": {Data: []byte("SELECT 2;")},
	}

	migrations, err := NewMigrator(nil, files).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("expected 1 migration, got %d: %+v", len(migrations), migrations)
	}
}

func TestMigrator_Load_DuplicateVersion(t *testing.T) {
	files := fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	}

	if _, err := NewMigrator(nil, files).Load(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}
