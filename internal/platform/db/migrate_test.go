package db

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrations(t *testing.T) {
	files := fstest.MapFS{
		"003_task.sql":    {Data: []byte("CREATE TABLE task (id UUID PRIMARY KEY);")},
		"001_patient.sql": {Data: []byte("CREATE TABLE patient (id UUID PRIMARY KEY);")},
		"002_obs.sql":     {Data: []byte("CREATE TABLE observation (id UUID PRIMARY KEY);")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	for i, want := range []string{"001_patient.sql", "002_obs.sql", "003_task.sql"} {
		if migrations[i].Name != want || migrations[i].Version != i+1 {
			t.Errorf("migrations[%d] = %d %s, want %d %s", i, migrations[i].Version, migrations[i].Name, i+1, want)
		}
	}
	if migrations[0].SQL != "CREATE TABLE patient (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_SkipsOtherFiles(t *testing.T) {
	files := fstest.MapFS{
		"001_core.sql":       {Data: []byte("SELECT 1;")},
		"README.md":          {Data: []byte("docs")},
		"nodash.sql":         {Data: []byte("SELECT 2;")},
		"abc_notnumber.sql":  {Data: []byte("SELECT 3;")},
		"002_next.sql.bak":   {Data: []byte("SELECT 4;")},
		"sub/003_nested.sql": {Data: []byte("SELECT 5;")},
	}

	migrations, err := NewMigrator(nil, files).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 1 || migrations[0].Version != 1 {
		t.Errorf("migrations = %+v", migrations)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestSchema_CoversSearchTables(t *testing.T) {
	migrations, err := NewMigrator(nil, Schema()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) == 0 || migrations[0].Version != 1 {
		t.Fatalf("migrations = %+v", migrations)
	}
	all := ""
	for _, m := range migrations {
		all += m.SQL
	}
	for _, table := range []string{"patient", "encounter", "observation", "task"} {
		if !strings.Contains(all, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("schema does not create %s", table)
		}
	}
}
