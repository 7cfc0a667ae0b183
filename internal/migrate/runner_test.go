package migrate

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	src := `
create table t (id text primary key);
insert into t values ('a;b');
`
	got := splitStatements(src)
	want := []string{
		"create table t (id text primary key)",
		"insert into t values ('a;b')",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitStatements = %#v, want %#v", got, want)
	}
}

func TestListSQLOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	ups, err := listSQL(dir, upSuffix)
	if err != nil {
		t.Fatalf("listSQL: %v", err)
	}
	want := []string{filepath.Join(dir, "0001_a.up.sql"), filepath.Join(dir, "0002_b.up.sql")}
	if !reflect.DeepEqual(ups, want) {
		t.Fatalf("listSQL = %v, want %v", ups, want)
	}

	seeds, err := listSQL(dir, seedSuffix)
	if err != nil {
		t.Fatalf("listSQL seeds: %v", err)
	}
	// Seed discovery matches .sql but never a paired .down.sql.
	for _, p := range seeds {
		if filepath.Base(p) == "0001_a.down.sql" {
			t.Fatalf("down file leaked into seed list: %v", seeds)
		}
	}

	if got, err := listSQL(filepath.Join(dir, "missing"), upSuffix); err != nil || got != nil {
		t.Fatalf("missing dir: got %v, %v", got, err)
	}
}
