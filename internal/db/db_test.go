package db

import (
	"os"
	"testing"
)

func TestBootstrapCreatesSchema(t *testing.T) {
	dir := t.TempDir()
	conn, err := Bootstrap(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer conn.Close()

	if _, err := os.Stat(Path(dir)); err != nil {
		t.Fatalf("db file missing: %v", err)
	}
	for _, table := range []string{"projects", "milestones", "checklist_items", "inspections", "inspection_responses", "media", "audit_log", "api_keys"} {
		var n int
		if err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if n != 1 {
			t.Fatalf("table %s not created", table)
		}
	}
}

func TestBootstrapRecordsMigrationLedger(t *testing.T) {
	dir := t.TempDir()
	conn, err := Bootstrap(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer conn.Close()

	var version int
	var name, appliedAt string
	if err := conn.QueryRow(`SELECT version, name, applied_at FROM schema_migrations ORDER BY version LIMIT 1`).
		Scan(&version, &name, &appliedAt); err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if version != 1 || appliedAt == "" {
		t.Fatalf("ledger row = %d %s %q", version, name, appliedAt)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	conn, err := Bootstrap(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if _, err := conn.Exec(`INSERT INTO projects(id,name,status,created_at) VALUES ('p1','Tower','active','2024-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("seed row: %v", err)
	}
	conn.Close()

	conn, err = Bootstrap(Config{Workspace: dir})
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	defer conn.Close()
	var n int
	if err := conn.QueryRow(`SELECT count(*) FROM projects`).Scan(&n); err != nil {
		t.Fatalf("count projects: %v", err)
	}
	if n != 1 {
		t.Fatalf("projects = %d, want 1", n)
	}
	if err := conn.QueryRow(`SELECT count(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	if n == 0 {
		t.Fatal("ledger empty after re-bootstrap")
	}
}
