package main

import (
	"bufio"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingExecer struct {
	statements []string
}

func (r *recordingExecer) Exec(query string, _ ...any) (sql.Result, error) {
	r.statements = append(r.statements, strings.TrimSpace(query))
	return nil, nil
}

func TestSplitSQL(t *testing.T) {
	statements, err := splitSQL(`
-- accounts
CREATE TABLE a (
    id BIGINT
);
CREATE INDEX idx_a ON a (id);
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statements) != 2 {
		t.Fatalf("expected 2 statements, got %d: %#v", len(statements), statements)
	}
	if !strings.Contains(statements[0], "CREATE TABLE a") || !strings.Contains(statements[1], "CREATE INDEX") {
		t.Fatalf("unexpected statements: %#v", statements)
	}
}

func TestSplitSQLRejectsOversizedLine(t *testing.T) {
	long := "INSERT INTO a VALUES ('" + strings.Repeat("x", bufio.MaxScanTokenSize) + "');"
	statements, err := splitSQL("CREATE TABLE a (v TEXT);\n" + long + "\nCREATE INDEX idx_a ON a (v);\n")
	if err == nil {
		t.Fatalf("expected an error, got %d statements", len(statements))
	}
}

func TestApplyFileStopsOnOversizedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0002_seed.sql")
	content := "CREATE TABLE a (v TEXT);\nINSERT INTO a VALUES ('" + strings.Repeat("x", bufio.MaxScanTokenSize) + "');\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write migration: %v", err)
	}
	var rec recordingExecer
	if err := applyFile(&rec, path); err == nil {
		t.Fatal("expected an error")
	}
	if len(rec.statements) != 0 {
		t.Fatalf("no statement should run from a truncated file, got %#v", rec.statements)
	}
}

func TestApplyFileSkipsDownSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0001_test.sql")
	content := "-- +migrate Up\nCREATE TABLE a (id BIGINT);\n-- +migrate Down\nDROP TABLE a;\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write migration: %v", err)
	}
	var rec recordingExecer
	if err := applyFile(&rec, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.statements) != 1 || rec.statements[0] != "CREATE TABLE a (id BIGINT);" {
		t.Fatalf("unexpected statements: %#v", rec.statements)
	}
}

func TestInitialMigrationParses(t *testing.T) {
	var rec recordingExecer
	if err := applyFile(&rec, filepath.Join("..", "..", "migrations", "0001_init.sql")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.statements) < 6 {
		t.Fatalf("expected the schema statements, got %d", len(rec.statements))
	}
	for _, stmt := range rec.statements {
		if strings.HasPrefix(stmt, "DROP") {
			t.Fatalf("down statement applied: %s", stmt)
		}
	}
}
