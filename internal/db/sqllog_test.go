package db

import (
	"bytes"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggingConnector_LogsStatements(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	connector, err := NewLoggingConnector(":memory:", logger)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	sqlDB := sql.OpenDB(connector)
	defer func() {
		if err := sqlDB.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	}()

	if _, err := sqlDB.Exec(`CREATE TABLE t (n INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := sqlDB.Exec(`INSERT INTO t (n) VALUES (?)`, 7); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var n int
	if err := sqlDB.QueryRow(`SELECT n FROM t`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 7 {
		t.Errorf("n = %d; want 7", n)
	}

	logged := buf.String()
	if !strings.Contains(logged, "INSERT INTO t") {
		t.Errorf("log should contain the insert statement; got %q", logged)
	}
	if !strings.Contains(logged, "SELECT n FROM t") {
		t.Errorf("log should contain the select statement; got %q", logged)
	}
}

func TestLoggingDriver_OpenRejected(t *testing.T) {
	d := &loggingDriver{}
	if _, err := d.Open(":memory:"); err == nil {
		t.Fatal("Open should be rejected; use sql.OpenDB")
	}
}
