package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "quiz.db") + "?_pragma=foreign_keys(1)"
	dbh, err := Open(context.Background(), DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer dbh.Close()

	for _, table := range []string{"user_profiles", "quizzes", "questions", "quiz_attempts", "answers", "event_log"} {
		var n int
		if err := dbh.QueryRow(`SELECT COUNT(1) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("table %s: %v", table, err)
		}
	}

	// schema is idempotent
	if err := ensureSchema(context.Background(), dbh, DriverSQLite); err != nil {
		t.Fatalf("second ensureSchema: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Driver("mysql"), ""); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
