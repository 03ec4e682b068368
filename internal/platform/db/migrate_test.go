package db

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"002_reviews.sql":    {Data: []byte("CREATE TABLE review (id UUID PRIMARY KEY);")},
		"001_scheduling.sql": {Data: []byte("CREATE TABLE slot (id UUID PRIMARY KEY);")},
		"README.md":          {Data: []byte("not a migration")},
		"notes.sql":          {Data: []byte("-- no numeric prefix")},
	}
}

func TestMigrator_Load(t *testing.T) {
	m := NewMigrator(nil, testMigrations())
	migrations, err := m.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_scheduling.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 {
		t.Errorf("expected version 2, got %d", migrations[1].Version)
	}
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version, applied_at FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version", "applied_at"}).AddRow(1, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE review").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs(2, "002_reviews.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := NewMigrator(mock, testMigrations()).Up(context.Background())
	if err != nil {
		t.Fatalf("Up() error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 applied migration, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMigrator_Status(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	appliedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT version, applied_at FROM schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"version", "applied_at"}).AddRow(1, appliedAt))

	statuses, err := NewMigrator(mock, testMigrations()).Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || !statuses[0].AppliedAt.Equal(appliedAt) {
		t.Errorf("expected first migration applied at %v, got %+v", appliedAt, statuses[0])
	}
	if statuses[1].Applied {
		t.Error("expected second migration pending")
	}
}
