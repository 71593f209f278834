//go:build integration
// +build integration

package registry_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/decisioncentral/feel"
	"github.com/liamcoop/decisioncentral/registry"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a migrated connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "decisions_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=decisions_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			if err = db.Ping(); err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_decision_services.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}
	return db, cleanup
}

func TestPostgresStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := registry.NewPostgresStore(db)
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := store.Save(&registry.Record{ID: id, Name: "premium", Format: registry.FormatWorkbook, Source: []byte("a"), UpdatedAt: now}); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	got, err := store.Get("premium")
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if got.ID != id {
		t.Errorf("Expected ID %s, got %s", id, got.ID)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("Expected updated_at %v, got %v", now, got.UpdatedAt)
	}

	if err := store.Save(&registry.Record{ID: id, Name: "premium", Format: registry.FormatDMN, Source: []byte("b"), UpdatedAt: now}); err != nil {
		t.Fatalf("Failed to replace record: %v", err)
	}
	records, err := store.List()
	if err != nil {
		t.Fatalf("Failed to list records: %v", err)
	}
	if len(records) != 1 || records[0].Format != registry.FormatDMN {
		t.Errorf("Expected one dmn record, got %+v", records)
	}

	if err := store.Delete("premium"); err != nil {
		t.Fatalf("Failed to delete record: %v", err)
	}
	if _, err := store.Get("premium"); err == nil {
		t.Error("Expected error when getting deleted record, got nil")
	}
}

func TestPostgresStore_RegistryReload(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	source, err := os.ReadFile(filepath.Join("testdata", "premium.yaml"))
	if err != nil {
		t.Fatalf("Failed to read workbook: %v", err)
	}

	first := registry.New(registry.NewPostgresStore(db), nil)
	if _, err := first.Register("premium", registry.FormatWorkbook, source); err != nil {
		t.Fatalf("Failed to register: %v", err)
	}

	// a fresh registry on the same database sees the service
	second := registry.New(registry.NewPostgresStore(db), nil)
	loaded, err := second.LoadAll()
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("Expected 1 service, got %d", loaded)
	}

	entry, err := second.Get("premium")
	if err != nil {
		t.Fatalf("Failed to get service: %v", err)
	}
	status, outcome := entry.Service.Decide(map[string]feel.Value{"Age": feel.Number(70)})
	if !status.OK() {
		t.Fatalf("Decide failed: %v", status.Errors)
	}
	last, ok := outcome.Last()
	if !ok {
		t.Fatal("Expected at least one record")
	}
	if got := last.Result["Risk"]; got != feel.Text("high") {
		t.Errorf("Expected Risk high, got %v", got)
	}
}
