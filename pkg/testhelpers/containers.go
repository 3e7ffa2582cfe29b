// Package testhelpers provides shared fixtures for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ekaya-inc/text2sql/pkg/config"
)

// SandboxImage is the PostgreSQL image used for sandbox integration tests.
const SandboxImage = "postgres:16-alpine"

// sandboxSchema mirrors the tables described by the knowledge catalog
// fixtures so EXPLAIN sees the same names the pipeline generates against.
const sandboxSchema = `
CREATE TABLE players (
    player_id     BIGINT PRIMARY KEY,
    country       TEXT NOT NULL,
    vip_tier      TEXT,
    registered_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE deposits (
    deposit_id BIGINT PRIMARY KEY,
    player_id  BIGINT NOT NULL REFERENCES players(player_id),
    amount     NUMERIC(12,2) NOT NULL,
    status     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

INSERT INTO players (player_id, country, vip_tier, registered_at) VALUES
    (1, 'DE', 'gold', '2024-01-15T10:00:00Z'),
    (2, 'GB', NULL, '2024-03-02T08:30:00Z'),
    (3, 'BR', 'vip', '2024-06-20T19:45:00Z');

INSERT INTO deposits (deposit_id, player_id, amount, status, created_at) VALUES
    (10, 1, 250.00, 'settled', '2024-07-01T12:00:00Z'),
    (11, 1, 100.00, 'settled', '2024-07-15T09:10:00Z'),
    (12, 2, 75.50, 'failed', '2024-07-16T14:20:00Z'),
    (13, 3, 500.00, 'settled', '2024-08-01T16:05:00Z');
`

// SandboxDB holds a shared sandbox container and connection pool.
type SandboxDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	Host      string
	Port      int
}

var (
	sharedSandbox     *SandboxDB
	sharedSandboxOnce sync.Once
	sharedSandboxErr  error
)

// GetSandboxDB returns a shared PostgreSQL container seeded with the test
// schema. The container is created once and reused across all tests in the
// run.
func GetSandboxDB(t *testing.T) *SandboxDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedSandboxOnce.Do(func() {
		sharedSandbox, sharedSandboxErr = setupSandboxDB()
	})

	if sharedSandboxErr != nil {
		t.Fatalf("Failed to setup sandbox database: %v", sharedSandboxErr)
	}

	return sharedSandbox
}

// Config returns a sandbox configuration pointing at the container.
func (s *SandboxDB) Config() *config.SandboxConfig {
	return &config.SandboxConfig{
		Type:                  "postgres",
		Host:                  s.Host,
		Port:                  s.Port,
		User:                  "text2sql",
		Password:              "test_password",
		Database:              "sandbox_test",
		SSLMode:               "disable",
		ExplainTimeoutSeconds: 5,
		MaxConnections:        5,
	}
}

func setupSandboxDB() (*SandboxDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        SandboxImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "sandbox_test",
			"POSTGRES_USER":     "text2sql",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start sandbox container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://text2sql:test_password@%s:%d/sandbox_test?sslmode=disable",
		host, port.Int())

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	if _, err := pool.Exec(ctx, sandboxSchema); err != nil {
		return nil, fmt.Errorf("failed to seed sandbox schema: %w", err)
	}

	return &SandboxDB{
		Container: container,
		Pool:      pool,
		Host:      host,
		Port:      port.Int(),
	}, nil
}
