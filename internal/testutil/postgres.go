// Package testutil provides test helpers including container management
// and test client utilities.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marchaven/roadband/internal/config"
	"github.com/marchaven/roadband/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

var (
	sharedOnce sync.Once
	sharedPool *pgxpool.Pool
	sharedErr  error
)

// NewPool returns a pgx pool backed by a shared PostgreSQL test container
// with the roster schema applied. The container starts once per test binary
// and is torn down by the testcontainers reaper.
//
// Precondition: Docker must be available.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	sharedOnce.Do(func() {
		pc, err := startContainer(context.Background())
		if err != nil {
			sharedErr = err
			return
		}
		if err := applySchema(context.Background(), pc.RawPool); err != nil {
			sharedErr = err
			return
		}
		sharedPool = pc.RawPool
	})
	if sharedErr != nil {
		t.Fatalf("shared postgres container: %v", sharedErr)
	}
	return sharedPool
}

// NewPostgresContainer starts a dedicated PostgreSQL test container and
// returns a connected Pool. Prefer NewPool for repository tests; this is for
// tests that need an isolated database.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	pc, err := startContainer(ctx)
	if err != nil {
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	t.Cleanup(func() {
		pc.Pool.Close()
		_ = pc.container.Terminate(ctx)
	})

	return pc
}

func startContainer(ctx context.Context) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("getting mapped port: %w", err)
	}

	dbCfg := config.DatabaseConfig{
		Host:            host,
		Port:            mappedPort.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.NewPool(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to test postgres: %w", err)
	}

	return &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}, nil
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: The roster tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	start := time.Now()
	if err := applySchema(context.Background(), pc.RawPool); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// applySchema mirrors migrations/000001_create_parties.up.sql.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS parties (
			id         BIGSERIAL    PRIMARY KEY,
			name       TEXT         NOT NULL UNIQUE,
			road_id    TEXT,
			wave_index INT          NOT NULL DEFAULT 0 CHECK (wave_index >= 0),
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS heroes (
			id         BIGSERIAL        PRIMARY KEY,
			party_id   BIGINT           NOT NULL REFERENCES parties(id) ON DELETE CASCADE,
			hero_id    TEXT             NOT NULL,
			name       TEXT             NOT NULL,
			archetype  TEXT             NOT NULL,
			slot       INT              NOT NULL CHECK (slot >= 0 AND slot < 5),
			level      INT              NOT NULL DEFAULT 1 CHECK (level >= 1),
			experience INT              NOT NULL DEFAULT 0 CHECK (experience >= 0),
			health     DOUBLE PRECISION NOT NULL,
			resource   DOUBLE PRECISION NOT NULL,
			equipment  JSONB,
			created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
			UNIQUE (party_id, slot),
			UNIQUE (party_id, hero_id)
		);
		CREATE INDEX IF NOT EXISTS idx_heroes_party_id ON heroes (party_id);
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// DSN returns the connection string for the test database.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pc.Config.User, pc.Config.Password,
		pc.Config.Host, pc.Config.Port,
		pc.Config.Name, pc.Config.SSLMode,
	)
}
