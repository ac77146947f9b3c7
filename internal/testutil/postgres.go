// Package testutil provides test helpers including container management
// and test client utilities.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ghostline/ghostline/internal/config"
	"github.com/ghostline/ghostline/internal/storage/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	container testcontainers.Container
	Pool      *postgres.Pool
	RawPool   *pgxpool.Pool
	Config    config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container and returns
// a connected Pool.
//
// Precondition: Docker must be available.
// Postcondition: Returns a running container with a connected pool,
// or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

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
		t.Fatalf("starting postgres container: %v [%s]", err, time.Since(start))
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
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
		t.Fatalf("connecting to test postgres: %v [%s]", err, time.Since(start))
	}

	t.Logf("postgres container started [%s]", time.Since(start))

	pc := &PostgresContainer{
		container: container,
		Pool:      pool,
		RawPool:   pool.DB(),
		Config:    dbCfg,
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(ctx)
	})

	return pc
}

// ApplyMigrations runs the schema creation SQL directly for tests.
// This avoids requiring the migrate tool in the test environment.
//
// Precondition: Pool must be connected.
// Postcondition: The room and game-state tables exist in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	start := time.Now()

	schema := `
		CREATE TABLE IF NOT EXISTS game_rooms (
			name          VARCHAR(64)  PRIMARY KEY,
			password_hash TEXT         NOT NULL DEFAULT '',
			game_name     VARCHAR(64)  NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS game_states (
			room_name VARCHAR(64) PRIMARY KEY REFERENCES game_rooms (name) ON DELETE CASCADE,
			state_id  UUID        NOT NULL UNIQUE
		);
		CREATE TABLE IF NOT EXISTS game_flags (
			state_id UUID         NOT NULL REFERENCES game_states (state_id) ON DELETE CASCADE,
			flag     VARCHAR(128) NOT NULL,
			PRIMARY KEY (state_id, flag)
		);
		CREATE TABLE IF NOT EXISTS game_characters (
			state_id     UUID         NOT NULL REFERENCES game_states (state_id) ON DELETE CASCADE,
			name         VARCHAR(64)  NOT NULL,
			display_name VARCHAR(128) NOT NULL DEFAULT '',
			room_name    VARCHAR(64)  NOT NULL,
			PRIMARY KEY (state_id, name)
		);
		CREATE TABLE IF NOT EXISTS game_npcs (
			state_id     UUID         NOT NULL REFERENCES game_states (state_id) ON DELETE CASCADE,
			name         VARCHAR(64)  NOT NULL,
			display_name VARCHAR(128) NOT NULL DEFAULT '',
			room_name    VARCHAR(64)  NOT NULL,
			PRIMARY KEY (state_id, name)
		);
		CREATE TABLE IF NOT EXISTS character_inventories (
			state_id       UUID        NOT NULL,
			character_name VARCHAR(64) NOT NULL,
			item_name      VARCHAR(64) NOT NULL,
			PRIMARY KEY (state_id, character_name, item_name),
			FOREIGN KEY (state_id, character_name)
				REFERENCES game_characters (state_id, name) ON DELETE CASCADE
		);
	`

	_, err := pc.RawPool.Exec(ctx, schema)
	if err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	t.Logf("migrations applied [%s]", time.Since(start))
}

// NewStore starts a container, applies the schema, and returns a ready
// postgres.Store.
func NewStore(t *testing.T) *postgres.Store {
	t.Helper()
	pc := NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewStore(pc.Pool)
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
