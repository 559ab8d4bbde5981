// Package dbtest provides a migrated PostgreSQL schema for integration tests.
// It connects to TEST_DATABASE_URL when set and otherwise starts a throwaway
// postgres:16-alpine container with testcontainers-go.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/carevault/carevault/internal/platform/db"
)

// New returns a pool whose search_path is a fresh schema with every embedded
// migration applied. The schema, and the container if one was started, are
// removed when t finishes.
func New(t testing.TB) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		var stop func()
		var err error
		connStr, stop, err = startContainer(ctx)
		if err != nil {
			t.Skipf("TEST_DATABASE_URL unset and no container runtime: %v", err)
		}
		t.Cleanup(stop)
	}

	schema := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	admin, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool, db.EmbeddedMigrations()).Up(ctx, schema); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func startContainer(ctx context.Context) (string, func(), error) {
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image: "postgres:16-alpine",
			Env: map[string]string{
				"POSTGRES_USER":     "carevault",
				"POSTGRES_PASSWORD": "carevault",
				"POSTGRES_DB":       "carevault_test",
			},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start postgres container: %w", err)
	}
	stop := func() { _ = c.Terminate(context.Background()) }

	host, err := c.Host(ctx)
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("container host: %w", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://carevault:carevault@%s:%s/carevault_test?sslmode=disable", host, port.Port())
	if err := waitForPostgres(ctx, connStr); err != nil {
		stop()
		return "", nil, err
	}
	return connStr, stop, nil
}

func waitForPostgres(ctx context.Context, connStr string) error {
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		pool, err := pgxpool.New(pingCtx, connStr)
		if err == nil {
			err = pool.Ping(pingCtx)
			pool.Close()
		}
		cancel()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready: %w", err)
		case <-time.After(500 * time.Millisecond):
		}
	}
}
