//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var connString string

func TestMain(m *testing.M) {
	ctx := context.Background()

	log.Println("Starting Postgres container...")
	container, conn, err := setupPostgres(ctx)
	if err != nil {
		log.Fatalf("Failed to start postgres: %v", err)
	}
	connString = conn
	log.Println("Postgres container started")

	exitCode := m.Run()

	if err := container.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate postgres container: %v", err)
	}
	os.Exit(exitCode)
}

func setupPostgres(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("deploycheck"),
		postgres.WithUsername("deploycheck"),
		postgres.WithPassword("deploycheck"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	conn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}
	return container, conn, nil
}
