// Package dbtest provides a shared Postgres testcontainer for integration
// tests (pkg/catalog's) that need a real database rather than fakes.
//
// Grounded on the teacher's test/util.SetupTestDatabase: one container
// started once per test binary via sync.Once, reused by every test in the
// run rather than paying container-startup cost per test. Unlike the
// teacher's per-test Ent-schema isolation, callers delete the rows they
// insert in t.Cleanup.
package dbtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wholesale-bot/resolver/pkg/config"
	"github.com/wholesale-bot/resolver/pkg/database"
)

var (
	sharedHost string
	sharedPort int
	once       sync.Once
	setupErr   error
)

// NewTestClient returns a database.Client connected to the shared
// testcontainer, with this project's migrations already applied. The
// container is started once per test binary and left running; callers
// only need to close what they open (the returned Client's pooled
// connections are safe to share across parallel tests).
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	ctx := context.Background()

	once.Do(func() {
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			setupErr = fmt.Errorf("starting shared postgres container: %w", err)
			return
		}
		sharedHost, err = pgContainer.Host(ctx)
		if err != nil {
			setupErr = fmt.Errorf("resolving container host: %w", err)
			return
		}
		port, err := pgContainer.MappedPort(ctx, "5432")
		if err != nil {
			setupErr = fmt.Errorf("resolving container port: %w", err)
			return
		}
		sharedPort = port.Int()
	})
	require.NoError(t, setupErr, "shared postgres container setup failed")

	cfg := config.Database{
		Host: sharedHost, Port: sharedPort,
		User: "test", Password: "test", Name: "test", SSLMode: "disable",
		MaxOpenConns: 5, MaxIdleConns: 2,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	}

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}
