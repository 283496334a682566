package store

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// startPostgres runs a disposable PostgreSQL container and returns its URL.
// The test is skipped when no container runtime is available.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("tenderq_test"),
		tcpostgres.WithUsername("tenderq"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := ctr.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return connStr
}

func TestPostgresContract(t *testing.T) {
	url := startPostgres(t)
	ctx := context.Background()

	open := func(t *testing.T) Store {
		p, err := OpenPostgres(ctx, url, 8)
		if err != nil {
			t.Fatalf("OpenPostgres: %v", err)
		}
		if _, err := p.pool.Exec(ctx, `TRUNCATE work_items RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = p.Close() })
		return p
	}

	runContract(t, open)

	t.Run("ClaimRace", func(t *testing.T) {
		runClaimRace(t, open(t), 16)
	})
}
