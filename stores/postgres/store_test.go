package postgres

import (
	"context"
	"os"
	"testing"

	"inkboard/core"
	"inkboard/stores/storetest"
)

// Set POSTGRES_TEST_DSN to a scratch database to run these.
func TestStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) core.Store {
		ctx := context.Background()
		s, err := NewStore(ctx, dsn)
		if err != nil {
			t.Fatalf("NewStore() failed: %v", err)
		}
		for _, table := range []string{"drawing_operations", "rooms"} {
			if _, err := s.db.ExecContext(ctx, "TRUNCATE "+table); err != nil {
				t.Fatal(err)
			}
		}
		t.Cleanup(func() { s.Close() })
		return s
	})
}
