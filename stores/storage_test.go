package stores

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"inkboard/core"
)

func TestGetStoreDefaultsToMemory(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "")
	s, err := GetStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(core.SnapshotStore); ok {
		t.Error("memory store should not provide snapshots")
	}
}

func TestGetStoreSQLite(t *testing.T) {
	t.Setenv("STORAGE_TYPE", "sqlite")
	t.Setenv("DATA_SOURCE_NAME", filepath.Join(t.TempDir(), "board.db"))
	s, err := GetStore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c, ok := s.(io.Closer); ok {
		t.Cleanup(func() { c.Close() })
	}
	if _, ok := s.(core.SnapshotStore); !ok {
		t.Error("sqlite store should provide snapshots")
	}
}

func TestGetStoreRequiresSettings(t *testing.T) {
	for _, kind := range []string{"postgres", "s3"} {
		t.Setenv("STORAGE_TYPE", kind)
		t.Setenv("POSTGRES_DSN", "")
		t.Setenv("S3_BUCKET_NAME", "")
		if _, err := GetStore(context.Background()); err == nil {
			t.Errorf("%s: expected an error without settings", kind)
		}
	}
}
