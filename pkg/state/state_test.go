package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"twitchbot/pkg/logger"
)

func newTestFileStore(t *testing.T, path string, autoSave bool) *FileStore {
	t.Helper()
	store, err := NewFileStore(logger.NewNop(), &FileStoreConfig{FilePath: path, AutoSave: autoSave})
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	return store
}

func TestFileStoreIncrAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t, filepath.Join(t.TempDir(), "state.json"), false)
	defer store.Close()

	if _, ok, _ := store.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Incr(ctx, "uses:ping", 1); err != nil {
			t.Fatalf("incr: %v", err)
		}
	}
	got, err := store.Incr(ctx, "uses:ping", 2)
	if err != nil || got != 5 {
		t.Fatalf("expected 5, got %d (%v)", got, err)
	}

	v, ok, err := store.Get(ctx, "uses:ping")
	if err != nil || !ok || v != 5 {
		t.Fatalf("expected stored 5, got %d %v %v", v, ok, err)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	store := newTestFileStore(t, path, true)
	if _, err := store.Incr(ctx, "uses:so", 4); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Incr(ctx, "uses:dice", 1); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "uses:dice"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close is idempotent.
	if err := store.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	reopened := newTestFileStore(t, path, false)
	defer reopened.Close()

	all, err := reopened.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]int64{"uses:so": 4}, all); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestNewStoreRejectsUnknownBackend(t *testing.T) {
	if _, err := NewStore(logger.NewNop(), &Config{Backend: "etcd"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if _, err := NewStore(logger.NewNop(), &Config{Backend: BackendRedis}); err == nil {
		t.Fatal("expected error for redis without address")
	}
}

func TestRedisKeyPrefixing(t *testing.T) {
	s := &RedisStore{prefix: "twitchbot:state:"}
	if got := s.prefixKey("uses:ping"); got != "twitchbot:state:uses:ping" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := s.unprefixKey("twitchbot:state:uses:ping"); got != "uses:ping" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestUsageSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newTestFileStore(t, filepath.Join(t.TempDir(), "state.json"), false)
	defer store.Close()

	usage := NewUsage(store, logger.NewNop())
	usage.Record("ping", false)
	usage.Record("ping", false)
	usage.Record("so", true)

	got, err := usage.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]CommandUsage{
		"ping": {Uses: 2},
		"so":   {Uses: 1, Failures: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("usage mismatch (-want +got):\n%s", diff)
	}

	if err := usage.Reset(ctx, "so"); err != nil {
		t.Fatal(err)
	}
	got, _ = usage.Snapshot(ctx)
	if _, ok := got["so"]; ok {
		t.Fatalf("expected so to be reset, got %v", got)
	}
}
