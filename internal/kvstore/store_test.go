package kvstore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/sreq-inc/solo/internal/errdef"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	if _, ok, err := store.Get("missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := store.Set("b", "[]"); err != nil {
		t.Fatalf("set b: %v", err)
	}
	if err := store.Set("a", `[{"fileName":"x"}]`); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := store.Set("b", "[1]"); err != nil {
		t.Fatalf("overwrite b: %v", err)
	}

	value, ok, err := store.Get("b")
	if err != nil || !ok || value != "[1]" {
		t.Fatalf("get b = %q ok=%v err=%v", value, ok, err)
	}

	keys, err := store.Keys()
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	if err := store.Remove("a"); err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if err := store.Remove("a"); err != nil {
		t.Fatalf("removing twice should be a no-op: %v", err)
	}
	if _, ok, _ := store.Get("a"); ok {
		t.Fatalf("expected a to be gone")
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewMemory())
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "store.json")
	exerciseStore(t, NewFile(path))

	reopened := NewFile(path)
	value, ok, err := reopened.Get("b")
	if err != nil || !ok || value != "[1]" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", value, ok, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be renamed away, stat err=%v", err)
	}
}

func TestFileStoreMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewFile(path)
	if err := store.Load(); !errdef.Is(err, errdef.CodeMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	dsn := "file:kvstore_" + uuid.NewString() + "?mode=memory&cache=shared"
	store, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("SOLO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SOLO_TEST_REDIS_ADDR not set")
	}

	store, err := OpenRedis(RedisOptions{Addr: addr, Prefix: "solo-test-" + uuid.NewString() + ":"})
	if err != nil {
		t.Fatalf("open redis: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Remove("b")
		_ = store.Close()
	})
	exerciseStore(t, store)
}

func TestOpenRedisRequiresAddr(t *testing.T) {
	t.Parallel()

	if _, err := OpenRedis(RedisOptions{}); !errdef.Is(err, errdef.CodeConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()

	if got := escapeGlob("ws[1]*"); got != `ws\[1\]\*` {
		t.Fatalf("unexpected escape %q", got)
	}
}
