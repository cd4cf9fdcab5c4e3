package msgstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
)

func TestLocalFileStore_PutAndGet(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	ctx := context.Background()
	data := []byte("hello, world")

	if err := store.Put(ctx, "rej-001.json", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "rej-001.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestLocalFileStore_GetNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	ctx := context.Background()
	_, err = store.Get(ctx, "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get non-existent: got err=%v, want ErrNotFound", err)
	}
}

func TestLocalFileStore_DeleteExisting(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	ctx := context.Background()
	data := []byte("to be deleted")

	if err := store.Put(ctx, "rej-del.json", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.Delete(ctx, "rej-del.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err = store.Get(ctx, "rej-del.json")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: got err=%v, want ErrNotFound", err)
	}
}

func TestLocalFileStore_DeleteIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete non-existent: got err=%v, want nil", err)
	}
}

func TestLocalFileStore_AutoCreateDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "dir")
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore with nested dir: %v", err)
	}

	ctx := context.Background()
	data := []byte("nested dir test")

	if err := store.Put(ctx, "rej-nested.json", data); err != nil {
		t.Fatalf("Put after auto-create: %v", err)
	}

	got, err := store.Get(ctx, "rej-nested.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestLocalFileStore_InvalidKey(t *testing.T) {
	store, err := NewLocalFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}
	ctx := context.Background()

	for _, key := range []string{"", ".", "..", "../escape.json", "a/b.json", `a\b.json`} {
		t.Run(key, func(t *testing.T) {
			if err := store.Put(ctx, key, []byte("x")); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Put(%q) = %v, want ErrInvalidKey", key, err)
			}
			if _, err := store.Get(ctx, key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Get(%q) = %v, want ErrInvalidKey", key, err)
			}
			if err := store.Delete(ctx, key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("Delete(%q) = %v, want ErrInvalidKey", key, err)
			}
		})
	}
}

func TestLocalFileStore_ConcurrentAccess(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("NewLocalFileStore: %v", err)
	}

	ctx := context.Background()
	const n = 50
	var wg sync.WaitGroup

	// Concurrent writes
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("rej-%02d.json", id)
			if err := store.Put(ctx, key, []byte(fmt.Sprintf("data-%d", id))); err != nil {
				t.Errorf("concurrent Put(%s): %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	// Concurrent reads
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("rej-%02d.json", id)
			got, err := store.Get(ctx, key)
			if err != nil {
				t.Errorf("concurrent Get(%s): %v", key, err)
				return
			}
			if want := fmt.Sprintf("data-%d", id); string(got) != want {
				t.Errorf("concurrent Get(%s) = %q, want %q", key, got, want)
			}
		}(i)
	}
	wg.Wait()
}
