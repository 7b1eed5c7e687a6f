package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// storeUnderTest lets the same battery run against every implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	boltStore, err := NewBolt(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewBolt() error: %v", err)
	}
	t.Cleanup(func() {
		if err := boltStore.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})

	return map[string]Store{
		"memory": NewInMemory(),
		"bolt":   boltStore,
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "no-such-thread")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Get() err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStorePutGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "t1", []byte(`{"turn":1}`)); err != nil {
				t.Fatalf("Put() error: %v", err)
			}

			got, err := store.Get(ctx, "t1")
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if string(got) != `{"turn":1}` {
				t.Errorf("Get() = %s", got)
			}
		})
	}
}

func TestStoreLastWriteWins(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, payload := range []string{`{"turn":1}`, `{"turn":2}`, `{"turn":3}`} {
				if err := store.Put(ctx, "t1", []byte(payload)); err != nil {
					t.Fatalf("Put() #%d error: %v", i, err)
				}
			}

			got, err := store.Get(ctx, "t1")
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			if string(got) != `{"turn":3}` {
				t.Errorf("Get() = %s, want latest snapshot", got)
			}
		})
	}
}

func TestStoreIsolationBetweenThreads(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Put(ctx, "a", []byte("A")); err != nil {
				t.Fatal(err)
			}
			if err := store.Put(ctx, "b", []byte("B")); err != nil {
				t.Fatal(err)
			}

			got, err := store.Get(ctx, "a")
			if err != nil || string(got) != "A" {
				t.Errorf("Get(a) = (%s, %v)", got, err)
			}
		})
	}
}

func TestInMemoryCopiesSnapshots(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	payload := []byte("original")
	if err := store.Put(ctx, "t1", payload); err != nil {
		t.Fatal(err)
	}
	payload[0] = 'X'

	got, err := store.Get(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Errorf("Get() = %s, caller mutation leaked into store", got)
	}

	got[0] = 'Y'
	again, _ := store.Get(ctx, "t1")
	if string(again) != "original" {
		t.Errorf("Get() = %s, returned slice aliases stored data", again)
	}
}

func TestBoltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	ctx := context.Background()

	first, err := NewBolt(path)
	if err != nil {
		t.Fatalf("NewBolt() error: %v", err)
	}
	if err := first.Put(ctx, "t1", []byte("durable")); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := NewBolt(path)
	if err != nil {
		t.Fatalf("NewBolt() reopen error: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "t1")
	if err != nil || string(got) != "durable" {
		t.Errorf("Get() after reopen = (%s, %v)", got, err)
	}
}
