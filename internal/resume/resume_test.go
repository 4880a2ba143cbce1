package resume

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), ":memory:", testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore_UpsertAndGet(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	p := Partial{URL: "http://example.test/a.zip", Target: "/a.zip", ExpectedHash: "abc", ExpectedSize: 100, BytesWritten: 40}

	if err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok, err := store.Get(ctx, p.URL)
	if err != nil || !ok {
		t.Fatalf("Get = %+v, ok=%v, err=%v", got, ok, err)
	}

	if got.BytesWritten != 40 {
		t.Errorf("BytesWritten = %d, want 40", got.BytesWritten)
	}
}

func TestStore_UpsertUpdatesExistingRow(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	p := Partial{URL: "http://example.test/a.zip", Target: "/a.zip", ExpectedHash: "abc", ExpectedSize: 100, BytesWritten: 40}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.BytesWritten = 100
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatal(err)
	}

	got, _, err := store.Get(ctx, p.URL)
	if err != nil {
		t.Fatal(err)
	}

	if got.BytesWritten != 100 {
		t.Errorf("BytesWritten = %d, want 100 after update", got.BytesWritten)
	}
}

func TestStore_Get_Missing(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)

	_, ok, err := store.Get(context.Background(), "http://example.test/missing")
	if err != nil {
		t.Fatal(err)
	}

	if ok {
		t.Error("expected ok=false for missing url")
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	p := Partial{URL: "http://example.test/a.zip", Target: "/a.zip"}
	if err := store.Upsert(ctx, p); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, p.URL); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, ok, err := store.Get(ctx, p.URL)
	if err != nil {
		t.Fatal(err)
	}

	if ok {
		t.Error("expected record to be gone after Delete")
	}
}

func TestStore_Stale(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	old := Partial{URL: "http://example.test/old.zip", Target: "/old.zip", StartedAt: time.Now().Add(-time.Hour)}
	if err := store.Upsert(ctx, old); err != nil {
		t.Fatal(err)
	}

	stale, err := store.Stale(ctx, time.Now())
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}

	if len(stale) != 1 || stale[0].URL != old.URL {
		t.Errorf("Stale = %+v, want one entry for %s", stale, old.URL)
	}
}
