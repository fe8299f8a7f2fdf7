package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreEmptyState(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	state, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state != (State{}) {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestSQLiteStoreSaveAndClear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.SaveState(ctx, State{Token: "tok", ActiveRole: "trainer"}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if err := store.SaveActiveRole(ctx, "trainee"); err != nil {
		t.Fatalf("SaveActiveRole failed: %v", err)
	}

	state, err := store.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state.Token != "tok" || state.ActiveRole != "trainee" {
		t.Fatalf("unexpected state: %+v", state)
	}

	if err := store.ClearToken(ctx); err != nil {
		t.Fatalf("ClearToken failed: %v", err)
	}
	state, _ = store.LoadState(ctx)
	if state.Token != "" || state.ActiveRole != "trainee" {
		t.Fatalf("expected token cleared and role kept, got %+v", state)
	}

	if err := store.ClearState(ctx); err != nil {
		t.Fatalf("ClearState failed: %v", err)
	}
	if err := store.ClearState(ctx); err != nil {
		t.Fatalf("second ClearState failed: %v", err)
	}
	state, _ = store.LoadState(ctx)
	if state != (State{}) {
		t.Fatalf("expected empty state, got %+v", state)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "state.db") + "?mode=rwc"

	first, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := first.SaveToken(ctx, "persisted"); err != nil {
		t.Fatalf("SaveToken failed: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(dsn)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	state, err := second.LoadState(ctx)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if state.Token != "persisted" {
		t.Fatalf("expected persisted token, got %+v", state)
	}
}
