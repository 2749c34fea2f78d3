package relstore

import (
	"context"
	"testing"

	"github.com/nugetdepot/nugetdepot/entity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, closer, err := New(context.Background(), "sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = closer() })
	return s
}

func TestPackageCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx := s.Begin(ctx)
	pkg := entity.Package{ID: "foo", Maintainer: "alice"}
	if err := tx.PutPackage(pkg); err != nil {
		t.Fatalf("PutPackage failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	got, err := s.GetPackage(ctx, "foo")
	if err != nil {
		t.Fatalf("GetPackage failed: %v", err)
	}
	if got.Maintainer != "alice" {
		t.Errorf("got maintainer %q, want alice", got.Maintainer)
	}

	if _, err := s.GetPackage(ctx, "missing"); err != entity.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTagConnectDisconnectGarbageCollects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx := s.Begin(ctx)
	if err := tx.ConnectTag(ctx, "foo", "utility"); err != nil {
		t.Fatalf("ConnectTag failed: %v", err)
	}
	if err := tx.ConnectTag(ctx, "bar", "utility"); err != nil {
		t.Fatalf("ConnectTag failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tags, err := s.ListPackageTags(ctx, "foo")
	if err != nil {
		t.Fatalf("ListPackageTags failed: %v", err)
	}
	if len(tags) != 1 || tags[0].ID != "utility" {
		t.Fatalf("unexpected tags: %+v", tags)
	}

	pkgs, err := s.ListTagPackages(ctx, "utility")
	if err != nil {
		t.Fatalf("ListTagPackages failed: %v", err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("expected 2 packages for tag, got %d", len(pkgs))
	}

	// Disconnecting one referrer leaves the Tag row alive.
	tx = s.Begin(ctx)
	if err := tx.DisconnectTag(ctx, "foo", "utility"); err != nil {
		t.Fatalf("DisconnectTag failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, ok, err := getJSON[entity.Tag](ctx, s, tagKey("utility")); err != nil || !ok {
		t.Fatalf("expected tag to still exist, ok=%v err=%v", ok, err)
	}

	// Disconnecting the last referrer garbage-collects the Tag row.
	tx = s.Begin(ctx)
	if err := tx.DisconnectTag(ctx, "bar", "utility"); err != nil {
		t.Fatalf("DisconnectTag failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, ok, err := getJSON[entity.Tag](ctx, s, tagKey("utility")); err != nil || ok {
		t.Fatalf("expected tag to be garbage-collected, ok=%v err=%v", ok, err)
	}
}

func TestDependencyConnectDisconnectGarbageCollects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx := s.Begin(ctx)
	if err := tx.ConnectDependency(ctx, "foo", "1.0.0", "bar", ">=1.0.0"); err != nil {
		t.Fatalf("ConnectDependency failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := s.GetDependency(ctx, "bar", ">=1.0.0"); err != nil {
		t.Fatalf("GetDependency failed: %v", err)
	}

	tx = s.Begin(ctx)
	if err := tx.DisconnectDependency(ctx, "foo", "1.0.0", "bar", ">=1.0.0"); err != nil {
		t.Fatalf("DisconnectDependency failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := s.GetDependency(ctx, "bar", ">=1.0.0"); err != entity.ErrNotFound {
		t.Errorf("expected dependency to be garbage-collected, got err=%v", err)
	}
}

func TestTxRollbackRestoresPriorState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx := s.Begin(ctx)
	if err := tx.PutPackage(entity.Package{ID: "foo", Maintainer: "alice"}); err != nil {
		t.Fatalf("PutPackage failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tx = s.Begin(ctx)
	if err := tx.PutPackage(entity.Package{ID: "foo", Maintainer: "bob"}); err != nil {
		t.Fatalf("PutPackage failed: %v", err)
	}
	if err := tx.DeletePackage("foo"); err != nil {
		t.Fatalf("DeletePackage failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	got, err := s.GetPackage(ctx, "foo")
	if err != nil {
		t.Fatalf("GetPackage after rollback failed: %v", err)
	}
	if got.Maintainer != "alice" {
		t.Errorf("after rollback, got maintainer %q, want alice (pre-transaction state)", got.Maintainer)
	}
}

func TestUserSecondaryIndexes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tx := s.Begin(ctx)
	u := entity.User{ID: "alice", MailKey: "key-1", APIKey: "api-1"}
	if err := tx.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if got, err := s.GetUserByMailKey(ctx, "key-1"); err != nil || got.ID != "alice" {
		t.Fatalf("GetUserByMailKey failed: got=%+v err=%v", got, err)
	}
	if got, err := s.GetUserByAPIKey(ctx, "api-1"); err != nil || got.ID != "alice" {
		t.Fatalf("GetUserByAPIKey failed: got=%+v err=%v", got, err)
	}

	// Rotating the API key drops the old secondary index entry.
	tx = s.Begin(ctx)
	u.APIKey = "api-2"
	if err := tx.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := s.GetUserByAPIKey(ctx, "api-1"); err != entity.ErrNotFound {
		t.Errorf("expected old api key to be gone, got err=%v", err)
	}
	if got, err := s.GetUserByAPIKey(ctx, "api-2"); err != nil || got.ID != "alice" {
		t.Fatalf("GetUserByAPIKey(new) failed: got=%+v err=%v", got, err)
	}
}
