package resolver

import (
	"context"
	"testing"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/metrics"
	"github.com/nugetdepot/nugetdepot/relstore"
)

func newTestStore(t *testing.T) *relstore.Store {
	t.Helper()
	s, closer, err := relstore.New(context.Background(), "sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = closer() })
	return s
}

func putVersion(t *testing.T, ctx context.Context, s *relstore.Store, id, version string) {
	t.Helper()
	tx := s.Begin(ctx)
	if err := tx.PutPackageVersion(entity.PackageVersion{ID: id, Version: version}); err != nil {
		t.Fatalf("PutPackageVersion failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func connectDependency(t *testing.T, ctx context.Context, s *relstore.Store, fromID, fromVersion, depID, req string) {
	t.Helper()
	tx := s.Begin(ctx)
	if err := tx.ConnectDependency(ctx, fromID, fromVersion, depID, req); err != nil {
		t.Fatalf("ConnectDependency failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestNewestResolution(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putVersion(t, ctx, s, "bar", "1.0.0")
	putVersion(t, ctx, s, "bar", "1.5.0")
	putVersion(t, ctx, s, "bar", "2.0.0")
	connectDependency(t, ctx, s, "foo", "1.0.0", "bar", "[1.0.0,2.0.0)")

	r := New(s, metrics.Metrics{})
	dep, err := s.GetDependency(ctx, "bar", "[1.0.0,2.0.0)")
	if err != nil {
		t.Fatalf("GetDependency failed: %v", err)
	}

	newest, err := r.NewestResolution(ctx, dep)
	if err != nil {
		t.Fatalf("NewestResolution failed: %v", err)
	}
	if newest.Version != "1.5.0" {
		t.Errorf("got newest resolution %q, want 1.5.0 (2.0.0 excluded by exclusive upper bound)", newest.Version)
	}
}

func TestBlockingDependents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putVersion(t, ctx, s, "bar", "1.0.0")
	connectDependency(t, ctx, s, "foo", "1.0.0", "bar", "[1.0.0]")

	r := New(s, metrics.Metrics{})
	pv, err := s.GetPackageVersion(ctx, "bar", "1.0.0")
	if err != nil {
		t.Fatalf("GetPackageVersion failed: %v", err)
	}

	blocking, err := r.BlockingDependents(ctx, pv)
	if err != nil {
		t.Fatalf("BlockingDependents failed: %v", err)
	}
	if len(blocking) != 1 {
		t.Fatalf("expected 1 blocking dependent, got %d", len(blocking))
	}
	if blocking[0].ID != "bar" {
		t.Errorf("unexpected blocking dependent: %+v", blocking[0])
	}
}

func TestBlockingDependentsEmptyWhenAlternativeExists(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putVersion(t, ctx, s, "bar", "1.0.0")
	putVersion(t, ctx, s, "bar", "1.1.0")
	connectDependency(t, ctx, s, "foo", "1.0.0", "bar", "[1.0.0,)")

	r := New(s, metrics.Metrics{})
	pv, err := s.GetPackageVersion(ctx, "bar", "1.0.0")
	if err != nil {
		t.Fatalf("GetPackageVersion failed: %v", err)
	}

	blocking, err := r.BlockingDependents(ctx, pv)
	if err != nil {
		t.Fatalf("BlockingDependents failed: %v", err)
	}
	if len(blocking) != 0 {
		t.Fatalf("expected no blocking dependents when 1.1.0 can also resolve the requirement, got %d", len(blocking))
	}
}

func TestCurrentDependents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	putVersion(t, ctx, s, "bar", "1.0.0")
	putVersion(t, ctx, s, "bar", "2.0.0")
	connectDependency(t, ctx, s, "foo", "1.0.0", "bar", "[1.0.0,)")

	r := New(s, metrics.Metrics{})
	newestPV, err := s.GetPackageVersion(ctx, "bar", "2.0.0")
	if err != nil {
		t.Fatalf("GetPackageVersion failed: %v", err)
	}
	current, err := r.CurrentDependents(ctx, newestPV)
	if err != nil {
		t.Fatalf("CurrentDependents failed: %v", err)
	}
	if len(current) != 1 {
		t.Fatalf("expected 2.0.0 to be the current resolution, got %d dependents", len(current))
	}

	olderPV, err := s.GetPackageVersion(ctx, "bar", "1.0.0")
	if err != nil {
		t.Fatalf("GetPackageVersion failed: %v", err)
	}
	currentOlder, err := r.CurrentDependents(ctx, olderPV)
	if err != nil {
		t.Fatalf("CurrentDependents failed: %v", err)
	}
	if len(currentOlder) != 0 {
		t.Fatalf("expected 1.0.0 not to be the current resolution once 2.0.0 exists, got %d", len(currentOlder))
	}
}
