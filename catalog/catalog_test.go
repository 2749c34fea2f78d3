package catalog

import (
	"context"
	"testing"

	"github.com/nugetdepot/nugetdepot/entity"
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

func putVersion(t *testing.T, ctx context.Context, store *relstore.Store, id, version string, tags ...string) {
	t.Helper()
	tx := store.Begin(ctx)
	if err := tx.PutPackage(entity.Package{ID: id, Maintainer: "alice"}); err != nil {
		t.Fatalf("PutPackage failed: %v", err)
	}
	if err := tx.PutPackageVersion(entity.PackageVersion{ID: id, Version: version}); err != nil {
		t.Fatalf("PutPackageVersion failed: %v", err)
	}
	for _, tag := range tags {
		if err := tx.ConnectTag(ctx, id, tag); err != nil {
			t.Fatalf("ConnectTag failed: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

func TestFindPackagesByID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "foo", "1.0.0")
	putVersion(t, ctx, store, "foo", "2.0.0")

	versions, err := c.FindPackagesByID(ctx, "foo")
	if err != nil {
		t.Fatalf("FindPackagesByID failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("got %d versions, want 2", len(versions))
	}
}

func TestFindPackagesByIDMissing(t *testing.T) {
	ctx := context.Background()
	c := New(newTestStore(t))
	if _, err := c.FindPackagesByID(ctx, "nope"); err != entity.ErrNotFound {
		t.Fatalf("got err %v, want ErrNotFound", err)
	}
}

func TestLatestVersionExcludesPrereleaseByDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "foo", "1.0.0")
	putVersion(t, ctx, store, "foo", "2.0.0-beta")

	latest, err := c.LatestVersion(ctx, "foo", false)
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	if latest.Version != "1.0.0" {
		t.Errorf("got %q, want 1.0.0", latest.Version)
	}

	latest, err = c.LatestVersion(ctx, "foo", true)
	if err != nil {
		t.Fatalf("LatestVersion (with prerelease) failed: %v", err)
	}
	if latest.Version != "2.0.0-beta" {
		t.Errorf("got %q, want 2.0.0-beta", latest.Version)
	}
}

func TestSearchMatchesIDOrTag(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "jq", "1.6.0", "cli", "json")
	putVersion(t, ctx, store, "curl", "7.0.0", "http", "network")

	byID, err := c.Search(ctx, "jq", true)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != "jq" {
		t.Fatalf("got %+v, want one jq version", byID)
	}

	byTag, err := c.Search(ctx, "network", true)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "curl" {
		t.Fatalf("got %+v, want one curl version", byTag)
	}

	noMatch, err := c.Search(ctx, "nonexistent", true)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(noMatch) != 0 {
		t.Fatalf("got %+v, want no matches", noMatch)
	}
}

func TestGetUpdatesReturnsOnlyStrictlyNewerVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "foo", "1.0.0")
	putVersion(t, ctx, store, "foo", "1.5.0")
	putVersion(t, ctx, store, "foo", "2.0.0")

	updates, err := c.GetUpdates(ctx, []UpdateQuery{{ID: "foo", Version: "1.0.0"}}, false, true)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2 (1.5.0 and 2.0.0)", len(updates))
	}
}

func TestGetUpdatesNewestOnlyWithoutIncludeAllVersions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "foo", "1.0.0")
	putVersion(t, ctx, store, "foo", "1.5.0")
	putVersion(t, ctx, store, "foo", "2.0.0")

	updates, err := c.GetUpdates(ctx, []UpdateQuery{{ID: "foo", Version: "1.0.0"}}, false, false)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 1 || updates[0].Version != "2.0.0" {
		t.Fatalf("got %+v, want only 2.0.0", updates)
	}
}

func TestGetUpdatesExcludesPrereleaseByDefault(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "foo", "1.0.0")
	putVersion(t, ctx, store, "foo", "2.0.0-beta")

	updates, err := c.GetUpdates(ctx, []UpdateQuery{{ID: "foo", Version: "1.0.0"}}, false, true)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 0 {
		t.Fatalf("got %+v, want no updates since 2.0.0-beta is a prerelease", updates)
	}

	updates, err = c.GetUpdates(ctx, []UpdateQuery{{ID: "foo", Version: "1.0.0"}}, true, true)
	if err != nil {
		t.Fatalf("GetUpdates (with prerelease) failed: %v", err)
	}
	if len(updates) != 1 || updates[0].Version != "2.0.0-beta" {
		t.Fatalf("got %+v, want 2.0.0-beta", updates)
	}
}

func TestCompleteIDsPrefixMatchAndCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	putVersion(t, ctx, store, "foo.bar", "1.0.0")
	putVersion(t, ctx, store, "foo.baz", "1.0.0")
	putVersion(t, ctx, store, "other", "1.0.0")

	ids, err := c.CompleteIDs(ctx, "foo.", false)
	if err != nil {
		t.Fatalf("CompleteIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %v, want foo.bar and foo.baz", ids)
	}
}

func TestCompleteVersionsCapsAt30(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	c := New(store)

	for i := 0; i < 35; i++ {
		putVersion(t, ctx, store, "foo", versionN(i))
	}

	versions, err := c.CompleteVersions(ctx, "foo", true)
	if err != nil {
		t.Fatalf("CompleteVersions failed: %v", err)
	}
	if len(versions) != maxCompletionResults {
		t.Fatalf("got %d versions, want %d", len(versions), maxCompletionResults)
	}
}

func versionN(i int) string {
	return "1.0." + string(rune('0'+i%10)) + "-build" + string(rune('a'+i%26))
}
