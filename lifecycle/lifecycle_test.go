package lifecycle

import (
	"archive/zip"
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/nugetdepot/nugetdepot/archive"
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

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store := newTestStore(t)
	fs, err := archive.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("archive.NewFS failed: %v", err)
	}
	return New(store, fs.AsBackend(), 0, metrics.Metrics{}, slog.New(slog.DiscardHandler))
}

func buildPackage(t *testing.T, id, version string, extra string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create(id + ".nuspec")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	nuspecBody := `<?xml version="1.0" encoding="utf-8"?>
<package>
  <metadata>
    <id>` + id + `</id>
    <version>` + version + `</version>
    <authors>Ada, Grace</authors>
    <tags>cli tools</tags>
    ` + extra + `
  </metadata>
</package>`
	if _, err := f.Write([]byte(nuspecBody)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return &buf
}

func TestUploadCreatesPackageAndVersion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	uploader := entity.User{ID: "alice", Confirmed: true}

	archiveBytes := buildPackage(t, "foo", "1.2.3", "")
	pv, err := e.Upload(ctx, uploader, bytes.NewReader(archiveBytes.Bytes()))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if pv.ID != "foo" || pv.Version != "1.2.3" {
		t.Fatalf("unexpected package version: %+v", pv)
	}

	pkg, err := e.store.GetPackage(ctx, "foo")
	if err != nil {
		t.Fatalf("GetPackage failed: %v", err)
	}
	if pkg.Maintainer != "alice" {
		t.Errorf("got maintainer %q, want alice", pkg.Maintainer)
	}

	h, ok, err := e.archive.Get("foo", "1.2.3")
	if err != nil || !ok {
		t.Fatalf("archive.Get failed: ok=%v err=%v", ok, err)
	}
	h.Close()
}

func TestUploadRejectsUnconfirmedUploader(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	uploader := entity.User{ID: "alice", Confirmed: false}

	archiveBytes := buildPackage(t, "foo", "1.0.0", "")
	if _, err := e.Upload(ctx, uploader, bytes.NewReader(archiveBytes.Bytes())); err == nil {
		t.Fatalf("expected error for unconfirmed uploader")
	}
}

func TestUploadRejectsNonMaintainer(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := entity.User{ID: "alice", Confirmed: true}
	bob := entity.User{ID: "bob", Confirmed: true}

	first := buildPackage(t, "foo", "1.0.0", "")
	if _, err := e.Upload(ctx, alice, bytes.NewReader(first.Bytes())); err != nil {
		t.Fatalf("initial upload failed: %v", err)
	}

	second := buildPackage(t, "foo", "1.1.0", "")
	if _, err := e.Upload(ctx, bob, bytes.NewReader(second.Bytes())); err == nil {
		t.Fatalf("expected PermissionDenied for a non-maintainer uploading a new version")
	}
}

func TestReuploadSameVersionReplacesArchiveAndRow(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := entity.User{ID: "alice", Confirmed: true}

	first := buildPackage(t, "foo", "1.0.0", "<description>first</description>")
	if _, err := e.Upload(ctx, alice, bytes.NewReader(first.Bytes())); err != nil {
		t.Fatalf("first upload failed: %v", err)
	}

	second := buildPackage(t, "foo", "1.0.0", "<description>second</description>")
	pv, err := e.Upload(ctx, alice, bytes.NewReader(second.Bytes()))
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if pv.Description != "second" {
		t.Errorf("got description %q, want second", pv.Description)
	}

	versions, err := e.store.ListPackageVersions(ctx, "foo")
	if err != nil {
		t.Fatalf("ListPackageVersions failed: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("expected exactly one version row after re-upload, got %d", len(versions))
	}
}

func TestDeleteVersionRemovesPackageWhenLastVersion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := entity.User{ID: "alice", Confirmed: true}

	data := buildPackage(t, "foo", "1.0.0", "")
	if _, err := e.Upload(ctx, alice, bytes.NewReader(data.Bytes())); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if err := e.DeleteVersion(ctx, alice, "foo", "1.0.0"); err != nil {
		t.Fatalf("DeleteVersion failed: %v", err)
	}

	if _, err := e.store.GetPackage(ctx, "foo"); err != entity.ErrNotFound {
		t.Errorf("expected package to be gone once its last version is deleted, got err=%v", err)
	}
	if _, ok, err := e.archive.Get("foo", "1.0.0"); err != nil || ok {
		t.Errorf("expected archive blob to be deleted, ok=%v err=%v", ok, err)
	}
}

func TestDeleteVersionBlockedByDependent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := entity.User{ID: "alice", Confirmed: true}

	dep := buildPackage(t, "bar", "1.0.0", "")
	if _, err := e.Upload(ctx, alice, bytes.NewReader(dep.Bytes())); err != nil {
		t.Fatalf("upload of dependency failed: %v", err)
	}

	dependent := buildPackage(t, "foo", "1.0.0", `<dependencies><dependency id="bar" version="[1.0.0]" /></dependencies>`)
	if _, err := e.Upload(ctx, alice, bytes.NewReader(dependent.Bytes())); err != nil {
		t.Fatalf("upload of dependent failed: %v", err)
	}

	err := e.DeleteVersion(ctx, alice, "bar", "1.0.0")
	if err == nil {
		t.Fatalf("expected BlockingDependency error")
	}
	var blockingErr *entity.BlockingDependencyError
	if !isBlockingDependencyError(err, &blockingErr) {
		t.Errorf("expected a BlockingDependencyError, got %v (%T)", err, err)
	}
}

func isBlockingDependencyError(err error, target **entity.BlockingDependencyError) bool {
	be, ok := err.(*entity.BlockingDependencyError)
	if ok {
		*target = be
	}
	return ok
}

func TestUpdateMetadataRewritesArchiveNuspec(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := entity.User{ID: "alice", Confirmed: true}

	data := buildPackage(t, "foo", "1.0.0", "<description>original</description>")
	if _, err := e.Upload(ctx, alice, bytes.NewReader(data.Bytes())); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	newDescription := "updated description"
	pv, err := e.UpdateMetadata(ctx, alice, "foo", "1.0.0", MetadataPatch{Description: &newDescription})
	if err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}
	if pv.Description != newDescription {
		t.Errorf("got description %q, want %q", pv.Description, newDescription)
	}

	h, ok, err := e.archive.Get("foo", "1.0.0")
	if err != nil || !ok {
		t.Fatalf("archive.Get failed: ok=%v err=%v", ok, err)
	}
	defer h.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(h); err != nil {
		t.Fatalf("read rewritten archive failed: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(newDescription)) {
		t.Errorf("rewritten archive does not contain the updated description")
	}
}

func TestTransferMaintainerRequiresCurrentMaintainerOrAdmin(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	alice := entity.User{ID: "alice", Confirmed: true}
	bob := entity.User{ID: "bob", Confirmed: true}

	data := buildPackage(t, "foo", "1.0.0", "")
	if _, err := e.Upload(ctx, alice, bytes.NewReader(data.Bytes())); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	if _, err := e.TransferMaintainer(ctx, bob, "foo", "bob"); err == nil {
		t.Fatalf("expected PermissionDenied for a non-maintainer transferring ownership")
	}

	pkg, err := e.TransferMaintainer(ctx, alice, "foo", "bob")
	if err != nil {
		t.Fatalf("TransferMaintainer failed: %v", err)
	}
	if pkg.Maintainer != "bob" {
		t.Errorf("got maintainer %q, want bob", pkg.Maintainer)
	}
}
