// Package archive implements the content-addressed archive store of
// spec.md §4.4: one blob per (id, version) at
// <root>/<id>/<id>_<version>.nuget, guarded against both in-process and
// cross-process concurrent access. Grounded on storage/storage.go's
// FileSystem backend (path layout, directory creation) generalized with
// the open-mutex + OS advisory-lock discipline spec.md §4.4 and §5
// describe, using golang.org/x/sys/unix.Flock the way original_source
// has no direct analog for (the Rust implementation used a different
// locking crate; Flock is the idiomatic Go equivalent the example pack
// otherwise never needed).
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Backend is what lifecycle needs from an archive store: store, stream,
// and delete one blob per (id, version). FSStore and the S3-backed Store
// in s3.go both implement it.
type Backend interface {
	Store(id, version string, r io.Reader) error
	Get(id, version string) (io.ReadCloser, bool, error)
	Delete(id, version string) error
}

var _ Backend = (*adaptedFSStore)(nil)

// adaptedFSStore narrows FSStore's richer *Handle-returning Get to the
// plain io.ReadCloser Backend expects, so lifecycle can depend on
// Backend alone and swap filesystem/S3 storage transparently.
type adaptedFSStore struct{ *FSStore }

func (a adaptedFSStore) Get(id, version string) (io.ReadCloser, bool, error) {
	h, ok, err := a.FSStore.Get(id, version)
	if h == nil {
		return nil, ok, err
	}
	return h, ok, err
}

// AsBackend adapts an *FSStore to the Backend interface.
func (s *FSStore) AsBackend() Backend { return adaptedFSStore{s} }

// FSStore persists package archive blobs on a local filesystem path.
type FSStore struct {
	pathMu sync.Mutex // protects root, per spec.md §5's "path lock"
	root   string

	openMu sync.Mutex // serializes the open-existing-vs-create-new window
}

// NewFS constructs an FSStore rooted at root, creating it if necessary.
func NewFS(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create root %s: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// Root returns the store's configured root path.
func (s *FSStore) Root() string {
	s.pathMu.Lock()
	defer s.pathMu.Unlock()
	return s.root
}

func (s *FSStore) pathFor(id, version string) string {
	s.pathMu.Lock()
	root := s.root
	s.pathMu.Unlock()
	return filepath.Join(root, id, fmt.Sprintf("%s_%s.nuget", id, version))
}

// Handle is an open, locked archive file. Closing it releases the OS
// advisory lock.
type Handle struct {
	f *os.File
}

func (h *Handle) Read(p []byte) (int, error)  { return h.f.Read(p) }
func (h *Handle) Write(p []byte) (int, error) { return h.f.Write(p) }
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}
func (h *Handle) Close() error {
	_ = unix.Flock(int(h.f.Fd()), unix.LOCK_UN)
	return h.f.Close()
}

// ReadAt satisfies io.ReaderAt so a Handle can be fed directly to
// archive/zip.NewReader.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) { return h.f.ReadAt(p, off) }

// Size reports the current size of the underlying file.
func (h *Handle) Size() (int64, error) {
	fi, err := h.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Store atomically replaces the archive for (id, version) with the
// contents of r, per spec.md §4.4's store() algorithm: acquire the open
// mutex, drain any existing lock holder by acquiring-and-releasing an
// exclusive lock on the pre-existing file (if any), then truncate-create
// the file and acquire the new exclusive lock before releasing the open
// mutex. r is then streamed in under the new lock.
func (s *FSStore) Store(id, version string, r io.Reader) error {
	path := s.pathFor(id, version)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: create directory for %s/%s: %w", id, version, err)
	}

	s.openMu.Lock()
	if existing, err := os.Open(path); err == nil {
		if err := unix.Flock(int(existing.Fd()), unix.LOCK_EX); err != nil {
			existing.Close()
			s.openMu.Unlock()
			return fmt.Errorf("archive: lock existing %s: %w", path, err)
		}
		_ = unix.Flock(int(existing.Fd()), unix.LOCK_UN)
		existing.Close()
	} else if !os.IsNotExist(err) {
		s.openMu.Unlock()
		return fmt.Errorf("archive: stat existing %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		s.openMu.Unlock()
		return fmt.Errorf("archive: create %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		s.openMu.Unlock()
		return fmt.Errorf("archive: lock %s: %w", path, err)
	}
	s.openMu.Unlock()

	h := &Handle{f: f}
	defer h.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("archive: write %s: %w", path, err)
	}
	return f.Sync()
}

// Get opens the archive for (id, version) read-only, acquiring an
// exclusive lock as spec.md §4.4 requires (trading read parallelism for
// the guarantee that no concurrent rewrite can produce a torn read).
func (s *FSStore) Get(id, version string) (*Handle, bool, error) {
	path := s.pathFor(id, version)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("archive: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("archive: lock %s: %w", path, err)
	}
	return &Handle{f: f}, true, nil
}

// Rewrite drops oldHandle's lock and truncate-creates the same file for
// in-place rewriting, as used by UpdateMetadata to replace the
// nuspec-embedded metadata of an archive whose name is unchanged.
func (s *FSStore) Rewrite(id, version string, oldHandle *Handle) (*Handle, error) {
	path := s.pathFor(id, version)

	s.openMu.Lock()
	defer s.openMu.Unlock()

	if oldHandle != nil {
		_ = oldHandle.Close()
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: rewrite %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: lock %s: %w", path, err)
	}
	return &Handle{f: f}, nil
}

// Delete drains existing lock holders and unlinks the archive for
// (id, version). Unlink failure is logged by the caller, not propagated
// as a hard error, per spec.md §4.4.
func (s *FSStore) Delete(id, version string) error {
	path := s.pathFor(id, version)

	s.openMu.Lock()
	defer s.openMu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("archive: open %s for delete: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return fmt.Errorf("archive: lock %s for delete: %w", path, err)
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()

	return os.Remove(path)
}
