// Package loggedstorage wraps an archive.Backend with an asynchronous
// access-log recorder, so every Store/Get/Delete of a package archive
// shows up in accesslog's per-day read/write/delete counts without the
// archive I/O path waiting on the log write.
package loggedstorage

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/nugetdepot/nugetdepot/accesslog"
	"github.com/nugetdepot/nugetdepot/archive"
	"github.com/nugetdepot/nugetdepot/metrics"
)

func New(ctx context.Context, log *slog.Logger, wrapped archive.Backend, accessLog *accesslog.AccessLog, m metrics.Metrics) (s *LoggedStorage, shutdown func(timeout time.Duration) error) {
	s = &LoggedStorage{
		wrapped: wrapped,
	}
	s.c, shutdown = newBufferedAccessLog(ctx, log, accessLog, m, 2048)
	return s, shutdown
}

var _ archive.Backend = &LoggedStorage{}

type LoggedStorage struct {
	wrapped archive.Backend
	c       chan event
}

func name(id, version string) string {
	return id + "/" + version
}

func (ls *LoggedStorage) Store(id, version string, r io.Reader) error {
	err := ls.wrapped.Store(id, version, r)
	if err != nil {
		return err
	}
	ls.c <- newEvent(name(id, version), eventTypeWrite)
	return nil
}

func (ls *LoggedStorage) Get(id, version string) (r io.ReadCloser, exists bool, err error) {
	r, exists, err = ls.wrapped.Get(id, version)
	if err != nil {
		return r, exists, err
	}
	ls.c <- newEvent(name(id, version), eventTypeRead)
	return r, exists, err
}

func (ls *LoggedStorage) Delete(id, version string) error {
	if err := ls.wrapped.Delete(id, version); err != nil {
		return err
	}
	ls.c <- newEvent(name(id, version), eventTypeDelete)
	return nil
}
