package downloadcounter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/metrics"
	"github.com/nugetdepot/nugetdepot/relstore"
)

// DownloadEvent is one recorded download of a package version.
type DownloadEvent struct {
	ID      string
	Version string
}

// NewBufferedCounter starts a background worker draining counter and, for
// each event, bumps the day-bucketed counter and PackageVersion's
// DownloadCount in store. Overflow beyond bufferSize blocks the sender;
// callers on the download hot path should send non-blocking and drop on
// a full channel rather than stall the response.
func NewBufferedCounter(ctx context.Context, log *slog.Logger, store *relstore.Store, m metrics.Metrics, bufferSize int) (counter chan DownloadEvent, shutdown func()) {
	counter = make(chan DownloadEvent, bufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c := New(store.KV())
		for event := range counter {
			log.Debug("recording download", "id", event.ID, "version", event.Version)
			if err := c.Increment(ctx, event.ID, event.Version); err != nil {
				log.Error("failed to record download", slog.String("id", event.ID), slog.String("version", event.Version), slog.Any("error", err))
				m.IncrementDownloadCounterErrors(ctx, event.ID)
				continue
			}
			if err := incrementDownloadCount(ctx, store, event.ID, event.Version); err != nil {
				log.Error("failed to update version download count", slog.String("id", event.ID), slog.String("version", event.Version), slog.Any("error", err))
				m.IncrementDownloadCounterErrors(ctx, event.ID)
			}
		}
	}()

	shutdown = func() {
		close(counter)
		wg.Wait()
	}

	return counter, shutdown
}

func incrementDownloadCount(ctx context.Context, store *relstore.Store, id, version string) error {
	pv, err := store.GetPackageVersion(ctx, id, version)
	if err != nil {
		if err == entity.ErrNotFound {
			return nil
		}
		return err
	}
	pv.DownloadCount++

	tx := store.Begin(ctx)
	if err := tx.PutPackageVersion(pv); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
