// Package handlers implements the NuGet v2 OData HTTP surface spec.md
// §6 names: the service document, $metadata, the Packages/
// FindPackagesById/Search/GetUpdates feeds, archive download/upload/
// delete, and the package-ids/package-versions completion endpoints.
// Grounded on the teacher's handlers/handler.go and httplogging.go for
// the single-ServeHTTP-dispatcher-plus-logging-wrapper shape (nix's
// handler multiplexes nix-cache-info/.narinfo/.nar/log by suffix; this
// multiplexes the NuGet OData surface by parsed function-import name
// instead) and on original_source/src/web/views/api/*.rs for
// per-endpoint behavior.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/nugetdepot/nugetdepot/archive"
	"github.com/nugetdepot/nugetdepot/catalog"
	"github.com/nugetdepot/nugetdepot/downloadcounter"
	"github.com/nugetdepot/nugetdepot/entity"
	"github.com/nugetdepot/nugetdepot/feed"
	"github.com/nugetdepot/nugetdepot/lifecycle"
	"github.com/nugetdepot/nugetdepot/metrics"
	"github.com/nugetdepot/nugetdepot/relstore"
	"github.com/nugetdepot/nugetdepot/webauth"
)

// maxUploadMemoryBytes bounds how much of a multipart upload
// ParseMultipartForm buffers in memory before spilling to a temp file;
// the manifest+archive themselves can be arbitrarily large.
const maxUploadMemoryBytes = 32 << 20

// Handlers implements the NuGet v2 OData feed over a relstore.Store, an
// archive.Backend, and the lifecycle/catalog/user services built on top
// of them.
type Handlers struct {
	log             *slog.Logger
	store           *relstore.Store
	catalog         *catalog.Catalog
	engine          *lifecycle.Engine
	backend         archive.Backend
	metrics         metrics.Metrics
	downloadCounter chan<- downloadcounter.DownloadEvent
}

// New constructs the NuGet v2 OData handler, wrapped in request logging.
func New(log *slog.Logger, store *relstore.Store, cat *catalog.Catalog, engine *lifecycle.Engine, backend archive.Backend, m metrics.Metrics, downloadCounter chan<- downloadcounter.DownloadEvent) http.Handler {
	h := &Handlers{
		log:             log,
		store:           store,
		catalog:         cat,
		engine:          engine,
		backend:         backend,
		metrics:         m,
		downloadCounter: downloadCounter,
	}
	return NewLogger(log, http.HandlerFunc(h.route))
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func (h *Handlers) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/api/v2/" || path == "/api/v2":
		h.serviceDocument(w, r)
		return
	case path == "/api/v2/$metadata":
		h.metadata(w, r)
		return
	case path == "/api/v2/package" && (r.Method == http.MethodPost || r.Method == http.MethodPut):
		h.upload(w, r)
		return
	case strings.HasPrefix(path, "/api/v2/package/") && r.Method == http.MethodGet:
		h.download(w, r, strings.TrimPrefix(path, "/api/v2/package/"))
		return
	case strings.HasPrefix(path, "/api/v2/package/") && r.Method == http.MethodDelete:
		h.delete(w, r, strings.TrimPrefix(path, "/api/v2/package/"))
		return
	case path == "/api/v2/package-ids" && r.Method == http.MethodGet:
		h.completeIDs(w, r)
		return
	case strings.HasPrefix(path, "/api/v2/package-versions/") && r.Method == http.MethodGet:
		h.completeVersions(w, r, strings.TrimPrefix(path, "/api/v2/package-versions/"))
		return
	}

	if match := odataCallRe.FindStringSubmatch(path); match != nil && r.Method == http.MethodGet {
		name, args := match[1], parseODataArgs(match[2])
		switch name {
		case "Packages":
			if args["Id"] != "" && args["Version"] != "" {
				h.packageEntry(w, r, args["Id"], args["Version"])
				return
			}
			h.packages(w, r)
			return
		case "FindPackagesById":
			h.findPackagesByID(w, r, args["id"])
			return
		case "Search":
			h.search(w, r, args["searchTerm"], args["includePrerelease"] == "true")
			return
		case "GetUpdates":
			h.getUpdates(w, r, args)
			return
		}
	}

	http.NotFound(w, r)
}

func (h *Handlers) serviceDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", feed.ContentType)
	fmt.Fprint(w, feed.ServiceDocument(baseURL(r)))
}

func (h *Handlers) metadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", feed.ContentType)
	fmt.Fprint(w, feed.Metadata)
}

func (h *Handlers) writeFeed(w http.ResponseWriter, r *http.Request, name string, versions []entity.PackageVersion) {
	entries, err := buildEntries(r.Context(), h.store, baseURL(r), versions)
	if err != nil {
		h.serverError(w, err)
		return
	}
	w.Header().Set("Content-Type", feed.ContentType)
	fmt.Fprint(w, feed.Feed(baseURL(r), name, entries))
}

func (h *Handlers) packages(w http.ResponseWriter, r *http.Request) {
	versions, err := h.catalog.ListAllVersions(r.Context())
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.writeFeed(w, r, "Packages", versions)
}

func (h *Handlers) packageEntry(w http.ResponseWriter, r *http.Request, id, version string) {
	pv, err := h.store.GetPackageVersion(r.Context(), id, version)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.writeFeed(w, r, "Packages", []entity.PackageVersion{pv})
}

func (h *Handlers) findPackagesByID(w http.ResponseWriter, r *http.Request, id string) {
	versions, err := h.catalog.FindPackagesByID(r.Context(), id)
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	h.writeFeed(w, r, "FindPackagesById", versions)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request, term string, includePrerelease bool) {
	versions, err := h.catalog.Search(r.Context(), term, includePrerelease)
	if err != nil {
		h.serverError(w, err)
		return
	}
	h.writeFeed(w, r, "Search", versions)
}

func (h *Handlers) getUpdates(w http.ResponseWriter, r *http.Request, args map[string]string) {
	ids := strings.Split(args["packageIds"], "|")
	versions := strings.Split(args["versions"], "|")
	if args["packageIds"] == "" || len(ids) != len(versions) {
		http.Error(w, "packageIds and versions must be non-empty, pipe-delimited, and the same length", http.StatusBadRequest)
		return
	}

	queries := make([]catalog.UpdateQuery, len(ids))
	for i := range ids {
		queries[i] = catalog.UpdateQuery{ID: ids[i], Version: versions[i]}
	}

	results, err := h.catalog.GetUpdates(r.Context(), queries, args["includePrerelease"] == "true", args["includeAllVersions"] == "true")
	if err != nil {
		if errors.Is(err, entity.ErrInvalidVersion) {
			http.Error(w, "Version value invalid", http.StatusBadRequest)
			return
		}
		h.serverError(w, err)
		return
	}
	h.writeFeed(w, r, "GetUpdates", results)
}

func (h *Handlers) completeIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := h.catalog.CompleteIDs(r.Context(), r.URL.Query().Get("partialId"), r.URL.Query().Get("includePrerelease") == "true")
	if err != nil {
		h.serverError(w, err)
		return
	}
	writeJSONStrings(w, ids)
}

func (h *Handlers) completeVersions(w http.ResponseWriter, r *http.Request, id string) {
	versions, err := h.catalog.CompleteVersions(r.Context(), id, r.URL.Query().Get("includePrerelease") == "true")
	if err != nil {
		h.notFoundOrError(w, err)
		return
	}
	writeJSONStrings(w, versions)
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, rest string) {
	id, version, ok := strings.Cut(rest, "/")
	if !ok || id == "" || version == "" {
		http.NotFound(w, r)
		return
	}

	rc, exists, err := h.backend.Get(id, version)
	if err != nil {
		h.metrics.IncrementDownloadCounterErrors(r.Context(), id)
		h.serverError(w, err)
		return
	}
	if !exists {
		http.NotFound(w, r)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	n, err := io.Copy(w, rc)
	if err != nil {
		h.log.Error("failed to stream archive", slog.String("id", id), slog.String("version", version), slog.Any("error", err))
		return
	}

	h.metrics.IncrementDownloadMetrics(r.Context(), id, n)
	select {
	case h.downloadCounter <- downloadcounter.DownloadEvent{ID: id, Version: version}:
	default:
		h.log.Warn("download counter channel full, dropping event", slog.String("id", id), slog.String("version", version))
		h.metrics.IncrementDownloadCounterErrors(r.Context(), id)
	}
}

// extractUploadFile reads the "package" multipart field spec.md §6
// names for push requests.
func extractUploadFile(r *http.Request) (multipart.File, error) {
	if err := r.ParseMultipartForm(maxUploadMemoryBytes); err != nil {
		return nil, fmt.Errorf("invalid multipart upload: %w", err)
	}
	file, _, err := r.FormFile("package")
	if err != nil {
		return nil, fmt.Errorf("missing \"package\" form field: %w", err)
	}
	return file, nil
}

func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) {
	u, ok := webauth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "X-NuGet-ApiKey required", http.StatusUnauthorized)
		return
	}

	file, err := extractUploadFile(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	pv, err := h.engine.Upload(r.Context(), u, file)
	if err != nil {
		h.writeUploadError(w, err)
		return
	}

	h.metrics.IncrementUploadMetrics(r.Context(), pv.ID, pv.Size)
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) delete(w http.ResponseWriter, r *http.Request, rest string) {
	u, ok := webauth.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "X-NuGet-ApiKey required", http.StatusUnauthorized)
		return
	}

	id, version, hasVersion := strings.Cut(rest, "/")

	var err error
	if hasVersion && version != "" {
		err = h.engine.DeleteVersion(r.Context(), u, id, version)
	} else {
		err = h.engine.DeletePackage(r.Context(), u, id)
	}
	if err != nil {
		h.writeDeleteError(w, id, err)
		return
	}

	h.metrics.IncrementDeleteMetrics(r.Context(), id)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidManifest), errors.Is(err, entity.ErrInvalidArchive), errors.Is(err, entity.ErrInvalidVersion):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, entity.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		h.serverError(w, err)
	}
}

func (h *Handlers) writeDeleteError(w http.ResponseWriter, packageID string, err error) {
	var blocking *entity.BlockingDependencyError
	var critical *entity.CriticalUpdateFailureError
	switch {
	case errors.As(err, &blocking):
		h.metrics.IncrementBlockedDeletes(context.Background(), packageID)
		http.Error(w, blocking.Error(), http.StatusConflict)
	case errors.As(err, &critical):
		h.log.Error("critical update failure during delete", slog.String("id", packageID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	case errors.Is(err, entity.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, entity.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		h.serverError(w, err)
	}
}

func (h *Handlers) notFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, entity.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	h.serverError(w, err)
}

func (h *Handlers) serverError(w http.ResponseWriter, err error) {
	h.log.Error("internal server error", slog.Any("error", err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func writeJSONStrings(w http.ResponseWriter, values []string) {
	w.Header().Set("Content-Type", "application/json")
	if values == nil {
		values = []string{}
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(v, `"`, `\"`))
		b.WriteByte('"')
	}
	b.WriteByte(']')
	fmt.Fprint(w, b.String())
}
