// Package routes wires the NuGet v2 OData handler behind the
// X-NuGet-ApiKey write gate, replacing the teacher's nix/npm/python
// per-prefix mux (each backend struck its own storage path and its own
// auth middleware) with the single feed surface spec.md §6 describes.
package routes

import (
	"log/slog"
	"net/http"

	"github.com/nugetdepot/nugetdepot/archive"
	"github.com/nugetdepot/nugetdepot/catalog"
	"github.com/nugetdepot/nugetdepot/downloadcounter"
	"github.com/nugetdepot/nugetdepot/handlers"
	"github.com/nugetdepot/nugetdepot/lifecycle"
	"github.com/nugetdepot/nugetdepot/metrics"
	"github.com/nugetdepot/nugetdepot/relstore"
	"github.com/nugetdepot/nugetdepot/user"
	"github.com/nugetdepot/nugetdepot/webauth"
)

// New builds the top-level HTTP handler: the NuGet v2 OData surface,
// request-logged, with writes gated behind X-NuGet-ApiKey.
func New(log *slog.Logger, store *relstore.Store, cat *catalog.Catalog, engine *lifecycle.Engine, users *user.Service, backend archive.Backend, m metrics.Metrics, downloadCounter chan<- downloadcounter.DownloadEvent) http.Handler {
	feed := handlers.New(log, store, cat, engine, backend, m, downloadCounter)
	return webauth.NewAPIKeyMiddleware(log, users, feed)
}
