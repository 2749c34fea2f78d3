// Command nugetdepot serves a NuGet v2 OData package feed compatible
// with Chocolatey/NuGet clients, per spec.md and SPEC_FULL.md. Grounded
// on the teacher's cmd/depot/main.go: same kong CLI shape (Globals +
// Version/Serve subcommands), same storage-type switch and metrics/
// accesslog/loggedstorage wiring, generalized from three nix/npm/python
// stores to the single NuGet archive store this system has.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/nugetdepot/nugetdepot/accesslog"
	"github.com/nugetdepot/nugetdepot/archive"
	"github.com/nugetdepot/nugetdepot/catalog"
	"github.com/nugetdepot/nugetdepot/config"
	"github.com/nugetdepot/nugetdepot/downloadcounter"
	"github.com/nugetdepot/nugetdepot/lifecycle"
	"github.com/nugetdepot/nugetdepot/loggedstorage"
	"github.com/nugetdepot/nugetdepot/metrics"
	"github.com/nugetdepot/nugetdepot/relstore"
	"github.com/nugetdepot/nugetdepot/routes"
	"github.com/nugetdepot/nugetdepot/user"
)

// Version is overridden at build time via -ldflags.
var Version = "dev"

type Globals struct {
	Verbose bool `help:"Enable verbose (debug) logging" short:"v"`
}

type CLI struct {
	Globals
	Version VersionCmd `cmd:"" help:"Show version information"`
	Serve   ServeCmd   `cmd:"" help:"Start the feed server"`
}

type VersionCmd struct{}

func (cmd *VersionCmd) Run(g *Globals) error {
	fmt.Printf("%s", Version)
	return nil
}

type S3Flags struct {
	Bucket          string `help:"S3 bucket name (required when storage-type=s3)" env:"NUGETDEPOT_S3_BUCKET"`
	Region          string `help:"S3 region" default:"us-east-1" env:"NUGETDEPOT_S3_REGION"`
	Endpoint        string `help:"S3 endpoint URL (for MinIO/custom endpoints)" env:"NUGETDEPOT_S3_ENDPOINT"`
	AccessKeyID     string `help:"S3 access key ID (uses IAM role if not set)" env:"NUGETDEPOT_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `help:"S3 secret access key (uses IAM role if not set)" env:"NUGETDEPOT_S3_SECRET_ACCESS_KEY"`
	ForcePathStyle  bool   `help:"Use path-style S3 URLs (required for MinIO)" env:"NUGETDEPOT_S3_FORCE_PATH_STYLE"`
}

type ServeCmd struct {
	Config            string  `help:"Path to TOML config file" default:"nugetdepot.toml" env:"NUGETDEPOT_CONFIG"`
	DatabaseType      string  `help:"Choice of database (sqlite, rqlite or postgres)" default:"sqlite" enum:"sqlite,rqlite,postgres" env:"NUGETDEPOT_DATABASE_TYPE"`
	DatabaseURL       string  `help:"Database connection URL, overrides the config file" default:"" env:"NUGETDEPOT_DATABASE_URL"`
	ListenAddr        string  `help:"Address to listen on, overrides config server.port" default:"" env:"NUGETDEPOT_LISTEN_ADDR"`
	MetricsListenAddr string  `help:"Address for the metrics endpoint" default:":9090" env:"NUGETDEPOT_METRICS_LISTEN_ADDR"`
	StorageType       string  `help:"Archive storage backend (fs or s3)" default:"fs" enum:"fs,s3" env:"NUGETDEPOT_STORAGE_TYPE"`
	S3                S3Flags `embed:"" prefix:"s3-"`
}

func (cmd *ServeCmd) Run(g *Globals) error {
	opts := &slog.HandlerOptions{}
	if g.Verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.DatabaseURL != "" {
		cfg.Backend.DBURL = cmd.DatabaseURL
	}
	listenAddr := cmd.ListenAddr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	switch cmd.StorageType {
	case "s3":
		if cmd.S3.Bucket == "" {
			return fmt.Errorf("--s3-bucket must also be set when --storage-type=s3")
		}
	case "fs":
		if err := os.MkdirAll(cfg.Backend.Storage, 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage type: %q - expected 'fs' or 's3'", cmd.StorageType)
	}

	ctx := context.Background()

	store, closer, err := relstore.New(ctx, cmd.DatabaseType, cfg.Backend.DBURL)
	if err != nil {
		log.Error("failed to connect to database", slog.String("error", err.Error()))
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer closer()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	go func() {
		if err := metrics.ListenAndServe(cmd.MetricsListenAddr); err != nil {
			log.Error("metrics server exited", slog.String("addr", cmd.MetricsListenAddr), slog.String("error", err.Error()))
		}
	}()

	al := accesslog.New(store.KV())
	backend, backendShutdown, err := cmd.createBackend(ctx, log, cfg.Backend.Storage, al, m)
	if err != nil {
		return err
	}

	engine := lifecycle.New(store, backend, int64(cfg.Web.MaxUploadFilesizeMB)<<20, m, log)
	cat := catalog.New(store)
	users := user.New(store, nil, nil, "")

	if err := users.EnsureAdmin(ctx, cfg.Auth.SuperuserPassword); err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}

	downloadCounter, downloadCounterShutdown := downloadcounter.NewBufferedCounter(ctx, log, store, m, 256)

	s := http.Server{
		Addr:    listenAddr,
		Handler: routes.New(log, store, cat, engine, users, backend, m, downloadCounter),
	}
	log.Info("starting server", slog.String("addr", listenAddr), slog.String("metricsAddr", cmd.MetricsListenAddr), slog.String("storage", cfg.Backend.Storage))
	err = s.ListenAndServe()
	log.Debug("server exited", slog.String("error", err.Error()))

	downloadCounterShutdown()
	log.Debug("waiting 30s for archive storage to finish processing events")
	_ = backendShutdown(30 * time.Second)
	log.Info("server shutdown complete")
	return err
}

func (cmd *ServeCmd) createBackend(ctx context.Context, log *slog.Logger, storagePath string, al *accesslog.AccessLog, m metrics.Metrics) (archive.Backend, func(timeout time.Duration) error, error) {
	var base archive.Backend
	switch cmd.StorageType {
	case "s3":
		s3Store, err := archive.NewS3(ctx, archive.S3Config{
			Bucket:          cmd.S3.Bucket,
			Region:          cmd.S3.Region,
			Endpoint:        cmd.S3.Endpoint,
			AccessKeyID:     cmd.S3.AccessKeyID,
			SecretAccessKey: cmd.S3.SecretAccessKey,
			ForcePathStyle:  cmd.S3.ForcePathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create s3 archive store: %w", err)
		}
		base = s3Store
	case "fs":
		fs, err := archive.NewFS(storagePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create filesystem archive store: %w", err)
		}
		base = fs.AsBackend()
	default:
		return nil, nil, fmt.Errorf("unknown storage type %q", cmd.StorageType)
	}

	backend, shutdown := loggedstorage.New(ctx, log, base, al, m)
	return backend, shutdown, nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("nugetdepot"),
		kong.Description("Serve a NuGet v2 OData package feed"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
