package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/nugetdepot/nugetdepot")

	if m.TotalDownloads, err = meter.Int64Counter("total_downloads", metric.WithDescription("Total number of successful package downloads served")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create total_downloads counter: %w", err)
	}
	if m.DownloadedBytesTotal, err = meter.Int64Counter("downloaded_bytes_total", metric.WithDescription("Total bytes downloaded from the feed")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloaded_bytes_total counter: %w", err)
	}
	if m.AccessLogErrorsTotal, err = meter.Int64Counter("access_log_errors_total", metric.WithDescription("Total number of access log processing errors")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create access_log_errors_total counter: %w", err)
	}
	if m.PackageUploadsTotal, err = meter.Int64Counter("package_uploads_total", metric.WithDescription("Total number of successfully uploaded package versions")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create package_uploads_total counter: %w", err)
	}
	if m.UploadedBytesTotal, err = meter.Int64Counter("uploaded_bytes_total", metric.WithDescription("Total bytes uploaded to the feed")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create uploaded_bytes_total counter: %w", err)
	}
	if m.PackageDeletesTotal, err = meter.Int64Counter("package_deletes_total", metric.WithDescription("Total number of package version deletions")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create package_deletes_total counter: %w", err)
	}
	if m.DownloadCounterErrorsTotal, err = meter.Int64Counter("download_counter_errors_total", metric.WithDescription("Total number of failures recording a download counter increment")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create download_counter_errors_total counter: %w", err)
	}
	if m.ResolutionsTotal, err = meter.Int64Counter("dependency_resolutions_total", metric.WithDescription("Total number of dependency resolution queries")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create dependency_resolutions_total counter: %w", err)
	}
	if m.BlockedDeletesTotal, err = meter.Int64Counter("blocked_deletes_total", metric.WithDescription("Total number of deletes refused due to a blocking dependent")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create blocked_deletes_total counter: %w", err)
	}

	return m, nil
}

type Metrics struct {
	TotalDownloads             metric.Int64Counter
	DownloadedBytesTotal       metric.Int64Counter
	AccessLogErrorsTotal       metric.Int64Counter
	PackageUploadsTotal        metric.Int64Counter
	UploadedBytesTotal         metric.Int64Counter
	PackageDeletesTotal        metric.Int64Counter
	DownloadCounterErrorsTotal metric.Int64Counter
	ResolutionsTotal           metric.Int64Counter
	BlockedDeletesTotal        metric.Int64Counter
}

func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncrementDownloadMetrics(ctx context.Context, packageID string, bytes int64) {
	if m.TotalDownloads == nil || m.DownloadedBytesTotal == nil {
		return
	}
	m.TotalDownloads.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
	m.DownloadedBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("package_id", packageID)))
}

func (m Metrics) IncrementAccessLogErrors(ctx context.Context) {
	if m.AccessLogErrorsTotal == nil {
		return
	}
	m.AccessLogErrorsTotal.Add(ctx, 1)
}

func (m Metrics) IncrementUploadMetrics(ctx context.Context, packageID string, bytes int64) {
	if m.PackageUploadsTotal == nil || m.UploadedBytesTotal == nil {
		return
	}
	m.PackageUploadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
	m.UploadedBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("package_id", packageID)))
}

func (m Metrics) IncrementDeleteMetrics(ctx context.Context, packageID string) {
	if m.PackageDeletesTotal == nil {
		return
	}
	m.PackageDeletesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
}

func (m Metrics) IncrementDownloadCounterErrors(ctx context.Context, packageID string) {
	if m.DownloadCounterErrorsTotal == nil {
		return
	}
	m.DownloadCounterErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
}

func (m Metrics) IncrementResolutions(ctx context.Context, packageID string) {
	if m.ResolutionsTotal == nil {
		return
	}
	m.ResolutionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
}

func (m Metrics) IncrementBlockedDeletes(ctx context.Context, packageID string) {
	if m.BlockedDeletesTotal == nil {
		return
	}
	m.BlockedDeletesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("package_id", packageID)))
}
