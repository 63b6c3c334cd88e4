// Package metrics provides Prometheus metrics for catalog loads and
// install batches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the catalog collectors. A nil *Metrics records nothing.
type Metrics struct {
	CatalogLoadsTotal   *prometheus.CounterVec
	CatalogLoadDuration *prometheus.HistogramVec
	CatalogListings     *prometheus.GaugeVec

	DownloadsTotal     *prometheus.CounterVec
	DownloadBytesTotal prometheus.Counter
	ChecksumMismatches prometheus.Counter

	InstallsTotal  *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	BatchesRunning prometheus.Gauge

	ChecksTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing nil
// uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CatalogLoadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loads_total",
				Help: "Catalog loads by source (cache, network, error)",
			},
			[]string{"source"},
		),
		CatalogLoadDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_load_duration_seconds",
				Help:    "Time taken to load a catalog",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		CatalogListings: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_listings",
				Help: "Listings in the last loaded copy of each catalog",
			},
			[]string{"url", "visibility"},
		),
		DownloadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_bundle_downloads_total",
				Help: "Bundle downloads by result",
			},
			[]string{"result"},
		),
		DownloadBytesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_bundle_download_bytes_total",
				Help: "Bytes of bundles downloaded",
			},
		),
		ChecksumMismatches: f.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_checksum_mismatches_total",
				Help: "Downloads whose digest did not match the listing",
			},
		),
		InstallsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_installs_total",
				Help: "Listings processed by install batches, by outcome",
			},
			[]string{"outcome"},
		),
		BatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_install_batch_duration_seconds",
				Help:    "Duration of install batches",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		BatchesRunning: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_install_batches_running",
				Help: "Install batches currently running",
			},
		),
		ChecksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_update_checks_total",
				Help: "Scheduled update checks by result",
			},
			[]string{"result"},
		),
	}
}

// RecordLoad records a catalog load from source ("cache", "network" or "error").
func (m *Metrics) RecordLoad(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.CatalogLoadsTotal.WithLabelValues(source).Inc()
	m.CatalogLoadDuration.WithLabelValues(source).Observe(d.Seconds())
}

// RecordListings sets the listing gauges for a catalog.
func (m *Metrics) RecordListings(url string, visible, hidden int) {
	if m == nil {
		return
	}
	m.CatalogListings.WithLabelValues(url, "visible").Set(float64(visible))
	m.CatalogListings.WithLabelValues(url, "hidden").Set(float64(hidden))
}

// RecordDownload records one bundle download attempt.
func (m *Metrics) RecordDownload(bytes int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.DownloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.DownloadsTotal.WithLabelValues("ok").Inc()
	m.DownloadBytesTotal.Add(float64(bytes))
}

// RecordMismatch counts a checksum mismatch.
func (m *Metrics) RecordMismatch() {
	if m == nil {
		return
	}
	m.ChecksumMismatches.Inc()
}

// RecordInstall counts the outcome of one listing.
func (m *Metrics) RecordInstall(outcome string) {
	if m == nil {
		return
	}
	m.InstallsTotal.WithLabelValues(outcome).Inc()
}

// BatchStarted marks the start of an install batch and returns a function
// that records its end.
func (m *Metrics) BatchStarted() func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.BatchesRunning.Inc()
	return func() {
		m.BatchesRunning.Dec()
		m.BatchDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordCheck counts a scheduled update check.
func (m *Metrics) RecordCheck(result string) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(result).Inc()
}
