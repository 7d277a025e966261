package diag

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/bsonsplit/core/export"
	"github.com/meigma/bsonsplit/core/scan"
	"github.com/meigma/bsonsplit/core/split"
)

const namespace = "bsonsplit"

// Metrics collects counters for one bsonsplit run.
//
// Metrics is safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	recordsScanned  *prometheus.CounterVec
	bytesScanned    *prometheus.CounterVec
	emptyItemLists  *prometheus.CounterVec
	rowsSplit       *prometheus.CounterVec
	categoriesSplit prometheus.Counter
	samplesExported *prometheus.CounterVec
	samplesSkipped  *prometheus.CounterVec
	exportBytes     *prometheus.CounterVec
}

// NewMetrics creates and registers the run counters on a private registry.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_scanned_total",
			Help:      "Archive records scanned.",
		}, []string{"archive"}),
		bytesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scanned_bytes_total",
			Help:      "Archive bytes consumed by complete records.",
		}, []string{"archive"}),
		emptyItemLists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_item_lists_total",
			Help:      "Records carrying no images.",
		}, []string{"archive"}),
		rowsSplit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "split_rows_total",
			Help:      "Item rows emitted by the stratified split.",
		}, []string{"table"}),
		categoriesSplit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "split_categories_total",
			Help:      "Categories partitioned by the stratified split.",
		}),
		samplesExported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_samples_total",
			Help:      "Samples written to an export sink.",
		}, []string{"sink"}),
		samplesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_samples_total",
			Help:      "Rows skipped by an export sink.",
		}, []string{"sink"}),
		exportBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_bytes_total",
			Help:      "Image bytes written to an export sink.",
		}, []string{"sink"}),
	}
	for _, c := range []prometheus.Collector{
		m.recordsScanned, m.bytesScanned, m.emptyItemLists,
		m.rowsSplit, m.categoriesSplit,
		m.samplesExported, m.samplesSkipped, m.exportBytes,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry holding the run counters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveScan records the statistics of one archive scan.
func (m *Metrics) ObserveScan(archive string, stats scan.Stats) {
	m.recordsScanned.WithLabelValues(archive).Add(float64(stats.Records))
	m.bytesScanned.WithLabelValues(archive).Add(float64(stats.Bytes))
	m.emptyItemLists.WithLabelValues(archive).Add(float64(stats.EmptyItemLists))
}

// ObserveSplit records the size of a split result.
func (m *Metrics) ObserveSplit(res *split.Result) {
	m.rowsSplit.WithLabelValues("train").Add(float64(len(res.Train)))
	m.rowsSplit.WithLabelValues("val").Add(float64(len(res.Val)))
	m.categoriesSplit.Add(float64(len(res.Categories)))
}

// ObserveExport records the statistics of one export.
func (m *Metrics) ObserveExport(sink string, stats export.Stats) {
	m.samplesExported.WithLabelValues(sink).Add(float64(stats.Written))
	m.samplesSkipped.WithLabelValues(sink).Add(float64(stats.Skipped))
	m.exportBytes.WithLabelValues(sink).Add(float64(stats.Bytes))
}

// WriteTextfile writes the counters in the Prometheus text format, for
// collection by a node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("diag: write metrics %s: %w", path, err)
	}
	return nil
}
