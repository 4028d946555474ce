// Package metrics records report-generation metrics.
// It includes a Collector interface and a Prometheus implementation that can
// export to a node_exporter textfile. Package metricstest holds an
// in-memory Collector for tests.
package metrics

import "time"

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting metrics.
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Gauge operations
	GaugeSet(name string, value float64, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)
}

// =============================================================================
// Metric Types
// =============================================================================

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// =============================================================================
// Report Metrics
// =============================================================================

var (
	ReportsTotal = MetricDefinition{
		Name:   "mvtreport_reports_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of report runs",
		Labels: []string{"status"},
	}
	ReportDuration = MetricDefinition{
		Name:    "mvtreport_report_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of a report run in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}
	LastReportTimestamp = MetricDefinition{
		Name: "mvtreport_last_report_timestamp_seconds",
		Type: MetricTypeGauge,
		Help: "Unix time of the last successful report",
	}

	ArtifactsLoaded = MetricDefinition{
		Name: "mvtreport_artifacts_loaded_total",
		Type: MetricTypeCounter,
		Help: "Total number of artifact files loaded",
	}
	ArtifactWarnings = MetricDefinition{
		Name: "mvtreport_artifact_warnings_total",
		Type: MetricTypeCounter,
		Help: "Total number of artifact files skipped during loading",
	}

	FindingsTotal = MetricDefinition{
		Name:   "mvtreport_findings_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of findings reported",
		Labels: []string{"category"},
	}

	SectionFailures = MetricDefinition{
		Name:   "mvtreport_section_failures_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of report sections replaced by an error notice",
		Labels: []string{"section"},
	}
	SectionDuration = MetricDefinition{
		Name:    "mvtreport_section_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of building one report section in seconds",
		Labels:  []string{"section"},
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}

	ArchiveDuration = MetricDefinition{
		Name:    "mvtreport_archive_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of recording a run in the archive in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}
	ArchiveCompressionRatio = MetricDefinition{
		Name: "mvtreport_archive_compression_ratio",
		Type: MetricTypeGauge,
		Help: "Stored size over raw size of the last archived report document",
	}
)

// Definitions returns every report metric.
func Definitions() []MetricDefinition {
	return []MetricDefinition{
		ReportsTotal, ReportDuration, LastReportTimestamp,
		ArtifactsLoaded, ArtifactWarnings, FindingsTotal,
		SectionFailures, SectionDuration,
		ArchiveDuration, ArchiveCompressionRatio,
	}
}

// =============================================================================
// NopCollector - No-operation implementation
// =============================================================================

// NopCollector is a no-op metrics collector that discards all metrics.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}

// =============================================================================
// Timer - Helper for timing operations
// =============================================================================

// Timer is a helper for timing operations and recording to histograms.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer creates a new timer that will record to the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: collector,
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the duration since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

// =============================================================================
// Interface compliance
// =============================================================================

var _ Collector = (*NopCollector)(nil)
