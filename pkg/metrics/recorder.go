package metrics

import "time"

// Report run statuses used as the status label of ReportsTotal.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Recorder translates the events of a report run into metric updates.
type Recorder struct {
	c Collector
}

// NewRecorder wraps a collector. A nil collector discards everything.
func NewRecorder(c Collector) *Recorder {
	if c == nil {
		c = &NopCollector{}
	}
	return &Recorder{c: c}
}

// Artifacts records the outcome of loading a source directory.
func (r *Recorder) Artifacts(loaded, warnings int) {
	r.c.CounterAdd(ArtifactsLoaded.Name, float64(loaded))
	r.c.CounterAdd(ArtifactWarnings.Name, float64(warnings))
}

// Findings records the number of findings per category.
func (r *Recorder) Findings(byCategory map[string]int) {
	for category, n := range byCategory {
		r.c.CounterAdd(FindingsTotal.Name, float64(n), "category", category)
	}
}

// Section records one section build.
func (r *Recorder) Section(id string, failed bool, d time.Duration) {
	r.c.HistogramObserve(SectionDuration.Name, d.Seconds(), "section", id)
	if failed {
		r.c.CounterInc(SectionFailures.Name, "section", id)
	}
}

// Completed records a successful run that finished at the given time.
func (r *Recorder) Completed(d time.Duration, at time.Time) {
	r.c.CounterInc(ReportsTotal.Name, "status", StatusSuccess)
	r.c.HistogramObserve(ReportDuration.Name, d.Seconds())
	r.c.GaugeSet(LastReportTimestamp.Name, float64(at.Unix()))
}

// Failed records a run that produced no report.
func (r *Recorder) Failed(d time.Duration) {
	r.c.CounterInc(ReportsTotal.Name, "status", StatusFailed)
	r.c.HistogramObserve(ReportDuration.Name, d.Seconds())
}

// Time starts a timer for a histogram metric such as ArchiveDuration.
func (r *Recorder) Time(def MetricDefinition, labels ...string) *Timer {
	return NewTimer(r.c, def.Name, labels...)
}

// Archived records the compression ratio of a document stored in the
// archive.
func (r *Recorder) Archived(ratio float64) {
	r.c.GaugeSet(ArchiveCompressionRatio.Name, ratio)
}
