// Package pipeline runs one report generation end to end: load the
// artifacts, index findings, extract the device profile, assemble the
// document and write it next to the artifacts.
//
// Only a load failure or a render failure stops a run. Everything else
// (bad artifact files, failing sections, archive and audit problems) is
// logged and the report is still produced.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/exploopio/mvtreport/pkg/analyzers"
	"github.com/exploopio/mvtreport/pkg/archive"
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/assembler"
	"github.com/exploopio/mvtreport/pkg/audit"
	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/findings"
	"github.com/exploopio/mvtreport/pkg/metrics"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/render"
	"github.com/exploopio/mvtreport/pkg/report"
	"github.com/exploopio/mvtreport/pkg/retry"
	"github.com/exploopio/mvtreport/pkg/shared/severity"
)

// DefaultPrefix starts every generated file name.
const DefaultPrefix = "MVT_Security_Report"

// TimestampLayout is the timestamp part of generated file names.
const TimestampLayout = "20060102_150405"

// Device types reported by DetectDeviceType.
const (
	DeviceIOS     = "iOS"
	DeviceAndroid = "Android"
)

// Config configures a Pipeline.
type Config struct {
	// Format is the output format.
	// Default: html
	Format render.Format

	// Prefix starts generated file names.
	// Default: MVT_Security_Report
	Prefix string

	// Style is passed to the renderer.
	Style report.Style

	// Policy tunes the analyzers.
	Policy analyzers.Policy

	// Registry replaces the built-in analyzers.
	Registry *analyzers.Registry

	// Location is the timezone of displayed timestamps.
	// Default: UTC
	Location *time.Location

	// Parallel runs the analyzers concurrently.
	Parallel bool

	// FindingsSuffix marks findings artifacts.
	// Default: artifact.DefaultFindingsSuffix
	FindingsSuffix string

	// LoadWorkers is the number of artifact files parsed concurrently.
	// Default: 1
	LoadWorkers int

	// MinFreeBytes is the free space required to write the report.
	// Default: render.DefaultMinFreeBytes
	MinFreeBytes uint64

	// Archive records every successful run when set.
	Archive *archive.Archive

	// Audit receives the run trail when set.
	Audit *audit.Logger

	// Metrics receives run metrics when set.
	Metrics metrics.Collector

	// Clock returns the run time. Default: time.Now.
	Clock func() time.Time

	// OnWarning is called for every artifact file skipped during load.
	OnWarning func(w artifact.Warning)

	// OnSection is called once per section builder.
	OnSection func(res report.SectionResult, d time.Duration)

	// OnCompleted is called after the report was written.
	OnCompleted func(res *Result)

	Logger core.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Format:         render.FormatHTML,
		Prefix:         DefaultPrefix,
		Style:          report.DefaultStyle(),
		Policy:         analyzers.DefaultPolicy(),
		Location:       time.UTC,
		FindingsSuffix: artifact.DefaultFindingsSuffix,
		LoadWorkers:    1,
		MinFreeBytes:   render.DefaultMinFreeBytes,
		Clock:          time.Now,
		Logger:         &core.NopLogger{},
	}
}

// Option configures a Pipeline.
type Option func(*Config)

// WithFormat sets the output format.
func WithFormat(f render.Format) Option {
	return func(c *Config) { c.Format = f }
}

// WithPrefix sets the generated file name prefix.
func WithPrefix(prefix string) Option {
	return func(c *Config) { c.Prefix = prefix }
}

// WithStyle sets the report style.
func WithStyle(s report.Style) Option {
	return func(c *Config) { c.Style = report.DefaultStyle().Merge(s) }
}

// WithPolicy sets the analyzer policy.
func WithPolicy(p analyzers.Policy) Option {
	return func(c *Config) { c.Policy = p }
}

// WithRegistry replaces the analyzer registry.
func WithRegistry(r *analyzers.Registry) Option {
	return func(c *Config) { c.Registry = r }
}

// WithLocation sets the display timezone.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		if loc != nil {
			c.Location = loc
		}
	}
}

// WithParallel runs analyzers concurrently.
func WithParallel(enabled bool) Option {
	return func(c *Config) { c.Parallel = enabled }
}

// WithFindingsSuffix sets the suffix that marks findings artifacts.
func WithFindingsSuffix(suffix string) Option {
	return func(c *Config) { c.FindingsSuffix = suffix }
}

// WithLoadWorkers parses up to n artifact files concurrently.
func WithLoadWorkers(n int) Option {
	return func(c *Config) { c.LoadWorkers = n }
}

// WithMinFreeBytes sets the free-space threshold for the output directory.
func WithMinFreeBytes(n uint64) Option {
	return func(c *Config) { c.MinFreeBytes = n }
}

// WithArchive records runs in a.
func WithArchive(a *archive.Archive) Option {
	return func(c *Config) { c.Archive = a }
}

// WithAudit writes the run trail to l.
func WithAudit(l *audit.Logger) Option {
	return func(c *Config) { c.Audit = l }
}

// WithMetrics records run metrics in m.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithClock replaces the run clock.
func WithClock(fn func() time.Time) Option {
	return func(c *Config) {
		if fn != nil {
			c.Clock = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(c *Config) { c.Logger = core.OrNop(l) }
}

// Result describes a completed run.
type Result struct {
	RunID      string
	OutputPath string
	Format     render.Format
	DeviceType string
	Document   *report.Document
	Warnings   []artifact.Warning
	Failures   []*report.Failure

	// Findings is the number of indicator matches; NewFindings counts those
	// not seen in an earlier archived run. NewFindings equals Findings when
	// no archive is configured.
	Findings    int
	NewFindings int

	// Recommendations tallies the report's recommendations by priority.
	Recommendations severity.Count

	Duration time.Duration
}

// Stats holds pipeline counters.
type Stats struct {
	Runs      int64 `json:"runs"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Pipeline generates reports. It is safe for concurrent use.
type Pipeline struct {
	config *Config

	runs      int64
	completed int64
	failed    int64
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Format == "" {
		cfg.Format = render.FormatHTML
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LoadWorkers <= 0 {
		cfg.LoadWorkers = 1
	}
	cfg.Logger = core.OrNop(cfg.Logger)
	return &Pipeline{config: cfg}
}

// GenerateReport produces a report for sourceDir with the default
// configuration and returns the path of the written file.
func GenerateReport(ctx context.Context, sourceDir, deviceType, outputName string) (string, error) {
	res, err := New().Generate(ctx, sourceDir, deviceType, outputName)
	if err != nil {
		return "", err
	}
	return res.OutputPath, nil
}

// Generate produces a report for sourceDir. An empty deviceType is
// detected from the directory; an empty outputName is generated from the
// prefix, device type and run time. The report is always written inside
// sourceDir.
func (p *Pipeline) Generate(ctx context.Context, sourceDir, deviceType, outputName string) (*Result, error) {
	cfg := p.config
	start := time.Now()
	now := cfg.Clock().In(cfg.Location)
	atomic.AddInt64(&p.runs, 1)

	if deviceType == "" {
		deviceType = DetectDeviceType(sourceDir)
	}
	res := &Result{
		RunID:      uuid.New().String(),
		Format:     cfg.Format,
		DeviceType: deviceType,
	}
	log := core.WithFields(cfg.Logger, "run_id", res.RunID)
	rec := metrics.NewRecorder(cfg.Metrics)
	trail := cfg.Audit.ForRun(res.RunID, sourceDir)
	trail.Started(deviceType, string(cfg.Format))

	fail := func(err error) (*Result, error) {
		atomic.AddInt64(&p.failed, 1)
		d := time.Since(start)
		rec.Failed(d)
		trail.Failed(err, d)
		log.Error("Report generation failed: %v", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(errors.E(errors.KindLoad, "pipeline.Generate", err))
	}

	// Load
	set, warnings, err := artifact.Load(sourceDir,
		artifact.WithFindingsSuffix(cfg.FindingsSuffix),
		artifact.WithWorkers(cfg.LoadWorkers),
		artifact.WithLogger(log),
	)
	res.Warnings = warnings
	for _, w := range warnings {
		trail.ArtifactSkipped(w.File, w.Err.Error())
		if cfg.OnWarning != nil {
			cfg.OnWarning(w)
		}
	}
	if err != nil {
		rec.Artifacts(0, len(warnings))
		return fail(err)
	}
	rec.Artifacts(set.Len(), len(warnings))

	// Index and assemble
	ix := findings.Build(set)
	prof := profile.Extract(set, profile.Params{DeviceType: deviceType, Now: now, Logger: log})

	asmOpts := []assembler.Option{
		assembler.WithParallel(cfg.Parallel),
		assembler.WithLogger(log),
		assembler.WithSectionHook(func(sr report.SectionResult, d time.Duration) {
			rec.Section(sr.ID, sr.Failure != nil, d)
			if sr.Failure != nil {
				trail.SectionFailed(sr.ID, sr.Failure.Message, sr.Failure.Panic)
			}
			if cfg.OnSection != nil {
				cfg.OnSection(sr, d)
			}
		}),
	}
	if cfg.Registry != nil {
		asmOpts = append(asmOpts, assembler.WithRegistry(cfg.Registry))
	}
	assembled := assembler.New(asmOpts...).Assemble(assembler.Input{
		Artifacts:  set,
		Findings:   ix,
		Profile:    prof,
		Policy:     cfg.Policy,
		DeviceType: deviceType,
		Now:        now,
		Location:   cfg.Location,
	})
	res.Document = assembled.Document
	res.Failures = assembled.Failures()
	res.Recommendations = assembled.Recommendations
	res.Findings = ix.Len()
	res.NewFindings = ix.Len()

	// Render
	renderer, err := render.New(cfg.Format, cfg.Style)
	if err != nil {
		return fail(errors.E(errors.KindRender, "pipeline.Generate", err))
	}
	if outputName == "" {
		outputName = DefaultOutputName(cfg.Prefix, deviceType, now, cfg.Format)
	}
	res.OutputPath = filepath.Join(sourceDir, filepath.Base(render.EnsureExtension(outputName, cfg.Format)))
	if err := render.WriteFile(ctx, renderer, res.Document, res.OutputPath,
		render.WithMinFreeBytes(cfg.MinFreeBytes),
		render.WithLogger(log),
	); err != nil {
		return fail(err)
	}

	counts := make(map[string]int)
	for _, g := range ix.Groups() {
		counts[g.Category] = len(g.Findings)
	}
	rec.Findings(counts)

	if cfg.Archive != nil {
		p.archive(ctx, log, rec, res, sourceDir, now, ix.All())
	}

	atomic.AddInt64(&p.completed, 1)
	res.Duration = time.Since(start)
	rec.Completed(res.Duration, now)
	trail.Completed(res.OutputPath, res.Findings, res.Duration)
	log.Info("Report written to %s (%d findings, %d section failures)", res.OutputPath, res.Findings, len(res.Failures))
	if cfg.OnCompleted != nil {
		cfg.OnCompleted(res)
	}
	return res, nil
}

// archive records the run. Archive errors never fail the run.
func (p *Pipeline) archive(ctx context.Context, log core.Logger, rec *metrics.Recorder, res *Result, sourceDir string, now time.Time, fs []findings.Finding) {
	a := p.config.Archive
	timer := rec.Time(metrics.ArchiveDuration)

	fresh := 0
	for _, f := range fs {
		seen, err := a.SeenBefore(ctx, f.ID, res.RunID)
		if err != nil {
			log.Warn("Archive lookup failed: %v", err)
			fresh = len(fs)
			break
		}
		if !seen {
			fresh++
		}
	}
	res.NewFindings = fresh

	run := &archive.Run{
		ID:              res.RunID,
		SourceDir:       sourceDir,
		DeviceType:      res.DeviceType,
		OutputPath:      res.OutputPath,
		Format:          string(res.Format),
		Findings:        res.Findings,
		Categories:      countCategories(fs),
		SectionFailures: len(res.Failures),
		Warnings:        len(res.Warnings),
		CreatedAt:       now,
	}
	record := func(ctx context.Context) error { return a.RecordRun(ctx, run, res.Document, fs) }
	if err := retry.Do(ctx, "archive.RecordRun", record, retry.WithLogger(log)); err != nil {
		log.Warn("Archiving run %s failed: %v", res.RunID, err)
		return
	}
	d := timer.ObserveDuration()
	rec.Archived(run.CompressionRatio)
	log.Debug("Archived run in %s (document %d bytes, ratio %.2f)", d, run.DocumentSize, run.CompressionRatio)
}

func countCategories(fs []findings.Finding) int {
	seen := make(map[string]bool)
	for _, f := range fs {
		seen[f.Category] = true
	}
	return len(seen)
}

// GetStats returns the pipeline counters.
func (p *Pipeline) GetStats() Stats {
	return Stats{
		Runs:      atomic.LoadInt64(&p.runs),
		Completed: atomic.LoadInt64(&p.completed),
		Failed:    atomic.LoadInt64(&p.failed),
	}
}

// DefaultOutputName builds "<prefix>_<device>_<timestamp><ext>".
func DefaultOutputName(prefix, deviceType string, now time.Time, f render.Format) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if deviceType == "" {
		deviceType = profile.Unknown
	}
	return prefix + "_" + safeName(deviceType) + "_" + now.Format(TimestampLayout) + f.Extension()
}

// safeName replaces characters that do not belong in a file name.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, s)
}

// DetectDeviceType returns iOS when any file in dir mentions backup_info
// and Android otherwise.
func DetectDeviceType(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return DeviceAndroid
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "backup_info") {
			return DeviceIOS
		}
	}
	return DeviceAndroid
}
