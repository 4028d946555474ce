// Package assembler puts the report together: title block, executive
// summary, device information, security findings, the analyzer sections,
// recommendations and footer, always in that order.
package assembler

import (
	"sync"
	"time"

	"github.com/exploopio/mvtreport/pkg/analyzers"
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/findings"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
	"github.com/exploopio/mvtreport/pkg/shared/severity"
)

// DocumentTitle is the title of every report.
const DocumentTitle = "Mobile Device Security Analysis Report"

// Footer closes every report.
const Footer = "This report was generated by the Mobile Verification Toolkit (MVT) Dashboard. " +
	"MVT is developed by Amnesty International for consensual forensic analysis. " +
	"For questions about this report, contact your security team."

// Section IDs of the builders owned by the assembler.
const (
	IDExecutiveSummary = "executive_summary"
	IDDeviceInfo       = "device_info"
	IDSecurityFindings = "security_findings"
	IDRecommendations  = "recommendations"
)

// Input is everything a report is assembled from.
type Input struct {
	Artifacts  *artifact.Set
	Findings   *findings.Index
	Profile    *profile.Profile
	Policy     analyzers.Policy
	DeviceType string
	Now        time.Time
	Location   *time.Location
}

// Config configures an Assembler.
type Config struct {
	// Registry holds the analyzers run between the security findings and
	// the recommendations. Default: analyzers.DefaultRegistry().
	Registry *analyzers.Registry

	// Parallel runs the analyzers concurrently. Section order is unchanged.
	Parallel bool

	// OnSection is called once per builder with its result and duration.
	// It may be called from several goroutines when Parallel is set.
	OnSection func(res report.SectionResult, d time.Duration)

	Logger core.Logger
}

// DefaultConfig returns the sequential configuration with the built-in
// analyzers.
func DefaultConfig() *Config {
	return &Config{
		Registry: analyzers.DefaultRegistry(),
		Logger:   &core.NopLogger{},
	}
}

// Option configures an Assembler.
type Option func(*Config)

// WithRegistry replaces the analyzer registry.
func WithRegistry(r *analyzers.Registry) Option {
	return func(c *Config) {
		if r != nil {
			c.Registry = r
		}
	}
}

// WithParallel enables concurrent analyzer execution.
func WithParallel(enabled bool) Option {
	return func(c *Config) { c.Parallel = enabled }
}

// WithSectionHook sets the per-section callback.
func WithSectionHook(fn func(report.SectionResult, time.Duration)) Option {
	return func(c *Config) { c.OnSection = fn }
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(c *Config) { c.Logger = core.OrNop(l) }
}

// Assembler builds documents. It holds no per-run state and may be reused.
type Assembler struct {
	config *Config
}

// New creates an Assembler.
func New(opts ...Option) *Assembler {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Assembler{config: cfg}
}

// Result is an assembled document with the outcome of every builder.
type Result struct {
	Document *report.Document
	Sections []report.SectionResult

	// Recommendations tallies the recommendation items by priority.
	Recommendations severity.Count
}

// Failures returns the builders that failed.
func (r *Result) Failures() []*report.Failure {
	var out []*report.Failure
	for _, s := range r.Sections {
		if s.Failure != nil {
			out = append(out, s.Failure)
		}
	}
	return out
}

// Assemble builds a document with the default configuration.
func Assemble(in Input) *report.Document {
	return New().Assemble(in).Document
}

// Assemble builds the document. It never fails: a builder that errors or
// panics is replaced by an inline notice.
func (a *Assembler) Assemble(in Input) *Result {
	in = normalize(in)
	ds := &analyzers.Dataset{
		Artifacts:  in.Artifacts,
		Findings:   in.Findings,
		Policy:     in.Policy,
		Now:        in.Now,
		Location:   in.Location,
		DeviceType: in.DeviceType,
	}

	var results []report.SectionResult
	results = append(results,
		a.run(IDExecutiveSummary, "executive summary", func() (*report.Section, error) {
			return executiveSummary(in), nil
		}),
		a.run(IDDeviceInfo, "device info", func() (*report.Section, error) {
			return deviceInfo(in.Profile), nil
		}),
		a.run(IDSecurityFindings, "security findings", func() (*report.Section, error) {
			return securityFindings(in), nil
		}),
	)
	results = append(results, a.runAnalyzers(ds)...)
	results = append(results,
		a.run(IDRecommendations, "recommendations", func() (*report.Section, error) {
			return recommendations(in.Findings), nil
		}),
	)

	doc := &report.Document{
		Title:       DocumentTitle,
		Summary:     titleFields(in),
		Footer:      Footer,
		GeneratedAt: in.Now,
		DeviceType:  in.DeviceType,
	}
	for _, res := range results {
		sec, ok := sectionFor(res)
		if !ok {
			continue
		}
		placed := *sec
		if res.ID == analyzers.IDTimeline {
			placed.Blocks = append(append([]report.Block(nil), sec.Blocks...), report.Block{Kind: report.KindPageBreak})
		}
		doc.Sections = append(doc.Sections, placed)
	}
	return &Result{
		Document:        doc,
		Sections:        results,
		Recommendations: TallyRecommendations(!in.Findings.IsEmpty()),
	}
}

func (a *Assembler) runAnalyzers(ds *analyzers.Dataset) []report.SectionResult {
	list := a.config.Registry.All()
	results := make([]report.SectionResult, len(list))
	if !a.config.Parallel {
		for i, an := range list {
			results[i] = a.runAnalyzer(an, ds)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, an := range list {
		wg.Add(1)
		go func(i int, an analyzers.Analyzer) {
			defer wg.Done()
			results[i] = a.runAnalyzer(an, ds)
		}(i, an)
	}
	wg.Wait()
	return results
}

func (a *Assembler) runAnalyzer(an analyzers.Analyzer, ds *analyzers.Dataset) report.SectionResult {
	return a.run(an.Name(), an.Title(), func() (*report.Section, error) {
		return an.Analyze(ds)
	})
}

func (a *Assembler) run(id, title string, build func() (*report.Section, error)) report.SectionResult {
	start := time.Now()
	res := report.Run(id, title, build)
	elapsed := time.Since(start)

	if res.Failure != nil {
		a.config.Logger.Warn("Error creating %s section: %s", id, res.Failure.Message)
		if res.Failure.Panic {
			a.config.Logger.Debug("%s", res.Failure.Stack)
		}
	}
	if a.config.OnSection != nil {
		a.config.OnSection(res, elapsed)
	}
	return res
}

// sectionFor maps a result to the section placed in the document: the
// built section, a placeholder for a failure, or nothing for an empty one.
func sectionFor(res report.SectionResult) (*report.Section, bool) {
	switch {
	case res.Failure != nil:
		return report.Placeholder(res.ID, res.Failure), true
	case res.Empty():
		return nil, false
	default:
		return res.Section, true
	}
}

func normalize(in Input) Input {
	if in.Artifacts == nil {
		in.Artifacts = artifact.NewSet(nil)
	}
	if in.Findings == nil {
		in.Findings = findings.Build(in.Artifacts)
	}
	if in.Location == nil {
		in.Location = time.UTC
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	in.Now = in.Now.In(in.Location)
	if in.DeviceType == "" {
		in.DeviceType = profile.Unknown
	}
	if in.Profile == nil {
		in.Profile = profile.Extract(in.Artifacts, profile.Params{DeviceType: in.DeviceType, Now: in.Now})
	}
	if in.Policy.FallbackBucket == "" {
		in.Policy = analyzers.DefaultPolicy()
	}
	return in
}
