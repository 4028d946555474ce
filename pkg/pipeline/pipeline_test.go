package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exploopio/mvtreport/pkg/analyzers"
	"github.com/exploopio/mvtreport/pkg/archive"
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/audit"
	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/metrics"
	"github.com/exploopio/mvtreport/pkg/metrics/metricstest"
	"github.com/exploopio/mvtreport/pkg/render"
	"github.com/exploopio/mvtreport/pkg/report"
)

var testNow = time.Date(2024, 6, 1, 12, 30, 45, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	return dir
}

func iosFixture(t *testing.T) string {
	return writeFiles(t, map[string]string{
		"backup_info.json":  `{"Device Name": "Test iPhone", "Product Type": "iPhone14,2", "Product Version": "17.4"}`,
		"applications.json": `[{"itemName": "Mail", "genre": "Productivity"}, {"itemName": "Bank", "genre": "Finance"}]`,
		"sms.json":          `[{"text": "hello"}]`,
		"sms_detected.json": `[{"module": "SMS", "url": "https://bad.example/x", "timestamp": 1717146000}]`,
		"broken.json":       `{not json`,
	})
}

func listOutputs(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	var out []string
	for _, e := range entries {
		if !artifact.IsDataFile(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestGenerate_HTML(t *testing.T) {
	dir := iosFixture(t)

	var warnings, sections int32
	var completed *Result
	p := New(
		WithClock(fixedClock),
		func(c *Config) {
			c.OnWarning = func(artifact.Warning) { atomic.AddInt32(&warnings, 1) }
			c.OnSection = func(report.SectionResult, time.Duration) { atomic.AddInt32(&sections, 1) }
			c.OnCompleted = func(r *Result) { completed = r }
		},
	)

	res, err := p.Generate(context.Background(), dir, "", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	wantPath := filepath.Join(dir, "MVT_Security_Report_iOS_20240601_123045.html")
	if res.OutputPath != wantPath {
		t.Errorf("OutputPath = %q, want %q", res.OutputPath, wantPath)
	}
	if res.DeviceType != DeviceIOS {
		t.Errorf("DeviceType = %q, want iOS", res.DeviceType)
	}
	if res.Findings != 1 || res.NewFindings != 1 {
		t.Errorf("Findings = %d, NewFindings = %d", res.Findings, res.NewFindings)
	}
	if len(res.Warnings) != 1 || atomic.LoadInt32(&warnings) != 1 {
		t.Errorf("warnings = %v (callback %d)", res.Warnings, warnings)
	}
	if atomic.LoadInt32(&sections) == 0 {
		t.Error("OnSection was never called")
	}
	if completed != res {
		t.Error("OnCompleted did not receive the result")
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if rc := res.Recommendations; rc.Immediate != 2 || rc.Highest().Token() != "IMMEDIATE" {
		t.Errorf("Recommendations = %+v, want two immediate items", rc)
	}

	data, err := os.ReadFile(res.OutputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	html := string(data)
	for _, want := range []string{"<!DOCTYPE html>", "Test iPhone", "https://bad.example/x"} {
		if !strings.Contains(html, want) {
			t.Errorf("report does not contain %q", want)
		}
	}

	if outs := listOutputs(t, dir); len(outs) != 1 {
		t.Errorf("output files = %v, want exactly the report", outs)
	}
	if s := p.GetStats(); s.Runs != 1 || s.Completed != 1 || s.Failed != 0 {
		t.Errorf("GetStats() = %+v", s)
	}
}

func TestGenerate_MarkdownAndOutputName(t *testing.T) {
	tests := []struct {
		name       string
		outputName string
		want       string
	}{
		{"extension added", "custom", "custom.md"},
		{"extension kept", "custom.MD", "custom.MD"},
		{"directory stripped", "../elsewhere/custom.md", "custom.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := iosFixture(t)
			res, err := New(WithFormat(render.FormatMarkdown), WithClock(fixedClock)).
				Generate(context.Background(), dir, "Android", tt.outputName)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if res.OutputPath != filepath.Join(dir, tt.want) {
				t.Errorf("OutputPath = %q, want %q", res.OutputPath, filepath.Join(dir, tt.want))
			}
			data, err := os.ReadFile(res.OutputPath)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !strings.HasPrefix(string(data), "# ") {
				t.Errorf("markdown report starts with %q", string(data[:min(20, len(data))]))
			}
		})
	}
}

func TestGenerate_LoadFailure(t *testing.T) {
	tests := []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{"missing directory", func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent") }},
		{"no artifacts", func(t *testing.T) string { return writeFiles(t, map[string]string{"notes.txt": "x"}) }},
		{"only broken artifacts", func(t *testing.T) string { return writeFiles(t, map[string]string{"a.json": "{"}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.dir(t)
			collector := metricstest.New()
			p := New(WithMetrics(collector), WithClock(fixedClock))

			res, err := p.Generate(context.Background(), dir, "", "")
			if err == nil {
				t.Fatalf("Generate() = %+v, want error", res)
			}
			if errors.GetKind(err) != errors.KindLoad {
				t.Errorf("error kind = %v, want load", errors.GetKind(err))
			}
			if got := collector.Counter(metrics.ReportsTotal.Name, "status", metrics.StatusFailed); got != 1 {
				t.Errorf("failed runs = %v, want 1", got)
			}
			if s := p.GetStats(); s.Failed != 1 {
				t.Errorf("GetStats() = %+v", s)
			}
			if entries, err := os.ReadDir(dir); err == nil {
				for _, e := range entries {
					if strings.HasPrefix(e.Name(), DefaultPrefix) {
						t.Errorf("report written despite load failure: %s", e.Name())
					}
				}
			}
		})
	}
}

func TestGenerate_CancelledContext(t *testing.T) {
	dir := iosFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().Generate(ctx, dir, "", ""); err == nil {
		t.Fatal("Generate() expected error for cancelled context")
	}
	if outs := listOutputs(t, dir); len(outs) != 0 {
		t.Errorf("files written after cancel: %v", outs)
	}
}

func TestGenerate_InsufficientSpace(t *testing.T) {
	dir := iosFixture(t)
	_, err := New(WithMinFreeBytes(1<<62)).Generate(context.Background(), dir, "", "")
	if err == nil {
		t.Skip("free space not reported on this platform")
	}
	if errors.GetKind(err) != errors.KindRender {
		t.Errorf("error kind = %v, want render", errors.GetKind(err))
	}
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Name() string  { return "broken" }
func (panickingAnalyzer) Title() string { return "Broken Analysis" }
func (panickingAnalyzer) Analyze(*analyzers.Dataset) (*report.Section, error) {
	panic("boom")
}

func TestGenerate_SectionFailureIsAudited(t *testing.T) {
	dir := iosFixture(t)
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	auditLog, err := audit.NewLogger(&audit.LoggerConfig{LogFile: auditPath, Clock: fixedClock})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	reg := analyzers.DefaultRegistry()
	reg.Register(panickingAnalyzer{})
	collector := metricstest.New()

	res, err := New(WithRegistry(reg), WithAudit(auditLog), WithMetrics(collector), WithClock(fixedClock)).
		Generate(context.Background(), dir, "", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if err := auditLog.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(res.Failures) != 1 || !res.Failures[0].Panic {
		t.Fatalf("Failures = %+v, want one panic", res.Failures)
	}
	if got := collector.Counter(metrics.SectionFailures.Name, "section", "broken"); got != 1 {
		t.Errorf("section failures = %v, want 1", got)
	}
	if got := collector.Counter(metrics.ReportsTotal.Name, "status", metrics.StatusSuccess); got != 1 {
		t.Errorf("successful runs = %v, want 1", got)
	}

	f, err := os.Open(auditPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	var types []audit.EventType
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e audit.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if e.RunID != res.RunID {
			t.Errorf("event %s has run ID %q, want %q", e.Type, e.RunID, res.RunID)
		}
		types = append(types, e.Type)
	}
	want := []audit.EventType{
		audit.EventReportStarted,
		audit.EventArtifactSkipped,
		audit.EventSectionFailed,
		audit.EventReportCompleted,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestGenerate_ArchiveTracksNewFindings(t *testing.T) {
	dir := iosFixture(t)
	a, err := archive.Open(&archive.Config{
		DatabasePath: filepath.Join(t.TempDir(), "history.db"),
		Compression:  compress.AlgorithmZSTD,
	})
	if err != nil {
		t.Fatalf("archive.Open() error = %v", err)
	}
	defer a.Close()

	collector := metricstest.New()
	p := New(WithArchive(a), WithMetrics(collector), WithClock(fixedClock))
	ctx := context.Background()

	first, err := p.Generate(ctx, dir, "", "first")
	if err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	if first.NewFindings != 1 {
		t.Errorf("first NewFindings = %d, want 1", first.NewFindings)
	}

	second, err := p.Generate(ctx, dir, "", "second")
	if err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}
	if second.NewFindings != 0 {
		t.Errorf("second NewFindings = %d, want 0", second.NewFindings)
	}

	runs, err := a.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListRuns() = %d runs, want 2", len(runs))
	}
	run, err := a.GetRun(ctx, first.RunID)
	if err != nil || run == nil {
		t.Fatalf("GetRun() = %v, %v", run, err)
	}
	if run.Findings != 1 || run.Categories != 1 || run.Warnings != 1 || run.DeviceType != DeviceIOS {
		t.Errorf("archived run = %+v", run)
	}
	if got := len(collector.Observations(metrics.ArchiveDuration.Name)); got != 2 {
		t.Errorf("archive duration observations = %d, want 2", got)
	}
	if ratio, ok := collector.Gauge(metrics.ArchiveCompressionRatio.Name); !ok || ratio <= 0 || ratio >= 1 {
		t.Errorf("archive compression ratio = %v (set %v), want between 0 and 1", ratio, ok)
	}
	if run.CompressionRatio <= 0 || run.CompressionRatio >= 1 {
		t.Errorf("archived CompressionRatio = %v", run.CompressionRatio)
	}
	doc, err := a.LoadDocument(ctx, first.RunID)
	if err != nil {
		t.Fatalf("LoadDocument() error = %v", err)
	}
	if doc.Title != first.Document.Title || len(doc.Sections) != len(first.Document.Sections) {
		t.Errorf("archived document differs: %q, %d sections", doc.Title, len(doc.Sections))
	}
}

func TestGenerate_LogsCarryRunID(t *testing.T) {
	var buf bytes.Buffer
	log := core.NewZapLogger(core.ZapOptions{Level: core.LogLevelDebug, JSON: true, Output: &buf})

	res, err := New(WithLogger(log), WithClock(fixedClock)).Generate(context.Background(), iosFixture(t), "", "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("no log output")
	}
	want := `"run_id":"` + res.RunID + `"`
	for _, line := range lines {
		if !strings.Contains(line, want) {
			t.Errorf("log line without %s: %s", want, line)
		}
	}
}

func TestGenerate_FindingsSuffix(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"sms.json":      `[{"text": "hello"}]`,
		"sms_hits.json": `[{"module": "SMS", "url": "https://bad.example/x"}]`,
	})

	res, err := New(WithFindingsSuffix("_hits"), WithClock(fixedClock)).Generate(context.Background(), dir, DeviceAndroid, "")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Findings != 1 {
		t.Errorf("Findings = %d, want 1 from sms_hits.json", res.Findings)
	}

	res, err = New(WithClock(fixedClock)).Generate(context.Background(), dir, DeviceAndroid, "default")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Findings != 0 {
		t.Errorf("Findings = %d with the default suffix, want 0", res.Findings)
	}
}

func TestGenerateReport(t *testing.T) {
	dir := iosFixture(t)
	path, err := GenerateReport(context.Background(), dir, "iOS", "report")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if path != filepath.Join(dir, "report.html") {
		t.Errorf("GenerateReport() = %q", path)
	}
}

func TestDefaultOutputName(t *testing.T) {
	tests := []struct {
		prefix, device string
		format         render.Format
		want           string
	}{
		{"MVT_Security_Report", "iOS", render.FormatHTML, "MVT_Security_Report_iOS_20240601_123045.html"},
		{"", "Android", render.FormatMarkdown, "MVT_Security_Report_Android_20240601_123045.md"},
		{"scan", "", render.FormatHTML, "scan_Unknown_20240601_123045.html"},
		{"scan", "iPad / Air", render.FormatHTML, "scan_iPad___Air_20240601_123045.html"},
	}
	for _, tt := range tests {
		if got := DefaultOutputName(tt.prefix, tt.device, testNow, tt.format); got != tt.want {
			t.Errorf("DefaultOutputName(%q, %q) = %q, want %q", tt.prefix, tt.device, got, tt.want)
		}
	}
}

func TestDetectDeviceType(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{"backup info", map[string]string{"backup_info.json": "{}"}, DeviceIOS},
		{"compressed backup info", map[string]string{"backup_info.json.zst": ""}, DeviceIOS},
		{"android", map[string]string{"packages.json": "[]"}, DeviceAndroid},
		{"empty", nil, DeviceAndroid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectDeviceType(writeFiles(t, tt.files)); got != tt.want {
				t.Errorf("DetectDeviceType() = %q, want %q", got, tt.want)
			}
		})
	}
	if got := DetectDeviceType(filepath.Join(t.TempDir(), "absent")); got != DeviceAndroid {
		t.Errorf("DetectDeviceType(missing) = %q, want Android", got)
	}
}
