package assembler

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exploopio/mvtreport/pkg/analyzers"
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/report"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func scenarioSet() *artifact.Set {
	return artifact.NewSet(map[string]any{
		"backup_info": map[string]any{
			"Device Name":     "Test iPhone",
			"Product Type":    "iPhone14,2",
			"Product Version": "17.4",
		},
		"applications": []any{
			map[string]any{"itemName": "Mail", "genre": "Productivity"},
			map[string]any{"itemName": "Bank", "genre": "Finance"},
			map[string]any{"itemName": "Tool", "sideLoadedDeviceBasedVPP": true},
		},
		"netusage": []any{
			map[string]any{"proc_name": "app", "bundle_id": "com.example.app",
				"wifi_out": json.Number("1200"), "wwan_out": json.Number("34"),
				"wifi_in": json.Number("5000"), "wwan_in": json.Number("6")},
			map[string]any{"proc_name": "svc", "bundle_id": "com.example.svc",
				"wifi_out": json.Number("800"), "wifi_in": json.Number("94")},
		},
		"sms": []any{
			map[string]any{"text": "hello"},
			map[string]any{"text": "world"},
		},
		"applications_detected": []any{
			map[string]any{"module": "Applications", "bundle_id": "com.bad.app"},
		},
		"sms_detected": []any{
			map[string]any{"module": "SMS", "url": "https://bad.example/x", "timestamp": json.Number("1717146000")},
		},
	})
}

func assemble(t *testing.T, set *artifact.Set, opts ...Option) *Result {
	t.Helper()
	return New(opts...).Assemble(Input{Artifacts: set, DeviceType: "iOS", Now: testNow})
}

func sectionLines(t *testing.T, doc *report.Document, id string) []string {
	t.Helper()
	sec, ok := doc.Section(id)
	if !ok {
		t.Fatalf("section %q missing", id)
	}
	return sec.Lines()
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func TestAssemble_Scenario(t *testing.T) {
	res := assemble(t, scenarioSet())
	doc := res.Document

	if doc.Title != DocumentTitle || doc.Footer != Footer {
		t.Errorf("title/footer = %q / %q", doc.Title, doc.Footer)
	}
	if len(res.Failures()) != 0 {
		t.Fatalf("Failures() = %v", res.Failures())
	}

	summary := sectionLines(t, doc, IDExecutiveSummary)
	if !strings.HasPrefix(summary[1], "SECURITY ALERT: This forensic analysis has identified 2 potential") {
		t.Errorf("executive summary state = %q", summary[1])
	}

	apps := sectionLines(t, doc, analyzers.IDApplications)
	for _, want := range []string{"App Store Applications: 2", "Sideloaded Applications: 1"} {
		if !contains(apps, want) {
			t.Errorf("applications section missing %q", want)
		}
	}

	network := sectionLines(t, doc, analyzers.IDNetwork)
	for _, want := range []string{"Total data sent: 2,034 bytes (0.0 MB)", "Total data received: 5,100 bytes (0.0 MB)"} {
		if !contains(network, want) {
			t.Errorf("network section missing %q in %q", want, network)
		}
	}

	findings := sectionLines(t, doc, IDSecurityFindings)
	for _, want := range []string{
		"⚠ 2 potential security issues detected:",
		"Applications Issues (1):",
		"[Unknown time] App: com.bad.app",
		"Sms Issues (1):",
		"[2024-05-31 09:00:00] URL: https://bad.example/x",
	} {
		if !contains(findings, want) {
			t.Errorf("security findings missing %q in %q", want, findings)
		}
	}

	recs := sectionLines(t, doc, IDRecommendations)
	if len(recs) != 11 || recs[1] != "[IMMEDIATE] Investigate all detected security issues flagged in this report" {
		t.Errorf("recommendations = %q", recs)
	}
}

func TestAssemble_SectionOrder(t *testing.T) {
	doc := assemble(t, scenarioSet()).Document
	var ids []string
	for _, s := range doc.Sections {
		ids = append(ids, s.ID)
	}
	want := []string{
		IDExecutiveSummary, IDDeviceInfo, IDSecurityFindings,
		analyzers.IDApplications, analyzers.IDNetwork, analyzers.IDMessaging, analyzers.IDTimeline,
		IDRecommendations,
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("section order = %v, want %v", ids, want)
	}

	timeline, _ := doc.Section(analyzers.IDTimeline)
	last := timeline.Blocks[len(timeline.Blocks)-1]
	if last.Kind != report.KindPageBreak {
		t.Errorf("timeline should end with a page break, got %s", last.Kind)
	}
}

func TestAssemble_CleanScan(t *testing.T) {
	doc := assemble(t, artifact.NewSet(map[string]any{"sms": []any{}})).Document

	summary := sectionLines(t, doc, IDExecutiveSummary)
	if !strings.HasPrefix(summary[1], "CLEAN SCAN:") {
		t.Errorf("executive summary state = %q", summary[1])
	}
	findings := sectionLines(t, doc, IDSecurityFindings)
	if !contains(findings, "✓ No indicators of compromise (IOCs) were detected in this analysis.") {
		t.Errorf("security findings = %q", findings)
	}
	if recs := sectionLines(t, doc, IDRecommendations); len(recs) != 7 {
		t.Errorf("recommendations = %d lines, want heading + 6", len(recs))
	}
}

func TestAssemble_MalformedFindingsDegradesLocally(t *testing.T) {
	set := scenarioSet()
	entries := map[string]any{}
	for _, k := range set.Keys() {
		v, _ := set.Get(k)
		entries[k] = v
	}
	entries["sms_detected"] = map[string]any{"module": "SMS", "url": "https://bad.example"}
	res := assemble(t, artifact.NewSet(entries))

	if len(res.Failures()) != 0 {
		t.Errorf("Failures() = %v", res.Failures())
	}
	findings := sectionLines(t, res.Document, IDSecurityFindings)
	if !contains(findings, "⚠ 1 potential security issues detected:") {
		t.Errorf("security findings = %q", findings)
	}
	if !contains(findings, "Findings in sms_detected were skipped: expected a list of records, got object") {
		t.Errorf("skipped notice missing in %q", findings)
	}
	if contains(findings, "1 findings entries were not records and were ignored") {
		t.Errorf("unexpected dropped notice in %q", findings)
	}
	if len(res.Document.Sections) != 8 {
		t.Errorf("sections = %d, want 8", len(res.Document.Sections))
	}
}

type failingAnalyzer struct {
	name  string
	panic bool
}

func (f failingAnalyzer) Name() string  { return f.name }
func (f failingAnalyzer) Title() string { return "Broken Analysis" }
func (f failingAnalyzer) Analyze(*analyzers.Dataset) (*report.Section, error) {
	if f.panic {
		panic("boom")
	}
	return nil, errors.New("bad input")
}

func TestAssemble_FailureIsolation(t *testing.T) {
	for _, panics := range []bool{false, true} {
		reg := analyzers.DefaultRegistry()
		reg.Register(failingAnalyzer{name: analyzers.IDNetwork, panic: panics})

		var calls int32
		res := assemble(t, scenarioSet(),
			WithRegistry(reg),
			WithSectionHook(func(report.SectionResult, time.Duration) { atomic.AddInt32(&calls, 1) }),
		)

		failures := res.Failures()
		if len(failures) != 1 || failures[0].Panic != panics {
			t.Fatalf("Failures() = %+v", failures)
		}
		want := "Error in Broken Analysis: bad input"
		if panics {
			want = "Error in Broken Analysis: boom"
		}
		if got := sectionLines(t, res.Document, analyzers.IDNetwork); !reflect.DeepEqual(got, []string{want}) {
			t.Errorf("placeholder = %q, want %q", got, want)
		}
		if len(res.Document.Sections) != 8 {
			t.Errorf("sections = %d, want 8", len(res.Document.Sections))
		}
		if calls != 12 {
			t.Errorf("section hook calls = %d, want 12", calls)
		}
	}
}

func TestAssemble_ParallelMatchesSequential(t *testing.T) {
	seq := assemble(t, scenarioSet()).Document
	par := assemble(t, scenarioSet(), WithParallel(true)).Document
	if !reflect.DeepEqual(seq.Sections, par.Sections) {
		t.Error("parallel assembly produced different sections")
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	a := assemble(t, scenarioSet()).Document
	b := New().Assemble(Input{Artifacts: scenarioSet(), DeviceType: "iOS", Now: testNow.Add(time.Minute)}).Document

	strip := func(d *report.Document) [][]string {
		var out [][]string
		for _, s := range d.Sections {
			if s.ID == IDDeviceInfo {
				continue
			}
			out = append(out, s.Lines())
		}
		return out
	}
	if !reflect.DeepEqual(strip(a), strip(b)) {
		t.Error("sections differ between runs")
	}
}

func TestScopeList(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	tests := []struct {
		in   []string
		want string
	}{
		{keys[:3], "a, b, c"},
		{keys[:8], "a, b, c, d, e, f, g, h"},
		{keys, "a, b, c, d, e, f, g, h and 2 others"},
	}
	for _, tt := range tests {
		if got := ScopeList(tt.in); got != tt.want {
			t.Errorf("ScopeList(%d keys) = %q, want %q", len(tt.in), got, tt.want)
		}
	}
}

func TestTitleFields(t *testing.T) {
	doc := assemble(t, scenarioSet()).Document
	got := map[string]string{}
	for _, f := range doc.Summary {
		got[f.Label] = f.Value
	}
	want := map[string]string{
		"Device Type":        "iOS",
		"Target Path":        "Unknown",
		"IOC Files Used":     "0",
		"Total Data Sources": "6",
		"Report Generated":   "2024-06-01 12:00:00",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestAssemble_RecommendationTally(t *testing.T) {
	tests := []struct {
		name        string
		set         *artifact.Set
		wantTotal   int
		wantUrgent  int
		wantHighest string
	}{
		{"findings", scenarioSet(), 10, 2, "immediate"},
		{"clean", artifact.NewSet(map[string]any{"sms": []any{}}), 6, 0, "medium"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := assemble(t, tt.set).Recommendations
			if c.Total != tt.wantTotal || c.Immediate != tt.wantUrgent {
				t.Errorf("Recommendations = %+v, want total %d, immediate %d", c, tt.wantTotal, tt.wantUrgent)
			}
			if got := c.Highest().String(); got != tt.wantHighest {
				t.Errorf("Highest() = %s, want %s", got, tt.wantHighest)
			}
		})
	}
}

func TestAssemble_DroppedFindingEntries(t *testing.T) {
	res := assemble(t, artifact.NewSet(map[string]any{
		"sms_detected": []any{"junk", json.Number("7"), map[string]any{"module": "SMS", "url": "https://bad.example"}},
	}))

	findings := sectionLines(t, res.Document, IDSecurityFindings)
	if !contains(findings, "⚠ 1 potential security issues detected:") {
		t.Errorf("security findings = %q", findings)
	}
	if !contains(findings, "2 findings entries were not records and were ignored") {
		t.Errorf("dropped notice missing in %q", findings)
	}
}
