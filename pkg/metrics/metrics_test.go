package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNopCollector(t *testing.T) {
	c := &NopCollector{}

	// These should all be no-ops and not panic
	c.CounterInc("test", "label", "value")
	c.CounterAdd("test", 5, "label", "value")
	c.GaugeSet("test", 42, "label", "value")
	c.HistogramObserve("test", 1.5, "label", "value")
}

func TestMetricDefinitions(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range Definitions() {
		if !strings.HasPrefix(def.Name, "mvtreport_") {
			t.Errorf("Metric %s lacks the mvtreport_ prefix", def.Name)
		}
		if def.Type == "" {
			t.Errorf("Metric %s has empty type", def.Name)
		}
		if def.Help == "" {
			t.Errorf("Metric %s has empty help", def.Name)
		}
		if seen[def.Name] {
			t.Errorf("Metric %s defined twice", def.Name)
		}
		seen[def.Name] = true
	}
}

func TestNewRecorder_NilCollector(t *testing.T) {
	r := NewRecorder(nil)
	r.Failed(time.Second)
}

func TestPrometheusCollector_WriteTextfile(t *testing.T) {
	c := NewPrometheusCollector(nil)
	r := NewRecorder(c)
	r.Artifacts(3, 1)
	r.Findings(map[string]int{"sms": 2})
	r.Section("network", true, time.Millisecond)
	r.Completed(time.Second, time.Unix(1717243200, 0))

	// Unregistered metrics are ignored.
	c.CounterInc("unknown_metric")

	path := filepath.Join(t.TempDir(), "mvtreport.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"mvtreport_artifacts_loaded_total 3",
		`mvtreport_findings_total{category="sms"} 2`,
		`mvtreport_section_failures_total{section="network"} 1`,
		`mvtreport_reports_total{status="success"} 1`,
		"mvtreport_last_report_timestamp_seconds ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "unknown_metric") {
		t.Error("unregistered metric should not be exported")
	}
}

func TestPrometheusCollector_Register(t *testing.T) {
	c := NewPrometheusCollector(&PrometheusConfig{})
	if err := c.Register(ReportsTotal); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Register(ReportsTotal); err != nil {
		t.Errorf("Register() twice error = %v", err)
	}
	if err := c.Register(MetricDefinition{Name: "x", Type: "summary"}); err == nil {
		t.Error("Register() expected error for unsupported type")
	}
	if err := c.WriteTextfile(""); err == nil {
		t.Error("WriteTextfile(\"\") expected error")
	}
}

func TestLabelsToValues(t *testing.T) {
	tests := []struct {
		name     string
		labels   []string
		expected []string
	}{
		{
			name:     "empty",
			labels:   []string{},
			expected: nil,
		},
		{
			name:     "single pair",
			labels:   []string{"key1", "value1"},
			expected: []string{"value1"},
		},
		{
			name:     "multiple pairs",
			labels:   []string{"key1", "value1", "key2", "value2"},
			expected: []string{"value1", "value2"},
		},
		{
			name:     "odd number (incomplete pair)",
			labels:   []string{"key1", "value1", "key2"},
			expected: []string{"value1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := labelsToValues(tt.labels)
			if len(got) != len(tt.expected) {
				t.Errorf("labelsToValues(%v) = %v, want %v", tt.labels, got, tt.expected)
				return
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("labelsToValues(%v)[%d] = %v, want %v", tt.labels, i, got[i], tt.expected[i])
				}
			}
		})
	}
}
