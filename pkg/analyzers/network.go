package analyzers

import (
	"fmt"
	"math"
	"sort"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
)

const (
	maxNetworkConsumers  = 10
	maxUnidentifiedProcs = 5

	unknownBundleID = "UNKNOWN"
)

// trafficRecord is the optional-field view of a netusage/datausage record.
// Counters that are missing or not numeric count as zero.
type trafficRecord struct {
	Name     string
	BundleID string
	HasID    bool
	WifiIn   float64
	WifiOut  float64
	WwanIn   float64
	WwanOut  float64
}

func newTrafficRecord(r artifact.Record) trafficRecord {
	t := trafficRecord{
		Name:     r.FirstString("proc_name", "process"),
		BundleID: r.String("bundle_id"),
		WifiIn:   r.Number("wifi_in"),
		WifiOut:  r.Number("wifi_out"),
		WwanIn:   r.Number("wwan_in"),
		WwanOut:  r.Number("wwan_out"),
	}
	if t.Name == "" {
		t.Name = profile.Unknown
	}
	t.HasID = r.Truthy("bundle_id") && t.BundleID != unknownBundleID
	return t
}

func (t trafficRecord) sent() float64     { return artifact.Sum(t.WifiOut, t.WwanOut) }
func (t trafficRecord) received() float64 { return artifact.Sum(t.WifiIn, t.WwanIn) }
func (t trafficRecord) total() float64    { return t.sent() + t.received() }

// display renders "<bundle short name> (<process>)", or the process name
// alone when there is no bundle id or both names agree.
func (t trafficRecord) display() string {
	if t.BundleID == "" || t.BundleID == profile.Unknown {
		return t.Name
	}
	short := shortName(t.BundleID)
	if short == t.Name {
		return t.Name
	}
	return fmt.Sprintf("%s (%s)", short, t.Name)
}

// TrafficTotals are the summed counters of all processes.
type TrafficTotals struct {
	Processes int
	Sent      float64
	Received  float64
}

// SumTraffic adds the byte counters of every record, treating malformed
// values as zero.
func SumTraffic(recs []artifact.Record) TrafficTotals {
	totals := TrafficTotals{Processes: len(recs)}
	for _, r := range recs {
		t := newTrafficRecord(r)
		totals.Sent += t.sent()
		totals.Received += t.received()
	}
	return totals
}

// NetworkAnalyzer reports per-process network usage.
type NetworkAnalyzer struct{}

func (a *NetworkAnalyzer) Name() string  { return IDNetwork }
func (a *NetworkAnalyzer) Title() string { return "Network Activity Analysis" }

func (a *NetworkAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	key, ok := profile.NetworkKey(ds.Artifacts)
	if !ok {
		return nil, nil
	}
	raw, _ := ds.Artifacts.Get(key)
	if !artifact.Truthy(raw) {
		return nil, nil
	}
	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	list, ok := raw.([]any)
	if !ok {
		b.Textf("No network usage data available.")
		return b.Section(), nil
	}
	recs := artifact.ToRecords(list)

	var consumers, unidentified []trafficRecord
	for _, r := range recs {
		t := newTrafficRecord(r)
		if !t.HasID {
			unidentified = append(unidentified, t)
		}
		if t.total() > 0 {
			consumers = append(consumers, t)
		}
	}
	sort.SliceStable(consumers, func(i, j int) bool {
		return consumers[i].total() > consumers[j].total()
	})

	totals := SumTraffic(recs)
	b.Stat("Total processes with network activity", len(list))
	b.Paragraph(report.Text("Total data sent: "), report.Bold(profile.FormatCount(totals.Sent)),
		report.Text(" bytes ("+wholeMB(totals.Sent)+" MB)"))
	b.Paragraph(report.Text("Total data received: "), report.Bold(profile.FormatCount(totals.Received)),
		report.Text(" bytes ("+wholeMB(totals.Received)+" MB)"))
	b.Stat("Processes without valid bundle ID", len(unidentified))

	if len(consumers) > 0 {
		b.SubHeading("Top Network Data Consumers:")
		shown, _ := head(consumers, maxNetworkConsumers)
		for _, t := range shown {
			b.Item(0, "%s - Total: %s MB (Sent: %s MB, Received: %s MB)",
				t.display(), profile.FormatMB(t.total()), profile.FormatMB(t.sent()), profile.FormatMB(t.received()))
		}
	}

	if len(unidentified) > 0 {
		b.Alert("⚠ Processes without valid bundle IDs detected. These may require investigation:")
		shown, _ := head(unidentified, maxUnidentifiedProcs)
		for _, t := range shown {
			b.Item(0, "%s - Sent: %s bytes, Received: %s bytes",
				t.Name, profile.FormatCount(t.sent()), profile.FormatCount(t.received()))
		}
	}
	return b.Section(), nil
}

// wholeMB renders the whole number of megabytes with one decimal.
func wholeMB(bytes float64) string {
	return fmt.Sprintf("%.1f", math.Trunc(bytes/(1024*1024)))
}
