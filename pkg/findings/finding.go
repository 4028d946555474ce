// Package findings indexes the indicator-of-compromise matches found in
// "_detected" artifacts and formats them for display.
package findings

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/shared/fingerprint"
)

// UnknownTime is shown for findings without a timestamp.
const UnknownTime = "Unknown time"

// NoDetails is shown when a finding has none of the detail fields.
const NoDetails = "See raw data for details"

// DetailField maps a record key to its display label.
type DetailField struct {
	Key   string
	Label string
}

// DetailFields lists the fields shown for a finding, in display order.
var DetailFields = []DetailField{
	{Key: "url", Label: "URL"},
	{Key: "domain", Label: "Domain"},
	{Key: "process", Label: "Process"},
	{Key: "bundle_id", Label: "App"},
	{Key: "matched_indicator", Label: "IOC"},
}

// TimestampKind distinguishes the input forms of a finding timestamp.
type TimestampKind int

const (
	TimestampNone TimestampKind = iota
	TimestampEpoch
	TimestampText
)

// Timestamp is the timestamp of a finding as it appeared in the record.
type Timestamp struct {
	Kind  TimestampKind
	Epoch float64
	Text  string
	raw   any
}

func newTimestamp(v any) Timestamp {
	switch {
	case v == nil:
		return Timestamp{}
	case artifact.IsNumeric(v):
		return Timestamp{Kind: TimestampEpoch, Epoch: artifact.Number(v), raw: v}
	default:
		if s, ok := v.(string); ok {
			return Timestamp{Kind: TimestampText, Text: s, raw: v}
		}
		return Timestamp{Kind: TimestampText, Text: artifact.Display(v), raw: v}
	}
}

// Display renders the timestamp: epochs become calendar time in loc,
// strings are shown as-is.
func (t Timestamp) Display(loc *time.Location) string {
	switch t.Kind {
	case TimestampEpoch:
		if loc == nil {
			loc = time.UTC
		}
		return artifact.FromEpoch(t.Epoch).In(loc).Format(artifact.DisplayLayout)
	case TimestampText:
		return t.Text
	default:
		return UnknownTime
	}
}

// Time parses the timestamp, if it can be placed on a timeline.
func (t Timestamp) Time(loc *time.Location) (time.Time, bool) {
	if t.Kind == TimestampNone {
		return time.Time{}, false
	}
	return artifact.ParseTime(t.raw, loc)
}

// Detail is one present detail field of a finding.
type Detail struct {
	Label string
	Value string
}

// Finding is one confirmed indicator match.
type Finding struct {
	ID        string
	Category  string
	Source    string
	Timestamp Timestamp

	URL              string
	Domain           string
	Process          string
	BundleID         string
	MatchedIndicator string

	Details []Detail
	Raw     artifact.Record
}

// New builds a Finding from a record of the findings artifact source.
func New(source string, rec artifact.Record) Finding {
	f := Finding{
		Category:  source,
		Source:    source,
		Timestamp: newTimestamp(rec["timestamp"]),
		Raw:       rec,
	}
	if m, ok := rec["module"].(string); ok && m != "" {
		f.Category = m
	}

	for _, df := range DetailFields {
		v, ok := rec.Get(df.Key)
		if !ok {
			continue
		}
		s := artifact.Display(v)
		f.Details = append(f.Details, Detail{Label: df.Label, Value: s})
		switch df.Key {
		case "url":
			f.URL = s
		case "domain":
			f.Domain = s
		case "process":
			f.Process = s
		case "bundle_id":
			f.BundleID = s
		case "matched_indicator":
			f.MatchedIndicator = s
		}
	}

	canonical, _ := json.Marshal(rec)
	f.ID = fingerprint.Generate(fingerprint.Input{
		Category:  f.Category,
		URL:       f.URL,
		Domain:    f.Domain,
		Process:   f.Process,
		BundleID:  f.BundleID,
		Indicator: f.MatchedIndicator,
		Timestamp: f.Timestamp.Display(time.UTC),
		Canonical: string(canonical),
	})
	return f
}

// Summary renders the detail fields, or NoDetails.
func (f Finding) Summary() string {
	if len(f.Details) == 0 {
		return NoDetails
	}
	parts := make([]string, len(f.Details))
	for i, d := range f.Details {
		parts[i] = d.Label + ": " + d.Value
	}
	return strings.Join(parts, " | ")
}

// Format renders "[<timestamp>] <details>".
func (f Finding) Format(loc *time.Location) string {
	return "[" + f.Timestamp.Display(loc) + "] " + f.Summary()
}
