package analyzers

import (
	"sort"
	"time"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/findings"
	"github.com/exploopio/mvtreport/pkg/report"
)

const maxTimelineEvents = 10

// Event is one dated entry of the timeline.
type Event struct {
	Time    time.Time
	Finding findings.Finding
}

// Events returns the findings that carry a parseable timestamp, oldest
// first. Findings with equal timestamps keep their index order.
func Events(ix *findings.Index, loc *time.Location) []Event {
	if ix == nil {
		return nil
	}
	var events []Event
	for _, f := range ix.All() {
		if t, ok := f.Timestamp.Time(loc); ok {
			events = append(events, Event{Time: t, Finding: f})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
	return events
}

// TimelineAnalyzer lists recent dated findings in time order.
type TimelineAnalyzer struct{}

func (a *TimelineAnalyzer) Name() string  { return IDTimeline }
func (a *TimelineAnalyzer) Title() string { return "Timeline Analysis" }

func (a *TimelineAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	now := ds.now()
	window := Days(ds.Policy.TimelineDays)
	var recent []Event
	for _, e := range Events(ds.Findings, ds.loc()) {
		if artifact.Within(e.Time, now, window) {
			recent = append(recent, e)
		}
	}
	if len(recent) == 0 {
		b.Textf("No significant timeline events to display.")
		return b.Section(), nil
	}

	b.SubHeading("Recent Security Events (Last " + itoa(ds.Policy.TimelineDays) + " Days):")
	shown, hidden := head(recent, maxTimelineEvents)
	for _, e := range shown {
		b.Code(e.Finding.Format(ds.loc()))
	}
	b.More(0, hidden, "events")
	return b.Section(), nil
}
