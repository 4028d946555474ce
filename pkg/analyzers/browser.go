package analyzers

import (
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/report"
)

const (
	keySafariHistory  = "safari_history"
	keyWebKitStats    = "webkit_resource_load_statistics"
	maxTrackerDomains = 10
)

// BrowserAnalyzer reports browsing history volume and cross-site trackers.
type BrowserAnalyzer struct{}

func (a *BrowserAnalyzer) Name() string  { return IDBrowser }
func (a *BrowserAnalyzer) Title() string { return "Browser Security Analysis" }

func (a *BrowserAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	set := ds.Artifacts
	if !set.Has(keySafariHistory) && !set.Has(keyWebKitStats) {
		return nil, nil
	}

	history, err := ds.records("browser", keySafariHistory)
	if err != nil {
		return nil, err
	}
	stats, err := ds.records("browser", keyWebKitStats)
	if err != nil {
		return nil, err
	}

	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	if len(history) > 0 {
		b.Paragraph(report.Text("Safari History Entries: "), report.Bold(itoa(len(history))))

		now := ds.now()
		window := Days(ds.Policy.RecentBrowsingDays)
		recent := 0
		for _, entry := range history {
			v := entry["visit_time"]
			if !artifact.IsNumeric(v) || artifact.Number(v) == 0 {
				continue
			}
			if artifact.Within(artifact.FromEpoch(artifact.Number(v)), now, window) {
				recent++
			}
		}
		if recent > 0 {
			b.Textf("Recent browsing activity (last %d days): %d visits", ds.Policy.RecentBrowsingDays, recent)
		}
	}

	if len(stats) > 0 {
		b.Paragraph(report.Text("WebKit Tracking Data: "), report.Bold(itoa(len(stats))), report.Text(" domains"))

		var trackers []string
		for _, entry := range stats {
			origins, _ := entry.Len("subframeUnderTopFrameOrigins")
			if origins > ds.Policy.CrossSiteThreshold {
				trackers = append(trackers, entry.String("RegistrableDomain"))
			}
		}
		if len(trackers) > 0 {
			b.Textf("Domains with high cross-site activity: %d", len(trackers))
			b.SubHeading("Top Cross-Site Tracking Domains:")
			shown, _ := head(trackers, maxTrackerDomains)
			for _, domain := range shown {
				b.Item(0, "%s", domain)
			}
		}
	}
	return b.Section(), nil
}
