package analyzers

import (
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
)

const (
	maxBackgroundClients = 10
	maxThirdPartyClients = 15
)

// backgroundMarkers flag a client that may use location in the background.
var backgroundMarkers = []string{"BackgroundAppRefresh", "LocationServicesEnabled"}

// locationClient is the optional-field view of a locationd_clients record.
type locationClient struct {
	Name       string
	Active     bool
	Background bool
}

func newLocationClient(r artifact.Record) locationClient {
	c := locationClient{Name: r.FirstString("BundleId", "Executable")}
	if c.Name == "" {
		c.Name = profile.Unknown
	}
	c.Active = r.Truthy("Authorized") && r.String("BundleId") != ""
	for _, key := range backgroundMarkers {
		if r.Has(key) {
			c.Background = true
			break
		}
	}
	return c
}

// LocationAnalyzer reports applications authorized for location services.
type LocationAnalyzer struct{}

func (a *LocationAnalyzer) Name() string  { return IDLocation }
func (a *LocationAnalyzer) Title() string { return "Location Tracking Analysis" }

func (a *LocationAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	raw, ok := ds.Artifacts.Get(profile.KeyLocation)
	if !ok {
		return nil, nil
	}
	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	list, ok := raw.([]any)
	if !ok {
		b.Textf("No location client data available.")
		return b.Section(), nil
	}

	var active, background []string
	for _, r := range artifact.ToRecords(list) {
		c := newLocationClient(r)
		if !c.Active {
			continue
		}
		active = append(active, c.Name)
		if c.Background {
			background = append(background, c.Name)
		}
	}

	b.Paragraph(report.Text("Applications with Location Access: "), report.Bold(itoa(len(active))))

	if len(background) > 0 {
		b.Alert("⚠ %d applications may have background location access", len(background))
		b.SubHeading("Apps with Potential Background Location:")
		shown, _ := head(background, maxBackgroundClients)
		for _, name := range shown {
			b.Item(0, "%s", shortName(name))
		}
	}

	var thirdParty []string
	for _, name := range active {
		if !ds.Policy.IsSystem(name) {
			thirdParty = append(thirdParty, name)
		}
	}
	if len(thirdParty) > 0 {
		b.SubHeading("Third-party Apps with Location Access:")
		shown, _ := head(thirdParty, maxThirdPartyClients)
		for _, name := range shown {
			b.Item(0, "%s", shortName(name))
		}
	}
	return b.Section(), nil
}
