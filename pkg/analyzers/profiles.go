package analyzers

import (
	"fmt"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
)

const (
	keyConfigProfiles = "configuration_profiles"
	maxConfigProfiles = 10
)

// configProfile is the optional-field view of a configuration_profiles record.
type configProfile struct {
	Name        string
	Identifier  string
	InstallDate string
}

func newConfigProfile(r artifact.Record, position int) configProfile {
	return configProfile{
		Name:        r.StringOr("payload_display_name", fmt.Sprintf("Profile %d", position)),
		Identifier:  r.StringOr("payload_identifier", "Unknown ID"),
		InstallDate: r.StringOr("install_date", profile.Unknown),
	}
}

// ProfilesAnalyzer lists installed configuration profiles.
type ProfilesAnalyzer struct{}

func (a *ProfilesAnalyzer) Name() string  { return IDProfiles }
func (a *ProfilesAnalyzer) Title() string { return "Configuration Profiles Analysis" }

func (a *ProfilesAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	raw, ok := ds.Artifacts.Get(keyConfigProfiles)
	if !ok {
		return nil, nil
	}
	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	list, ok := raw.([]any)
	if !ok {
		b.Textf("No configuration profiles data available.")
		return b.Section(), nil
	}
	if len(list) == 0 {
		b.Success("✓ No configuration profiles installed.")
		return b.Section(), nil
	}

	b.Alert("⚠ %d configuration profiles found:", len(list))
	b.Textf("Configuration profiles can control device behavior and should be reviewed for security implications.")

	shown, hidden := head(list, maxConfigProfiles)
	for i, v := range shown {
		m, _ := v.(map[string]any)
		p := newConfigProfile(artifact.Record(m), i+1)
		b.Item(0, "%s (ID: %s) - Installed: %s", p.Name, p.Identifier, p.InstallDate)
	}
	b.More(0, hidden, "profiles")
	return b.Section(), nil
}
