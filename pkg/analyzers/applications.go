package analyzers

import (
	"sort"
	"time"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
)

const (
	maxCategories      = 10
	maxHighRiskApps    = 15
	maxSideloadedApps  = 10
	maxRecentInstalls  = 10
	maxBundlesPerGroup = 10

	downloadInfoKey = "com.apple.iTunesStore.downloadInfo"
)

// application is the optional-field view of an applications record.
type application struct {
	Name       string
	BundleID   string
	Genre      string
	Version    string
	Sideloaded bool
	Purchased  time.Time
}

func newApplication(r artifact.Record, loc *time.Location) application {
	app := application{
		Name:       r.FirstString("itemName", "name"),
		BundleID:   r.FirstString("softwareVersionBundleId", "bundle_id", "bundleIdentifier"),
		Genre:      r.StringOr("genre", profile.Unknown),
		Version:    r.StringOr("bundleShortVersionString", profile.Unknown),
		Sideloaded: r.Truthy("sideLoadedDeviceBasedVPP"),
	}
	if app.Name == "" {
		app.Name = profile.Unknown
	}
	if app.BundleID == "" {
		app.BundleID = profile.Unknown
	}
	if info, ok := r.Map(downloadInfoKey); ok {
		if s, ok := info["purchaseDate"].(string); ok {
			app.Purchased, _ = artifact.ParseTimeString(s, loc)
		}
	}
	return app
}

// appSourceKind tags which artifact the application list came from.
type appSourceKind int

const (
	sourceNone appSourceKind = iota
	sourceDetailed
	sourceBundleIDs
)

// appSource is the resolved application list: the detailed applications
// artifact when it is non-empty, else the bundle ids of backup_info.
type appSource struct {
	kind      appSourceKind
	detailed  []application
	bundleIDs []string
}

func (s appSource) count() int {
	if s.kind == sourceDetailed {
		return len(s.detailed)
	}
	return len(s.bundleIDs)
}

func selectAppSource(ds *Dataset) (appSource, error) {
	recs, err := ds.records("applications", profile.KeyApplications)
	if err != nil {
		return appSource{}, err
	}
	if len(recs) > 0 {
		apps := make([]application, len(recs))
		for i, r := range recs {
			apps[i] = newApplication(r, ds.loc())
		}
		return appSource{kind: sourceDetailed, detailed: apps}, nil
	}

	backup, err := ds.Artifacts.Record(profile.KeyBackupInfo)
	if err != nil {
		return appSource{}, errors.E(errors.KindSection, "analyzers.applications", err)
	}
	list, _ := backup.List("Installed Applications")
	var ids []string
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	if len(ids) == 0 {
		return appSource{kind: sourceNone}, nil
	}
	sort.Strings(ids)
	return appSource{kind: sourceBundleIDs, bundleIDs: ids}, nil
}

// ApplicationsAnalyzer reports installed applications: store versus
// sideloaded installs, categories, high-risk genres and recent installs.
type ApplicationsAnalyzer struct{}

func (a *ApplicationsAnalyzer) Name() string  { return IDApplications }
func (a *ApplicationsAnalyzer) Title() string { return "Installed Applications Analysis" }

func (a *ApplicationsAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	src, err := selectAppSource(ds)
	if err != nil {
		return nil, err
	}

	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())
	b.Paragraph(report.Text("Total Applications Found: "), report.Bold(itoa(src.count())))

	switch src.kind {
	case sourceDetailed:
		a.detailed(b, ds, src.detailed)
	case sourceBundleIDs:
		a.bundles(b, ds.Policy, src.bundleIDs)
	}
	return b.Section(), nil
}

func (a *ApplicationsAnalyzer) detailed(b *report.Builder, ds *Dataset, apps []application) {
	var sideloaded []application
	genres := newCounter()
	for _, app := range apps {
		if app.Sideloaded {
			sideloaded = append(sideloaded, app)
		}
		genres.add(app.Genre)
	}

	mostCommon := profile.Unknown
	if top := genres.sorted(); len(top) > 0 {
		mostCommon = top[0].key
	}
	b.Stat("App Store Applications", len(apps)-len(sideloaded))
	b.Stat("Sideloaded Applications", len(sideloaded))
	b.Stat("Most Common Category", mostCommon)

	if len(sideloaded) > 0 {
		b.Alert("⚠ %d sideloaded applications detected - requires security review", len(sideloaded))
	}

	b.SubHeading("Application Categories:")
	top, _ := head(genres.sorted(), maxCategories)
	for _, c := range top {
		b.Item(0, "%s: %d apps", c.key, c.n)
	}

	var highRisk []application
	for _, app := range apps {
		if ds.Policy.IsHighRiskGenre(app.Genre) {
			highRisk = append(highRisk, app)
		}
	}
	if len(highRisk) > 0 {
		b.SubHeading("High-Risk Applications (Finance/Business/Medical):")
		shown, hidden := head(highRisk, maxHighRiskApps)
		for _, app := range shown {
			b.Item(0, "%s (%s) - v%s", app.Name, app.Genre, app.Version)
		}
		b.More(0, hidden, "high-risk applications")
	}

	if len(sideloaded) > 0 {
		b.SubHeading("Non-App Store Applications:")
		shown, hidden := head(sideloaded, maxSideloadedApps)
		for _, app := range shown {
			b.Item(0, "%s (%s)", app.Name, app.BundleID)
		}
		b.More(0, hidden, "applications")
	}

	now := ds.now()
	window := Days(ds.Policy.RecentInstallDays)
	var recent []application
	for _, app := range apps {
		if !app.Purchased.IsZero() && artifact.Within(app.Purchased, now, window) {
			recent = append(recent, app)
		}
	}
	if len(recent) > 0 {
		sort.SliceStable(recent, func(i, j int) bool {
			return recent[i].Purchased.After(recent[j].Purchased)
		})
		b.SubHeading("Recently Installed Apps (Last " + itoa(ds.Policy.RecentInstallDays) + " Days):")
		shown, _ := head(recent, maxRecentInstalls)
		for _, app := range shown {
			b.Item(0, "%s - Installed: %s", app.Name, app.Purchased.In(ds.loc()).Format("2006-01-02"))
		}
	}
}

func (a *ApplicationsAnalyzer) bundles(b *report.Builder, p Policy, ids []string) {
	groups := make(map[string][]string)
	for _, id := range ids {
		bucket := p.Classify(id)
		groups[bucket] = append(groups[bucket], id)
	}

	b.SubHeading("Installed Applications (Bundle IDs):")
	for _, name := range p.BucketNames() {
		members := groups[name]
		if len(members) == 0 {
			continue
		}
		b.Emphasized(report.EmphasisCategory, report.Bold(name+" ("+itoa(len(members))+" apps):"))
		shown, hidden := head(members, maxBundlesPerGroup)
		for _, id := range shown {
			b.Item(1, "%s (%s)", shortName(id), id)
		}
		b.More(1, hidden, "")
	}
}
