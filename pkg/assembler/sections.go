package assembler

import (
	"fmt"
	"strings"

	"github.com/exploopio/mvtreport/pkg/findings"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
	"github.com/exploopio/mvtreport/pkg/shared/severity"
)

// scopeCategoryLimit is how many category names the scope statement lists.
const scopeCategoryLimit = 8

// Recommendations emitted only when findings exist.
var findingRecommendations = []string{
	"IMMEDIATE: Investigate all detected security issues flagged in this report",
	"IMMEDIATE: Consider isolating the device from networks until issues are resolved",
	"HIGH: Perform a full factory reset if compromise is confirmed",
	"HIGH: Change all passwords and revoke authentication tokens for accounts used on this device",
}

// Recommendations emitted for every report.
var generalRecommendations = []string{
	"Keep the device operating system updated to the latest version",
	"Only install applications from official app stores",
	"Regularly review and remove unused applications",
	"Enable automatic security updates where available",
	"Use strong, unique passwords and enable two-factor authentication",
	"Regularly backup important data to secure, offline storage",
}

// titleFields builds the summary printed under the document title.
func titleFields(in Input) []report.Field {
	p := in.Profile
	value := func(name, def string) string {
		if v, ok := p.Get(name); ok {
			return v
		}
		return def
	}
	return []report.Field{
		{Label: "Device Type", Value: in.DeviceType},
		{Label: "Target Path", Value: value(profile.PropTargetPath, profile.Unknown)},
		{Label: "MVT Version", Value: value(profile.PropMVTVersion, profile.Unknown)},
		{Label: "Analysis Date", Value: value(profile.PropAnalysisDate, profile.Unknown)},
		{Label: "IOC Files Used", Value: value(profile.PropIOCFiles, "0")},
		{Label: "Total Data Sources", Value: value(profile.PropDataSources, "0")},
		{Label: "Report Generated", Value: in.Now.Format(profile.GeneratedLayout)},
	}
}

// ScopeList renders the category names of the scope statement: the first
// eight, then "and N others".
func ScopeList(keys []string) string {
	if len(keys) <= scopeCategoryLimit {
		return strings.Join(keys, ", ")
	}
	return fmt.Sprintf("%s and %d others", strings.Join(keys[:scopeCategoryLimit], ", "), len(keys)-scopeCategoryLimit)
}

func executiveSummary(in Input) *report.Section {
	b := report.NewBuilder(IDExecutiveSummary, "Executive Summary").Heading("Executive Summary")

	if n := in.Findings.Len(); n > 0 {
		b.AlertSpans(
			report.Bold("SECURITY ALERT:"),
			report.Text(" This forensic analysis has identified "),
			report.Bold(fmt.Sprint(n)),
			report.Text(" potential security issues that require immediate attention. "+
				"These findings indicate possible indicators of compromise (IOCs) or suspicious activities on the device."),
		)
	} else {
		b.SuccessSpans(
			report.Bold("CLEAN SCAN:"),
			report.Text(" No immediate security threats or indicators of compromise were detected during this analysis. "+
				"However, this does not guarantee the device is completely free from sophisticated or unknown threats."),
		)
	}

	set := in.Artifacts
	apps, _ := set.Count(profile.KeyApplications)
	procs := 0
	if key, ok := profile.NetworkKey(set); ok {
		procs, _ = set.Count(key)
	}
	keys := set.Keys()
	b.Paragraph(
		report.Text("This Mobile Verification Toolkit (MVT) analysis examined "),
		report.Bold(fmt.Sprint(len(keys))),
		report.Text(fmt.Sprintf(" different data sources from the %s device, including %d applications, "+
			"%d network processes, system logs, browser history, privacy permissions, location tracking data, "+
			"and messaging records. Data sources analyzed: %s.", in.DeviceType, apps, procs, ScopeList(keys))),
	)

	var areas []string
	if set.Has(profile.KeyApplications) {
		n, _ := set.Count(profile.KeyApplications)
		areas = append(areas, fmt.Sprintf("Applications: %d analyzed", n))
	}
	if set.Has("sms") {
		n, _ := set.Count("sms")
		areas = append(areas, fmt.Sprintf("SMS Messages: %d examined", n))
	}
	if set.Has("safari_history") || set.Has("chrome_history") {
		areas = append(areas, "Browser History: Analyzed for malicious URLs")
	}
	if set.Has(profile.KeyNetUsage) || set.Has(profile.KeyDataUsage) {
		areas = append(areas, "Network Activity: Process-level traffic analysis")
	}
	b.SubHeading("Key Analysis Areas:")
	for _, area := range areas {
		b.Item(0, "%s", area)
	}
	return b.Section()
}

func deviceInfo(p *profile.Profile) *report.Section {
	return report.NewBuilder(IDDeviceInfo, "Device Information").
		Heading("Device Information").
		Table([]string{"Property", "Value"}, p.Rows()).
		Section()
}

func securityFindings(in Input) *report.Section {
	ix := in.Findings
	limit := in.Policy.FindingsDisplayLimit
	if limit <= 0 {
		limit = findings.DefaultDisplayLimit
	}

	b := report.NewBuilder(IDSecurityFindings, "Security Findings").Heading("Security Findings")
	if ix.IsEmpty() {
		b.Success("✓ No indicators of compromise (IOCs) were detected in this analysis.")
		b.Textf("Note: This does not guarantee the absence of sophisticated or unknown threats. " +
			"Regular security assessments and updates are recommended.")
	} else {
		b.Alert("⚠ %d potential security issues detected:", ix.Len())
		for _, g := range ix.Groups() {
			b.SubHeading(fmt.Sprintf("%s Issues (%d):", findings.DisplayCategory(g.Category), len(g.Findings)))
			shown, hidden := findings.Truncate(g.Findings, limit)
			for _, f := range shown {
				b.Item(0, "%s", f.Format(in.Location))
			}
			if hidden > 0 {
				b.Textf("%s", findings.MoreMarker(hidden, g.Category))
			}
		}
	}

	for _, s := range ix.Skipped() {
		b.Notice("Findings in %s were skipped: %s", s.Key, s.Reason)
	}
	if n := ix.Dropped(); n > 0 {
		b.Notice("%d findings entries were not records and were ignored", n)
	}
	return b.Section()
}

// Recommendations returns the recommendation texts for a run, findings
// items first.
func Recommendations(hasFindings bool) []string {
	var out []string
	if hasFindings {
		out = append(out, findingRecommendations...)
	}
	return append(out, generalRecommendations...)
}

// TallyRecommendations counts the recommendations of a run by level.
func TallyRecommendations(hasFindings bool) severity.Count {
	var c severity.Count
	for _, rec := range Recommendations(hasFindings) {
		level, _ := severity.FromPrefix(rec)
		c.Increment(level)
	}
	return c
}

func recommendations(ix *findings.Index) *report.Section {
	b := report.NewBuilder(IDRecommendations, "Recommendations").Heading("Recommendations")
	for _, rec := range Recommendations(!ix.IsEmpty()) {
		level, text := severity.FromPrefix(rec)
		b.Emphasized(report.Emphasis(level.Emphasis()),
			report.Bold("["+level.Token()+"]"),
			report.Text(" "+text),
		)
	}
	return b.Section()
}
