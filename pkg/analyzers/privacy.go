package analyzers

import (
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/profile"
	"github.com/exploopio/mvtreport/pkg/report"
)

const maxPermissionClients = 10

// permissionGrant is the optional-field view of a tcc record.
type permissionGrant struct {
	Service string
	Client  string
	Allowed bool
}

func newPermissionGrant(r artifact.Record) permissionGrant {
	return permissionGrant{
		Service: r.StringOr("service", profile.Unknown),
		Client:  r.StringOr("client", profile.Unknown),
		Allowed: r.String("auth_value") == "allowed",
	}
}

// serviceGrants holds the clients of one service split by outcome.
type serviceGrants struct {
	allowed []string
	denied  []string
}

// PrivacyAnalyzer reports which applications hold sensitive permissions.
type PrivacyAnalyzer struct{}

func (a *PrivacyAnalyzer) Name() string  { return IDPrivacy }
func (a *PrivacyAnalyzer) Title() string { return "Privacy & Permissions Analysis" }

func (a *PrivacyAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	raw, ok := ds.Artifacts.Get(profile.KeyTCC)
	if !ok {
		return nil, nil
	}
	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	list, ok := raw.([]any)
	if !ok {
		b.Textf("No TCC permission data available.")
		return b.Section(), nil
	}

	services := make(map[string]*serviceGrants)
	for _, r := range artifact.ToRecords(list) {
		g := newPermissionGrant(r)
		sg, ok := services[g.Service]
		if !ok {
			sg = &serviceGrants{}
			services[g.Service] = sg
		}
		if g.Allowed {
			sg.allowed = append(sg.allowed, g.Client)
		} else {
			sg.denied = append(sg.denied, g.Client)
		}
	}

	p := ds.Policy
	sensitive := 0
	for _, svc := range p.SensitiveServices {
		sg, ok := services[svc.ID]
		if !ok {
			continue
		}
		sensitive++
		if len(sg.allowed) == 0 {
			continue
		}
		b.SubHeading(svc.Label + ":")

		var thirdParty []string
		system := 0
		for _, client := range sg.allowed {
			if p.IsThirdParty(client) {
				thirdParty = append(thirdParty, client)
			} else {
				system++
			}
		}
		if len(thirdParty) > 0 {
			b.Textf("Third-party applications with access:")
			shown, hidden := head(thirdParty, maxPermissionClients)
			for _, client := range shown {
				b.Item(1, "%s", shortName(client))
			}
			b.More(1, hidden, "apps")
		}
		if system > 0 {
			b.Textf("System applications: %d apps", system)
		}
	}

	if sensitive == 0 {
		b.Success("No sensitive privacy permissions detected in TCC data.")
	}

	b.SubHeading("TCC Database Summary:")
	b.Stat("Total Permission Entries", len(list))
	b.Stat("Unique Services", len(services))
	b.Stat("Sensitive Permissions Found", sensitive)
	return b.Section(), nil
}
