package analyzers

import (
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/report"
)

const (
	keySMS      = "sms"
	keyCalls    = "calls"
	keyContacts = "contacts"
)

// flagMarkers mark a message as elevated when any of them is truthy.
var flagMarkers = []string{"flagged", "suspicious"}

// MessagingAnalyzer reports message, call and contact volumes.
type MessagingAnalyzer struct{}

func (a *MessagingAnalyzer) Name() string  { return IDMessaging }
func (a *MessagingAnalyzer) Title() string { return "Messaging & Communications Analysis" }

func (a *MessagingAnalyzer) Analyze(ds *Dataset) (*report.Section, error) {
	set := ds.Artifacts
	present := false
	for _, key := range []string{keySMS, keyCalls, keyContacts} {
		if v, _ := set.Get(key); artifact.Truthy(v) {
			present = true
		}
	}
	if !present {
		return nil, nil
	}

	sms, err := ds.records("messaging", keySMS)
	if err != nil {
		return nil, err
	}
	calls, err := ds.records("messaging", keyCalls)
	if err != nil {
		return nil, err
	}
	contacts, err := ds.records("messaging", keyContacts)
	if err != nil {
		return nil, err
	}

	b := report.NewBuilder(a.Name(), a.Title()).Heading(a.Title())

	if len(sms) > 0 {
		b.Paragraph(report.Text("SMS Messages: "), report.Bold(itoa(len(sms))))

		now := ds.now()
		window := Days(ds.Policy.RecentMessageDays)
		recent, flagged := 0, 0
		for _, msg := range sms {
			if t, ok := artifact.ParseTime(msg["date"], ds.loc()); ok && artifact.Within(t, now, window) {
				recent++
			}
			for _, key := range flagMarkers {
				if msg.Truthy(key) {
					flagged++
					break
				}
			}
		}
		if recent > 0 {
			b.Textf("Recent SMS activity (last %d days): %d messages", ds.Policy.RecentMessageDays, recent)
		}
		if flagged > 0 {
			b.Alert("⚠ %d potentially suspicious SMS messages detected", flagged)
		}
	}

	if len(calls) > 0 {
		b.Paragraph(report.Text("Call Records: "), report.Bold(itoa(len(calls))))
		incoming, outgoing := 0, 0
		for _, call := range calls {
			switch call.String("direction") {
			case "incoming":
				incoming++
			case "outgoing":
				outgoing++
			}
		}
		b.Textf("Incoming calls: %d, Outgoing calls: %d", incoming, outgoing)
	}

	if len(contacts) > 0 {
		b.Paragraph(report.Text("Contacts: "), report.Bold(itoa(len(contacts))))
	}
	return b.Section(), nil
}
