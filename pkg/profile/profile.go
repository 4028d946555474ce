// Package profile merges the device and scan metadata scattered across
// artifacts into one ordered property list.
package profile

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Unknown is the fallback value of a property whose field is absent.
const Unknown = "Unknown"

// Property is one entry of a Profile.
type Property struct {
	Name  string
	Value string
}

// Conflict records a refused overwrite.
type Conflict struct {
	Name     string
	Kept     string
	Rejected string
}

// Profile is an ordered set of properties. The first source to set a
// property wins; later writes are refused and recorded.
type Profile struct {
	props     []Property
	index     map[string]int
	conflicts []Conflict
}

// New returns an empty profile.
func New() *Profile {
	return &Profile{index: make(map[string]int)}
}

// Add sets name to value unless it is already set. It reports whether the
// value was stored.
func (p *Profile) Add(name, value string) bool {
	if i, ok := p.index[name]; ok {
		if p.props[i].Value != value {
			p.conflicts = append(p.conflicts, Conflict{Name: name, Kept: p.props[i].Value, Rejected: value})
		}
		return false
	}
	p.index[name] = len(p.props)
	p.props = append(p.props, Property{Name: name, Value: value})
	return true
}

// Get returns the value of name.
func (p *Profile) Get(name string) (string, bool) {
	i, ok := p.index[name]
	if !ok {
		return "", false
	}
	return p.props[i].Value, true
}

// Value returns the value of name or Unknown.
func (p *Profile) Value(name string) string {
	if v, ok := p.Get(name); ok {
		return v
	}
	return Unknown
}

// Properties returns the properties in insertion order.
func (p *Profile) Properties() []Property {
	out := make([]Property, len(p.props))
	copy(out, p.props)
	return out
}

// Len returns the number of properties.
func (p *Profile) Len() int { return len(p.props) }

// Conflicts returns the refused overwrites.
func (p *Profile) Conflicts() []Conflict { return p.conflicts }

// Rows returns the properties as two-column table rows.
func (p *Profile) Rows() [][]string {
	rows := make([][]string, len(p.props))
	for i, prop := range p.props {
		rows[i] = []string{prop.Name, prop.Value}
	}
	return rows
}

// FormatCount renders an integer with thousands separators ("1,234,567").
func FormatCount(n float64) string {
	return message.NewPrinter(language.English).Sprintf("%d", int64(math.Round(n)))
}

// FormatMB renders a byte count in megabytes with one decimal.
func FormatMB(bytes float64) string {
	return fmt.Sprintf("%.1f", bytes/(1024*1024))
}

// GeneratedLayout is the layout of the "Report Generated" property.
const GeneratedLayout = "2006-01-02 15:04:05"

func formatGenerated(t time.Time) string {
	return t.Format(GeneratedLayout)
}
