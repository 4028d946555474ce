package findings

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/exploopio/mvtreport/pkg/artifact"
)

// DefaultDisplayLimit is how many findings of a category are listed before
// the remainder marker.
const DefaultDisplayLimit = 5

// Group is the findings of one category in original order.
type Group struct {
	Category string
	Findings []Finding
}

// Skipped records a findings artifact whose content was unusable.
type Skipped struct {
	Key    string
	Reason string
}

// Index holds every finding, flat and grouped by category.
type Index struct {
	all      []Finding
	groups   []Group
	position map[string]int
	skipped  []Skipped
	dropped  int
}

// Build collects the records of every findings artifact in set, in key
// order. An artifact that is not a list is recorded in Skipped; list
// elements that are not objects are dropped.
func Build(set *artifact.Set) *Index {
	ix := &Index{position: make(map[string]int)}
	if set == nil {
		return ix
	}
	for _, key := range set.FindingsKeys() {
		v, _ := set.Get(key)
		if v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			ix.skipped = append(ix.skipped, Skipped{
				Key:    key,
				Reason: fmt.Sprintf("expected a list of records, got %s", artifact.KindOf(v)),
			})
			continue
		}
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				ix.dropped++
				continue
			}
			ix.add(New(key, artifact.Record(m)))
		}
	}
	return ix
}

func (ix *Index) add(f Finding) {
	ix.all = append(ix.all, f)
	pos, ok := ix.position[f.Category]
	if !ok {
		pos = len(ix.groups)
		ix.position[f.Category] = pos
		ix.groups = append(ix.groups, Group{Category: f.Category})
	}
	ix.groups[pos].Findings = append(ix.groups[pos].Findings, f)
}

// Len returns the total number of findings.
func (ix *Index) Len() int { return len(ix.all) }

// IsEmpty reports whether there are no findings.
func (ix *Index) IsEmpty() bool { return len(ix.all) == 0 }

// All returns every finding in load order.
func (ix *Index) All() []Finding {
	out := make([]Finding, len(ix.all))
	copy(out, ix.all)
	return out
}

// Groups returns the categories in first-seen order.
func (ix *Index) Groups() []Group {
	out := make([]Group, len(ix.groups))
	copy(out, ix.groups)
	return out
}

// Categories returns the category names in first-seen order.
func (ix *Index) Categories() []string {
	out := make([]string, len(ix.groups))
	for i, g := range ix.groups {
		out[i] = g.Category
	}
	return out
}

// Group returns the findings of one category.
func (ix *Index) Group(category string) []Finding {
	pos, ok := ix.position[category]
	if !ok {
		return nil
	}
	return ix.groups[pos].Findings
}

// Skipped returns the findings artifacts that could not be used.
func (ix *Index) Skipped() []Skipped {
	return ix.skipped
}

// Dropped returns the number of non-object list elements ignored.
func (ix *Index) Dropped() int { return ix.dropped }

// Truncate splits fs into the shown prefix and the number hidden.
func Truncate(fs []Finding, limit int) ([]Finding, int) {
	if limit <= 0 || len(fs) <= limit {
		return fs, 0
	}
	return fs[:limit], len(fs) - limit
}

// DisplayCategory renders a category name for headings
// ("sms_detected" becomes "Sms Detected").
func DisplayCategory(category string) string {
	// Casers keep state between calls and must not be shared.
	return cases.Title(language.English).String(strings.ReplaceAll(category, "_", " "))
}

// MoreMarker renders the remainder line for a truncated category list.
func MoreMarker(hidden int, category string) string {
	return fmt.Sprintf("... and %d more %s issues", hidden, strings.ToLower(category))
}
