// Package analyzers turns the loaded artifacts into the per-category report
// sections: applications, privacy permissions, location clients, browser
// tracking, configuration profiles, network usage, messaging and timeline.
//
// Every analyzer is a pure function of a Dataset. A nil section with a nil
// error means the category had no data and the section is omitted.
package analyzers

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/findings"
	"github.com/exploopio/mvtreport/pkg/report"
)

// Section IDs, in report order.
const (
	IDApplications = "applications"
	IDPrivacy      = "privacy"
	IDLocation     = "location"
	IDBrowser      = "browser"
	IDProfiles     = "configuration_profiles"
	IDNetwork      = "network"
	IDMessaging    = "messaging"
	IDTimeline     = "timeline"
)

// Analyzer builds one report section.
type Analyzer interface {
	// Name returns the section ID.
	Name() string
	// Title returns the section heading, also used in failure notices.
	Title() string
	// Analyze builds the section. It must not modify ds.
	Analyze(ds *Dataset) (*report.Section, error)
}

// Dataset is the read-only input shared by all analyzers of one run.
type Dataset struct {
	Artifacts  *artifact.Set
	Findings   *findings.Index
	Policy     Policy
	Now        time.Time
	Location   *time.Location
	DeviceType string
}

// NewDataset returns a dataset with the default policy, the current time and
// UTC.
func NewDataset(set *artifact.Set, ix *findings.Index) *Dataset {
	if ix == nil {
		ix = findings.Build(set)
	}
	return &Dataset{
		Artifacts: set,
		Findings:  ix,
		Policy:    DefaultPolicy(),
		Now:       time.Now(),
		Location:  time.UTC,
	}
}

func (ds *Dataset) loc() *time.Location {
	if ds.Location == nil {
		return time.UTC
	}
	return ds.Location
}

func (ds *Dataset) now() time.Time {
	if ds.Now.IsZero() {
		return time.Now().In(ds.loc())
	}
	return ds.Now
}

// records reads key as a list of records and turns a shape error into a
// section error.
func (ds *Dataset) records(op, key string) ([]artifact.Record, error) {
	recs, err := ds.Artifacts.Records(key)
	if err != nil {
		return nil, errors.E(errors.KindSection, "analyzers."+op, err)
	}
	return recs, nil
}

// =============================================================================
// Registry
// =============================================================================

// Registry keeps analyzers in registration order.
type Registry struct {
	mu        sync.RWMutex
	analyzers []Analyzer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry returns the eight built-in analyzers in report order.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ApplicationsAnalyzer{})
	r.Register(&PrivacyAnalyzer{})
	r.Register(&LocationAnalyzer{})
	r.Register(&BrowserAnalyzer{})
	r.Register(&ProfilesAnalyzer{})
	r.Register(&NetworkAnalyzer{})
	r.Register(&MessagingAnalyzer{})
	r.Register(&TimelineAnalyzer{})
	return r
}

// Register appends an analyzer, or replaces one with the same name in place.
func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.analyzers {
		if existing.Name() == a.Name() {
			r.analyzers[i] = a
			return
		}
	}
	r.analyzers = append(r.analyzers, a)
}

// Get returns an analyzer by name.
func (r *Registry) Get(name string) Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.analyzers {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// All returns the analyzers in order.
func (r *Registry) All() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Analyzer, len(r.analyzers))
	copy(out, r.analyzers)
	return out
}

// Names returns the analyzer names in order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, a := range all {
		names[i] = a.Name()
	}
	return names
}

// =============================================================================
// Helpers
// =============================================================================

// shortName returns the last dot-separated component of a bundle id.
func shortName(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 {
		return id[i+1:]
	}
	return id
}

// head returns at most n elements of s and the number left over.
func head[T any](s []T, n int) ([]T, int) {
	if n <= 0 || len(s) <= n {
		return s, 0
	}
	return s[:n], len(s) - n
}

func itoa(n int) string { return strconv.Itoa(n) }

// counter counts keys and remembers the order they were first seen.
type counter struct {
	order []string
	n     map[string]int
}

type count struct {
	key string
	n   int
}

func newCounter() *counter {
	return &counter{n: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.n[key]; !ok {
		c.order = append(c.order, key)
	}
	c.n[key]++
}

// sorted returns the counts in descending order; ties keep first-seen order.
func (c *counter) sorted() []count {
	out := make([]count, len(c.order))
	for i, k := range c.order {
		out[i] = count{key: k, n: c.n[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].n > out[j].n })
	return out
}
