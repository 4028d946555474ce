package artifact

import (
	"sort"
	"strings"

	"github.com/exploopio/mvtreport/pkg/errors"
)

// DefaultFindingsSuffix marks artifacts holding indicator matches.
const DefaultFindingsSuffix = "_detected"

// Set maps artifact keys to parsed JSON content. It is read-only once built.
type Set struct {
	entries        map[string]any
	sources        map[string]string
	keys           []string
	findingsSuffix string
}

// NewSet builds a Set from already-parsed content.
func NewSet(entries map[string]any) *Set {
	s := &Set{
		entries:        make(map[string]any, len(entries)),
		sources:        make(map[string]string, len(entries)),
		findingsSuffix: DefaultFindingsSuffix,
	}
	for k, v := range entries {
		s.entries[k] = v
	}
	s.sortKeys()
	return s
}

func (s *Set) sortKeys() {
	s.keys = make([]string, 0, len(s.entries))
	for k := range s.entries {
		s.keys = append(s.keys, k)
	}
	sort.Strings(s.keys)
}

// Len returns the number of artifacts.
func (s *Set) Len() int {
	return len(s.entries)
}

// Keys returns the artifact keys in lexical order.
func (s *Set) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Has reports whether key was loaded.
func (s *Set) Has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

// Get returns the raw content for key.
func (s *Set) Get(key string) (any, bool) {
	v, ok := s.entries[key]
	return v, ok
}

// Source returns the file name key was loaded from.
func (s *Set) Source(key string) string {
	return s.sources[key]
}

// FindingsSuffix returns the suffix that marks findings artifacts.
func (s *Set) FindingsSuffix() string {
	return s.findingsSuffix
}

// FindingsKeys returns keys ending in the findings suffix, in lexical order.
func (s *Set) FindingsKeys() []string {
	var out []string
	for _, k := range s.keys {
		if s.findingsSuffix != "" && strings.HasSuffix(k, s.findingsSuffix) {
			out = append(out, k)
		}
	}
	return out
}

// Record returns key as a single object. A missing key returns (nil, nil);
// any other shape is an error.
func (s *Set) Record(key string) (Record, error) {
	v, ok := s.entries[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.Errorf(errors.KindInvalidInput, "artifact.Record",
			"%q is a %s, not an object", key, KindOf(v))
	}
	return Record(m), nil
}

// Records returns key as a list of objects. A missing key returns
// (nil, nil); a value that is not a list is an error. Elements that are not
// objects are dropped.
func (s *Set) Records(key string) ([]Record, error) {
	v, ok := s.entries[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, errors.Errorf(errors.KindInvalidInput, "artifact.Records",
			"%q is a %s, not a list of records", key, KindOf(v))
	}
	return ToRecords(list), nil
}

// Count returns the length of key when it is a list.
func (s *Set) Count(key string) (int, bool) {
	list, ok := s.entries[key].([]any)
	if !ok {
		return 0, false
	}
	return len(list), true
}

// FirstNonEmpty returns the first key among candidates holding a non-empty
// list.
func (s *Set) FirstNonEmpty(candidates ...string) (string, bool) {
	for _, k := range candidates {
		if n, ok := s.Count(k); ok && n > 0 {
			return k, true
		}
	}
	return "", false
}

// ToRecords keeps the object elements of list.
func ToRecords(list []any) []Record {
	out := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Record(m))
		}
	}
	return out
}
