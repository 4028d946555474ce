package report

import (
	"fmt"
	"runtime/debug"

	"github.com/exploopio/mvtreport/pkg/errors"
)

// Failure describes a section that could not be built.
type Failure struct {
	Section string `json:"section"`
	Message string `json:"message"`
	Panic   bool   `json:"panic,omitempty"`
	Stack   string `json:"-"`
}

// Error implements error.
func (f *Failure) Error() string {
	return fmt.Sprintf("Error in %s: %s", f.Section, f.Message)
}

// SectionResult carries either a completed section or a failure.
// A result with neither means the builder had nothing to report.
type SectionResult struct {
	ID      string
	Section *Section
	Failure *Failure
}

// OK reports whether the builder succeeded.
func (r SectionResult) OK() bool { return r.Failure == nil }

// Empty reports whether the builder succeeded without content.
func (r SectionResult) Empty() bool {
	return r.Failure == nil && (r.Section == nil || len(r.Section.Blocks) == 0)
}

// Err returns the failure as a section error, or nil.
func (r SectionResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return errors.E(errors.KindSection, "report."+r.ID, r.Failure.Message)
}

// Run calls build behind a failure boundary: a returned error or a panic
// becomes a Failure naming the section.
func Run(id, title string, build func() (*Section, error)) (res SectionResult) {
	res.ID = id
	defer func() {
		if r := recover(); r != nil {
			res.Section = nil
			res.Failure = &Failure{
				Section: title,
				Message: fmt.Sprint(r),
				Panic:   true,
				Stack:   string(debug.Stack()),
			}
		}
	}()

	sec, err := build()
	if err != nil {
		res.Failure = &Failure{Section: title, Message: err.Error()}
		return res
	}
	res.Section = sec
	return res
}

// Placeholder renders a failure as an inline notice section.
func Placeholder(id string, f *Failure) *Section {
	return NewBuilder(id, f.Section).Notice("%s", f.Error()).Section()
}
