// Package severity defines the priority levels attached to report
// recommendations and how each level is emphasised when rendered.
package severity

import "strings"

// Level represents a recommendation priority.
type Level string

const (
	// Immediate - act before anything else, the device may be compromised.
	Immediate Level = "immediate"

	// High - act soon after the immediate items.
	High Level = "high"

	// Medium - general hygiene, always applicable.
	Medium Level = "medium"

	// Unknown - priority could not be determined.
	Unknown Level = "unknown"
)

// String returns the string representation of the level.
func (l Level) String() string {
	return string(l)
}

// Token returns the literal prefix token used in recommendation text.
func (l Level) Token() string {
	switch l {
	case Immediate:
		return "IMMEDIATE"
	case High:
		return "HIGH"
	case Medium:
		return "MEDIUM"
	default:
		return ""
	}
}

// Emphasis returns the palette role a level is drawn in. Medium items
// use the body style.
func (l Level) Emphasis() string {
	switch l {
	case Immediate:
		return "critical"
	case High:
		return "warning"
	default:
		return ""
	}
}

// FromPrefix reads the literal "LEVEL:" token at the start of a
// recommendation and returns the level with the remaining text.
// Text without a recognised token is Medium and is returned unchanged.
func FromPrefix(text string) (Level, string) {
	for _, l := range []Level{Immediate, High, Medium} {
		token := l.Token() + ":"
		if strings.HasPrefix(text, token) {
			return l, strings.TrimSpace(strings.TrimPrefix(text, token))
		}
	}
	return Medium, text
}

// Count tallies recommendations by level.
type Count struct {
	Immediate int `json:"immediate"`
	High      int `json:"high"`
	Medium    int `json:"medium"`
	Total     int `json:"total"`
}

// Increment increases the count for the given level.
func (c *Count) Increment(level Level) {
	c.Total++
	switch level {
	case Immediate:
		c.Immediate++
	case High:
		c.High++
	default:
		c.Medium++
	}
}

// Highest returns the highest level with a non-zero count.
func (c *Count) Highest() Level {
	switch {
	case c.Immediate > 0:
		return Immediate
	case c.High > 0:
		return High
	case c.Medium > 0:
		return Medium
	default:
		return Unknown
	}
}
