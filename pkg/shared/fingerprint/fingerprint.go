// Package fingerprint generates stable identifiers for indicator matches so
// the same finding can be recognised across report runs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Input contains the data needed to generate a fingerprint.
// Only the populated fields take part in the hash.
type Input struct {
	// Category is the originating module (e.g. "sms", "safari_history")
	Category string

	// Detail fields of the indicator match
	URL       string
	Domain    string
	Process   string
	BundleID  string
	Indicator string

	// Timestamp as it appears in the record
	Timestamp string

	// Canonical is the canonical JSON of the raw record. It is only used
	// when none of the detail fields is set.
	Canonical string
}

// HasDetails reports whether any detail field is populated.
func (in Input) HasDetails() bool {
	return in.URL != "" || in.Domain != "" || in.Process != "" ||
		in.BundleID != "" || in.Indicator != ""
}

// Generate creates a fingerprint for the given input.
// The fingerprint is a SHA256 hash (64 hex characters).
//
// Matches with detail fields are keyed on category, normalized URL host and
// path, domain, process, bundle id, indicator and timestamp. Matches without
// any detail fall back to the raw record.
func Generate(input Input) string {
	if !input.HasDetails() {
		return hash(fmt.Sprintf("raw:%s:%s", normalize(input.Category), input.Canonical))
	}
	return hash(fmt.Sprintf("ioc:%s:%s:%s:%s:%s:%s:%s",
		normalize(input.Category),
		normalizeURL(input.URL),
		normalizeHost(input.Domain),
		normalize(input.Process),
		normalize(input.BundleID),
		normalize(input.Indicator),
		strings.TrimSpace(input.Timestamp),
	))
}

// hash computes the SHA256 of s as 64 hex characters.
func hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// Short returns the first 12 characters of a fingerprint for display.
func Short(fp string) string {
	if len(fp) <= 12 {
		return fp
	}
	return fp[:12]
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeHost removes protocol prefix, trailing slash and default ports.
func normalizeHost(host string) string {
	host = normalize(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimSuffix(host, ":80")
	return host
}

// normalizeURL keeps host and path, dropping scheme, query and fragment.
func normalizeURL(u string) string {
	u = normalize(u)
	if idx := strings.Index(u, "#"); idx != -1 {
		u = u[:idx]
	}
	if idx := strings.Index(u, "?"); idx != -1 {
		u = u[:idx]
	}
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	host, path, _ := strings.Cut(u, "/")
	host = strings.TrimSuffix(strings.TrimSuffix(host, ":443"), ":80")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return host
	}
	return host + "/" + path
}
