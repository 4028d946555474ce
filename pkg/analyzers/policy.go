package analyzers

import (
	"fmt"
	"strings"
	"time"
)

// Bucket is one bundle-id classification bucket.
type Bucket struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// SensitiveService maps a TCC service identifier to a human label.
type SensitiveService struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
}

// Policy is the tunable heuristics table shared by all analyzers.
type Policy struct {
	// Recency windows, in days.
	RecentInstallDays  int `yaml:"recent_install_days" json:"recent_install_days"`
	RecentBrowsingDays int `yaml:"recent_browsing_days" json:"recent_browsing_days"`
	RecentMessageDays  int `yaml:"recent_message_days" json:"recent_message_days"`
	TimelineDays       int `yaml:"timeline_days" json:"timeline_days"`

	// CrossSiteThreshold flags a domain with more subframe origins than this.
	CrossSiteThreshold int `yaml:"cross_site_threshold" json:"cross_site_threshold"`

	// FindingsDisplayLimit caps the findings listed per category.
	FindingsDisplayLimit int `yaml:"findings_display_limit" json:"findings_display_limit"`

	HighRiskGenres    []string           `yaml:"high_risk_genres" json:"high_risk_genres"`
	SensitiveServices []SensitiveService `yaml:"sensitive_services" json:"sensitive_services"`

	// SystemPrefix marks platform-owned bundle ids; ThirdPartyMarker
	// reclassifies a prefixed id as third-party.
	SystemPrefix     string `yaml:"system_prefix" json:"system_prefix"`
	ThirdPartyMarker string `yaml:"third_party_marker" json:"third_party_marker"`

	// AppBuckets are tried in order; the first keyword match wins.
	AppBuckets     []Bucket `yaml:"app_buckets" json:"app_buckets"`
	FallbackBucket string   `yaml:"fallback_bucket" json:"fallback_bucket"`
}

// DefaultPolicy returns the stock heuristics.
func DefaultPolicy() Policy {
	return Policy{
		RecentInstallDays:    30,
		RecentBrowsingDays:   7,
		RecentMessageDays:    30,
		TimelineDays:         30,
		CrossSiteThreshold:   10,
		FindingsDisplayLimit: 5,
		HighRiskGenres:       []string{"Finance", "Business", "Productivity", "Medical", "Social Networking"},
		SensitiveServices: []SensitiveService{
			{"kTCCServiceCamera", "Camera Access"},
			{"kTCCServiceMicrophone", "Microphone Access"},
			{"kTCCServiceLocation", "Location Services"},
			{"kTCCServicePhotos", "Photo Library Access"},
			{"kTCCServiceContactsLimited", "Contacts Access (Limited)"},
			{"kTCCServiceContactsFull", "Contacts Access (Full)"},
			{"kTCCServiceCalendar", "Calendar Access"},
			{"kTCCServiceReminders", "Reminders Access"},
			{"kTCCServiceFaceID", "Face ID Authentication"},
			{"kTCCServiceSiri", "Siri Access"},
			{"kTCCServiceMotion", "Motion & Fitness"},
			{"kTCCServiceBluetoothPeripheral", "Bluetooth Access"},
			{"kTCCServiceFileProviderPresence", "File Provider Access"},
			{"kTCCServiceSystemPolicyDesktopFolder", "Desktop Folder Access"},
			{"kTCCServiceSystemPolicyDocumentsFolder", "Documents Folder Access"},
			{"kTCCServiceSystemPolicyDownloadsFolder", "Downloads Folder Access"},
		},
		SystemPrefix:     "com.apple.",
		ThirdPartyMarker: "third",
		AppBuckets: []Bucket{
			{"Banking/Finance", []string{"bank", "financial", "capital", "mbna", "cibc", "amex"}},
			{"Social Media", []string{"facebook", "instagram", "whatsapp", "messenger", "linkedin", "reddit", "skool"}},
			{"Google Services", []string{"google"}},
			{"Microsoft Office", []string{"microsoft"}},
			{"Security/VPN", []string{"vpn", "proton", "nord", "authenticator", "bitwarden", "duo"}},
		},
		FallbackBucket: "Other",
	}
}

// Validate checks the policy for values the analyzers cannot use.
func (p Policy) Validate() error {
	for name, v := range map[string]int{
		"recent_install_days":    p.RecentInstallDays,
		"recent_browsing_days":   p.RecentBrowsingDays,
		"recent_message_days":    p.RecentMessageDays,
		"timeline_days":          p.TimelineDays,
		"findings_display_limit": p.FindingsDisplayLimit,
	} {
		if v <= 0 {
			return fmt.Errorf("policy %s must be positive, got %d", name, v)
		}
	}
	if p.CrossSiteThreshold < 0 {
		return fmt.Errorf("policy cross_site_threshold must not be negative")
	}
	seen := make(map[string]bool)
	for _, b := range p.AppBuckets {
		if b.Name == "" {
			return fmt.Errorf("policy app bucket without a name")
		}
		if seen[b.Name] || b.Name == p.FallbackBucket {
			return fmt.Errorf("policy app bucket %q defined twice", b.Name)
		}
		seen[b.Name] = true
	}
	if p.FallbackBucket == "" {
		return fmt.Errorf("policy fallback_bucket is required")
	}
	return nil
}

// Days converts a day count to a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Classify returns the first bucket whose keyword occurs in id, compared
// case-insensitively, or the fallback bucket.
func (p Policy) Classify(id string) string {
	lower := strings.ToLower(id)
	for _, b := range p.AppBuckets {
		for _, kw := range b.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return b.Name
			}
		}
	}
	return p.FallbackBucket
}

// BucketNames returns the bucket names in priority order, fallback last.
func (p Policy) BucketNames() []string {
	names := make([]string, 0, len(p.AppBuckets)+1)
	for _, b := range p.AppBuckets {
		names = append(names, b.Name)
	}
	return append(names, p.FallbackBucket)
}

// IsThirdParty applies the namespace heuristic to a bundle id.
func (p Policy) IsThirdParty(id string) bool {
	if p.ThirdPartyMarker != "" && strings.Contains(strings.ToLower(id), strings.ToLower(p.ThirdPartyMarker)) {
		return true
	}
	return !strings.HasPrefix(id, p.SystemPrefix)
}

// IsSystem reports whether id lives in the platform namespace.
func (p Policy) IsSystem(id string) bool {
	return p.SystemPrefix != "" && strings.HasPrefix(id, p.SystemPrefix)
}

// IsHighRiskGenre reports whether genre is on the high-risk list.
func (p Policy) IsHighRiskGenre(genre string) bool {
	for _, g := range p.HighRiskGenres {
		if g == genre {
			return true
		}
	}
	return false
}
