// Package config loads the mvt-report configuration file.
//
// The file is YAML. ${VAR} references are expanded from the environment
// before parsing, and MVT_REPORT_* variables override individual settings
// after parsing. Every section is optional; missing values keep their
// defaults.
//
// Example:
//
//	report:
//	  format: html
//	  timezone: Europe/Berlin
//	logging:
//	  level: debug
//	archive:
//	  enabled: true
//	  path: ${HOME}/.mvt-report/history.db
//	policy:
//	  recent_install_days: 14
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/exploopio/mvtreport/pkg/analyzers"
	"github.com/exploopio/mvtreport/pkg/archive"
	"github.com/exploopio/mvtreport/pkg/artifact"
	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/render"
	"github.com/exploopio/mvtreport/pkg/report"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MVT_REPORT_"

// DefaultReportPrefix starts every generated file name.
const DefaultReportPrefix = "MVT_Security_Report"

// Config is the full configuration.
type Config struct {
	Report  ReportConfig     `yaml:"report"`
	Logging LoggingConfig    `yaml:"logging"`
	Archive ArchiveConfig    `yaml:"archive"`
	Audit   AuditConfig      `yaml:"audit"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Policy  analyzers.Policy `yaml:"policy"`
	Style   report.Style     `yaml:"style"`
}

// ReportConfig controls report generation.
type ReportConfig struct {
	Prefix       string `yaml:"prefix"`
	Format       string `yaml:"format"`
	Timezone     string `yaml:"timezone"`
	MinFreeBytes uint64 `yaml:"min_free_bytes"`
	Parallel     bool   `yaml:"parallel"`

	// FindingsSuffix marks the artifacts holding indicator matches.
	FindingsSuffix string `yaml:"findings_suffix"`
}

// LoggingConfig controls the diagnostic log.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ArchiveConfig controls the run history.
type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the metrics textfile export.
type MetricsConfig struct {
	// Textfile is written after every run when set.
	Textfile string `yaml:"textfile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Report: ReportConfig{
			Prefix:         DefaultReportPrefix,
			Format:         string(render.FormatHTML),
			Timezone:       "UTC",
			MinFreeBytes:   render.DefaultMinFreeBytes,
			FindingsSuffix: artifact.DefaultFindingsSuffix,
		},
		Logging: LoggingConfig{Level: "info"},
		Archive: ArchiveConfig{
			Enabled:     true,
			Path:        archive.DefaultDatabasePath(),
			Compression: string(compress.AlgorithmZSTD),
		},
		Audit: AuditConfig{
			Path: filepath.Join(filepath.Dir(archive.DefaultDatabasePath()), "audit.log"),
		},
		Policy: analyzers.DefaultPolicy(),
		Style:  report.DefaultStyle(),
	}
}

// Load reads the configuration at path. An empty path yields the defaults.
// Environment overrides are applied in both cases and the result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.E(errors.KindConfig, "config.Load", "read config", err)
		}
		if err := cfg.parse(data); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse decodes YAML over the current values. Keys present in the file
// replace the current value, including explicit zeros such as
// cross_site_threshold: 0; absent keys keep it. Lists are replaced whole.
func (c *Config) parse(data []byte) error {
	expanded := os.ExpandEnv(string(data))

	next := *c
	if err := yaml.Unmarshal([]byte(expanded), &next); err != nil {
		return errors.E(errors.KindConfig, "config.Load", "parse config", err)
	}
	*c = next
	return nil
}

// applyEnv applies MVT_REPORT_* overrides.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Errorf(errors.KindConfig, "config.Load", "%s%s: %v", EnvPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("PREFIX", &c.Report.Prefix)
	str("FORMAT", &c.Report.Format)
	str("TIMEZONE", &c.Report.Timezone)
	str("LOG_LEVEL", &c.Logging.Level)
	str("ARCHIVE_PATH", &c.Archive.Path)
	str("METRICS_FILE", &c.Metrics.Textfile)
	if v, ok := lookup(EnvPrefix + "AUDIT_PATH"); ok && v != "" {
		c.Audit.Path = v
		c.Audit.Enabled = true
	}
	if v, ok := lookup(EnvPrefix + "MIN_FREE_BYTES"); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Errorf(errors.KindConfig, "config.Load", "%sMIN_FREE_BYTES: %v", EnvPrefix, err)
		}
		c.Report.MinFreeBytes = n
	}
	for name, dst := range map[string]*bool{
		"LOG_JSON": &c.Logging.JSON,
		"ARCHIVE":  &c.Archive.Enabled,
		"AUDIT":    &c.Audit.Enabled,
		"PARALLEL": &c.Report.Parallel,
	} {
		if err := boolean(name, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Report.Prefix) == "" {
		problems = append(problems, "report.prefix must not be empty")
	}
	if strings.ContainsAny(c.Report.Prefix, `/\`) {
		problems = append(problems, "report.prefix must not contain path separators")
	}
	if strings.TrimSpace(c.Report.FindingsSuffix) == "" {
		problems = append(problems, "report.findings_suffix must not be empty")
	}
	if _, err := render.ParseFormat(c.Report.Format); err != nil {
		problems = append(problems, fmt.Sprintf("report.format: unsupported format %q", c.Report.Format))
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("report.timezone: %v", err))
	}
	if _, err := core.ParseLogLevel(c.Logging.Level); err != nil {
		problems = append(problems, "logging.level: "+err.Error())
	}
	if _, err := compress.ParseAlgorithm(c.Archive.Compression); err != nil {
		problems = append(problems, "archive.compression: "+err.Error())
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		problems = append(problems, "archive.path is required when the archive is enabled")
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		problems = append(problems, "audit.path is required when the audit trail is enabled")
	}
	if err := c.Policy.Validate(); err != nil {
		problems = append(problems, "policy: "+err.Error())
	}
	if len(problems) > 0 {
		return errors.E(errors.KindConfig, "config.Validate", strings.Join(problems, "; "), errors.ErrInvalidConfig)
	}
	return nil
}

// Location returns the configured report timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OutputFormat returns the configured output format.
func (c *Config) OutputFormat() render.Format {
	f, err := render.ParseFormat(c.Report.Format)
	if err != nil {
		return render.FormatHTML
	}
	return f
}

// NewLogger builds the zap logger described by the logging section.
// verbose forces debug level.
func (c *Config) NewLogger(verbose bool) core.Logger {
	level, _ := core.ParseLogLevel(c.Logging.Level)
	if verbose {
		level = core.LogLevelDebug
	}
	return core.NewZapLogger(core.ZapOptions{Level: level, JSON: c.Logging.JSON, Name: "mvt-report"})
}
