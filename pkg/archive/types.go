// Package archive keeps a local history of report runs.
//
// Every generated report is recorded in a SQLite database together with the
// fingerprints of its findings and the assembled document, stored as
// compressed JSON. The history answers two questions: which reports were
// produced for which backups, and whether a finding has been seen before.
//
// Example usage:
//
//	a, err := archive.Open(archive.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer a.Close()
//
//	runs, err := a.ListRuns(ctx, 20)
package archive

import (
	"os"
	"path/filepath"
	"time"

	"github.com/exploopio/mvtreport/pkg/compress"
)

// Config configures the archive.
type Config struct {
	// DatabasePath is the SQLite database path (default: ~/.mvt-report/history.db)
	DatabasePath string

	// Compression is applied to stored documents (default: zstd)
	Compression compress.Algorithm

	// CompressionLevel is the zstd/gzip level 1-9 (default: 3)
	CompressionLevel compress.Level
}

// DefaultConfig returns the default archive location and compression.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:     DefaultDatabasePath(),
		Compression:      compress.AlgorithmZSTD,
		CompressionLevel: compress.LevelDefault,
	}
}

// DefaultDatabasePath returns ~/.mvt-report/history.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".mvt-report", "history.db")
}

// Run is one archived report run.
type Run struct {
	ID              string             `json:"id"`
	SourceDir       string             `json:"source_dir"`
	DeviceType      string             `json:"device_type"`
	OutputPath      string             `json:"output_path"`
	Format          string             `json:"format"`
	Findings        int                `json:"findings"`
	Categories      int                `json:"categories"`
	SectionFailures int                `json:"section_failures"`
	Warnings        int                `json:"warnings"`
	CreatedAt       time.Time          `json:"created_at"`
	Compression     compress.Algorithm `json:"compression"`
	DocumentSize    int                `json:"document_size"`

	// CompressionRatio is the stored document size over DocumentSize.
	CompressionRatio float64 `json:"compression_ratio"`
}

// FindingRecord is one archived finding of a run.
type FindingRecord struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id"`
	Fingerprint string `json:"fingerprint"`
	Category    string `json:"category"`
	Summary     string `json:"summary"`
	Position    int    `json:"position"`
}
