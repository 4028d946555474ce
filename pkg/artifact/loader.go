// Package artifact loads the per-category JSON files produced by a mobile
// forensics scan into an in-memory Set.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/exploopio/mvtreport/pkg/compress"
	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
)

// Warning describes one file that was skipped during load.
type Warning struct {
	File string
	Key  string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.File, w.Err)
}

// LoaderConfig configures Load.
type LoaderConfig struct {
	// FindingsSuffix marks findings artifacts.
	// Default: "_detected"
	FindingsSuffix string

	// Workers is the number of files parsed concurrently.
	// Default: 1
	Workers int

	// MaxFileSize skips files larger than this many bytes.
	// Default: 512 MiB
	MaxFileSize int64

	Logger core.Logger
}

// Option configures Load.
type Option func(*LoaderConfig)

// DefaultLoaderConfig returns the defaults used by Load.
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{
		FindingsSuffix: DefaultFindingsSuffix,
		Workers:        1,
		MaxFileSize:    512 << 20,
		Logger:         &core.NopLogger{},
	}
}

// WithFindingsSuffix overrides the findings suffix.
func WithFindingsSuffix(suffix string) Option {
	return func(c *LoaderConfig) {
		if suffix != "" {
			c.FindingsSuffix = suffix
		}
	}
}

// WithWorkers parses up to n files concurrently.
func WithWorkers(n int) Option {
	return func(c *LoaderConfig) {
		if n > 0 {
			c.Workers = n
		}
	}
}

// WithMaxFileSize sets the size limit for a single artifact file.
func WithMaxFileSize(n int64) Option {
	return func(c *LoaderConfig) {
		if n > 0 {
			c.MaxFileSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(c *LoaderConfig) { c.Logger = core.OrNop(l) }
}

// IsDataFile reports whether name is an artifact file (.json, optionally
// compressed with zstd or gzip).
func IsDataFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(compress.TrimExtension(name)), ".json")
}

// KeyFor derives the artifact key from a file name. Names that are not
// artifact files yield "".
func KeyFor(name string) string {
	base := compress.TrimExtension(filepath.Base(name))
	if !strings.HasSuffix(strings.ToLower(base), ".json") {
		return ""
	}
	return base[:len(base)-len(".json")]
}

type parsed struct {
	name  string
	key   string
	value any
	err   error
}

// Load reads every artifact file directly inside dir. Unparseable files are
// skipped with a warning. Load fails with a load error when dir cannot be
// read or yields no artifact at all.
func Load(dir string, opts ...Option) (*Set, []Warning, error) {
	cfg := DefaultLoaderConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if dir == "" {
		return nil, nil, errors.E(errors.KindLoad, "artifact.Load", errors.ErrEmptyPath)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.E(errors.KindLoad, "artifact.Load", "cannot read source directory", err)
	}

	var names []string
	var warnings []Warning
	for _, e := range entries {
		if e.IsDir() || !IsDataFile(e.Name()) || KeyFor(e.Name()) == "" {
			continue
		}
		if err := checkEntry(dir, e); err != nil {
			warnings = append(warnings, Warning{File: e.Name(), Key: KeyFor(e.Name()), Err: err})
			cfg.Logger.Warn("Skipping artifact %s: %v", e.Name(), err)
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	results := parseAll(dir, names, cfg)

	set := &Set{
		entries:        make(map[string]any, len(results)),
		sources:        make(map[string]string, len(results)),
		findingsSuffix: cfg.FindingsSuffix,
	}
	for _, r := range results {
		if r.err != nil {
			warnings = append(warnings, Warning{File: r.name, Key: r.key, Err: r.err})
			cfg.Logger.Warn("Skipping artifact %s: %v", r.name, r.err)
			continue
		}
		if prev, dup := set.sources[r.key]; dup {
			err := errors.Errorf(errors.KindParse, "artifact.Load", "duplicate key %q (already loaded from %s)", r.key, prev)
			warnings = append(warnings, Warning{File: r.name, Key: r.key, Err: err})
			cfg.Logger.Warn("Skipping artifact %s: %v", r.name, err)
			continue
		}
		set.entries[r.key] = r.value
		set.sources[r.key] = r.name
		cfg.Logger.Debug("Loaded artifact %s from %s", r.key, r.name)
	}
	set.sortKeys()

	if set.Len() == 0 {
		return nil, warnings, errors.E("artifact.Load", fmt.Sprintf("no parseable artifacts in %s", dir), errors.ErrNoArtifacts)
	}
	cfg.Logger.Info("Loaded %d artifacts from %s (%d skipped)", set.Len(), dir, len(warnings))
	return set, warnings, nil
}

// checkEntry accepts regular files and symlinks that resolve to one.
func checkEntry(dir string, e os.DirEntry) error {
	if e.Type().IsRegular() {
		return nil
	}
	if e.Type()&os.ModeSymlink == 0 {
		return errors.Errorf(errors.KindParse, "artifact.Load", "not a regular file (%s)", e.Type())
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	if err != nil {
		return errors.E(errors.KindParse, "artifact.Load", "broken symlink", err)
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf(errors.KindParse, "artifact.Load", "symlink does not point to a regular file (%s)", info.Mode().Type())
	}
	return nil
}

func parseAll(dir string, names []string, cfg *LoaderConfig) []parsed {
	results := make([]parsed, len(names))
	if cfg.Workers <= 1 || len(names) < 2 {
		for i, name := range names {
			results[i] = parseFile(dir, name, cfg.MaxFileSize)
		}
		return results
	}

	sem := make(chan struct{}, cfg.Workers)
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = parseFile(dir, name, cfg.MaxFileSize)
		}(i, name)
	}
	wg.Wait()
	return results
}

func parseFile(dir, name string, maxSize int64) parsed {
	p := parsed{name: name, key: KeyFor(name)}
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if err != nil {
		p.err = errors.E(errors.KindParse, "artifact.parse", err)
		return p
	}
	if info.Size() > maxSize {
		p.err = errors.Errorf(errors.KindParse, "artifact.parse", "file is %d bytes, limit is %d", info.Size(), maxSize)
		return p
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		p.err = errors.E(errors.KindParse, "artifact.parse", err)
		return p
	}
	data, err := compress.DecodeFile(name, raw, maxSize)
	if err != nil {
		p.err = errors.E(errors.KindParse, "artifact.parse", "decompress failed", err)
		return p
	}

	p.value, err = Decode(data)
	if err != nil {
		p.err = errors.E(errors.KindParse, "artifact.parse", "invalid JSON", err)
	}
	return p
}

// Decode parses exactly one JSON value, keeping numbers as json.Number.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}
