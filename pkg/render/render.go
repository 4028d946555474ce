// Package render turns an assembled report.Document into an output file.
//
// Two formats are supported: a standalone HTML page and Markdown. Files are
// written next to a temporary sibling and renamed into place, so a failed
// render never leaves a partial report behind.
package render

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/report"
)

// Format is an output format.
type Format string

const (
	FormatHTML     Format = "html"
	FormatMarkdown Format = "markdown"
)

// Extension returns the file extension of the format, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	default:
		return ".html"
	}
}

// ParseFormat resolves a format name. An empty name selects HTML.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "html", "htm":
		return FormatHTML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", errors.Errorf(errors.KindInvalidInput, "render.ParseFormat", "unsupported format %q", name)
	}
}

// Renderer writes a document in one format.
type Renderer interface {
	Format() Format
	Render(w io.Writer, doc *report.Document) error
}

// New returns the renderer of a format.
func New(f Format, style report.Style) (Renderer, error) {
	switch f {
	case FormatHTML:
		return NewHTML(style)
	case FormatMarkdown:
		return NewMarkdown(), nil
	default:
		return nil, errors.Errorf(errors.KindInvalidInput, "render.New", "unsupported format %q", f)
	}
}

// EnsureExtension appends the format's extension to name unless it already
// ends with it.
func EnsureExtension(name string, f Format) string {
	ext := f.Extension()
	if strings.EqualFold(filepath.Ext(name), ext) {
		return name
	}
	return name + ext
}

// =============================================================================
// File output
// =============================================================================

// DefaultMinFreeBytes is the free space required before a report is written.
const DefaultMinFreeBytes uint64 = 1 << 20

// WriteConfig configures WriteFile.
type WriteConfig struct {
	// MinFreeBytes aborts the write when the target filesystem has less
	// free space. Zero disables the check.
	MinFreeBytes uint64

	Logger core.Logger
}

// WriteOption configures WriteFile.
type WriteOption func(*WriteConfig)

// WithMinFreeBytes sets the free-space threshold.
func WithMinFreeBytes(n uint64) WriteOption {
	return func(c *WriteConfig) { c.MinFreeBytes = n }
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) WriteOption {
	return func(c *WriteConfig) { c.Logger = core.OrNop(l) }
}

// WriteFile renders doc to path. The document is written to a temporary
// file in the same directory and renamed on success; on any failure the
// temporary file is removed and a KindRender error is returned.
func WriteFile(ctx context.Context, r Renderer, doc *report.Document, path string, opts ...WriteOption) error {
	const op = "render.WriteFile"
	cfg := &WriteConfig{MinFreeBytes: DefaultMinFreeBytes, Logger: &core.NopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}

	if path == "" {
		return errors.E(errors.KindRender, op, errors.ErrEmptyPath)
	}
	if doc == nil {
		return errors.E(errors.KindRender, op, "nil document")
	}
	if err := ctx.Err(); err != nil {
		return errors.E(errors.KindRender, op, err)
	}

	dir := filepath.Dir(path)
	if cfg.MinFreeBytes > 0 {
		free, ok, err := freeSpace(dir)
		switch {
		case err != nil:
			cfg.Logger.Debug("Free space check skipped for %s: %v", dir, err)
		case ok && free < cfg.MinFreeBytes:
			return errors.E(errors.KindRender, op,
				fmt.Sprintf("insufficient disk space in %s: %d bytes free, %d required", dir, free, cfg.MinFreeBytes))
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := r.Render(bw, doc); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	if err := bw.Flush(); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	if err := tmp.Sync(); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	if err := ctx.Err(); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.E(errors.KindRender, op, err)
	}
	committed = true
	cfg.Logger.Debug("Report written to %s", path)
	return nil
}
