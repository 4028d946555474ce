package render

import (
	"bufio"
	"io"
	"strings"

	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/report"
)

// MarkdownRenderer renders a document as GitHub-flavoured Markdown.
type MarkdownRenderer struct{}

// NewMarkdown returns a Markdown renderer.
func NewMarkdown() *MarkdownRenderer { return &MarkdownRenderer{} }

// Format implements Renderer.
func (r *MarkdownRenderer) Format() Format { return FormatMarkdown }

// Render implements Renderer.
func (r *MarkdownRenderer) Render(w io.Writer, doc *report.Document) error {
	bw := bufio.NewWriter(w)
	m := &mdWriter{w: bw}

	m.para("# " + mdEscape(doc.Title))
	if len(doc.Summary) > 0 {
		lines := make([]string, 0, len(doc.Summary))
		for _, f := range doc.Summary {
			lines = append(lines, "- **"+mdEscape(f.Label)+":** "+mdEscape(f.Value))
		}
		m.para(strings.Join(lines, "\n"))
	}
	for _, sec := range doc.Sections {
		m.section(sec)
	}
	if doc.Footer != "" {
		m.para("---")
		m.para("_" + mdEscape(doc.Footer) + "_")
	}

	if m.err != nil {
		return errors.E(errors.KindRender, "render.Markdown", m.err)
	}
	if err := bw.Flush(); err != nil {
		return errors.E(errors.KindRender, "render.Markdown", err)
	}
	return nil
}

type mdWriter struct {
	w    *bufio.Writer
	err  error
	prev report.BlockKind
}

func (m *mdWriter) write(s string) {
	if m.err != nil {
		return
	}
	_, m.err = m.w.WriteString(s)
}

// para writes a paragraph followed by a blank line.
func (m *mdWriter) para(s string) {
	m.closeFence()
	m.write(s + "\n\n")
	m.prev = report.KindParagraph
}

func (m *mdWriter) closeFence() {
	if m.prev == report.KindCode {
		m.write("```\n\n")
	}
}

func (m *mdWriter) section(sec report.Section) {
	for _, b := range sec.Blocks {
		m.block(b)
	}
	m.closeFence()
	m.prev = ""
}

func (m *mdWriter) block(b report.Block) {
	switch b.Kind {
	case report.KindCode:
		if m.prev != report.KindCode {
			m.closeFence()
			m.write("```\n")
		}
		m.write(b.PlainText() + "\n")
		m.prev = report.KindCode
		return
	case report.KindListItem:
		m.closeFence()
		m.write(strings.Repeat("  ", b.Indent) + "- " + mdSpans(b.Spans) + "\n")
		m.prev = report.KindListItem
		return
	}

	if m.prev == report.KindListItem {
		m.write("\n")
	}
	text := mdSpans(b.Spans)
	switch b.Kind {
	case report.KindHeading:
		m.para("## " + text)
	case report.KindSubHeading:
		m.para("### " + text)
	case report.KindAlert, report.KindSuccess:
		m.para("> " + text)
	case report.KindNotice:
		m.para("_" + text + "_")
	case report.KindTable:
		m.para(mdTable(b.Header, b.Rows))
	case report.KindPageBreak:
		m.para("---")
	default:
		m.para(strings.Repeat("&nbsp;", 4*b.Indent) + text)
	}
}

func mdSpans(spans []report.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		text := mdEscape(s.Text)
		if s.Bold && strings.TrimSpace(text) != "" {
			lead := text[:len(text)-len(strings.TrimLeft(text, " "))]
			trail := text[len(strings.TrimRight(text, " ")):]
			sb.WriteString(lead + "**" + strings.TrimSpace(text) + "**" + trail)
			continue
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func mdTable(header []string, rows [][]string) string {
	cols := len(header)
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return ""
	}
	row := func(cells []string) string {
		out := make([]string, cols)
		for i := range out {
			if i < len(cells) {
				out[i] = strings.ReplaceAll(mdEscape(cells[i]), "|", `\|`)
			}
		}
		return "| " + strings.Join(out, " | ") + " |"
	}
	lines := []string{row(header), "|" + strings.Repeat(" --- |", cols)}
	for _, r := range rows {
		lines = append(lines, row(r))
	}
	return strings.Join(lines, "\n")
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"<", "&lt;",
	">", "&gt;",
)

func mdEscape(s string) string { return mdEscaper.Replace(s) }
