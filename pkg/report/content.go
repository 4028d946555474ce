// Package report defines the document model handed to renderers: a title
// block, ordered sections of content blocks and a footer.
package report

import (
	"strings"
	"time"
)

// BlockKind identifies how a block is rendered.
type BlockKind string

const (
	KindHeading    BlockKind = "heading"
	KindSubHeading BlockKind = "subheading"
	KindParagraph  BlockKind = "paragraph"
	KindAlert      BlockKind = "alert"
	KindSuccess    BlockKind = "success"
	KindTable      BlockKind = "table"
	KindListItem   BlockKind = "list_item"
	KindCode       BlockKind = "code"
	KindNotice     BlockKind = "notice"
	KindPageBreak  BlockKind = "page_break"
)

// Emphasis is a named display colour from the Style palette.
type Emphasis string

const (
	EmphasisNone     Emphasis = ""
	EmphasisCritical Emphasis = "critical"
	EmphasisWarning  Emphasis = "warning"
	EmphasisPositive Emphasis = "positive"
	EmphasisCategory Emphasis = "category"
)

// Span is a run of text, optionally bold.
type Span struct {
	Text string `json:"text"`
	Bold bool   `json:"bold,omitempty"`
}

// Text returns a plain span.
func Text(s string) Span { return Span{Text: s} }

// Bold returns a bold span.
func Bold(s string) Span { return Span{Text: s, Bold: true} }

// Block is one unit of content.
type Block struct {
	Kind     BlockKind  `json:"kind"`
	Spans    []Span     `json:"spans,omitempty"`
	Emphasis Emphasis   `json:"emphasis,omitempty"`
	Indent   int        `json:"indent,omitempty"`
	Header   []string   `json:"header,omitempty"`
	Rows     [][]string `json:"rows,omitempty"`
}

// PlainText joins the spans of a block.
func (b Block) PlainText() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Section is an ordered run of blocks produced by one builder.
type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Blocks []Block `json:"blocks"`
}

// Field is a label/value pair of the title block.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Document is the assembled report.
type Document struct {
	Title       string    `json:"title"`
	Summary     []Field   `json:"summary"`
	Sections    []Section `json:"sections"`
	Footer      string    `json:"footer"`
	GeneratedAt time.Time `json:"generated_at"`
	DeviceType  string    `json:"device_type"`
}

// Lines flattens every block of the document to text, one entry per block.
// Table rows are joined with " | ".
func (d *Document) Lines() []string {
	var out []string
	for _, s := range d.Sections {
		out = append(out, s.Lines()...)
	}
	return out
}

// Lines flattens the blocks of the section to text.
func (s Section) Lines() []string {
	var out []string
	for _, b := range s.Blocks {
		switch b.Kind {
		case KindTable:
			if len(b.Header) > 0 {
				out = append(out, strings.Join(b.Header, " | "))
			}
			for _, row := range b.Rows {
				out = append(out, strings.Join(row, " | "))
			}
		case KindPageBreak:
		default:
			out = append(out, b.PlainText())
		}
	}
	return out
}

// Section returns the section with the given id.
func (d *Document) Section(id string) (Section, bool) {
	for _, s := range d.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}
