package report

import "fmt"

// Builder accumulates the blocks of one section.
type Builder struct {
	section Section
}

// NewBuilder starts a section.
func NewBuilder(id, title string) *Builder {
	return &Builder{section: Section{ID: id, Title: title}}
}

// Heading adds the section heading.
func (b *Builder) Heading(text string) *Builder {
	return b.add(Block{Kind: KindHeading, Spans: []Span{Text(text)}})
}

// SubHeading adds a subheading.
func (b *Builder) SubHeading(text string) *Builder {
	return b.add(Block{Kind: KindSubHeading, Spans: []Span{Text(text)}})
}

// Paragraph adds a paragraph made of spans.
func (b *Builder) Paragraph(spans ...Span) *Builder {
	return b.add(Block{Kind: KindParagraph, Spans: spans})
}

// Textf adds a plain formatted paragraph.
func (b *Builder) Textf(format string, args ...any) *Builder {
	return b.Paragraph(Text(fmt.Sprintf(format, args...)))
}

// Stat adds a "<label>: <value>" paragraph with a bold label.
func (b *Builder) Stat(label string, value any) *Builder {
	return b.Paragraph(Bold(label+":"), Text(fmt.Sprintf(" %v", value)))
}

// Emphasized adds a paragraph drawn in the given emphasis.
func (b *Builder) Emphasized(e Emphasis, spans ...Span) *Builder {
	return b.add(Block{Kind: KindParagraph, Spans: spans, Emphasis: e})
}

// Alert adds a warning banner.
func (b *Builder) Alert(format string, args ...any) *Builder {
	return b.add(Block{Kind: KindAlert, Spans: []Span{Text(fmt.Sprintf(format, args...))}})
}

// Success adds a positive banner.
func (b *Builder) Success(format string, args ...any) *Builder {
	return b.add(Block{Kind: KindSuccess, Spans: []Span{Text(fmt.Sprintf(format, args...))}})
}

// AlertSpans adds a warning banner made of spans.
func (b *Builder) AlertSpans(spans ...Span) *Builder {
	return b.add(Block{Kind: KindAlert, Spans: spans})
}

// SuccessSpans adds a positive banner made of spans.
func (b *Builder) SuccessSpans(spans ...Span) *Builder {
	return b.add(Block{Kind: KindSuccess, Spans: spans})
}

// Item adds a bulleted list item at the given indent level.
func (b *Builder) Item(indent int, format string, args ...any) *Builder {
	return b.add(Block{Kind: KindListItem, Indent: indent, Spans: []Span{Text(fmt.Sprintf(format, args...))}})
}

// ItemSpans adds a list item made of spans with an emphasis.
func (b *Builder) ItemSpans(e Emphasis, spans ...Span) *Builder {
	return b.add(Block{Kind: KindListItem, Emphasis: e, Spans: spans})
}

// Code adds a monospace block.
func (b *Builder) Code(text string) *Builder {
	return b.add(Block{Kind: KindCode, Spans: []Span{Text(text)}})
}

// Table adds a table with a header row.
func (b *Builder) Table(header []string, rows [][]string) *Builder {
	return b.add(Block{Kind: KindTable, Header: header, Rows: rows})
}

// Notice adds an inline error notice.
func (b *Builder) Notice(format string, args ...any) *Builder {
	return b.add(Block{Kind: KindNotice, Spans: []Span{Text(fmt.Sprintf(format, args...))}})
}

// PageBreak ends the current page.
func (b *Builder) PageBreak() *Builder {
	return b.add(Block{Kind: KindPageBreak})
}

// More adds the "... and N more <noun>" marker when hidden > 0. The noun
// may be empty.
func (b *Builder) More(indent, hidden int, noun string) *Builder {
	if hidden <= 0 {
		return b
	}
	text := fmt.Sprintf("... and %d more", hidden)
	if noun != "" {
		text += " " + noun
	}
	return b.add(Block{Kind: KindParagraph, Indent: indent, Spans: []Span{Text(text)}})
}

func (b *Builder) add(bl Block) *Builder {
	b.section.Blocks = append(b.section.Blocks, bl)
	return b
}

// Len returns the number of blocks added so far.
func (b *Builder) Len() int {
	return len(b.section.Blocks)
}

// Section returns the built section.
func (b *Builder) Section() *Section {
	s := b.section
	s.Blocks = append([]Block(nil), b.section.Blocks...)
	return &s
}
