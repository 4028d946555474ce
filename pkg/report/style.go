package report

// Palette holds the colours used by renderers.
type Palette struct {
	Title       string `yaml:"title" json:"title"`
	Heading     string `yaml:"heading" json:"heading"`
	HeadingBG   string `yaml:"heading_bg" json:"heading_bg"`
	SubHeading  string `yaml:"subheading" json:"subheading"`
	AlertText   string `yaml:"alert_text" json:"alert_text"`
	AlertBG     string `yaml:"alert_bg" json:"alert_bg"`
	SuccessText string `yaml:"success_text" json:"success_text"`
	SuccessBG   string `yaml:"success_bg" json:"success_bg"`
	CodeBG      string `yaml:"code_bg" json:"code_bg"`
	TableHeader string `yaml:"table_header" json:"table_header"`
	TableBorder string `yaml:"table_border" json:"table_border"`
	Critical    string `yaml:"critical" json:"critical"`
	Warning     string `yaml:"warning" json:"warning"`
	Positive    string `yaml:"positive" json:"positive"`
	Category    string `yaml:"category" json:"category"`
}

// Style is the formatting configuration of one run. It is a value type:
// builders and renderers receive copies and never share mutable state.
type Style struct {
	Palette    Palette `yaml:"palette" json:"palette"`
	BodyFont   string  `yaml:"body_font" json:"body_font"`
	CodeFont   string  `yaml:"code_font" json:"code_font"`
	TitleSize  int     `yaml:"title_size" json:"title_size"`
	HeadSize   int     `yaml:"heading_size" json:"heading_size"`
	SubSize    int     `yaml:"subheading_size" json:"subheading_size"`
	BodySize   int     `yaml:"body_size" json:"body_size"`
	IndentStep int     `yaml:"indent_step" json:"indent_step"`
}

// DefaultStyle returns the standard report look.
func DefaultStyle() Style {
	return Style{
		Palette: Palette{
			Title:       "darkblue",
			Heading:     "darkblue",
			HeadingBG:   "lightgrey",
			SubHeading:  "darkgreen",
			AlertText:   "red",
			AlertBG:     "mistyrose",
			SuccessText: "darkgreen",
			SuccessBG:   "lightgreen",
			CodeBG:      "lightgrey",
			TableHeader: "grey",
			TableBorder: "black",
			Critical:    "red",
			Warning:     "orange",
			Positive:    "darkgreen",
			Category:    "darkblue",
		},
		BodyFont:   "Helvetica, Arial, sans-serif",
		CodeFont:   "Courier, monospace",
		TitleSize:  24,
		HeadSize:   16,
		SubSize:    14,
		BodySize:   10,
		IndentStep: 20,
	}
}

// Merge returns s with every non-zero field of o applied.
func (s Style) Merge(o Style) Style {
	p, q := &s.Palette, o.Palette
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&p.Title, q.Title}, {&p.Heading, q.Heading}, {&p.HeadingBG, q.HeadingBG},
		{&p.SubHeading, q.SubHeading}, {&p.AlertText, q.AlertText}, {&p.AlertBG, q.AlertBG},
		{&p.SuccessText, q.SuccessText}, {&p.SuccessBG, q.SuccessBG}, {&p.CodeBG, q.CodeBG},
		{&p.TableHeader, q.TableHeader}, {&p.TableBorder, q.TableBorder},
		{&p.Critical, q.Critical}, {&p.Warning, q.Warning}, {&p.Positive, q.Positive},
		{&p.Category, q.Category},
		{&s.BodyFont, o.BodyFont}, {&s.CodeFont, o.CodeFont},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	for _, f := range []struct {
		dst *int
		src int
	}{
		{&s.TitleSize, o.TitleSize}, {&s.HeadSize, o.HeadSize}, {&s.SubSize, o.SubSize},
		{&s.BodySize, o.BodySize}, {&s.IndentStep, o.IndentStep},
	} {
		if f.src > 0 {
			*f.dst = f.src
		}
	}
	return s
}

// Color returns the palette colour of an emphasis.
func (s Style) Color(e Emphasis) string {
	switch e {
	case EmphasisCritical:
		return s.Palette.Critical
	case EmphasisWarning:
		return s.Palette.Warning
	case EmphasisPositive:
		return s.Palette.Positive
	case EmphasisCategory:
		return s.Palette.Category
	default:
		return ""
	}
}
