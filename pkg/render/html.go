package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/exploopio/mvtreport/pkg/errors"
	"github.com/exploopio/mvtreport/pkg/report"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

// HTMLRenderer renders a document as a single self-contained HTML page.
type HTMLRenderer struct {
	style report.Style
	tmpl  *template.Template
}

// NewHTML parses the page template for style.
func NewHTML(style report.Style) (*HTMLRenderer, error) {
	style = report.DefaultStyle().Merge(style)
	funcs := template.FuncMap{
		"emClass": func(e report.Emphasis) string {
			if e == report.EmphasisNone {
				return ""
			}
			return "em-" + string(e)
		},
		"indent": func(n int) template.CSS {
			if n <= 0 {
				return ""
			}
			return template.CSS(fmt.Sprintf("margin-left: %dpx", n*style.IndentStep))
		},
	}
	tmpl, err := template.New("report.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, errors.E(errors.KindRender, "render.NewHTML", err)
	}
	return &HTMLRenderer{style: style, tmpl: tmpl}, nil
}

// Format implements Renderer.
func (r *HTMLRenderer) Format() Format { return FormatHTML }

// Render implements Renderer.
func (r *HTMLRenderer) Render(w io.Writer, doc *report.Document) error {
	data := struct {
		Doc *report.Document
		CSS template.CSS
	}{
		Doc: doc,
		CSS: template.CSS(stylesheet(r.style)),
	}
	if err := r.tmpl.Execute(w, data); err != nil {
		return errors.E(errors.KindRender, "render.HTML", err)
	}
	return nil
}

// stylesheet builds the page CSS from the style.
func stylesheet(s report.Style) string {
	p := s.Palette
	var sb strings.Builder
	rule := func(selector, format string, args ...any) {
		fmt.Fprintf(&sb, "%s { %s }\n", selector, fmt.Sprintf(format, args...))
	}
	rule("body", "font-family: %s; font-size: %dpt; margin: 2em;", s.BodyFont, s.BodySize)
	rule("h1.title", "color: %s; font-size: %dpt; text-align: center;", p.Title, s.TitleSize)
	rule("h2", "color: %s; background: %s; font-size: %dpt; padding: 4px 8px;", p.Heading, p.HeadingBG, s.HeadSize)
	rule("h3", "color: %s; font-size: %dpt;", p.SubHeading, s.SubSize)
	rule(".alert", "color: %s; background: %s; padding: 8px; margin: 8px 0;", p.AlertText, p.AlertBG)
	rule(".success", "color: %s; background: %s; padding: 8px; margin: 8px 0;", p.SuccessText, p.SuccessBG)
	rule(".notice", "color: %s; font-style: italic;", p.Warning)
	rule("pre.code", "font-family: %s; background: %s; padding: 2px 6px; margin: 2px 0; white-space: pre-wrap;", s.CodeFont, p.CodeBG)
	rule("p.item", "margin: 2px 0;")
	rule("table", "border-collapse: collapse; margin: 8px 0;")
	rule("table.grid th", "background: %s; color: white; border: 1px solid %s; padding: 4px 8px; text-align: left;", p.TableHeader, p.TableBorder)
	rule("table.grid td", "border: 1px solid %s; padding: 4px 8px;", p.TableBorder)
	rule("table.summary th", "text-align: left; padding-right: 12px;")
	for _, e := range []report.Emphasis{
		report.EmphasisCritical, report.EmphasisWarning, report.EmphasisPositive, report.EmphasisCategory,
	} {
		rule(".em-"+string(e), "color: %s;", s.Color(e))
	}
	rule(".page-break", "page-break-after: always; break-after: page;")
	rule("footer", "margin-top: 2em; font-size: %dpt; color: grey; text-align: center;", s.BodySize-1)
	return sb.String()
}
