package render

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	layoutTemplate *template.Template
	flowTemplate   *template.Template
)

func init() {
	funcMap := template.FuncMap{
		"pt": func(v float64) string {
			return strconv.FormatFloat(v, 'f', -1, 64) + "pt"
		},
		"lines": func(lines []string) string {
			return strings.Join(lines, "\n")
		},
	}
	layoutTemplate = template.Must(template.New("layout.html").Funcs(funcMap).ParseFS(templateFS, "templates/layout.html"))
	flowTemplate = template.Must(template.New("flow.html").Funcs(funcMap).ParseFS(templateFS, "templates/flow.html"))
}

type templateData struct {
	*Layout
	Title    string
	FontSize float64
}

func newTemplateData(l *Layout) templateData {
	return templateData{
		Layout: l,
		Title:  strings.TrimSuffix(Filename(l.TargetName, l.CaseNumber, "html"), ".html"),
		// A monospace glyph is about 0.6em wide.
		FontSize: l.Geometry.CharWidth / 0.6,
	}
}

// RenderHTML draws l as absolutely positioned blocks, one fixed-size div
// per page. This is what the PDF exporter prints.
func RenderHTML(l *Layout) (string, error) {
	var buf bytes.Buffer
	if err := layoutTemplate.Execute(&buf, newTemplateData(l)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderFlowHTML writes the layout's blocks as plain flowing HTML, for
// converters that do not honour absolute positioning.
func RenderFlowHTML(l *Layout) (string, error) {
	var buf bytes.Buffer
	if err := flowTemplate.Execute(&buf, newTemplateData(l)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
