// Package render lays a report document out on fixed-size pages and turns
// the layout into HTML, PDF or DOCX.
package render

import (
	"fmt"
	"strconv"
	"time"

	"dossier/api/internal/report"
)

// Style tells the output writers how to draw a block.
type Style string

const (
	StyleBanner       Style = "banner"
	StyleTitle        Style = "title"
	StyleBadge        Style = "badge"
	StyleMeta         Style = "meta"
	StyleHeading      Style = "heading"
	StyleBody         Style = "body"
	StyleFallback     Style = "fallback"
	StyleSourcesLabel Style = "sources-label"
	StyleSource       Style = "source"
	StyleFooter       Style = "footer"
	StyleDisclaimer   Style = "disclaimer"
	StylePageCount    Style = "page-count"
)

const (
	reportTitle       = "INTELLIGENCE REPORT"
	sourcesLabel      = "Sources"
	defaultDisclaimer = "This report was compiled from open and commercial sources for authorised investigative use only. Findings must be verified before any action is taken."
)

// Block is one positioned run of wrapped text. Coordinates are points from
// the top-left page corner.
type Block struct {
	Style   Style            `json:"style"`
	Section report.SectionID `json:"section,omitempty"`
	Text    string           `json:"text"`
	Lines   []string         `json:"lines"`
	X       float64          `json:"x"`
	Y       float64          `json:"y"`
	Width   float64          `json:"width"`
	Height  float64          `json:"height"`
}

type Page struct {
	Number int     `json:"number"`
	Blocks []Block `json:"blocks"`
}

// Layout is the paginated form of one document snapshot.
type Layout struct {
	Geometry       Geometry  `json:"geometry"`
	ReportID       string    `json:"reportId"`
	CaseNumber     string    `json:"caseNumber"`
	TargetName     string    `json:"targetName"`
	Classification string    `json:"classification"`
	Revision       int64     `json:"revision"`
	GeneratedAt    time.Time `json:"generatedAt"`
	Pages          []Page    `json:"pages"`
}

// Options adjusts the fixed texts of a layout.
type Options struct {
	// GeneratedAt is printed in the header. Zero means the document's
	// UpdatedAt, which keeps repeated renders identical.
	GeneratedAt time.Time
	Disclaimer  string
}

// Paginate lays doc out on pages of geometry g. The same document and
// geometry always give the same page breaks. A block taller than a page's
// content area fails with ErrBlockTooTall.
func Paginate(doc *report.Document, g Geometry, opts Options) (*Layout, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	generated := opts.GeneratedAt
	if generated.IsZero() {
		generated = doc.UpdatedAt
	}
	disclaimer := opts.Disclaimer
	if disclaimer == "" {
		disclaimer = defaultDisclaimer
	}
	classification := doc.Classification
	if classification == "" {
		classification = report.DefaultClassification
	}

	p := &paginator{g: g, columns: g.Columns()}
	p.newPage()

	p.pages[0].Blocks = append(p.pages[0].Blocks, p.banner(classification, 0))
	header := []Block{
		p.block(StyleTitle, "", reportTitle),
		p.block(StyleBadge, "", classification),
		p.block(StyleMeta, "", "Subject: "+doc.TargetName),
		p.block(StyleMeta, "", "Case Number: "+doc.CaseNumber),
		p.block(StyleMeta, "", "Generated: "+generated.UTC().Format("2006-01-02 15:04 UTC")),
	}
	if err := p.placeGroup(header); err != nil {
		return nil, err
	}

	for i, id := range report.Sections() {
		meta := doc.Section(id)
		heading := p.block(StyleHeading, id, strconv.Itoa(i+1)+". "+id.Title())

		var content []Block
		if paras := sectionText(doc, id); doc.SectionHasData(id) && len(paras) > 0 {
			for _, text := range paras {
				content = append(content, p.block(StyleBody, id, text))
			}
		} else {
			content = append(content, p.block(StyleFallback, id, FallbackText))
		}
		if err := p.placeGroup([]Block{heading, content[0]}); err != nil {
			return nil, fmt.Errorf("section %s: %w", id, err)
		}
		for _, b := range content[1:] {
			if err := p.place(b); err != nil {
				return nil, fmt.Errorf("section %s: %w", id, err)
			}
		}

		if len(meta.Bibliography) == 0 {
			continue
		}
		label := p.block(StyleSourcesLabel, id, sourcesLabel)
		first := p.block(StyleSource, id, sourceText(1, meta.Bibliography[0]))
		if err := p.placeGroup([]Block{label, first}); err != nil {
			return nil, fmt.Errorf("section %s sources: %w", id, err)
		}
		for n, src := range meta.Bibliography[1:] {
			if err := p.place(p.block(StyleSource, id, sourceText(n+2, src))); err != nil {
				return nil, fmt.Errorf("section %s sources: %w", id, err)
			}
		}
	}

	if err := p.placeFooter(classification, disclaimer); err != nil {
		return nil, err
	}

	return &Layout{
		Geometry:       g,
		ReportID:       doc.ID,
		CaseNumber:     doc.CaseNumber,
		TargetName:     doc.TargetName,
		Classification: classification,
		Revision:       doc.Revision,
		GeneratedAt:    generated.UTC(),
		Pages:          p.pages,
	}, nil
}

type paginator struct {
	g       Geometry
	columns int
	pages   []Page
	cursor  float64
}

func (p *paginator) newPage() {
	p.pages = append(p.pages, Page{Number: len(p.pages) + 1, Blocks: []Block{}})
	p.cursor = p.g.MarginTop
}

func (p *paginator) bottom() float64 {
	return p.g.PageHeight - p.g.MarginBottom
}

// block measures text with Wrap; the same lines are what gets drawn.
func (p *paginator) block(style Style, id report.SectionID, text string) Block {
	lines := Wrap(text, p.columns)
	return Block{
		Style:   style,
		Section: id,
		Text:    text,
		Lines:   lines,
		X:       p.g.MarginLeft,
		Width:   p.g.ContentWidth(),
		Height:  p.g.LineHeight * float64(len(lines)),
	}
}

func (p *paginator) banner(text string, y float64) Block {
	return Block{
		Style:  StyleBanner,
		Text:   text,
		Lines:  []string{text},
		X:      0,
		Y:      y,
		Width:  p.g.PageWidth,
		Height: p.g.BannerHeight,
	}
}

func (p *paginator) groupHeight(blocks []Block) float64 {
	h := 0.0
	for i, b := range blocks {
		if i > 0 {
			h += p.g.BlockGap
		}
		h += b.Height
	}
	return h
}

// placeGroup keeps blocks together on one page, opening a new page when
// they do not fit below the cursor.
func (p *paginator) placeGroup(blocks []Block) error {
	h := p.groupHeight(blocks)
	if h > p.g.ContentHeight() {
		if len(blocks) == 1 {
			return tooTall(blocks[0], p.g)
		}
		for _, b := range blocks {
			if err := p.place(b); err != nil {
				return err
			}
		}
		return nil
	}
	if p.cursor+h > p.bottom() {
		p.newPage()
	}
	for _, b := range blocks {
		p.put(b)
	}
	return nil
}

func (p *paginator) place(b Block) error {
	return p.placeGroup([]Block{b})
}

func (p *paginator) put(b Block) {
	b.Y = p.cursor
	last := &p.pages[len(p.pages)-1]
	last.Blocks = append(last.Blocks, b)
	p.cursor += b.Height + p.g.BlockGap
}

// placeFooter adds the closing blocks and the bottom banner to the last
// page. The page count is part of the footer, so it is settled before the
// footer is measured.
func (p *paginator) placeFooter(classification, disclaimer string) error {
	build := func(pages int) []Block {
		return []Block{
			p.block(StyleFooter, "", "Classification: "+classification),
			p.block(StyleDisclaimer, "", disclaimer),
			p.block(StylePageCount, "", pageCountText(pages)),
		}
	}
	footer := build(len(p.pages))
	if p.cursor+p.groupHeight(footer) > p.bottom() {
		footer = build(len(p.pages) + 1)
		if h := p.groupHeight(footer); h > p.g.ContentHeight() {
			return fmt.Errorf("footer: %w: needs %.1fpt of %.1fpt", ErrBlockTooTall, h, p.g.ContentHeight())
		}
		p.newPage()
	}
	for _, b := range footer {
		p.put(b)
	}
	last := &p.pages[len(p.pages)-1]
	last.Blocks = append(last.Blocks, p.banner(classification, p.g.PageHeight-p.g.BannerHeight))
	return nil
}

func pageCountText(pages int) string {
	if pages == 1 {
		return "This report contains 1 page."
	}
	return "This report contains " + strconv.Itoa(pages) + " pages."
}

func tooTall(b Block, g Geometry) error {
	where := string(b.Style)
	if b.Section != "" {
		where = string(b.Section) + " " + where
	}
	return fmt.Errorf("%w: %s block needs %.1fpt of %.1fpt", ErrBlockTooTall, where, b.Height, g.ContentHeight())
}
