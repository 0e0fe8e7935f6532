//go:build property
// +build property

package render_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mattn/go-runewidth"

	"dossier/api/internal/render"
	"dossier/api/internal/report"
)

var propNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func propDoc(name, netWorth string, mentions []string) *report.Document {
	doc := report.New("r", "IR-1", name, nil, propNow)
	doc.Financial.NetWorth = &netWorth
	doc.OnlinePresence.NewsMentions = mentions
	doc.Normalize()
	return doc
}

// Property: the same document and geometry give the same page breaks.
func TestPaginateDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("identical layouts", prop.ForAll(
		func(name, netWorth string, mentions []string, lineHeight int) bool {
			g := render.DefaultGeometry()
			g.LineHeight = float64(lineHeight)
			doc := propDoc(name, netWorth, mentions)

			a, errA := render.Paginate(doc, g, render.Options{})
			b, errB := render.Paginate(doc.Clone(), g, render.Options{})
			if errA != nil || errB != nil {
				return errA != nil && errB != nil && errA.Error() == errB.Error()
			}
			return reflect.DeepEqual(a, b) && render.Fingerprint(a) == render.Fingerprint(b)
		},
		gen.AlphaString(), gen.AnyString(), gen.SliceOf(gen.AlphaString()), gen.IntRange(8, 40),
	))

	properties.TestingRun(t)
}

// Property: every text block sits inside the content area of its page.
func TestPaginateStaysInsideMargins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("blocks within content area", prop.ForAll(
		func(netWorth string, mentions []string) bool {
			g := render.DefaultGeometry()
			l, err := render.Paginate(propDoc("Jane Doe", netWorth, mentions), g, render.Options{})
			if err != nil {
				return false
			}
			for _, p := range l.Pages {
				for _, b := range p.Blocks {
					if b.Style == render.StyleBanner {
						continue
					}
					if b.Y < g.MarginTop || b.Y+b.Height > g.PageHeight-g.MarginBottom {
						return false
					}
				}
			}
			return true
		},
		gen.AlphaString(), gen.SliceOfN(120, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// Property: wrapped lines never exceed the column budget and keep every word.
func TestWrapFitsColumns(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("lines fit and words survive", prop.ForAll(
		func(words []string, columns int) bool {
			text := strings.Join(words, " ")
			lines := render.Wrap(text, columns)
			if len(lines) == 0 {
				return false
			}
			for _, line := range lines {
				if runewidth.StringWidth(line) > columns {
					return false
				}
			}
			return strings.ReplaceAll(strings.Join(lines, ""), " ", "") == strings.ReplaceAll(text, " ", "")
		},
		gen.SliceOf(gen.AlphaString()), gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
