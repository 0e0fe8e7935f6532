//go:build property
// +build property

package report_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"dossier/api/internal/report"
)

var propNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// Property: a block has data iff some field normalizes to a value.
func TestHasDataMatchesNormalization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	blanks := []string{"", " ", "unknown", "N/A", "none", "-"}
	pick := func(s string, blank int) string {
		if blank >= 0 {
			return blanks[blank]
		}
		return s
	}

	properties.Property("financial hasData follows its normalized fields", prop.ForAll(
		func(netWorth string, nwBlank int, income string, inBlank int, accounts []string) bool {
			netWorth, income = pick(netWorth, nwBlank), pick(income, inBlank)
			f := report.FinancialAssets{NetWorth: &netWorth, AnnualIncome: &income, BankAccounts: accounts}
			want := report.NormalizeScalar(netWorth) != nil ||
				report.NormalizeScalar(income) != nil ||
				len(report.NormalizeList(accounts)) > 0
			return f.HasData() == want
		},
		gen.AlphaString(), gen.IntRange(-1, len(blanks)-1),
		gen.AlphaString(), gen.IntRange(-1, len(blanks)-1),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// Property: ApplySectionUpdate(D, s, u) never changes D and reflects u.
func TestApplySectionUpdateLeavesInputUnchanged(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("copy-on-write", prop.ForAll(
		func(name, netWorth, sanction string) bool {
			doc := report.New("r", "IR-1", name, nil, propNow)
			doc.Legal.Sanctions = []string{"existing"}
			doc.Recompute()
			before := doc.Clone()

			next, err := report.ApplySectionUpdate(doc, report.SectionFinancial, report.Patch{"netWorth": netWorth}, propNow)
			if err != nil {
				return false
			}
			if _, err := report.ApplySectionUpdate(next, report.SectionLegal, report.Patch{"sanctions": []any{sanction}}, propNow); err != nil {
				return false
			}

			reflected := report.Display(next.Financial.NetWorth) == report.Display(report.NormalizeScalar(netWorth))
			return reflect.DeepEqual(before, doc) && reflected &&
				next.Sections[report.SectionFinancial].HasData == (report.NormalizeScalar(netWorth) != nil)
		},
		gen.AlphaString(), gen.AlphaString(), gen.AlphaString(),
	))

	properties.TestingRun(t)
}
