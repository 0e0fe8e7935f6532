package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func TestNormalizeScalar(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  *string
	}{
		{"nil", nil, nil},
		{"empty string", "", nil},
		{"whitespace", "   ", nil},
		{"unknown sentinel", "Unknown", nil},
		{"n/a sentinel", " N/A ", nil},
		{"trimmed", "  Jane Doe ", String("Jane Doe")},
		{"float", 42.5, String("42.5")},
		{"integer float", float64(1980), String("1980")},
		{"int", 7, String("7")},
		{"bool", true, String("true")},
		{"map is not scalar", map[string]any{"a": 1}, nil},
		{"slice is not scalar", []any{"a"}, nil},
		{"nil pointer", (*string)(nil), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeScalar(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestNormalizeList(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"nil", nil, []string{}},
		{"drops empties and sentinels", []any{"a", "", "unknown", nil, "b"}, []string{"a", "b"}},
		{"case-insensitive dedup keeps first spelling", []string{"Paris", "paris", "PARIS", "Lyon"}, []string{"Paris", "Lyon"}},
		{"preserves order", []any{"z", "a", "m"}, []string{"z", "a", "m"}},
		{"single scalar", "solo", []string{"solo"}},
		{"numbers become strings", []any{1.0, 2.0}, []string{"1", "2"}},
		{"nested values dropped", []any{map[string]any{"x": "y"}, "kept"}, []string{"kept"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeList(tt.input))
		})
	}
}

func TestNewDocumentIsEmptyDraft(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)

	assert.Equal(t, StatusDraft, doc.Status)
	assert.Equal(t, 0, doc.AgentsCompleted)
	assert.Equal(t, AgentsTotal, doc.AgentsTotal)
	assert.Equal(t, 0, doc.OverallProgress)
	assert.Equal(t, DefaultClassification, doc.Classification)
	require.Len(t, doc.Sections, AgentsTotal)
	for _, id := range Sections() {
		meta := doc.Sections[id]
		assert.False(t, meta.HasData, "section %s", id)
		assert.Equal(t, AgentIdle, meta.AgentStatus, "section %s", id)
		assert.Equal(t, id.Title(), meta.Title)
		assert.Empty(t, meta.Bibliography)
	}
}

func TestBlankValuesNeverCountAsData(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	empty := ""
	doc.Financial.NetWorth = &empty
	doc.Legal.Sanctions = []string{" ", "unknown"}
	doc.SocialMedia = []SocialMediaProfile{{Platform: String("twitter")}}
	doc.Recompute()

	assert.False(t, doc.Sections[SectionFinancial].HasData)
	assert.False(t, doc.Sections[SectionLegal].HasData)
	assert.False(t, doc.Sections[SectionSocial].HasData, "a platform name alone is not a profile")
}

func TestApplySectionUpdateIsCopyOnWrite(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	before := doc.Clone()

	later := fixedNow.Add(time.Hour)
	next, err := ApplySectionUpdate(doc, SectionFinancial, Patch{"netWorth": "$1M"}, later)
	require.NoError(t, err)

	assert.Equal(t, before, doc, "input document must not change")
	require.NotNil(t, next.Financial.NetWorth)
	assert.Equal(t, "$1M", *next.Financial.NetWorth)
	assert.True(t, next.Sections[SectionFinancial].HasData)
	require.NotNil(t, next.Sections[SectionFinancial].LastUpdated)
	assert.True(t, next.Sections[SectionFinancial].LastUpdated.Equal(later))
	assert.True(t, next.UpdatedAt.Equal(later))
	assert.Nil(t, doc.Financial.NetWorth)
}

func TestApplySectionUpdateMergesScalarBlocks(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	doc, err := ApplySectionUpdate(doc, SectionPersonal, Patch{"dob": "1980-01-01", "aliases": []any{"JD", "jd"}}, fixedNow)
	require.NoError(t, err)

	doc, err = ApplySectionUpdate(doc, SectionPersonal, Patch{"nationality": "French"}, fixedNow)
	require.NoError(t, err)

	require.NotNil(t, doc.PersonalInformation.DateOfBirth)
	assert.Equal(t, "1980-01-01", *doc.PersonalInformation.DateOfBirth, "earlier fields survive a merge")
	assert.Equal(t, "French", *doc.PersonalInformation.Nationality)
	assert.Equal(t, []string{"JD"}, doc.PersonalInformation.Aliases)
}

func TestApplySectionUpdateReplacesListsWholesale(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	doc, err := ApplySectionUpdate(doc, SectionBusiness, Patch{EntriesKey: []any{
		map[string]any{"name": "Acme Ltd", "role": "Director"},
		map[string]any{"name": "Globex"},
	}}, fixedNow)
	require.NoError(t, err)
	require.Len(t, doc.BusinessInterests, 2)

	doc, err = ApplySectionUpdate(doc, SectionBusiness, Patch{EntriesKey: []BusinessInterest{{Name: String("Initech"), Ownership: String("40%")}}}, fixedNow)
	require.NoError(t, err)
	require.Len(t, doc.BusinessInterests, 1)
	assert.Equal(t, "Initech", *doc.BusinessInterests[0].Name)
}

func TestApplySectionUpdateErrors(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)

	_, err := ApplySectionUpdate(doc, SectionID("weather"), Patch{}, fixedNow)
	assert.True(t, errors.Is(err, ErrUnknownSection))

	_, err = ApplySectionUpdate(doc, SectionFinancial, Patch{"shoeSize": "44"}, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = ApplySectionUpdate(doc, SectionSocial, Patch{"handle": "@x"}, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidPatch)
}

func TestApplySectionUpdateScalarizesNumbers(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	next, err := ApplySectionUpdate(doc, SectionFinancial, Patch{"annualIncome": 125000.0}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "125000", *next.Financial.AnnualIncome)
}

func TestAppendBibliographyAttributesAndAppends(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)
	first, err := AppendBibliography(doc, SectionLegal, []BibliographySource{{Source: "Court registry"}}, fixedNow)
	require.NoError(t, err)
	second, err := AppendBibliography(first, SectionLegal, []BibliographySource{{Source: "Gazette", Type: SourceDocument, Reliability: ReliabilityHigh}}, fixedNow)
	require.NoError(t, err)

	assert.Empty(t, doc.Sections[SectionLegal].Bibliography)
	require.Len(t, first.Sections[SectionLegal].Bibliography, 1)
	bib := second.Sections[SectionLegal].Bibliography
	require.Len(t, bib, 2)
	assert.Equal(t, "Court registry", bib[0].Source)
	assert.Equal(t, SectionLegal, bib[1].SectionID)
	assert.Equal(t, "legal-2", bib[1].ID)
	assert.Equal(t, ReliabilityMedium, bib[0].Reliability)
}

func TestSetAgentStatusTransitions(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", nil, fixedNow)

	_, err := SetAgentStatus(doc, SectionLegal, AgentCompleted, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "idle cannot complete without running")

	running, err := SetAgentStatus(doc, SectionLegal, AgentRunning, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, running.Status)

	done, err := SetAgentStatus(running, SectionLegal, AgentCompleted, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 1, done.AgentsCompleted)
	assert.Equal(t, 100/AgentsTotal, done.OverallProgress)

	_, err = SetAgentStatus(done, SectionLegal, AgentError, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidTransition, "completed is terminal until refreshed")

	_, err = SetAgentStatus(done, SectionLegal, AgentRunning, fixedNow)
	assert.NoError(t, err)
}

func TestParseSectionID(t *testing.T) {
	id, err := ParseSectionID("financial")
	require.NoError(t, err)
	assert.Equal(t, SectionFinancial, id)

	_, err = ParseSectionID("Financial")
	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestCloneSharesNothing(t *testing.T) {
	doc := New("rep-1", "IR-1", "Jane Doe", String("jane@example.com"), fixedNow)
	doc.Contact.Emails = []string{"a@example.com"}
	doc.Recompute()

	c := doc.Clone()
	c.Contact.Emails[0] = "changed"
	*c.TargetEmail = "changed"
	meta := c.Sections[SectionContact]
	meta.Title = "changed"
	c.Sections[SectionContact] = meta

	assert.Equal(t, "a@example.com", doc.Contact.Emails[0])
	assert.Equal(t, "jane@example.com", *doc.TargetEmail)
	assert.Equal(t, "Contact Information", doc.Sections[SectionContact].Title)
}

func TestDisplayDoesNotMutate(t *testing.T) {
	assert.Equal(t, "Unknown", Display(nil))
	v := String("x")
	assert.Equal(t, "x", Display(v))
	assert.Equal(t, "x", *v)
}
