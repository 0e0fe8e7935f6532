package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/api/internal/report"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestTransformer(t *testing.T) *Transformer {
	t.Helper()
	tr, err := NewTransformer(nil, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return tr
}

func TestTransformDateOfBirthOnly(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"personal_info": map[string]any{"dob": "1980-01-01"},
	}, "42")

	require.NotNil(t, doc.PersonalInformation.DateOfBirth)
	assert.Equal(t, "1980-01-01", *doc.PersonalInformation.DateOfBirth)
	assert.True(t, doc.Sections[report.SectionPersonal].HasData)
	assert.Equal(t, report.AgentCompleted, doc.Sections[report.SectionPersonal].AgentStatus)
	assert.False(t, doc.Sections[report.SectionFinancial].HasData)
	assert.Equal(t, report.AgentIdle, doc.Sections[report.SectionFinancial].AgentStatus)
	assert.Equal(t, report.StatusCompleted, doc.Status)
	assert.Equal(t, report.AgentsTotal, doc.AgentsTotal)
	assert.Equal(t, 1, doc.AgentsCompleted)
	assert.Equal(t, "IR-42", doc.CaseNumber)
	assert.Equal(t, UnknownSubject, doc.TargetName)
}

func TestTransformAgentsTotalIsFixed(t *testing.T) {
	tr := newTestTransformer(t)
	payloads := []map[string]any{
		nil,
		{},
		{"weather": "sunny"},
		{"personal_info": "not an object"},
		{"social_media": []any{1, 2, 3}},
		{"education": map[string]any{"oops": true}, "languages": 7},
	}
	for _, p := range payloads {
		doc := tr.Transform(p, "r")
		assert.Equal(t, report.AgentsTotal, doc.AgentsTotal)
		assert.Equal(t, 0, doc.AgentsCompleted)
		assert.Equal(t, report.StatusCompleted, doc.Status)
	}
}

func TestTransformMalformedSubRecordDoesNotBlankReport(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"personal_info": map[string]any{"full_name": "Jane Doe"},
		"social_media":  "definitely not a map",
		"legal":         map[string]any{"sanctions": []any{"OFAC SDN"}},
	}, "r1")

	assert.True(t, doc.Sections[report.SectionPersonal].HasData)
	assert.True(t, doc.Sections[report.SectionLegal].HasData)
	assert.False(t, doc.Sections[report.SectionSocial].HasData)
	assert.Empty(t, doc.SocialMedia)
	assert.Equal(t, 2, doc.AgentsCompleted)
}

func TestTransformUnencodableValueIsDropped(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"financial":     map[string]any{"net_worth": func() {}},
		"personal_info": map[string]any{"nationality": "Irish"},
	}, "r1")

	assert.False(t, doc.Sections[report.SectionFinancial].HasData)
	assert.Equal(t, "Irish", *doc.PersonalInformation.Nationality)
}

func TestTransformSocialMediaSynthesizesURLs(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"social_media": map[string]any{
			"twitter":  map[string]any{"handle": "@janedoe", "followers": 1200},
			"github":   "janedoe",
			"mastodon": "@jane@example.social",
			"linkedin": "https://www.linkedin.com/in/jane-doe",
			"myspace":  nil,
		},
	}, "r1")

	require.Len(t, doc.SocialMedia, 4)
	byPlatform := map[string]report.SocialMediaProfile{}
	for _, p := range doc.SocialMedia {
		byPlatform[*p.Platform] = p
	}

	assert.Equal(t, "https://twitter.com/janedoe", *byPlatform["twitter"].URL)
	assert.Equal(t, "1200", *byPlatform["twitter"].Followers)
	assert.Equal(t, "https://github.com/janedoe", *byPlatform["github"].URL)
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", *byPlatform["linkedin"].URL)
	assert.Nil(t, byPlatform["linkedin"].Handle)
	assert.Nil(t, byPlatform["mastodon"].URL, "unknown platforms keep the handle only")
	assert.Equal(t, "@jane@example.social", *byPlatform["mastodon"].Handle)

	platforms := []string{}
	for _, p := range doc.SocialMedia {
		platforms = append(platforms, *p.Platform)
	}
	assert.Equal(t, []string{"github", "linkedin", "mastodon", "twitter"}, platforms)
}

func TestTransformLanguagesFlagMap(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"languages": map[string]any{"english": true, "french": "fluent", "german": false, "spanish": "no"},
	}, "r1")

	assert.Equal(t, []string{"English", "French"}, doc.Languages)
	assert.True(t, doc.Sections[report.SectionLanguages].HasData)
}

func TestTransformEducationMixedEntries(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"education": []any{
			map[string]any{"school": "Trinity College", "degree": "BA", "year": 2002},
			"Sorbonne",
			"",
			nil,
		},
	}, "r1")

	require.Len(t, doc.Education, 2)
	assert.Equal(t, "Trinity College", *doc.Education[0].Institution)
	assert.Equal(t, "2002", *doc.Education[0].Years)
	assert.Equal(t, "Sorbonne", *doc.Education[1].Institution)
}

func TestTransformTargetNamePrecedence(t *testing.T) {
	tr := newTestTransformer(t)

	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{"explicit", map[string]any{"target_name": "J. Doe", "personal_info": map[string]any{"alias": "JD"}}, "J. Doe"},
		{"alias", map[string]any{"personal_info": map[string]any{"alias": "JD", "full_name": "Jane Doe"}}, "JD"},
		{"full name", map[string]any{"personal_info": map[string]any{"full_name": "Jane Doe"}}, "Jane Doe"},
		{"basic info", map[string]any{"basic_info": map[string]any{
			"zz_registry": map[string]any{"name": "Later Source"},
			"companies":   map[string]any{"name": "Jane Q. Doe"},
		}}, "Jane Q. Doe"},
		{"fallback", map[string]any{"basic_info": map[string]any{"companies": map[string]any{"name": "unknown"}}}, UnknownSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Transform(tt.payload, "r").TargetName)
		})
	}
}

func TestTransformPersonalInfoFeedsContactAndEmployment(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"personal_info": map[string]any{
			"full_name":  "Jane Doe",
			"email":      "jane@example.com",
			"occupation": "Consultant",
		},
		"contact":    map[string]any{"emails": []any{"JANE@example.com", "jd@example.org"}, "phone": "+1 555 0100"},
		"employment": map[string]any{"job_title": "Director", "employer": "Acme"},
	}, "r1")

	assert.Equal(t, []string{"jane@example.com", "jd@example.org"}, doc.Contact.Emails)
	assert.Equal(t, []string{"+1 555 0100"}, doc.Contact.Phones)
	assert.Equal(t, "Consultant", *doc.Employment.JobTitle, "personal_info wins for scalars")
	assert.Equal(t, "Acme", *doc.Employment.CurrentEmployer)
	require.NotNil(t, doc.TargetEmail)
	assert.Equal(t, "jane@example.com", *doc.TargetEmail)
	assert.Equal(t, 3, doc.AgentsCompleted)
}

func TestTransformSourcesAreAttributed(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.Transform(map[string]any{
		"legal": map[string]any{"civil_cases": []any{"Doe v. Roe"}},
		"sources": []any{
			map[string]any{"source": "County court", "section": "legal", "type": "database", "reliability": "HIGH"},
			map[string]any{"source": "Unattributed"},
			map[string]any{"source": "Bad section", "section": "weather"},
		},
	}, "r1")

	bib := doc.Sections[report.SectionLegal].Bibliography
	require.Len(t, bib, 1)
	assert.Equal(t, "County court", bib[0].Source)
	assert.Equal(t, report.SourceDatabase, bib[0].Type)
	assert.Equal(t, report.ReliabilityHigh, bib[0].Reliability)
	assert.Equal(t, report.SectionLegal, bib[0].SectionID)
	assert.Empty(t, doc.Sections[report.SectionFinancial].Bibliography)
}

func TestTransformJSON(t *testing.T) {
	tr := newTestTransformer(t)

	doc := tr.TransformJSON([]byte(`{"case_number":"IR-2026-7","classification":"secret","financial":{"net_worth":"$1M"}}`), "r1")
	assert.Equal(t, "IR-2026-7", doc.CaseNumber)
	assert.Equal(t, "SECRET", doc.Classification)
	assert.Equal(t, "$1M", *doc.Financial.NetWorth)

	empty := tr.TransformJSON([]byte(`[1,2,3]`), "r2")
	assert.Equal(t, report.StatusCompleted, empty.Status)
	assert.Equal(t, 0, empty.AgentsCompleted)
}

func TestRunRecoversFromPanickingRule(t *testing.T) {
	tr := newTestTransformer(t)
	doc := report.New("r1", "IR-1", "", nil, fixedNow)
	before := doc.Clone()

	boom := bind("financial", report.SectionFinancial, func(any) (report.FinancialAssets, bool) {
		panic("upstream shape changed")
	}, func(d *report.Document, v report.FinancialAssets) { d.Financial = v })

	assert.False(t, tr.run(boom, doc, map[string]any{}, tr.log))
	assert.Equal(t, before, doc)
}

func TestProfileURL(t *testing.T) {
	assert.Equal(t, "https://www.tiktok.com/@jane", *profileURL("TikTok", "@jane"))
	assert.Equal(t, "https://t.me/jane_doe", *profileURL("telegram", "jane_doe"))
	assert.Nil(t, profileURL("friendster", "jane"))
	assert.Nil(t, profileURL("github", "@"))
}
