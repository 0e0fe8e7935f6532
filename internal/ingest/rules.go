package ingest

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dossier/api/internal/report"
)

// ExtractionRule converts one raw sub-record into a typed value. It reports
// false when the sub-record yields nothing usable.
type ExtractionRule[T any] func(raw any) (T, bool)

func asMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	return m, ok && m != nil
}

func asSlice(raw any) ([]any, bool) {
	s, ok := raw.([]any)
	return s, ok
}

// field returns the first non-nil value stored under any of keys.
func field(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func scalar(m map[string]any, keys ...string) *string {
	return report.NormalizeScalar(field(m, keys...))
}

// list merges every key's values so "phone" and "phones" both contribute.
func list(m map[string]any, keys ...string) []string {
	var merged []any
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		if items, ok := asSlice(v); ok {
			merged = append(merged, items...)
			continue
		}
		merged = append(merged, v)
	}
	return report.NormalizeList(merged)
}

func extractPersonal(raw any) (report.PersonalInformation, bool) {
	m, ok := asMap(raw)
	if !ok {
		return report.PersonalInformation{}, false
	}
	p := report.PersonalInformation{
		FullName:      scalar(m, "full_name", "fullName", "name"),
		Aliases:       list(m, "alias", "aliases", "nickname", "known_as"),
		DateOfBirth:   scalar(m, "dob", "date_of_birth", "birth_date", "birthdate"),
		PlaceOfBirth:  scalar(m, "place_of_birth", "placeOfBirth", "birthplace"),
		Nationality:   scalar(m, "nationality", "citizenship"),
		Gender:        scalar(m, "gender", "sex"),
		MaritalStatus: scalar(m, "marital_status", "maritalStatus"),
	}
	return p, p.HasData()
}

func extractContact(raw any) (report.ContactInformation, bool) {
	m, ok := asMap(raw)
	if !ok {
		return report.ContactInformation{}, false
	}
	c := report.ContactInformation{
		Emails:    list(m, "email", "emails"),
		Phones:    list(m, "phone", "phones", "phone_number", "phone_numbers"),
		Addresses: list(m, "address", "addresses", "location", "current_address"),
	}
	return c, c.HasData()
}

func extractEmployment(raw any) (report.Employment, bool) {
	m, ok := asMap(raw)
	if !ok {
		return report.Employment{}, false
	}
	e := report.Employment{
		CurrentEmployer:   scalar(m, "current_employer", "employer", "company"),
		JobTitle:          scalar(m, "job_title", "occupation", "title", "position"),
		PreviousEmployers: list(m, "previous_employers", "past_employers"),
	}
	return e, e.HasData()
}

func extractFinancial(raw any) (report.FinancialAssets, bool) {
	m, ok := asMap(raw)
	if !ok {
		return report.FinancialAssets{}, false
	}
	f := report.FinancialAssets{
		NetWorth:     scalar(m, "net_worth", "netWorth"),
		AnnualIncome: scalar(m, "annual_income", "annualIncome", "income"),
		CreditRating: scalar(m, "credit_rating", "creditRating"),
		BankAccounts: list(m, "bank_accounts", "bankAccounts"),
		Investments:  list(m, "investments"),
		Vehicles:     list(m, "vehicles"),
	}
	return f, f.HasData()
}

func extractLegal(raw any) (report.LegalRecord, bool) {
	m, ok := asMap(raw)
	if !ok {
		return report.LegalRecord{}, false
	}
	l := report.LegalRecord{
		CriminalRecords: list(m, "criminal_records", "criminal"),
		CivilCases:      list(m, "civil_cases", "civil_litigation", "lawsuits"),
		Sanctions:       list(m, "sanctions"),
		Bankruptcies:    list(m, "bankruptcies"),
	}
	return l, l.HasData()
}

func extractOnline(raw any) (report.OnlinePresence, bool) {
	m, ok := asMap(raw)
	if !ok {
		return report.OnlinePresence{}, false
	}
	o := report.OnlinePresence{
		Websites:     list(m, "websites", "website"),
		Domains:      list(m, "domains", "domain"),
		NewsMentions: list(m, "news_mentions", "news"),
		Forums:       list(m, "forums"),
	}
	return o, o.HasData()
}

// entries applies one to every item of a list sub-record and keeps the
// items that produced data.
func entries[T interface{ HasData() bool }](raw any, one func(any) T) ([]T, bool) {
	items, ok := asSlice(raw)
	if !ok {
		return nil, false
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		e := one(item)
		if e.HasData() {
			out = append(out, e)
		}
	}
	return out, len(out) > 0
}

func extractEducation(raw any) ([]report.EducationEntry, bool) {
	return entries(raw, func(item any) report.EducationEntry {
		if m, ok := asMap(item); ok {
			return report.EducationEntry{
				Institution: scalar(m, "institution", "school", "university", "name"),
				Degree:      scalar(m, "degree", "qualification"),
				Field:       scalar(m, "field", "major", "field_of_study"),
				Years:       scalar(m, "years", "year", "graduation_year", "period"),
			}
		}
		return report.EducationEntry{Institution: report.NormalizeScalar(item)}
	})
}

func extractBusiness(raw any) ([]report.BusinessInterest, bool) {
	return entries(raw, func(item any) report.BusinessInterest {
		if m, ok := asMap(item); ok {
			return report.BusinessInterest{
				Name:         scalar(m, "name", "company", "entity"),
				Role:         scalar(m, "role", "position", "title"),
				Jurisdiction: scalar(m, "jurisdiction", "country"),
				Ownership:    scalar(m, "ownership", "ownership_percentage", "stake"),
				Status:       scalar(m, "status"),
			}
		}
		return report.BusinessInterest{Name: report.NormalizeScalar(item)}
	})
}

func extractProperties(raw any) ([]report.PropertyHolding, bool) {
	return entries(raw, func(item any) report.PropertyHolding {
		if m, ok := asMap(item); ok {
			return report.PropertyHolding{
				Address:        scalar(m, "address", "location"),
				Type:           scalar(m, "type", "property_type"),
				EstimatedValue: scalar(m, "estimated_value", "value"),
				Ownership:      scalar(m, "ownership", "owner"),
			}
		}
		return report.PropertyHolding{Address: report.NormalizeScalar(item)}
	})
}

var languageTitle = cases.Title(language.English)

// extractLanguages accepts either a list of names or a flag map such as
// {"english": true, "french": "fluent", "german": false}.
func extractLanguages(raw any) ([]string, bool) {
	if items, ok := asSlice(raw); ok {
		langs := report.NormalizeList(items)
		return langs, len(langs) > 0
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(m))
	for name, flag := range m {
		if spoken(flag) {
			names = append(names, languageTitle.String(strings.TrimSpace(name)))
		}
	}
	sort.Strings(names)
	langs := report.NormalizeList(names)
	return langs, len(langs) > 0
}

func spoken(flag any) bool {
	switch v := flag.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		s := report.NormalizeScalar(v)
		if s == nil {
			return false
		}
		if b, err := strconv.ParseBool(*s); err == nil {
			return b
		}
		switch strings.ToLower(*s) {
		case "no", "n":
			return false
		}
		return true
	default:
		return false
	}
}

// extractSocial reads a platform-keyed map. Each value is either a profile
// object or a bare handle/URL string. Platforms are emitted in name order.
func extractSocial(raw any) ([]report.SocialMediaProfile, bool) {
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	platforms := make([]string, 0, len(m))
	for p := range m {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	out := make([]report.SocialMediaProfile, 0, len(platforms))
	for _, platform := range platforms {
		profile := socialProfile(platform, m[platform])
		if profile.HasData() {
			out = append(out, profile)
		}
	}
	return out, len(out) > 0
}

func socialProfile(platform string, raw any) report.SocialMediaProfile {
	p := report.SocialMediaProfile{Platform: report.NormalizeScalar(platform)}
	if m, ok := asMap(raw); ok {
		p.Handle = scalar(m, "handle", "username", "user", "screen_name")
		p.URL = scalar(m, "url", "link", "profile_url", "profileUrl")
		p.Followers = scalar(m, "followers", "follower_count", "followers_count")
		p.LastActive = scalar(m, "last_active", "lastActive", "last_post")
	} else if s := report.NormalizeScalar(raw); s != nil {
		if looksLikeURL(*s) {
			p.URL = s
		} else {
			p.Handle = s
		}
	}
	if p.URL == nil && p.Handle != nil {
		p.URL = profileURL(platform, *p.Handle)
	}
	return p
}

func looksLikeURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// basicInfoName recovers a display name from per-source basic info records,
// visiting sources in name order.
func basicInfoName(raw any) (string, bool) {
	m, ok := asMap(raw)
	if !ok {
		return "", false
	}
	sources := make([]string, 0, len(m))
	for s := range m {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		rec, ok := asMap(m[s])
		if !ok {
			continue
		}
		if name := scalar(rec, "name", "full_name", "display_name", "username"); name != nil {
			return *name, true
		}
	}
	return "", false
}

func extractSources(raw any) ([]report.BibliographySource, bool) {
	items, ok := asSlice(raw)
	if !ok {
		return nil, false
	}
	out := make([]report.BibliographySource, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		name := scalar(m, "source", "name", "title")
		if name == nil {
			continue
		}
		section, err := report.ParseSectionID(report.Display(scalar(m, "section", "section_id", "sectionId")))
		if err != nil {
			continue
		}
		src := report.BibliographySource{
			Source:      *name,
			URL:         scalar(m, "url", "link"),
			Type:        sourceType(scalar(m, "type")),
			Reliability: reliability(scalar(m, "reliability")),
			SectionID:   section,
		}
		out = append(out, src)
	}
	return out, len(out) > 0
}

func sourceType(v *string) report.SourceType {
	if v == nil {
		return ""
	}
	switch t := report.SourceType(strings.ToLower(*v)); t {
	case report.SourceURL, report.SourceDocument, report.SourceDatabase:
		return t
	}
	return ""
}

func reliability(v *string) report.Reliability {
	if v == nil {
		return ""
	}
	switch r := report.Reliability(strings.ToLower(*v)); r {
	case report.ReliabilityHigh, report.ReliabilityMedium, report.ReliabilityLow:
		return r
	}
	return ""
}
