package render

import (
	"fmt"
	"strings"

	"dossier/api/internal/report"
)

// FallbackText stands in for a section without data.
const FallbackText = "Section not filled"

type field struct {
	label string
	value *string
}

type listField struct {
	label  string
	values []string
}

// sectionText returns one paragraph per populated field or entry of
// section id, in a fixed order.
func sectionText(doc *report.Document, id report.SectionID) []string {
	switch id {
	case report.SectionPersonal:
		p := doc.PersonalInformation
		return join(
			scalars(field{"Full Name", p.FullName}),
			lists(listField{"Aliases", p.Aliases}),
			scalars(
				field{"Date of Birth", p.DateOfBirth},
				field{"Place of Birth", p.PlaceOfBirth},
				field{"Nationality", p.Nationality},
				field{"Gender", p.Gender},
				field{"Marital Status", p.MaritalStatus},
			),
		)
	case report.SectionContact:
		c := doc.Contact
		return lists(
			listField{"Email Addresses", c.Emails},
			listField{"Phone Numbers", c.Phones},
			listField{"Addresses", c.Addresses},
		)
	case report.SectionEducation:
		var out []string
		for _, e := range doc.Education {
			if !e.HasData() {
				continue
			}
			out = append(out, entry(
				combine(" in ", e.Degree, e.Field),
				e.Institution,
				e.Years,
			))
		}
		return out
	case report.SectionLanguages:
		return lists(listField{"Languages", doc.Languages})
	case report.SectionEmployment:
		e := doc.Employment
		return join(
			scalars(field{"Current Employer", e.CurrentEmployer}, field{"Job Title", e.JobTitle}),
			lists(listField{"Previous Employers", e.PreviousEmployers}),
		)
	case report.SectionFinancial:
		f := doc.Financial
		return join(
			scalars(
				field{"Net Worth", f.NetWorth},
				field{"Annual Income", f.AnnualIncome},
				field{"Credit Rating", f.CreditRating},
			),
			lists(
				listField{"Bank Accounts", f.BankAccounts},
				listField{"Investments", f.Investments},
				listField{"Vehicles", f.Vehicles},
			),
		)
	case report.SectionBusiness:
		var out []string
		for _, b := range doc.BusinessInterests {
			if !b.HasData() {
				continue
			}
			out = append(out, entry(b.Name, labelled("Role", b.Role), labelled("Jurisdiction", b.Jurisdiction),
				labelled("Ownership", b.Ownership), labelled("Status", b.Status)))
		}
		return out
	case report.SectionProperties:
		var out []string
		for _, p := range doc.Properties {
			if !p.HasData() {
				continue
			}
			out = append(out, entry(p.Address, labelled("Type", p.Type),
				labelled("Estimated Value", p.EstimatedValue), labelled("Ownership", p.Ownership)))
		}
		return out
	case report.SectionLegal:
		l := doc.Legal
		return lists(
			listField{"Criminal Records", l.CriminalRecords},
			listField{"Civil Cases", l.CivilCases},
			listField{"Sanctions", l.Sanctions},
			listField{"Bankruptcies", l.Bankruptcies},
		)
	case report.SectionOnline:
		o := doc.OnlinePresence
		return lists(
			listField{"Websites", o.Websites},
			listField{"Domains", o.Domains},
			listField{"News Mentions", o.NewsMentions},
			listField{"Forums", o.Forums},
		)
	case report.SectionSocial:
		var out []string
		for _, s := range doc.SocialMedia {
			if !s.HasData() {
				continue
			}
			out = append(out, entry(combine(": ", s.Platform, s.Handle), s.URL,
				labelled("Followers", s.Followers), labelled("Last Active", s.LastActive)))
		}
		return out
	default:
		return nil
	}
}

// sourceText formats one bibliography entry.
func sourceText(n int, src report.BibliographySource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", n, src.Source)
	if src.URL != nil {
		b.WriteString(" <" + *src.URL + ">")
	}
	fmt.Fprintf(&b, " (%s, %s reliability", src.Type, src.Reliability)
	if !src.AccessDate.IsZero() {
		b.WriteString(", accessed " + src.AccessDate.UTC().Format("2006-01-02"))
	}
	b.WriteString(")")
	return b.String()
}

func scalars(fields ...field) []string {
	var out []string
	for _, f := range fields {
		if v := report.NormalizeScalar(f.value); v != nil {
			out = append(out, f.label+": "+*v)
		}
	}
	return out
}

// lists keeps each item of a multi-valued field in its own paragraph so
// that long lists can break across pages.
func lists(fields ...listField) []string {
	var out []string
	for _, f := range fields {
		values := report.NormalizeList(f.values)
		switch len(values) {
		case 0:
		case 1:
			out = append(out, f.label+": "+values[0])
		default:
			out = append(out, f.label+":")
			for _, v := range values {
				out = append(out, "- "+v)
			}
		}
	}
	return out
}

func join(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func labelled(label string, v *string) *string {
	if v = report.NormalizeScalar(v); v == nil {
		return nil
	}
	s := label + ": " + *v
	return &s
}

func combine(sep string, a, b *string) *string {
	a, b = report.NormalizeScalar(a), report.NormalizeScalar(b)
	switch {
	case a != nil && b != nil:
		s := *a + sep + *b
		return &s
	case a != nil:
		return a
	default:
		return b
	}
}

// entry joins the present parts of a list entry with commas.
func entry(parts ...*string) string {
	var present []string
	for _, p := range parts {
		if p = report.NormalizeScalar(p); p != nil {
			present = append(present, *p)
		}
	}
	return strings.Join(present, ", ")
}
