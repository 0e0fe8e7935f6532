package report

import "time"

// Clone returns a deep copy; no slice, map or pointer is shared with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.TargetEmail = cloneStr(d.TargetEmail)

	c.PersonalInformation = PersonalInformation{
		FullName:      cloneStr(d.PersonalInformation.FullName),
		Aliases:       cloneList(d.PersonalInformation.Aliases),
		DateOfBirth:   cloneStr(d.PersonalInformation.DateOfBirth),
		PlaceOfBirth:  cloneStr(d.PersonalInformation.PlaceOfBirth),
		Nationality:   cloneStr(d.PersonalInformation.Nationality),
		Gender:        cloneStr(d.PersonalInformation.Gender),
		MaritalStatus: cloneStr(d.PersonalInformation.MaritalStatus),
	}
	c.Contact = ContactInformation{
		Emails:    cloneList(d.Contact.Emails),
		Phones:    cloneList(d.Contact.Phones),
		Addresses: cloneList(d.Contact.Addresses),
	}
	c.Education = cloneEntries(d.Education, func(e EducationEntry) EducationEntry {
		return EducationEntry{cloneStr(e.Institution), cloneStr(e.Degree), cloneStr(e.Field), cloneStr(e.Years)}
	})
	c.Languages = cloneList(d.Languages)
	c.Employment = Employment{
		CurrentEmployer:   cloneStr(d.Employment.CurrentEmployer),
		JobTitle:          cloneStr(d.Employment.JobTitle),
		PreviousEmployers: cloneList(d.Employment.PreviousEmployers),
	}
	c.Financial = FinancialAssets{
		NetWorth:     cloneStr(d.Financial.NetWorth),
		AnnualIncome: cloneStr(d.Financial.AnnualIncome),
		CreditRating: cloneStr(d.Financial.CreditRating),
		BankAccounts: cloneList(d.Financial.BankAccounts),
		Investments:  cloneList(d.Financial.Investments),
		Vehicles:     cloneList(d.Financial.Vehicles),
	}
	c.BusinessInterests = cloneEntries(d.BusinessInterests, func(b BusinessInterest) BusinessInterest {
		return BusinessInterest{cloneStr(b.Name), cloneStr(b.Role), cloneStr(b.Jurisdiction), cloneStr(b.Ownership), cloneStr(b.Status)}
	})
	c.Properties = cloneEntries(d.Properties, func(p PropertyHolding) PropertyHolding {
		return PropertyHolding{cloneStr(p.Address), cloneStr(p.Type), cloneStr(p.EstimatedValue), cloneStr(p.Ownership)}
	})
	c.Legal = LegalRecord{
		CriminalRecords: cloneList(d.Legal.CriminalRecords),
		CivilCases:      cloneList(d.Legal.CivilCases),
		Sanctions:       cloneList(d.Legal.Sanctions),
		Bankruptcies:    cloneList(d.Legal.Bankruptcies),
	}
	c.OnlinePresence = OnlinePresence{
		Websites:     cloneList(d.OnlinePresence.Websites),
		Domains:      cloneList(d.OnlinePresence.Domains),
		NewsMentions: cloneList(d.OnlinePresence.NewsMentions),
		Forums:       cloneList(d.OnlinePresence.Forums),
	}
	c.SocialMedia = cloneEntries(d.SocialMedia, func(s SocialMediaProfile) SocialMediaProfile {
		return SocialMediaProfile{cloneStr(s.Platform), cloneStr(s.Handle), cloneStr(s.URL), cloneStr(s.Followers), cloneStr(s.LastActive)}
	})

	if d.Sections != nil {
		c.Sections = make(map[SectionID]SectionMeta, len(d.Sections))
		for id, meta := range d.Sections {
			meta.LastUpdated = cloneTime(meta.LastUpdated)
			meta.Bibliography = cloneEntries(meta.Bibliography, func(b BibliographySource) BibliographySource {
				b.URL = cloneStr(b.URL)
				return b
			})
			c.Sections[id] = meta
		}
	}
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneList(l []string) []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l))
	copy(out, l)
	return out
}

func cloneEntries[T any](entries []T, cp func(T) T) []T {
	if entries == nil {
		return nil
	}
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = cp(e)
	}
	return out
}
