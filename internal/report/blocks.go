package report

func (p PersonalInformation) HasData() bool {
	return anyPresent(p.FullName, p.DateOfBirth, p.PlaceOfBirth, p.Nationality, p.Gender, p.MaritalStatus) ||
		presentList(p.Aliases)
}

func (c ContactInformation) HasData() bool {
	return anyPresentList(c.Emails, c.Phones, c.Addresses)
}

func (e EducationEntry) HasData() bool {
	return anyPresent(e.Institution, e.Degree, e.Field, e.Years)
}

func (e Employment) HasData() bool {
	return anyPresent(e.CurrentEmployer, e.JobTitle) || presentList(e.PreviousEmployers)
}

func (f FinancialAssets) HasData() bool {
	return anyPresent(f.NetWorth, f.AnnualIncome, f.CreditRating) ||
		anyPresentList(f.BankAccounts, f.Investments, f.Vehicles)
}

func (b BusinessInterest) HasData() bool {
	return anyPresent(b.Name, b.Role, b.Jurisdiction, b.Ownership, b.Status)
}

func (p PropertyHolding) HasData() bool {
	return anyPresent(p.Address, p.Type, p.EstimatedValue, p.Ownership)
}

func (l LegalRecord) HasData() bool {
	return anyPresentList(l.CriminalRecords, l.CivilCases, l.Sanctions, l.Bankruptcies)
}

func (o OnlinePresence) HasData() bool {
	return anyPresentList(o.Websites, o.Domains, o.NewsMentions, o.Forums)
}

func (s SocialMediaProfile) HasData() bool {
	return anyPresent(s.Handle, s.URL, s.Followers, s.LastActive)
}

type hasDataer interface{ HasData() bool }

func anyEntry[T hasDataer](entries []T) bool {
	for _, e := range entries {
		if e.HasData() {
			return true
		}
	}
	return false
}

// SectionHasData reports whether the block behind id holds any value.
func (d *Document) SectionHasData(id SectionID) bool {
	switch id {
	case SectionPersonal:
		return d.PersonalInformation.HasData()
	case SectionContact:
		return d.Contact.HasData()
	case SectionEducation:
		return anyEntry(d.Education)
	case SectionLanguages:
		return presentList(d.Languages)
	case SectionEmployment:
		return d.Employment.HasData()
	case SectionFinancial:
		return d.Financial.HasData()
	case SectionBusiness:
		return anyEntry(d.BusinessInterests)
	case SectionProperties:
		return anyEntry(d.Properties)
	case SectionLegal:
		return d.Legal.HasData()
	case SectionOnline:
		return d.OnlinePresence.HasData()
	case SectionSocial:
		return anyEntry(d.SocialMedia)
	default:
		return false
	}
}

// block returns a pointer to the field backing id.
func (d *Document) block(id SectionID) any {
	switch id {
	case SectionPersonal:
		return &d.PersonalInformation
	case SectionContact:
		return &d.Contact
	case SectionEducation:
		return &d.Education
	case SectionLanguages:
		return &d.Languages
	case SectionEmployment:
		return &d.Employment
	case SectionFinancial:
		return &d.Financial
	case SectionBusiness:
		return &d.BusinessInterests
	case SectionProperties:
		return &d.Properties
	case SectionLegal:
		return &d.Legal
	case SectionOnline:
		return &d.OnlinePresence
	case SectionSocial:
		return &d.SocialMedia
	default:
		return nil
	}
}

func (d *Document) normalizeSection(id SectionID) {
	switch id {
	case SectionPersonal:
		p := &d.PersonalInformation
		p.FullName = NormalizeScalar(p.FullName)
		p.Aliases = NormalizeList(p.Aliases)
		p.DateOfBirth = NormalizeScalar(p.DateOfBirth)
		p.PlaceOfBirth = NormalizeScalar(p.PlaceOfBirth)
		p.Nationality = NormalizeScalar(p.Nationality)
		p.Gender = NormalizeScalar(p.Gender)
		p.MaritalStatus = NormalizeScalar(p.MaritalStatus)
	case SectionContact:
		c := &d.Contact
		c.Emails = NormalizeList(c.Emails)
		c.Phones = NormalizeList(c.Phones)
		c.Addresses = NormalizeList(c.Addresses)
	case SectionEducation:
		d.Education = keepEntries(d.Education, func(e EducationEntry) EducationEntry {
			return EducationEntry{
				Institution: NormalizeScalar(e.Institution),
				Degree:      NormalizeScalar(e.Degree),
				Field:       NormalizeScalar(e.Field),
				Years:       NormalizeScalar(e.Years),
			}
		})
	case SectionLanguages:
		d.Languages = NormalizeList(d.Languages)
	case SectionEmployment:
		e := &d.Employment
		e.CurrentEmployer = NormalizeScalar(e.CurrentEmployer)
		e.JobTitle = NormalizeScalar(e.JobTitle)
		e.PreviousEmployers = NormalizeList(e.PreviousEmployers)
	case SectionFinancial:
		f := &d.Financial
		f.NetWorth = NormalizeScalar(f.NetWorth)
		f.AnnualIncome = NormalizeScalar(f.AnnualIncome)
		f.CreditRating = NormalizeScalar(f.CreditRating)
		f.BankAccounts = NormalizeList(f.BankAccounts)
		f.Investments = NormalizeList(f.Investments)
		f.Vehicles = NormalizeList(f.Vehicles)
	case SectionBusiness:
		d.BusinessInterests = keepEntries(d.BusinessInterests, func(b BusinessInterest) BusinessInterest {
			return BusinessInterest{
				Name:         NormalizeScalar(b.Name),
				Role:         NormalizeScalar(b.Role),
				Jurisdiction: NormalizeScalar(b.Jurisdiction),
				Ownership:    NormalizeScalar(b.Ownership),
				Status:       NormalizeScalar(b.Status),
			}
		})
	case SectionProperties:
		d.Properties = keepEntries(d.Properties, func(p PropertyHolding) PropertyHolding {
			return PropertyHolding{
				Address:        NormalizeScalar(p.Address),
				Type:           NormalizeScalar(p.Type),
				EstimatedValue: NormalizeScalar(p.EstimatedValue),
				Ownership:      NormalizeScalar(p.Ownership),
			}
		})
	case SectionLegal:
		l := &d.Legal
		l.CriminalRecords = NormalizeList(l.CriminalRecords)
		l.CivilCases = NormalizeList(l.CivilCases)
		l.Sanctions = NormalizeList(l.Sanctions)
		l.Bankruptcies = NormalizeList(l.Bankruptcies)
	case SectionOnline:
		o := &d.OnlinePresence
		o.Websites = NormalizeList(o.Websites)
		o.Domains = NormalizeList(o.Domains)
		o.NewsMentions = NormalizeList(o.NewsMentions)
		o.Forums = NormalizeList(o.Forums)
	case SectionSocial:
		d.SocialMedia = keepEntries(d.SocialMedia, func(s SocialMediaProfile) SocialMediaProfile {
			return SocialMediaProfile{
				Platform:   NormalizeScalar(s.Platform),
				Handle:     NormalizeScalar(s.Handle),
				URL:        NormalizeScalar(s.URL),
				Followers:  NormalizeScalar(s.Followers),
				LastActive: NormalizeScalar(s.LastActive),
			}
		})
	}
}

// keepEntries normalizes every entry and drops the ones left empty.
func keepEntries[T hasDataer](entries []T, normalize func(T) T) []T {
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		n := normalize(e)
		if n.HasData() {
			out = append(out, n)
		}
	}
	return out
}
