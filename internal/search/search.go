package search

import (
	"strings"

	"dossier/api/internal/report"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	CaseNumber string `json:"caseNumber"`
	TargetName string `json:"targetName"`
	Status     string `json:"status"`
	Snippet    string `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text   string
	Status report.Status // empty = any status
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ReportRecord is the data we index for a report.
type ReportRecord struct {
	ID             string   `json:"id"`
	CaseNumber     string   `json:"caseNumber"`
	TargetName     string   `json:"targetName"`
	Aliases        []string `json:"aliases"`
	Status         string   `json:"status"`
	Classification string   `json:"classification"`
	Sections       []string `json:"sections"`
	Body           string   `json:"body"`
	UpdatedAt      int64    `json:"updatedAt"`
}

// ToRecord projects doc onto the indexed record. Body concatenates the
// identifying values a reviewer is likely to search for.
func ToRecord(doc *report.Document) ReportRecord {
	rec := ReportRecord{
		ID:             doc.ID,
		CaseNumber:     doc.CaseNumber,
		TargetName:     doc.TargetName,
		Aliases:        append([]string{}, doc.PersonalInformation.Aliases...),
		Status:         string(doc.Status),
		Classification: doc.Classification,
		Sections:       []string{},
		UpdatedAt:      doc.UpdatedAt.Unix(),
	}
	for _, id := range report.Sections() {
		if doc.Sections[id].HasData {
			rec.Sections = append(rec.Sections, string(id))
		}
	}

	var body []string
	add := func(values ...*string) {
		for _, v := range values {
			if v != nil {
				body = append(body, *v)
			}
		}
	}
	add(doc.PersonalInformation.FullName, doc.PersonalInformation.Nationality, doc.TargetEmail)
	add(doc.Employment.CurrentEmployer, doc.Employment.JobTitle)
	body = append(body, doc.Contact.Emails...)
	body = append(body, doc.Employment.PreviousEmployers...)
	for _, b := range doc.BusinessInterests {
		add(b.Name)
	}
	for _, s := range doc.SocialMedia {
		add(s.Handle)
	}
	body = append(body, doc.OnlinePresence.Domains...)
	rec.Body = strings.Join(body, " ")
	return rec
}
