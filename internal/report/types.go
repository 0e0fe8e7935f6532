// Package report holds the canonical intelligence report document: one
// investigation target, its topical data blocks and the per-section
// lifecycle metadata that travels with them.
//
// Property tests here and in ingest and render are built only with
// -tags property (make test-property).
package report

import (
	"errors"
	"time"
)

// Status is the document-level lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// AgentStatus is the collection state of a single section.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentError     AgentStatus = "error"
)

// SourceType classifies a bibliography entry.
type SourceType string

const (
	SourceURL      SourceType = "url"
	SourceDocument SourceType = "document"
	SourceDatabase SourceType = "database"
)

// Reliability grades a bibliography entry.
type Reliability string

const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// DefaultClassification is stamped on documents that do not carry one.
const DefaultClassification = "CONFIDENTIAL"

var (
	// ErrUnknownSection indicates a section id outside the closed section set.
	ErrUnknownSection = errors.New("unknown report section")
	// ErrInvalidPatch indicates a partial update that does not fit the target block.
	ErrInvalidPatch = errors.New("invalid section patch")
	// ErrInvalidTransition indicates an agent status change the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid agent status transition")
)

// BibliographySource backs a section's content. SectionID attributes the
// entry to the section whose collection round produced it.
type BibliographySource struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	URL         *string     `json:"url,omitempty"`
	Type        SourceType  `json:"type"`
	AccessDate  time.Time   `json:"accessDate"`
	Reliability Reliability `json:"reliability"`
	SectionID   SectionID   `json:"sectionId"`
}

// SectionMeta is the lifecycle metadata of one section. HasData is derived
// from the section's block by Recompute and must not be set by callers.
type SectionMeta struct {
	ID           SectionID            `json:"id"`
	Title        string               `json:"title"`
	HasData      bool                 `json:"hasData"`
	LastUpdated  *time.Time           `json:"lastUpdated,omitempty"`
	AgentStatus  AgentStatus          `json:"agentStatus"`
	Bibliography []BibliographySource `json:"bibliography"`
}

type PersonalInformation struct {
	FullName      *string  `json:"fullName,omitempty"`
	Aliases       []string `json:"aliases"`
	DateOfBirth   *string  `json:"dob,omitempty"`
	PlaceOfBirth  *string  `json:"placeOfBirth,omitempty"`
	Nationality   *string  `json:"nationality,omitempty"`
	Gender        *string  `json:"gender,omitempty"`
	MaritalStatus *string  `json:"maritalStatus,omitempty"`
}

type ContactInformation struct {
	Emails    []string `json:"emails"`
	Phones    []string `json:"phones"`
	Addresses []string `json:"addresses"`
}

type EducationEntry struct {
	Institution *string `json:"institution,omitempty"`
	Degree      *string `json:"degree,omitempty"`
	Field       *string `json:"field,omitempty"`
	Years       *string `json:"years,omitempty"`
}

type Employment struct {
	CurrentEmployer   *string  `json:"currentEmployer,omitempty"`
	JobTitle          *string  `json:"jobTitle,omitempty"`
	PreviousEmployers []string `json:"previousEmployers"`
}

type FinancialAssets struct {
	NetWorth     *string  `json:"netWorth,omitempty"`
	AnnualIncome *string  `json:"annualIncome,omitempty"`
	CreditRating *string  `json:"creditRating,omitempty"`
	BankAccounts []string `json:"bankAccounts"`
	Investments  []string `json:"investments"`
	Vehicles     []string `json:"vehicles"`
}

type BusinessInterest struct {
	Name         *string `json:"name,omitempty"`
	Role         *string `json:"role,omitempty"`
	Jurisdiction *string `json:"jurisdiction,omitempty"`
	Ownership    *string `json:"ownership,omitempty"`
	Status       *string `json:"status,omitempty"`
}

type PropertyHolding struct {
	Address        *string `json:"address,omitempty"`
	Type           *string `json:"type,omitempty"`
	EstimatedValue *string `json:"estimatedValue,omitempty"`
	Ownership      *string `json:"ownership,omitempty"`
}

type LegalRecord struct {
	CriminalRecords []string `json:"criminalRecords"`
	CivilCases      []string `json:"civilCases"`
	Sanctions       []string `json:"sanctions"`
	Bankruptcies    []string `json:"bankruptcies"`
}

type OnlinePresence struct {
	Websites     []string `json:"websites"`
	Domains      []string `json:"domains"`
	NewsMentions []string `json:"newsMentions"`
	Forums       []string `json:"forums"`
}

type SocialMediaProfile struct {
	Platform   *string `json:"platform,omitempty"`
	Handle     *string `json:"handle,omitempty"`
	URL        *string `json:"url,omitempty"`
	Followers  *string `json:"followers,omitempty"`
	LastActive *string `json:"lastActive,omitempty"`
}

// Document is the canonical report. AgentsCompleted, OverallProgress and the
// HasData flags are derived; Revision counts successful saves and is
// informational only.
type Document struct {
	ID              string    `json:"id"`
	CaseNumber      string    `json:"caseNumber"`
	Classification  string    `json:"classification"`
	TargetName      string    `json:"targetName"`
	TargetEmail     *string   `json:"targetEmail,omitempty"`
	Status          Status    `json:"status"`
	OverallProgress int       `json:"overallProgress"`
	AgentsCompleted int       `json:"agentsCompleted"`
	AgentsTotal     int       `json:"agentsTotal"`
	Revision        int64     `json:"revision"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	PersonalInformation PersonalInformation  `json:"personalInformation"`
	Contact             ContactInformation   `json:"contact"`
	Education           []EducationEntry     `json:"education"`
	Languages           []string             `json:"languages"`
	Employment          Employment           `json:"employment"`
	Financial           FinancialAssets      `json:"financial"`
	BusinessInterests   []BusinessInterest   `json:"businessInterests"`
	Properties          []PropertyHolding    `json:"properties"`
	Legal               LegalRecord          `json:"legal"`
	OnlinePresence      OnlinePresence       `json:"onlinePresence"`
	SocialMedia         []SocialMediaProfile `json:"socialMedia"`

	Sections map[SectionID]SectionMeta `json:"sections"`
}

// New builds an empty draft document with every section idle.
func New(id, caseNumber, targetName string, targetEmail *string, now time.Time) *Document {
	doc := &Document{
		ID:             id,
		CaseNumber:     caseNumber,
		Classification: DefaultClassification,
		TargetName:     targetName,
		TargetEmail:    NormalizeScalar(targetEmail),
		Status:         StatusDraft,
		AgentsTotal:    AgentsTotal,
		CreatedAt:      now,
		UpdatedAt:      now,
		Sections:       make(map[SectionID]SectionMeta, AgentsTotal),
	}
	doc.Normalize()
	return doc
}

// Section returns the metadata for id, filling in identity fields for
// sections that have never been touched.
func (d *Document) Section(id SectionID) SectionMeta {
	meta, ok := d.Sections[id]
	if !ok {
		meta = SectionMeta{AgentStatus: AgentIdle}
	}
	meta.ID = id
	meta.Title = id.Title()
	if meta.Bibliography == nil {
		meta.Bibliography = []BibliographySource{}
	}
	return meta
}

// Recompute derives HasData for every section and the progress counters.
func (d *Document) Recompute() {
	if d.Sections == nil {
		d.Sections = make(map[SectionID]SectionMeta, AgentsTotal)
	}
	d.AgentsTotal = AgentsTotal
	completed := 0
	for _, id := range Sections() {
		meta := d.Section(id)
		meta.HasData = d.SectionHasData(id)
		if meta.AgentStatus == "" {
			meta.AgentStatus = AgentIdle
		}
		if meta.AgentStatus == AgentCompleted {
			completed++
		}
		d.Sections[id] = meta
	}
	d.AgentsCompleted = min(completed, d.AgentsTotal)
	d.OverallProgress = d.AgentsCompleted * 100 / d.AgentsTotal
}

// Normalize rewrites every block into canonical form and recomputes the
// derived fields.
func (d *Document) Normalize() {
	if d.Classification == "" {
		d.Classification = DefaultClassification
	}
	d.TargetEmail = NormalizeScalar(d.TargetEmail)
	for _, id := range Sections() {
		d.normalizeSection(id)
	}
	d.Recompute()
}
