// Package ingest maps one external intelligence-summary payload into a
// populated report document. Every sub-record is extracted independently;
// a malformed one degrades to its block's empty default.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"dossier/api/internal/report"
)

// UnknownSubject is the target name used when the payload carries no name.
const UnknownSubject = "Unknown Subject"

// binding ties one payload key to the section its rule populates.
type binding struct {
	key     string
	section report.SectionID
	apply   func(doc *report.Document, raw any) bool
}

func bind[T any](key string, section report.SectionID, rule ExtractionRule[T], set func(*report.Document, T)) binding {
	return binding{
		key:     key,
		section: section,
		apply: func(doc *report.Document, raw any) bool {
			v, ok := rule(raw)
			if !ok {
				return false
			}
			set(doc, v)
			return true
		},
	}
}

// bindings run in order. personal_info also feeds contact and employment,
// and the dedicated keys that follow only fill what it left empty.
var bindings = []binding{
	bind("personal_info", report.SectionPersonal, extractPersonal, func(d *report.Document, v report.PersonalInformation) {
		d.PersonalInformation = v
	}),
	bind("personal_info", report.SectionContact, extractContact, mergeContact),
	bind("contact", report.SectionContact, extractContact, mergeContact),
	bind("personal_info", report.SectionEmployment, extractEmployment, mergeEmployment),
	bind("employment", report.SectionEmployment, extractEmployment, mergeEmployment),
	bind("education", report.SectionEducation, extractEducation, func(d *report.Document, v []report.EducationEntry) {
		d.Education = v
	}),
	bind("languages", report.SectionLanguages, extractLanguages, func(d *report.Document, v []string) {
		d.Languages = v
	}),
	bind("financial", report.SectionFinancial, extractFinancial, func(d *report.Document, v report.FinancialAssets) {
		d.Financial = v
	}),
	bind("business_interests", report.SectionBusiness, extractBusiness, func(d *report.Document, v []report.BusinessInterest) {
		d.BusinessInterests = v
	}),
	bind("properties", report.SectionProperties, extractProperties, func(d *report.Document, v []report.PropertyHolding) {
		d.Properties = v
	}),
	bind("legal", report.SectionLegal, extractLegal, func(d *report.Document, v report.LegalRecord) {
		d.Legal = v
	}),
	bind("online_presence", report.SectionOnline, extractOnline, func(d *report.Document, v report.OnlinePresence) {
		d.OnlinePresence = v
	}),
	bind("social_media", report.SectionSocial, extractSocial, func(d *report.Document, v []report.SocialMediaProfile) {
		d.SocialMedia = v
	}),
}

func mergeContact(d *report.Document, v report.ContactInformation) {
	d.Contact.Emails = report.NormalizeList(append(d.Contact.Emails, v.Emails...))
	d.Contact.Phones = report.NormalizeList(append(d.Contact.Phones, v.Phones...))
	d.Contact.Addresses = report.NormalizeList(append(d.Contact.Addresses, v.Addresses...))
}

func mergeEmployment(d *report.Document, v report.Employment) {
	if d.Employment.CurrentEmployer == nil {
		d.Employment.CurrentEmployer = v.CurrentEmployer
	}
	if d.Employment.JobTitle == nil {
		d.Employment.JobTitle = v.JobTitle
	}
	d.Employment.PreviousEmployers = report.NormalizeList(append(d.Employment.PreviousEmployers, v.PreviousEmployers...))
}

type Option func(*Transformer)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) {
		t.now = now
	}
}

type Transformer struct {
	log     logrus.FieldLogger
	now     func() time.Time
	schemas map[string]*jsonschema.Schema
}

func NewTransformer(log logrus.FieldLogger, opts ...Option) (*Transformer, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(nopWriter{})
		log = discard
	}
	t := &Transformer{log: log, now: time.Now, schemas: schemas}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

// TransformJSON decodes body and transforms it. A body that is not a JSON
// object yields an empty completed document.
func (t *Transformer) TransformJSON(body []byte, reportID string) *report.Document {
	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.log.WithFields(logrus.Fields{"report_id": reportID}).WithError(err).Warn("ingest: payload is not a JSON object")
		payload = map[string]any{}
	}
	return t.Transform(payload, reportID)
}

// Transform builds a completed document from payload. It never fails: any
// sub-record that is missing, malformed or panics its rule leaves the
// matching block empty.
func (t *Transformer) Transform(payload map[string]any, reportID string) *report.Document {
	now := t.now().UTC()
	log := t.log.WithFields(logrus.Fields{"report_id": reportID})
	payload = t.canonical(payload, log)

	doc := report.New(reportID, caseNumber(payload, reportID), "", nil, now)
	for _, b := range bindings {
		raw, ok := payload[b.key]
		if !ok || raw == nil {
			continue
		}
		if !t.valid(b.key, raw, log) {
			continue
		}
		if !t.run(b, doc, raw, log) {
			continue
		}
		meta := doc.Section(b.section)
		meta.AgentStatus = report.AgentCompleted
		stamp := now
		meta.LastUpdated = &stamp
		doc.Sections[b.section] = meta
		doc.Recompute()
	}

	if raw, ok := payload["sources"]; ok && t.valid("sources", raw, log) {
		if sources, ok := extractSources(raw); ok {
			for _, id := range report.Sections() {
				var own []report.BibliographySource
				for _, src := range sources {
					if src.SectionID == id {
						own = append(own, src)
					}
				}
				if len(own) == 0 {
					continue
				}
				if next, err := report.AppendBibliography(doc, id, own, now); err == nil {
					doc = next
				}
			}
		}
	}

	doc.TargetName = t.targetName(payload, doc, log)
	doc.TargetEmail = report.NormalizeScalar(payload["target_email"])
	if doc.TargetEmail == nil && len(doc.Contact.Emails) > 0 {
		doc.TargetEmail = report.String(doc.Contact.Emails[0])
	}
	if c := report.NormalizeScalar(payload["classification"]); c != nil {
		doc.Classification = strings.ToUpper(*c)
	}
	doc.Status = report.StatusCompleted
	doc.Normalize()

	log.WithFields(logrus.Fields{
		"agents_completed": doc.AgentsCompleted,
		"agents_total":     doc.AgentsTotal,
	}).Info("ingest: report transformed")
	return doc
}

// canonical re-decodes payload through JSON so every value has the shape
// encoding/json produces. Keys whose values cannot be encoded are dropped.
func (t *Transformer) canonical(payload map[string]any, log logrus.FieldLogger) map[string]any {
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		data, err := json.Marshal(value)
		if err != nil {
			log.WithFields(logrus.Fields{"shape": key}).WithError(err).Warn("ingest: dropping unencodable value")
			continue
		}
		var decoded any
		if err := json.Unmarshal(data, &decoded); err != nil {
			continue
		}
		out[key] = decoded
	}
	return out
}

func (t *Transformer) valid(key string, raw any, log logrus.FieldLogger) bool {
	schema, ok := t.schemas[key]
	if !ok {
		return true
	}
	if err := schema.Validate(raw); err != nil {
		log.WithFields(logrus.Fields{"shape": key}).WithError(err).Warn("ingest: malformed sub-record treated as absent")
		return false
	}
	return true
}

// run applies b on a scratch copy so a rule that panics halfway leaves doc
// untouched.
func (t *Transformer) run(b binding, doc *report.Document, raw any, log logrus.FieldLogger) (populated bool) {
	scratch := doc.Clone()
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{"shape": b.key, "section": b.section}).
				WithError(fmt.Errorf("panic: %v", r)).Error("ingest: extraction rule failed")
			populated = false
		}
	}()
	if !b.apply(scratch, raw) {
		return false
	}
	*doc = *scratch
	return doc.SectionHasData(b.section)
}

func (t *Transformer) targetName(payload map[string]any, doc *report.Document, log logrus.FieldLogger) string {
	if name := report.NormalizeScalar(payload["target_name"]); name != nil {
		return *name
	}
	if aliases := doc.PersonalInformation.Aliases; len(aliases) > 0 {
		return aliases[0]
	}
	if doc.PersonalInformation.FullName != nil {
		return *doc.PersonalInformation.FullName
	}
	if raw, ok := payload["basic_info"]; ok && t.valid("basic_info", raw, log) {
		if name, ok := basicInfoName(raw); ok {
			return name
		}
	}
	return UnknownSubject
}

func caseNumber(payload map[string]any, reportID string) string {
	if c := report.NormalizeScalar(payload["case_number"]); c != nil {
		return *c
	}
	return "IR-" + strings.ToUpper(reportID)
}
