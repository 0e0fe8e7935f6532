package report

import "fmt"

// SectionID names one topical section. The set is closed.
type SectionID string

const (
	SectionPersonal   SectionID = "personalInformation"
	SectionContact    SectionID = "contact"
	SectionEducation  SectionID = "education"
	SectionLanguages  SectionID = "languages"
	SectionEmployment SectionID = "employment"
	SectionFinancial  SectionID = "financial"
	SectionBusiness   SectionID = "businessInterests"
	SectionProperties SectionID = "properties"
	SectionLegal      SectionID = "legal"
	SectionOnline     SectionID = "onlinePresence"
	SectionSocial     SectionID = "socialMedia"
)

// AgentsTotal is the number of collection agents, one per section.
const AgentsTotal = 11

var canonicalOrder = [AgentsTotal]SectionID{
	SectionPersonal,
	SectionContact,
	SectionEducation,
	SectionLanguages,
	SectionEmployment,
	SectionFinancial,
	SectionBusiness,
	SectionProperties,
	SectionLegal,
	SectionOnline,
	SectionSocial,
}

var sectionTitles = map[SectionID]string{
	SectionPersonal:   "Personal Information",
	SectionContact:    "Contact Information",
	SectionEducation:  "Education",
	SectionLanguages:  "Languages",
	SectionEmployment: "Employment",
	SectionFinancial:  "Financial Assets",
	SectionBusiness:   "Business Interests",
	SectionProperties: "Property Holdings",
	SectionLegal:      "Legal Records",
	SectionOnline:     "Online Presence",
	SectionSocial:     "Social Media",
}

// Sections returns the section ids in canonical render order.
func Sections() []SectionID {
	out := make([]SectionID, len(canonicalOrder))
	copy(out, canonicalOrder[:])
	return out
}

// ParseSectionID validates a raw section id.
func ParseSectionID(raw string) (SectionID, error) {
	id := SectionID(raw)
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, raw)
	}
	return id, nil
}

func (id SectionID) Valid() bool {
	_, ok := sectionTitles[id]
	return ok
}

func (id SectionID) Title() string {
	return sectionTitles[id]
}

// IsList reports whether the section's block is a list that a refresh
// replaces wholesale.
func (id SectionID) IsList() bool {
	switch id {
	case SectionEducation, SectionLanguages, SectionBusiness, SectionProperties, SectionSocial:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a section may move from one agent status to
// another. Completed and error are terminal until a refresh restarts them.
func CanTransition(from, to AgentStatus) bool {
	switch to {
	case AgentRunning:
		return from == AgentIdle || from == AgentCompleted || from == AgentError || from == ""
	case AgentCompleted, AgentError:
		return from == AgentRunning
	default:
		return false
	}
}
