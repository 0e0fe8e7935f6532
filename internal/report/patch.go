package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Patch is a partial section update keyed by the block's JSON field names.
// List sections take their replacement list under EntriesKey.
type Patch map[string]any

// EntriesKey carries the replacement list for list sections.
const EntriesKey = "entries"

// ApplySectionUpdate merges patch into section id of a copy of doc and
// returns the copy. doc is never mutated. List sections are replaced
// wholesale because a refresh supersedes the prior list.
func ApplySectionUpdate(doc *Document, id SectionID, patch Patch, now time.Time) (*Document, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, id)
	}
	next := doc.Clone()
	if err := next.merge(id, patch); err != nil {
		return nil, err
	}
	next.normalizeSection(id)
	next.touch(id, now)
	return next, nil
}

// AppendBibliography attributes sources to section id and appends them to a
// copy of doc. Existing entries are never rewritten.
func AppendBibliography(doc *Document, id SectionID, sources []BibliographySource, now time.Time) (*Document, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, id)
	}
	next := doc.Clone()
	meta := next.Section(id)
	for _, src := range sources {
		src.SectionID = id
		src.URL = NormalizeScalar(src.URL)
		if src.ID == "" {
			src.ID = fmt.Sprintf("%s-%d", id, len(meta.Bibliography)+1)
		}
		if src.AccessDate.IsZero() {
			src.AccessDate = now
		}
		if src.Type == "" {
			src.Type = SourceURL
		}
		if src.Reliability == "" {
			src.Reliability = ReliabilityMedium
		}
		meta.Bibliography = append(meta.Bibliography, src)
	}
	if next.Sections == nil {
		next.Sections = make(map[SectionID]SectionMeta, AgentsTotal)
	}
	next.Sections[id] = meta
	next.Recompute()
	return next, nil
}

// SetAgentStatus moves section id to status on a copy of doc.
func SetAgentStatus(doc *Document, id SectionID, status AgentStatus, now time.Time) (*Document, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, id)
	}
	current := doc.Section(id).AgentStatus
	if !CanTransition(current, status) {
		return nil, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, current, status)
	}
	next := doc.Clone()
	if next.Sections == nil {
		next.Sections = make(map[SectionID]SectionMeta, AgentsTotal)
	}
	meta := next.Section(id)
	meta.AgentStatus = status
	next.Sections[id] = meta
	if status == AgentRunning && next.Status == StatusDraft {
		next.Status = StatusInProgress
	}
	next.UpdatedAt = now
	next.Recompute()
	return next, nil
}

func (d *Document) touch(id SectionID, now time.Time) {
	if d.Sections == nil {
		d.Sections = make(map[SectionID]SectionMeta, AgentsTotal)
	}
	meta := d.Section(id)
	stamp := now
	meta.LastUpdated = &stamp
	d.Sections[id] = meta
	d.UpdatedAt = now
	d.Recompute()
}

func (d *Document) merge(id SectionID, patch Patch) error {
	target := d.block(id)
	if id.IsList() {
		raw, ok := patch[EntriesKey]
		if !ok || len(patch) != 1 {
			return fmt.Errorf("%w: %s expects only %q", ErrInvalidPatch, id, EntriesKey)
		}
		return decodeInto(scalarize(raw), target)
	}

	current, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	merged := map[string]any{}
	if err := json.Unmarshal(current, &merged); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	for key, value := range patch {
		merged[key] = scalarize(value)
	}
	return decodeInto(merged, target)
}

// decodeInto replaces *target with raw decoded into a fresh value of the
// same type. Unknown fields are rejected.
func decodeInto(raw any, target any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	fresh := reflect.New(reflect.TypeOf(target).Elem())
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(fresh.Interface()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	reflect.ValueOf(target).Elem().Set(fresh.Elem())
	return nil
}

// scalarize turns numbers and booleans into strings so they fit the
// string-typed canonical fields.
func scalarize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = scalarize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = scalarize(item)
		}
		return out
	case json.Number, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		if s := NormalizeScalar(t); s != nil {
			return *s
		}
		return nil
	default:
		return v
	}
}
