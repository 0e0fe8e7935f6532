package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// unknownSentinels are upstream spellings of "no value".
var unknownSentinels = map[string]struct{}{
	"unknown":       {},
	"n/a":           {},
	"na":            {},
	"none":          {},
	"null":          {},
	"nil":           {},
	"-":             {},
	"--":            {},
	"not available": {},
	"not found":     {},
}

// NormalizeScalar converts raw extraction output into a canonical optional
// string. Empty strings and unknown sentinels become nil; maps and slices are
// not scalars and also become nil.
func NormalizeScalar(raw any) *string {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		s = v
	case *string:
		if v == nil {
			return nil
		}
		s = *v
	case json.Number:
		s = v.String()
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		s = fmt.Sprint(v)
	case bool:
		s = strconv.FormatBool(v)
	case fmt.Stringer:
		s = v.String()
	default:
		return nil
	}
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	if _, ok := unknownSentinels[strings.ToLower(s)]; ok {
		return nil
	}
	return &s
}

// NormalizeList converts raw extraction output into a canonical list: order
// preserved, empties dropped, duplicates removed case-insensitively (the first
// spelling wins). The result is never nil.
func NormalizeList(raw any) []string {
	out := []string{}
	seen := make(map[string]struct{})
	fold := cases.Fold()
	add := func(v any) {
		s := NormalizeScalar(v)
		if s == nil {
			return
		}
		key := fold.String(*s)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, *s)
	}

	switch v := raw.(type) {
	case nil:
	case []string:
		for _, item := range v {
			add(item)
		}
	case []any:
		for _, item := range v {
			add(item)
		}
	default:
		add(v)
	}
	return out
}

// Display formats an optional value for presentation without touching the
// canonical value.
func Display(v *string) string {
	if v == nil {
		return "Unknown"
	}
	return *v
}

// String returns a normalized pointer to s, for literals in callers and tests.
func String(s string) *string {
	return NormalizeScalar(s)
}

func present(v *string) bool {
	return NormalizeScalar(v) != nil
}

func presentList(v []string) bool {
	return len(NormalizeList(v)) > 0
}

func anyPresent(values ...*string) bool {
	for _, v := range values {
		if present(v) {
			return true
		}
	}
	return false
}

func anyPresentList(lists ...[]string) bool {
	for _, l := range lists {
		if presentList(l) {
			return true
		}
	}
	return false
}
