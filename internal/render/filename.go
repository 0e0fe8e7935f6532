package render

import (
	"strings"
)

// Filename derives the export file name for a report. Every character of
// the target name outside [A-Za-z0-9] becomes an underscore.
func Filename(targetName, caseNumber, ext string) string {
	name := sanitize(strings.TrimSpace(targetName), false)
	if name == "" {
		name = "Unknown_Subject"
	}
	caseNumber = sanitize(strings.TrimSpace(caseNumber), true)
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "pdf"
	}
	return "Intelligence_Report_" + name + "_" + caseNumber + "." + ext
}

// sanitize replaces every rune that is not an ASCII letter or digit. Case
// numbers keep their hyphens.
func sanitize(s string, keepHyphen bool) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case keepHyphen && r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
