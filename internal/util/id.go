package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random report id, optionally prefixed.
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewCaseNumber returns a human-readable case number such as
// IR-20260314-1A2B3C4D for a report opened at now.
func NewCaseNumber(now time.Time) string {
	u := uuid.New()
	return fmt.Sprintf("IR-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:8]))
}
