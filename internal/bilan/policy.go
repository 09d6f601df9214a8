// Package bilan decides which patients are overdue for their mandatory
// periodic assessment ("bilan") and reconciles appointment and notification
// state accordingly.
package bilan

import (
	"strings"
	"time"
)

// DefaultMaxDays is the number of days after which a patient is due for a
// new bilan when no policy override is configured.
const DefaultMaxDays = 60

// IsDue reports whether a patient needs a bilan. A patient with no recorded
// bilan is always due. The boundary is inclusive: exactly maxDays since the
// last bilan counts as due.
func IsDue(lastBilan *time.Time, today time.Time, maxDays int) bool {
	if lastBilan == nil {
		return true
	}
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	return daysBetween(*lastBilan, today) >= maxDays
}

// DaysOverdue returns how many days have passed since the last bilan, or -1
// when the patient has never had one.
func DaysOverdue(lastBilan *time.Time, today time.Time) int {
	if lastBilan == nil {
		return -1
	}
	return daysBetween(*lastBilan, today)
}

// daysBetween counts whole calendar days from a to b, ignoring clock time.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}

// DefaultKeywords returns the free-text markers that classify an appointment
// reason as a bilan. The match is a heuristic, not exact parsing; false
// positives and negatives are expected and acceptable.
func DefaultKeywords() []string {
	return []string{"bilan", "diagnostic", "première séance", "première consultation", "initial"}
}

// Classifier decides whether an appointment's free-text reason marks it as a
// bilan. The keyword list is policy and tunable through configuration.
type Classifier struct {
	keywords []string
}

// NewClassifier builds a classifier from the given keywords, falling back to
// the defaults when none are supplied. Keywords are matched case-insensitively.
func NewClassifier(keywords []string) *Classifier {
	if len(keywords) == 0 {
		keywords = DefaultKeywords()
	}
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Classifier{keywords: lowered}
}

// IsAssessment reports whether the free-text reason marks a bilan appointment.
// An empty reason never matches.
func (c *Classifier) IsAssessment(reason string) bool {
	if reason == "" {
		return false
	}
	lowered := strings.ToLower(reason)
	for _, kw := range c.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// ParseDisplayName splits a Doctolib patient display name into first and last
// name. An all-uppercase leading token is the surname ("DUPONT Marie");
// otherwise the final token is ("Marie Dupont"). A single token becomes a
// surname with an empty first name.
func ParseDisplayName(name string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(name))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	}
	if isAllUpper(parts[0]) {
		return strings.Join(parts[1:], " "), parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		lower := strings.ToLower(string(r))
		upper := strings.ToUpper(string(r))
		if lower != upper {
			hasLetter = true
			if string(r) != upper {
				return false
			}
		}
	}
	return hasLetter
}
