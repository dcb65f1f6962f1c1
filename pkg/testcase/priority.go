package testcase

import "strings"

// Priority is a normalized test-case priority.
type Priority string

// The only priority values ever stored on a TestCase.
const (
	High       Priority = "High"
	Middle     Priority = "Middle"
	Low        Priority = "Low"
	NiceToHave Priority = "NiceToHave"
)

// Priorities lists the normalized values in descending importance.
var Priorities = []Priority{High, Middle, Low, NiceToHave}

// priorityVocabulary maps lower-cased raw spellings to normalized values.
var priorityVocabulary = map[string]Priority{
	"高":            High,
	"中":            Middle,
	"低":            Low,
	"可选":           NiceToHave,
	"high":         High,
	"middle":       Middle,
	"low":          Low,
	"nice to have": NiceToHave,
	"nicetohave":   NiceToHave,
}

// Valid reports whether p is one of the normalized values.
func (p Priority) Valid() bool {
	switch p {
	case High, Middle, Low, NiceToHave:
		return true
	}
	return false
}

func (p Priority) String() string {
	return string(p)
}

// ParsePriority matches raw against the vocabulary, ignoring case, surrounding
// whitespace and markdown decoration such as brackets or emphasis.
func ParsePriority(raw string) (Priority, bool) {
	key := strings.ToLower(strings.Trim(raw, " \t\r\n*[]【】()（）:："))
	p, ok := priorityVocabulary[key]
	return p, ok
}

// NormalizePriority returns the normalized form of raw, or fallback when raw is
// not in the vocabulary. An invalid fallback is replaced by Middle so the result
// is always one of the four normalized values.
func NormalizePriority(raw string, fallback Priority) Priority {
	if p, ok := ParsePriority(raw); ok {
		return p
	}
	if fallback.Valid() {
		return fallback
	}
	return Middle
}
