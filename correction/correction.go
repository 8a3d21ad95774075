// Package correction defines the types shared by the field engine, the
// background broker and the backend: dialects, user settings, flagged
// ranges, the broker message contract and persisted correction records.
package correction

import "time"

// Source identifies where a correction record came from.
type Source string

const (
	SourceExtension  Source = "extension"
	SourceAPI        Source = "api"
	SourceAPIDialect Source = "api-dialect"
	SourceOther      Source = "other"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceExtension, SourceAPI, SourceAPIDialect, SourceOther:
		return true
	}
	return false
}

// Record is a persisted correction or dialect conversion.
type Record struct {
	ID            string    `json:"id"`
	OriginalText  string    `json:"originalText"`
	CorrectedText string    `json:"correctedText"`
	Source        Source    `json:"source"`
	Dialect       Dialect   `json:"dialect,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FlaggedRange is a span of the validated text reported as erroneous.
// Indexes count runes, end exclusive.
type FlaggedRange struct {
	Word        string   `json:"word"`
	StartIndex  int      `json:"startIndex"`
	EndIndex    int      `json:"endIndex"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Within reports whether the range is non-empty and fits in a text of
// textLen runes.
func (r FlaggedRange) Within(textLen int) bool {
	return r.StartIndex >= 0 && r.StartIndex < r.EndIndex && r.EndIndex <= textLen
}
