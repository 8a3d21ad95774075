package correction

// Settings selects which field kinds the engine instruments and whether
// live validation runs. It is passed by value; there is no shared copy.
type Settings struct {
	ProcessInputs          bool    `json:"processInputs" yaml:"process_inputs"`
	ProcessTextareas       bool    `json:"processTextareas" yaml:"process_textareas"`
	ProcessContentEditable bool    `json:"processContentEditable" yaml:"process_content_editable"`
	InstantCheck           bool    `json:"instantCheck" yaml:"instant_check"`
	DefaultDialect         Dialect `json:"defaultDialect" yaml:"default_dialect"`
}

// DefaultSettings returns the settings used before the user changes
// anything: every field kind on, live validation off.
func DefaultSettings() Settings {
	return Settings{
		ProcessInputs:          true,
		ProcessTextareas:       true,
		ProcessContentEditable: true,
		InstantCheck:           false,
		DefaultDialect:         Egyptian,
	}
}

// Normalize replaces an unknown default dialect with Egyptian.
func (s Settings) Normalize() Settings {
	if !s.DefaultDialect.Valid() {
		s.DefaultDialect = Egyptian
	}
	return s
}
