package correction

import (
	"fmt"
	"strings"
)

// Dialect is a regional Arabic variant supported for conversion.
type Dialect string

const (
	Egyptian  Dialect = "egyptian"
	Levantine Dialect = "levantine"
	Gulf      Dialect = "gulf"
	Moroccan  Dialect = "moroccan"
)

// Dialects lists the supported dialects in menu order.
var Dialects = []Dialect{Egyptian, Levantine, Gulf, Moroccan}

var displayNames = map[Dialect]string{
	Egyptian:  "اللهجة المصرية",
	Levantine: "اللهجة الشامية",
	Gulf:      "اللهجة الخليجية",
	Moroccan:  "اللهجة المغربية",
}

// ParseDialect normalises s and checks it against the supported set.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("correction: unknown dialect %q", s)
	}
	return d, nil
}

// Valid reports whether d is a supported dialect.
func (d Dialect) Valid() bool {
	_, ok := displayNames[d]
	return ok
}

// DisplayName returns the Arabic label shown in menus.
func (d Dialect) DisplayName() string {
	if name, ok := displayNames[d]; ok {
		return name
	}
	return string(d)
}

// DialectNames returns the supported dialects as plain strings.
func DialectNames() []string {
	out := make([]string, len(Dialects))
	for i, d := range Dialects {
		out[i] = string(d)
	}
	return out
}
