package affordance

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

// ActionKind is what a menu item asks for.
type ActionKind string

const (
	ActionCorrect ActionKind = "correct"
	ActionConvert ActionKind = "convert"
)

// Action is a menu selection: correct, or convert to Dialect.
type Action struct {
	Kind    ActionKind
	Dialect correction.Dialect
}

// Correct is the single correction action.
var Correct = Action{Kind: ActionCorrect}

// Convert returns the conversion action for d.
func Convert(d correction.Dialect) Action {
	return Action{Kind: ActionConvert, Dialect: d}
}

// String is the wire form carried by menu items: "correct" or
// "convert:<dialect>".
func (a Action) String() string {
	if a.Kind == ActionConvert {
		return string(ActionConvert) + ":" + string(a.Dialect)
	}
	return string(a.Kind)
}

// ParseAction decodes the wire form produced by String.
func ParseAction(s string) (Action, error) {
	if s == string(ActionCorrect) {
		return Correct, nil
	}
	rest, ok := strings.CutPrefix(s, string(ActionConvert)+":")
	if !ok {
		return Action{}, fmt.Errorf("affordance: unknown action %q", s)
	}
	d, err := correction.ParseDialect(rest)
	if err != nil {
		return Action{}, fmt.Errorf("affordance: %w", err)
	}
	return Convert(d), nil
}

// Catalog is the fixed menu of every control: correct first, then one
// conversion per supported dialect.
func Catalog() []page.MenuItem {
	items := []page.MenuItem{{Action: Correct.String(), Label: "تصحيح النص"}}
	for _, d := range correction.Dialects {
		items = append(items, page.MenuItem{
			Action: Convert(d).String(),
			Label:  "تحويل إلى " + d.DisplayName(),
		})
	}
	return items
}
