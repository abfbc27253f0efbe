// Package locator builds the XPath queries used to address ParaBank pages.
package locator

import (
	"fmt"
	"strings"
)

// Mode selects how a label is matched against element text.
type Mode int

const (
	Contains Mode = iota // Element text contains the label (case-sensitive)
	Exact                // Element text equals the label
)

func (m Mode) String() string {
	if m == Exact {
		return "exact"
	}
	return "contains"
}

// Templates. Double quotes are normalized to single quotes before the label
// is substituted, so the resulting query can sit inside double-quoted text.
const (
	exactTemplate    = `.//*[text()="%s"]`
	containsTemplate = `.//*[contains(text(), "%s")]`
	fieldTemplate    = `.//tr[.//*[contains(text(), "%s")]]//input`
)

// Fixed queries for ParaBank forms.
const (
	RegisterButton = `.//input[@value="Register"]`
	UsernameField  = `.//input[@name="username"]`
	PasswordField  = `.//input[@name="password"]`
	LoginButton    = `.//input[@value="Log In"]`
)

// Locator is an immutable query descriptor.
type Locator struct {
	Template string
	Text     string
	Mode     Mode
}

// ByText returns a locator for elements whose text matches label.
func ByText(label string, mode Mode) Locator {
	tmpl := containsTemplate
	if mode == Exact {
		tmpl = exactTemplate
	}
	return Locator{Template: tmpl, Text: label, Mode: mode}
}

// Field returns a locator for the input in the form row labelled label.
func Field(label string) Locator {
	return Locator{Template: fieldTemplate, Text: label, Mode: Contains}
}

// XPath renders the query. The label is inserted as-is.
func (l Locator) XPath() string {
	return fmt.Sprintf(normalizeQuotes(l.Template), l.Text)
}

func (l Locator) String() string {
	return fmt.Sprintf("%s %q", l.Mode, l.Text)
}

func normalizeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `'`)
}
