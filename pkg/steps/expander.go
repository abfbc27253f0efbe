package steps

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/fixture"
	"github.com/devicelab-dev/parabank-e2e/pkg/jsengine"
)

// Expander evaluates ${...} expressions in step arguments and test data,
// e.g. `the user enters "${randomString(8)}" in the "Username" field.`
// A nil *Expander leaves text unchanged.
type Expander struct {
	engine *jsengine.Engine
}

// NewExpander returns an expander with ALL_CAPS environment variables
// available as globals.
func NewExpander(log *zap.Logger) *Expander {
	e := jsengine.New(log)
	e.ImportEnv(os.Environ())
	return &Expander{engine: e}
}

// Set exposes a value to expressions.
func (x *Expander) Set(name string, value interface{}) {
	x.engine.SetVariable(name, value)
}

// Expand evaluates every ${...} in s.
func (x *Expander) Expand(s string) (string, error) {
	if x == nil || !strings.Contains(s, "${") {
		return s, nil
	}
	return x.engine.ExpandVariables(s)
}

// ExpandVariables lets an Expander serve as a fixture.Expander.
func (x *Expander) ExpandVariables(s string) (string, error) {
	return x.Expand(s)
}

// Registration loads the default registration payload, expanded.
func (x *Expander) Registration() (map[string]string, error) {
	return fixture.Registration(x)
}
