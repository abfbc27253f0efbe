// Package fixture loads test data files from features/test-files.
package fixture

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/parabank-e2e/pkg/textutil"
)

// RegistrationFile holds the default customer account payload.
const RegistrationFile = "registration.yaml"

// Expander evaluates ${...} expressions in a value.
type Expander interface {
	ExpandVariables(text string) (string, error)
}

// Load reads a flat YAML mapping of form fields. Every value is expanded
// with exp when exp is non-nil.
func Load(path string, exp Expander) (map[string]string, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- test data file
	if err != nil {
		return nil, err
	}
	return Parse(data, exp)
}

// Parse decodes a flat YAML mapping and expands its values.
func Parse(data []byte, exp Expander) (map[string]string, error) {
	var fields map[string]string
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	if exp == nil {
		return fields, nil
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := exp.ExpandVariables(fields[k])
		if err != nil {
			return nil, fmt.Errorf("fixture field %s: %w", k, err)
		}
		fields[k] = v
	}
	return fields, nil
}

// Registration loads the default registration payload from the project's
// test data directory.
func Registration(exp Expander) (map[string]string, error) {
	return Load(textutil.FilePath(RegistrationFile), exp)
}
