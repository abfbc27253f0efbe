// Package validator checks feature files before execution.
// Every file must parse and every step must match exactly one step
// definition, so a run never starts with a typo in a sentence.
package validator

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/cucumber/godog"
	messages "github.com/cucumber/messages/go/v21"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Line    int64 // 0 when the error is not tied to a line
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Files is the list of feature files in execution order.
	Files []string
	// Scenarios counts the scenarios selected by the tag expression.
	Scenarios int
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates feature files against a step catalog.
type Validator struct {
	tags string
	defs []*regexp.Regexp
}

// New creates a new Validator. tags is a godog tag expression; only
// matching scenarios are checked.
func New(tags string, defs []*regexp.Regexp) *Validator {
	return &Validator{tags: tags, defs: defs}
}

// Validate validates a file or directory. A file may carry a line suffix
// such as login.feature:12.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	target := path
	if i := strings.LastIndex(path, ".feature:"); i >= 0 {
		target = path[:i+len(".feature")]
	}
	info, err := os.Stat(target)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	files := []string{path}
	if info.IsDir() {
		files, err = collectFeatureFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return result
		}
	}

	for _, file := range files {
		v.validateFile(file, result)
	}
	return result
}

// collectFeatureFiles finds all .feature files in a directory.
func collectFeatureFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".feature") {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

func (v *Validator) validateFile(file string, result *Result) {
	features, err := godog.TestSuite{
		Options: &godog.Options{Paths: []string{file}, Tags: v.tags},
	}.RetrieveFeatures()
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}

	result.Files = append(result.Files, file)
	for _, f := range features {
		lines := stepLines(f.GherkinDocument)
		reported := map[string]bool{}

		for _, p := range f.Pickles {
			result.Scenarios++
			for _, st := range p.Steps {
				var line int64
				key := st.Text
				if len(st.AstNodeIds) > 0 {
					line = lines[st.AstNodeIds[0]]
					key = st.AstNodeIds[0] + "\x00" + st.Text
				}
				// background steps repeat in every pickle
				if reported[key] {
					continue
				}
				if msg := v.checkStep(st.Text); msg != "" {
					reported[key] = true
					result.Errors = append(result.Errors, &ValidationError{File: file, Line: line, Message: msg})
				}
			}
		}
	}
}

func (v *Validator) checkStep(text string) string {
	var matches []string
	for _, d := range v.defs {
		if d.MatchString(text) {
			matches = append(matches, d.String())
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Sprintf("undefined step %q", text)
	case 1:
		return ""
	default:
		return fmt.Sprintf("ambiguous step %q matches %s", text, strings.Join(matches, ", "))
	}
}

// stepLines maps gherkin step ids to their line numbers.
func stepLines(doc *messages.GherkinDocument) map[string]int64 {
	lines := map[string]int64{}
	if doc == nil || doc.Feature == nil {
		return lines
	}
	add := func(steps []*messages.Step) {
		for _, s := range steps {
			if s.Location != nil {
				lines[s.Id] = s.Location.Line
			}
		}
	}
	for _, c := range doc.Feature.Children {
		switch {
		case c.Background != nil:
			add(c.Background.Steps)
		case c.Scenario != nil:
			add(c.Scenario.Steps)
		case c.Rule != nil:
			for _, rc := range c.Rule.Children {
				if rc.Background != nil {
					add(rc.Background.Steps)
				}
				if rc.Scenario != nil {
					add(rc.Scenario.Steps)
				}
			}
		}
	}
	return lines
}
