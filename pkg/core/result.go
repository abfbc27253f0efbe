package core

import (
	"time"
)

// StepResult captures the outcome of a single Gherkin step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`   // 0-based position in the scenario
	Keyword string `json:"keyword"` // Given, When, Then, And
	Text    string `json:"text"`    // Step sentence as written in the feature

	// Status
	Status StepStatus `json:"status"`
	Kind   ErrorKind  `json:"errorKind,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Element *ElementInfo `json:"element,omitempty"`
	Error   string       `json:"error,omitempty"`

	// Debug artifacts
	Logs        []LogEntry   `json:"logs,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ScenarioResult captures the outcome of one scenario
type ScenarioResult struct {
	// Identity
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Feature string   `json:"feature"`
	URI     string   `json:"uri"`
	Tags    []string `json:"tags,omitempty"`

	// Browser info (only for scenarios tagged @web)
	Browser *BrowserInfo `json:"browser,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps     int `json:"totalSteps"`
	PassedSteps    int `json:"passedSteps"`
	FailedSteps    int `json:"failedSteps"`
	SkippedSteps   int `json:"skippedSteps"`
	UndefinedSteps int `json:"undefinedSteps,omitempty"`

	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (s *ScenarioResult) ComputeSummary() {
	s.TotalSteps = len(s.Steps)
	s.PassedSteps = 0
	s.FailedSteps = 0
	s.SkippedSteps = 0
	s.UndefinedSteps = 0

	for _, step := range s.Steps {
		switch step.Status {
		case StatusPassed:
			s.PassedSteps++
		case StatusFailed, StatusErrored:
			s.FailedSteps++
		case StatusSkipped:
			s.SkippedSteps++
		case StatusUndefined:
			s.UndefinedSteps++
		}
	}
}

// AggregateStatus determines the scenario status from step results
// Rules:
// - Any failed/errored step → StatusFailed
// - Any undefined step → StatusUndefined
// - No steps at all, or every step skipped → StatusSkipped
// - Otherwise → StatusPassed
func (s *ScenarioResult) AggregateStatus() StepStatus {
	undefined := false
	ran := false
	for _, step := range s.Steps {
		switch step.Status {
		case StatusFailed, StatusErrored:
			return StatusFailed
		case StatusUndefined:
			undefined = true
		case StatusPassed:
			ran = true
		}
	}
	if undefined {
		return StatusUndefined
	}
	if !ran {
		return StatusSkipped
	}
	return StatusPassed
}

// SuiteResult captures the outcome of one godog run
type SuiteResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	Scenarios []ScenarioResult `json:"scenarios"`

	// Summary
	TotalScenarios   int `json:"totalScenarios"`
	PassedScenarios  int `json:"passedScenarios"`
	FailedScenarios  int `json:"failedScenarios"`
	SkippedScenarios int `json:"skippedScenarios"`

	// ExitCode is the godog exit status: 0 ok, 1 failed, 2 options error
	ExitCode int `json:"exitCode"`
}

// ComputeSummary calculates scenario counts from the Scenarios slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalScenarios = len(s.Scenarios)
	s.PassedScenarios = 0
	s.FailedScenarios = 0
	s.SkippedScenarios = 0

	for _, sc := range s.Scenarios {
		switch sc.Status {
		case StatusPassed:
			s.PassedScenarios++
		case StatusFailed, StatusErrored, StatusUndefined:
			s.FailedScenarios++
		case StatusSkipped:
			s.SkippedScenarios++
		}
	}
}

// Success returns true if the run exited cleanly and no scenario failed
func (s *SuiteResult) Success() bool {
	if s.ExitCode != 0 {
		return false
	}
	for _, sc := range s.Scenarios {
		if sc.Status != StatusPassed && sc.Status != StatusSkipped {
			return false
		}
	}
	return true
}
