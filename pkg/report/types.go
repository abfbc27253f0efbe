// Package report writes JSON and HTML reports for a suite run.
//
// Layout:
//   - report.json: run index (status, summary, one entry per scenario)
//   - scenarios/scenario-XXX.json: per-scenario step details
//   - assets/scenario-XXX/: screenshots captured on failure
//   - report.html: self-contained view regenerated on every index flush
//
// The index is the single source of truth. Consumers poll report.json and
// fetch scenario files only for entries whose updateSeq changed.
package report

import (
	"time"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// Version is the report schema version.
const Version = "1.0.0"

// Status represents the execution status.
type Status string

// Status values.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPassed    Status = "passed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusUndefined Status = "undefined"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed || s == StatusSkipped || s == StatusUndefined
}

// StatusOf maps an execution status to its report status.
func StatusOf(s core.StepStatus) Status {
	switch s {
	case core.StatusPassed:
		return StatusPassed
	case core.StatusFailed, core.StatusErrored:
		return StatusFailed
	case core.StatusSkipped:
		return StatusSkipped
	case core.StatusUndefined:
		return StatusUndefined
	case core.StatusRunning:
		return StatusRunning
	default:
		return StatusPending
	}
}

// ============================================================================
// INDEX (report.json)
// ============================================================================

// Index is the main report file.
type Index struct {
	Version     string            `json:"version"`
	RunID       string            `json:"runId"`
	Name        string            `json:"name"`
	UpdateSeq   uint64            `json:"updateSeq"`
	Status      Status            `json:"status"`
	StartTime   time.Time         `json:"startTime"`
	EndTime     *time.Time        `json:"endTime,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated"`
	Server      string            `json:"server"`
	Browser     *core.BrowserInfo `json:"browser,omitempty"`
	CI          *CI               `json:"ci,omitempty"`
	Runner      RunnerInfo        `json:"runner"`
	Summary     Summary           `json:"summary"`
	Scenarios   []ScenarioEntry   `json:"scenarios"`
}

// CI contains CI/CD build information.
type CI struct {
	Provider string `json:"provider,omitempty"`
	Stage    string `json:"stage,omitempty"`
	BuildID  string `json:"buildId,omitempty"`
	BuildURL string `json:"buildUrl,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// RunnerInfo contains runner information.
type RunnerInfo struct {
	Version string `json:"version"`
	Driver  string `json:"driver"`
}

// Summary contains aggregated scenario counts.
type Summary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Undefined int `json:"undefined"`
}

// ScenarioEntry is the index entry for a scenario.
type ScenarioEntry struct {
	Index     int         `json:"index"`     // Completion order
	ID        string      `json:"id"`        // scenario-XXX
	Name      string      `json:"name"`      // Scenario name
	Feature   string      `json:"feature"`   // Feature name
	URI       string      `json:"uri"`       // Feature file
	DataFile  string      `json:"dataFile"`  // Path to scenario detail JSON
	AssetsDir string      `json:"assetsDir"` // Path to assets directory
	Tags      []string    `json:"tags,omitempty"`
	Status    Status      `json:"status"`
	UpdateSeq uint64      `json:"updateSeq"`
	StartTime *time.Time  `json:"startTime,omitempty"`
	Duration  *int64      `json:"duration,omitempty"` // milliseconds
	Steps     StepSummary `json:"steps"`
	Error     *string     `json:"error,omitempty"`
}

// StepSummary contains step counts for a scenario.
type StepSummary struct {
	Total     int `json:"total"`
	Passed    int `json:"passed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Undefined int `json:"undefined"`
}

// ============================================================================
// SCENARIO DETAIL (scenarios/scenario-XXX.json)
// ============================================================================

// ScenarioDetail contains full scenario execution details.
type ScenarioDetail struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Feature   string            `json:"feature"`
	URI       string            `json:"uri"`
	Tags      []string          `json:"tags,omitempty"`
	Browser   *core.BrowserInfo `json:"browser,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   *time.Time        `json:"endTime,omitempty"`
	Duration  *int64            `json:"duration,omitempty"` // milliseconds
	Status    Status            `json:"status"`
	Steps     []Step            `json:"steps"`
}

// Step is a single executed Gherkin step.
type Step struct {
	Index     int               `json:"index"`
	Keyword   string            `json:"keyword"`
	Text      string            `json:"text"`
	Status    Status            `json:"status"`
	StartTime *time.Time        `json:"startTime,omitempty"`
	Duration  *int64            `json:"duration,omitempty"` // milliseconds
	Element   *core.ElementInfo `json:"element,omitempty"`
	Error     *Error            `json:"error,omitempty"`
	Artifacts StepArtifacts     `json:"artifacts"`
}

// Error contains error details.
type Error struct {
	Type     string `json:"type"` // not_found, index, precondition, assertion, config, unknown
	Category string `json:"category,omitempty"`
	Message  string `json:"message"`
}

// StepArtifacts contains step-level artifact paths, relative to the report
// directory. Never inline data.
type StepArtifacts struct {
	Screenshot string `json:"screenshot,omitempty"`
}
