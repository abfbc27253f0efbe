package report

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name        string             `json:"name"`
	Status      string             `json:"status"`
	Stage       string             `json:"stage"`
	Start       int64              `json:"start"`
	Stop        int64              `json:"stop"`
	Attachments []AllureAttachment `json:"attachments"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureResultsDir is created inside the report directory.
const AllureResultsDir = "allure-results"

// GenerateAllure generates Allure-compatible files in <reportDir>/allure-results/.
func GenerateAllure(reportDir string) error {
	index, scenarios, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	allureDir := filepath.Join(reportDir, AllureResultsDir)
	if err := ensureDir(allureDir); err != nil {
		return fmt.Errorf("create allure-results dir: %w", err)
	}

	details := make(map[string]*ScenarioDetail, len(scenarios))
	for i := range scenarios {
		details[scenarios[i].ID] = &scenarios[i]
	}

	for i := range index.Scenarios {
		entry := &index.Scenarios[i]
		detail := details[entry.ID]

		result := buildAllureResult(entry, detail, index)
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal allure result for %s: %w", entry.ID, err)
		}
		resultPath := filepath.Join(allureDir, entry.ID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return fmt.Errorf("write allure result %s: %w", entry.ID, err)
		}
		if detail != nil {
			copyStepAttachments(reportDir, allureDir, detail.Steps)
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return err
	}
	return writeAllureEnvironment(allureDir, index)
}

// buildAllureResult builds an AllureResult from a scenario entry and its detail.
func buildAllureResult(entry *ScenarioEntry, detail *ScenarioDetail, index *Index) AllureResult {
	var startMs, stopMs int64
	if entry.StartTime != nil {
		startMs = entry.StartTime.UnixMilli()
		if entry.Duration != nil {
			stopMs = startMs + *entry.Duration
		}
	}

	labels := []AllureLabel{
		{Name: "suite", Value: entry.Feature},
		{Name: "parentSuite", Value: index.Name},
		{Name: "feature", Value: entry.Feature},
		{Name: "framework", Value: "godog"},
		{Name: "severity", Value: "normal"},
	}
	for _, tag := range entry.Tags {
		labels = append(labels, AllureLabel{Name: "tag", Value: strings.TrimPrefix(tag, "@")})
	}

	var statusDetails AllureStatusDetails
	if entry.Error != nil {
		statusDetails.Message = *entry.Error
	}

	steps := []AllureStep{}
	var attachments []AllureAttachment
	if detail != nil {
		for _, s := range detail.Steps {
			step := buildAllureStep(s)
			attachments = append(attachments, step.Attachments...)
			steps = append(steps, step)
		}
	}

	return AllureResult{
		UUID:          index.RunID + "-" + entry.ID,
		HistoryID:     fnv32aHash(entry.URI + ":" + entry.Name),
		FullName:      entry.Feature + ": " + entry.Name,
		Name:          entry.Name,
		Status:        mapAllureStatus(entry.Status),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		StatusDetails: statusDetails,
		Steps:         steps,
		Attachments:   attachments,
	}
}

func buildAllureStep(s Step) AllureStep {
	var startMs, stopMs int64
	if s.StartTime != nil {
		startMs = s.StartTime.UnixMilli()
		if s.Duration != nil {
			stopMs = startMs + *s.Duration
		}
	}

	step := AllureStep{
		Name:        strings.TrimSpace(strings.TrimSpace(s.Keyword) + " " + s.Text),
		Status:      mapAllureStatus(s.Status),
		Stage:       "finished",
		Start:       startMs,
		Stop:        stopMs,
		Attachments: []AllureAttachment{},
	}
	if s.Artifacts.Screenshot != "" {
		step.Attachments = append(step.Attachments, AllureAttachment{
			Name:   "Screenshot",
			Source: allureSource(s.Artifacts.Screenshot),
			Type:   "image/png",
		})
	}
	return step
}

// allureSource flattens an asset path, since allure-results is flat.
func allureSource(rel string) string {
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "-")
}

func copyStepAttachments(reportDir, allureDir string, steps []Step) {
	for _, s := range steps {
		if s.Artifacts.Screenshot == "" {
			continue
		}
		copyFile(filepath.Join(reportDir, s.Artifacts.Screenshot), filepath.Join(allureDir, allureSource(s.Artifacts.Screenshot)))
	}
}

// copyFile copies src to dst. A missing source is ignored.
func copyFile(src, dst string) {
	in, err := os.Open(src) //#nosec G304 -- report asset
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst) //#nosec G304 -- report asset
	if err != nil {
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

// mapAllureStatus maps report Status to Allure status string.
func mapAllureStatus(s Status) string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusUndefined:
		return "broken"
	default:
		return "unknown"
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json, keyed on the messages of
// the element and request helpers.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Element Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*(did not appear|could not locate|not clickable|timed out waiting).*"},
		{Name: "Element Index", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*element index should be less than.*"},
		{Name: "Missing Context", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*(context is missing required attribute|context should have a valid).*"},
		{Name: "Assertion Failed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*(expected text for|unable to find expected text).*"},
		{Name: "Connection Error", MatchedStatuses: []string{"failed", "broken"}, MessageRegex: "(?i).*(connection|dial tcp|no such host|tls).*"},
		{Name: "Undefined Step", MatchedStatuses: []string{"broken"}, MessageRegex: ".*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	if err := os.WriteFile(filepath.Join(allureDir, "categories.json"), data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with run metadata.
func writeAllureEnvironment(allureDir string, index *Index) error {
	var b strings.Builder
	b.WriteString("framework=godog\n")
	fmt.Fprintf(&b, "server=%s\n", index.Server)
	if index.Browser != nil {
		fmt.Fprintf(&b, "browser=%s\n", index.Browser.Browser)
		if index.Browser.Version != "" {
			fmt.Fprintf(&b, "browser.version=%s\n", index.Browser.Version)
		}
		fmt.Fprintf(&b, "browser.headless=%t\n", index.Browser.Headless)
	}
	if index.Runner.Version != "" {
		fmt.Fprintf(&b, "runner.version=%s\n", index.Runner.Version)
	}
	if index.Runner.Driver != "" {
		fmt.Fprintf(&b, "runner.driver=%s\n", index.Runner.Driver)
	}
	if index.CI != nil && index.CI.Provider != "" {
		fmt.Fprintf(&b, "ci.provider=%s\n", index.CI.Provider)
	}

	if err := os.WriteFile(filepath.Join(allureDir, "environment.properties"), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}
