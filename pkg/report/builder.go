package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// BuilderConfig contains configuration for a new report index.
type BuilderConfig struct {
	Name          string            // Suite name
	Server        string            // ParaBank base URL under test
	Browser       *core.BrowserInfo // Browser for @web scenarios (optional)
	CI            *CI               // CI/CD information (optional)
	RunnerVersion string
	DriverName    string // chromedp, playwright
}

// NewIndex creates an empty, pending index with a fresh run id.
// Scenarios are appended as they finish since godog does not expose the
// scenario list before the run.
func NewIndex(cfg BuilderConfig) *Index {
	now := time.Now()
	return &Index{
		Version:     Version,
		RunID:       uuid.NewString(),
		Name:        cfg.Name,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		Server:      cfg.Server,
		Browser:     cfg.Browser,
		CI:          cfg.CI,
		Runner: RunnerInfo{
			Version: cfg.RunnerVersion,
			Driver:  cfg.DriverName,
		},
		Scenarios: []ScenarioEntry{},
	}
}

// DetectCI reads build information from the environment. It returns nil
// outside of a pipeline.
func DetectCI(lookup func(string) (string, bool)) *CI {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return v
	}

	switch {
	case get("GITLAB_CI") != "" || get(core.DefaultPipelineEnv) != "":
		return &CI{
			Provider: "gitlab",
			Stage:    get(core.DefaultPipelineEnv),
			BuildID:  get("CI_JOB_ID"),
			BuildURL: get("CI_JOB_URL"),
			Branch:   get("CI_COMMIT_REF_NAME"),
			Commit:   get("CI_COMMIT_SHA"),
		}
	case get("GITHUB_ACTIONS") != "":
		ci := &CI{
			Provider: "github",
			BuildID:  get("GITHUB_RUN_ID"),
			Branch:   get("GITHUB_REF_NAME"),
			Commit:   get("GITHUB_SHA"),
		}
		if server, repo := get("GITHUB_SERVER_URL"), get("GITHUB_REPOSITORY"); server != "" && repo != "" {
			ci.BuildURL = fmt.Sprintf("%s/%s/actions/runs/%s", server, repo, ci.BuildID)
		}
		return ci
	case get("JENKINS_URL") != "":
		return &CI{
			Provider: "jenkins",
			BuildID:  get("BUILD_NUMBER"),
			BuildURL: get("BUILD_URL"),
			Branch:   get("GIT_BRANCH"),
			Commit:   get("GIT_COMMIT"),
		}
	case get("CI") != "":
		return &CI{Provider: "unknown"}
	}
	return nil
}

// scenarioID is the stable id of the i-th finished scenario.
func scenarioID(i int) string {
	return fmt.Sprintf("scenario-%03d", i)
}

// buildScenario converts an execution result into its index entry and
// detail file. Screenshot paths are filled in by the writer.
func buildScenario(i int, r *core.ScenarioResult) (ScenarioEntry, ScenarioDetail) {
	id := scenarioID(i)
	status := StatusOf(r.Status)
	start := r.StartTime
	end := r.StartTime.Add(r.Duration)
	dur := r.Duration.Milliseconds()

	r.ComputeSummary()
	entry := ScenarioEntry{
		Index:     i,
		ID:        id,
		Name:      r.Name,
		Feature:   r.Feature,
		URI:       r.URI,
		DataFile:  filepath.Join("scenarios", id+".json"),
		AssetsDir: filepath.Join("assets", id),
		Tags:      r.Tags,
		Status:    status,
		StartTime: &start,
		Duration:  &dur,
		Steps: StepSummary{
			Total:     r.TotalSteps,
			Passed:    r.PassedSteps,
			Failed:    r.FailedSteps,
			Skipped:   r.SkippedSteps,
			Undefined: r.UndefinedSteps,
		},
	}
	if r.Error != "" {
		msg := r.Error
		entry.Error = &msg
	}

	detail := ScenarioDetail{
		ID:        id,
		Name:      r.Name,
		Feature:   r.Feature,
		URI:       r.URI,
		Tags:      r.Tags,
		Browser:   r.Browser,
		StartTime: start,
		EndTime:   &end,
		Duration:  &dur,
		Status:    status,
		Steps:     make([]Step, len(r.Steps)),
	}
	for j, s := range r.Steps {
		detail.Steps[j] = buildStep(s)
	}
	return entry, detail
}

func buildStep(s core.StepResult) Step {
	start := s.StartTime
	dur := s.Duration.Milliseconds()
	step := Step{
		Index:     s.Index,
		Keyword:   s.Keyword,
		Text:      s.Text,
		Status:    StatusOf(s.Status),
		StartTime: &start,
		Duration:  &dur,
		Element:   s.Element,
	}
	if s.Error != "" {
		step.Error = &Error{
			Type:     errorType(s.Kind),
			Category: s.Kind.Category(),
			Message:  s.Error,
		}
	}
	return step
}

func errorType(k core.ErrorKind) string {
	if k == core.KindNone {
		return "unknown"
	}
	return k.String()
}
