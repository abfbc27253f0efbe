package executor

import (
	"context"
	"sync"
	"time"

	"github.com/cucumber/godog"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
	"github.com/devicelab-dev/parabank-e2e/pkg/report"
	"github.com/devicelab-dev/parabank-e2e/pkg/steps"
)

// recorder turns godog hook callbacks into core.ScenarioResult values.
// One recorder serves one suite; scenarios of that suite may run
// concurrently, each with its own scenarioRun.
type recorder struct {
	catalog catalog
	report  *report.IndexWriter
	onStart func(name string)
	onEnd   func(core.ScenarioResult)

	mu        sync.Mutex
	scenarios []core.ScenarioResult
}

// scenarioRun tracks one scenario between its Before and After hooks.
// Steps are pre-filled from the pickle as skipped: godog calls the after
// scenario hook on the first failing step, before the hooks of the steps
// it then skips.
type scenarioRun struct {
	result    core.ScenarioResult
	index     map[string]int // pickle step id -> position
	stepStart time.Time
}

func newRecorder(c catalog, w *report.IndexWriter) *recorder {
	return &recorder{catalog: c, report: w}
}

// register adds the recording hooks. It must be called after
// steps.InitializeScenario so the step hooks see its attachments.
func (r *recorder) register(sc *godog.ScenarioContext) {
	var run *scenarioRun

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		run = r.start(s)
		return ctx, nil
	})

	sc.StepContext().Before(func(ctx context.Context, st *godog.Step) (context.Context, error) {
		if run != nil {
			run.stepStart = time.Now()
		}
		return ctx, nil
	})

	sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		if run != nil {
			run.finishStep(ctx, st, status, err)
		}
		return ctx, nil
	})

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if run != nil {
			r.finish(ctx, run, err)
		}
		return ctx, nil
	})
}

func (r *recorder) start(s *godog.Scenario) *scenarioRun {
	run := &scenarioRun{
		result: core.ScenarioResult{
			ID:        s.Id,
			Name:      s.Name,
			Feature:   r.catalog.feature(s.Uri),
			URI:       s.Uri,
			Tags:      tagNames(s.Tags),
			Status:    core.StatusRunning,
			StartTime: time.Now(),
			Steps:     make([]core.StepResult, len(s.Steps)),
		},
		index: make(map[string]int, len(s.Steps)),
	}
	for i, st := range s.Steps {
		run.index[st.Id] = i
		run.result.Steps[i] = core.StepResult{
			Index:   i,
			Keyword: r.catalog.keyword(s.Uri, st),
			Text:    st.Text,
			Status:  core.StatusSkipped,
		}
	}
	if r.onStart != nil {
		r.onStart(s.Name)
	}
	return run
}

func (run *scenarioRun) finishStep(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) {
	i, ok := run.index[st.Id]
	if !ok {
		// nested steps share the hooks but are not part of the pickle
		return
	}
	res := &run.result.Steps[i]
	res.Status = stepStatus(status)
	if !run.stepStart.IsZero() {
		res.StartTime = run.stepStart
		res.Duration = time.Since(run.stepStart)
	}
	if err != nil && res.Status != core.StatusSkipped {
		res.Error = err.Error()
		res.Kind = core.KindOf(err)
	}
	res.Attachments = append(res.Attachments, attachments(godog.Attachments(ctx))...)
}

// finish closes the scenario and hands it to the report.
func (r *recorder) finish(ctx context.Context, run *scenarioRun, err error) {
	res := run.result
	res.Steps = append([]core.StepResult(nil), run.result.Steps...)
	res.Browser = steps.BrowserFromContext(ctx)
	res.Duration = time.Since(res.StartTime)
	res.Status = res.AggregateStatus()
	if err != nil {
		res.Error = err.Error()
		if res.Status == core.StatusPassed || res.Status == core.StatusSkipped {
			res.Status = core.StatusFailed
		}
	}
	res.ComputeSummary()

	r.mu.Lock()
	r.scenarios = append(r.scenarios, res)
	r.mu.Unlock()

	if r.report != nil {
		if _, rerr := r.report.Record(&res); rerr != nil {
			logger.Warn("report: recording %q: %v", res.Name, rerr)
		}
	}
	if r.onEnd != nil {
		r.onEnd(res)
	}
}

// results returns the finished scenarios in completion order.
func (r *recorder) results() []core.ScenarioResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ScenarioResult(nil), r.scenarios...)
}
