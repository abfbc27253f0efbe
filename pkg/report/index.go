package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File and directory names inside a report directory.
const (
	IndexFile    = "report.json"
	HTMLFile     = "report.html"
	ScenariosDir = "scenarios"
	AssetsDir    = "assets"
)

// IndexWriter provides thread-safe updates to the report index.
// Scenarios of concurrently running suites can be recorded at the same time.
type IndexWriter struct {
	mu        sync.Mutex
	outputDir string
	path      string
	index     *Index
	closed    bool
}

// NewIndexWriter creates the report layout under outputDir and writes the
// initial (pending) index.
func NewIndexWriter(outputDir string, index *Index) (*IndexWriter, error) {
	for _, dir := range []string{outputDir, filepath.Join(outputDir, ScenariosDir), filepath.Join(outputDir, AssetsDir)} {
		if err := ensureDir(dir); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	w := &IndexWriter{
		outputDir: outputDir,
		path:      filepath.Join(outputDir, IndexFile),
		index:     index,
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// Start marks the run as started.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.Status = StatusRunning
	w.index.StartTime = now
	w.flushOrLog()
}

// Record writes the detail file and assets of a finished scenario and adds
// it to the index. Terminal results flush immediately.
func (w *IndexWriter) Record(r *core.ScenarioResult) (ScenarioEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ScenarioEntry{}, fmt.Errorf("report %s already closed", w.outputDir)
	}

	entry, detail := buildScenario(len(w.index.Scenarios), r)

	if err := ensureDir(filepath.Join(w.outputDir, entry.AssetsDir)); err != nil {
		return entry, fmt.Errorf("create assets dir for %s: %w", entry.ID, err)
	}
	for i, step := range r.Steps {
		rel, err := w.saveScreenshot(entry, step)
		if err != nil {
			logger.Warn("report: screenshot for %s step %d not saved: %v", entry.ID, step.Index, err)
			continue
		}
		detail.Steps[i].Artifacts.Screenshot = rel
	}

	if err := atomicWriteJSON(filepath.Join(w.outputDir, entry.DataFile), detail); err != nil {
		return entry, fmt.Errorf("write scenario %s: %w", entry.ID, err)
	}

	entry.UpdateSeq = w.index.UpdateSeq + 1
	w.index.Scenarios = append(w.index.Scenarios, entry)
	return entry, w.flushLocked()
}

// saveScreenshot stores the first screenshot attachment of a step in the
// scenario's assets dir and returns its report-relative path.
func (w *IndexWriter) saveScreenshot(entry ScenarioEntry, step core.StepResult) (string, error) {
	for _, a := range step.Attachments {
		if a.Name != core.AttachmentScreenshot {
			continue
		}
		data := a.Body
		if len(data) == 0 && a.Path != "" {
			b, err := os.ReadFile(a.Path)
			if err != nil {
				return "", err
			}
			data = b
		}
		if len(data) == 0 {
			return "", nil
		}
		rel := filepath.Join(entry.AssetsDir, fmt.Sprintf("step-%02d.png", step.Index))
		if err := os.WriteFile(filepath.Join(w.outputDir, rel), data, 0o644); err != nil {
			return "", err
		}
		return rel, nil
	}
	return "", nil
}

// End marks the run as complete.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.index.Status = w.computeRunStatus()
	w.flushOrLog()
}

// Close stops further recording. It is safe to call more than once.
func (w *IndexWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// Index returns a copy of the current index.
func (w *IndexWriter) Index() Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := *w.index
	idx.Scenarios = append([]ScenarioEntry(nil), w.index.Scenarios...)
	return idx
}

// Dir returns the report directory.
func (w *IndexWriter) Dir() string { return w.outputDir }

func (w *IndexWriter) flushOrLog() {
	if err := w.flushLocked(); err != nil {
		logger.Error("report: %v", err)
	}
}

// flushLocked writes report.json and regenerates report.html.
func (w *IndexWriter) flushLocked() error {
	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = w.computeSummary()

	if err := atomicWriteJSON(w.path, w.index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}

	// Regenerate HTML for live file:// viewing
	if err := GenerateHTML(w.outputDir, HTMLConfig{Title: w.index.Name}); err != nil {
		return fmt.Errorf("generate html: %w", err)
	}
	return nil
}

// computeSummary calculates the summary from scenario statuses.
func (w *IndexWriter) computeSummary() Summary {
	var s Summary
	for _, sc := range w.index.Scenarios {
		s.Total++
		switch sc.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		case StatusUndefined:
			s.Undefined++
		}
	}
	return s
}

// computeRunStatus determines the overall run status.
// Undefined steps fail the run, as godog does in strict mode.
func (w *IndexWriter) computeRunStatus() Status {
	for _, sc := range w.index.Scenarios {
		if sc.Status == StatusFailed || sc.Status == StatusUndefined {
			return StatusFailed
		}
	}
	return StatusPassed
}

// ReadReport loads the index and every scenario detail from dir.
// Missing detail files are skipped.
func ReadReport(dir string) (*Index, []ScenarioDetail, error) {
	var index Index
	if err := readJSON(filepath.Join(dir, IndexFile), &index); err != nil {
		return nil, nil, err
	}
	details := make([]ScenarioDetail, 0, len(index.Scenarios))
	for _, entry := range index.Scenarios {
		var d ScenarioDetail
		if err := readJSON(filepath.Join(dir, entry.DataFile), &d); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, err
		}
		details = append(details, d)
	}
	return &index, details, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //#nosec G304 -- report files
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// atomicWriteJSON writes v to path through a temp file and rename, so
// pollers never see a half-written file.
func atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+strings.TrimSuffix(filepath.Base(path), ".json")+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
