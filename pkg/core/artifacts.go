// Package core provides the execution model types for parabank-e2e.
package core

import (
	"os"
	"path/filepath"
	"strings"
)

// Attachment represents a debug artifact captured during a step
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot, response
	ContentType string `json:"contentType"` // MIME type: image/png, application/json, text/plain
	Path        string `json:"path"`        // File path relative to the output directory
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentResponse   = "response"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
	ContentTypeHTML = "text/html"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// NewResponseAttachment creates an HTTP response body attachment
func NewResponseAttachment(path, contentType string, data []byte) Attachment {
	if contentType == "" {
		contentType = ContentTypeText
	}
	return Attachment{
		Name:        AttachmentResponse,
		ContentType: contentType,
		Path:        path,
		Body:        data,
	}
}

// DefaultPipelineEnv is the variable whose presence marks a CI pipeline run
const DefaultPipelineEnv = "CI_JOB_STAGE"

// ScreenshotSelector is the only CSS selector the suite uses
const ScreenshotSelector = "body"

// ArtifactConfig controls when and where screenshots are captured
type ArtifactConfig struct {
	CaptureOnFailure bool   `yaml:"captureOnFailure" json:"captureOnFailure"` // Default: true
	CaptureOnSuccess bool   `yaml:"captureOnSuccess" json:"captureOnSuccess"` // Default: false
	Dir              string `yaml:"dir" json:"dir"`                           // Default: ../screenshots
	PipelineEnv      string `yaml:"pipelineEnv" json:"pipelineEnv"`           // Default: CI_JOB_STAGE

	lookupEnv func(string) (string, bool)
}

// DefaultArtifactConfig returns defaults for artifact capture
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		CaptureOnSuccess: false,
		Dir:              filepath.Join("..", "screenshots"),
		PipelineEnv:      DefaultPipelineEnv,
	}
}

// InPipeline reports whether the pipeline marker variable is set
func (c ArtifactConfig) InPipeline() bool {
	if c.PipelineEnv == "" {
		return false
	}
	lookup := c.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	_, ok := lookup(c.PipelineEnv)
	return ok
}

// ShouldCapture returns true if a screenshot should be taken for the status.
// Nothing is captured inside a pipeline.
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	if c.InPipeline() {
		return false
	}
	switch status {
	case StatusFailed, StatusErrored:
		return c.CaptureOnFailure
	case StatusPassed:
		return c.CaptureOnSuccess
	default:
		return false
	}
}

// ScreenshotPath returns <dir>/<scenario name>.png
func (c ArtifactConfig) ScreenshotPath(scenario string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(scenario)
	return filepath.Join(c.Dir, name+".png")
}

// WithLookupEnv returns a copy that reads environment through fn
func (c ArtifactConfig) WithLookupEnv(fn func(string) (string, bool)) ArtifactConfig {
	c.lookupEnv = fn
	return c
}
