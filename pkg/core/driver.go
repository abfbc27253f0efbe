package core

import (
	"context"
	"strings"
	"time"
)

// Driver is a browser session addressed only through XPath queries.
// Implementations: chromedp, playwright, mock.
// The element layer handles polling and disambiguation; Driver just answers
// single queries against the current document.
type Driver interface {
	// Open navigates to an absolute URL and waits for the document to load
	Open(ctx context.Context, url string) error

	// FindAll evaluates an XPath query against the current document and
	// returns every match in document order. It never caches: each call
	// re-queries the live document. No match is an empty slice, not an error.
	FindAll(ctx context.Context, xpath string) ([]Element, error)

	// Evaluate runs a JavaScript expression in the page and decodes its
	// result into res (which may be nil).
	Evaluate(ctx context.Context, expression string, res any) error

	// Screenshot captures the first element matching a CSS selector as PNG
	Screenshot(ctx context.Context, selector string) ([]byte, error)

	// Info returns browser details
	Info() *BrowserInfo

	// Close releases the browser
	Close() error
}

// Element is a handle to a node of the current page load.
// It goes stale on navigation; operations on a stale handle return an error.
type Element interface {
	Text(ctx context.Context) (string, error)
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)

	// Click performs a native (input-event) click
	Click(ctx context.Context) error
	// ScriptClick performs a DOM-level click, as arguments[0].click()
	ScriptClick(ctx context.Context) error

	Clear(ctx context.Context) error
	// SendKeys appends text to the element's current value
	SendKeys(ctx context.Context, text string) error
	ScrollIntoView(ctx context.Context) error
}

// ElementInfo is a point-in-time snapshot of an element, used in logs and
// reports.
type ElementInfo struct {
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	XPath   string `json:"xpath,omitempty"`
}

// Describe snapshots an element. Errors from the element degrade to zero
// values since the snapshot is informational.
func Describe(ctx context.Context, el Element, xpath string) *ElementInfo {
	info := &ElementInfo{XPath: xpath}
	if el == nil {
		return info
	}
	info.Visible, _ = el.Displayed(ctx)
	info.Enabled, _ = el.Enabled(ctx)
	if info.Visible {
		text, _ := el.Text(ctx)
		info.Text = DisplayText(text)
	}
	return info
}

// DisplayText flattens element text for a single log line.
func DisplayText(text string) string {
	text = strings.ReplaceAll(text, "\n", "<br>")
	text = strings.ReplaceAll(text, "\r", "")
	return strings.TrimSpace(text)
}

// BrowserInfo contains browser session details
type BrowserInfo struct {
	Driver   string `json:"driver"`            // chromedp, playwright, mock
	Browser  string `json:"browser"`           // chrome
	Version  string `json:"version,omitempty"` // e.g., "126.0.6478.126"
	Headless bool   `json:"headless"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Default window size for browser sessions
const (
	DefaultWindowWidth  = 1920
	DefaultWindowHeight = 1080
)

// LogEntry represents a single log message captured during execution
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`  // debug, info, warn, error
	Source    string    `json:"source"` // request, browser, hook
	Message   string    `json:"message"`
}
