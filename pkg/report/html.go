package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath  string // Path to write the HTML file (default: <dir>/report.html)
	EmbedAssets bool   // Embed screenshots as base64 (makes file larger but portable)
	Title       string // Report title (default: "ParaBank E2E Report")
}

// DefaultTitle is used when the suite has no name.
const DefaultTitle = "ParaBank E2E Report"

// GenerateHTML generates an HTML report from the report directory.
func GenerateHTML(reportDir string, cfg HTMLConfig) error {
	index, scenarios, err := ReadReport(reportDir)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(reportDir, HTMLFile)
	}

	data := buildHTMLData(reportDir, index, scenarios, cfg)

	html, err := renderHTML(data)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}

	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Title         string
	GeneratedAt   string
	Index         *Index
	Scenarios     []ScenarioHTMLData
	TotalDuration string
	PassRate      float64
}

// ScenarioHTMLData contains scenario data formatted for HTML.
type ScenarioHTMLData struct {
	ScenarioDetail
	StatusClass string
	DurationStr string
	Steps       []StepHTMLData
}

// StepHTMLData contains step data formatted for HTML.
type StepHTMLData struct {
	Step
	StatusClass string
	DurationStr string
	Screenshot  string // data URI or relative path
}

func buildHTMLData(reportDir string, index *Index, scenarios []ScenarioDetail, cfg HTMLConfig) HTMLData {
	data := HTMLData{
		Title:       cfg.Title,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Index:       index,
		Scenarios:   make([]ScenarioHTMLData, len(scenarios)),
	}

	for i, sc := range scenarios {
		steps := make([]StepHTMLData, len(sc.Steps))
		for j, st := range sc.Steps {
			s := StepHTMLData{
				Step:        st,
				StatusClass: string(st.Status),
				DurationStr: formatDuration(st.Duration),
			}
			if p := st.Artifacts.Screenshot; p != "" {
				if cfg.EmbedAssets {
					s.Screenshot = loadAsBase64(filepath.Join(reportDir, p))
				} else {
					s.Screenshot = filepath.ToSlash(p)
				}
			}
			steps[j] = s
		}
		data.Scenarios[i] = ScenarioHTMLData{
			ScenarioDetail: sc,
			StatusClass:    string(sc.Status),
			DurationStr:    formatDuration(sc.Duration),
			Steps:          steps,
		}
	}

	if index.Summary.Total > 0 {
		data.PassRate = float64(index.Summary.Passed) / float64(index.Summary.Total) * 100
	}
	end := index.LastUpdated
	if index.EndTime != nil {
		end = *index.EndTime
	}
	ms := end.Sub(index.StartTime).Milliseconds()
	data.TotalDuration = formatDuration(&ms)
	return data
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", *ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	data, err := os.ReadFile(path) //#nosec G304 -- report asset
	if err != nil {
		return ""
	}
	mimeType := "image/png"
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".jpg" || ext == ".jpeg" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

var funcs = template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.0f%%", f) },
	"url": func(s string) template.URL { return template.URL(s) }, //#nosec G203 -- data URIs built from local files
}

var reportTemplate = template.Must(template.New("report").Funcs(funcs).Parse(htmlTemplate))

func renderHTML(data HTMLData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --text-primary: #000000;
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --passed: #22c55e;
            --failed: #ef4444;
            --skipped: #eab308;
            --undefined: #a855f7;
            --running: #06b6d4;
            --pending: #6b7280;
        }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.5;
        }
        .header { background: var(--bg-secondary); border-bottom: 1px solid var(--border-color); padding: 16px 24px; }
        .header h1 { font-size: 20px; }
        .meta { color: var(--text-muted); font-size: 13px; }
        .summary { display: flex; gap: 24px; margin-top: 12px; font-size: 14px; }
        .summary b { font-size: 18px; display: block; }
        main { padding: 16px 24px; }
        details.scenario { border: 1px solid var(--border-color); border-radius: 6px; margin-bottom: 8px; }
        details.scenario > summary { cursor: pointer; padding: 8px 12px; display: flex; gap: 12px; align-items: center; }
        .badge { font-size: 12px; text-transform: uppercase; font-weight: 600; min-width: 72px; }
        .passed .badge, .step.passed .badge { color: var(--passed); }
        .failed .badge, .step.failed .badge { color: var(--failed); }
        .skipped .badge, .step.skipped .badge { color: var(--skipped); }
        .undefined .badge, .step.undefined .badge { color: var(--undefined); }
        .feature { color: var(--text-muted); font-size: 13px; }
        .duration { margin-left: auto; color: var(--text-muted); font-size: 13px; }
        ol.steps { list-style: none; padding: 0 12px 12px; }
        .step { display: flex; gap: 12px; padding: 4px 0; border-top: 1px solid var(--border-color); flex-wrap: wrap; }
        .step .keyword { font-weight: 600; }
        .error { width: 100%; color: var(--failed); font-family: monospace; font-size: 12px; white-space: pre-wrap; }
        .screenshot img { max-width: 480px; border: 1px solid var(--border-color); margin-top: 4px; }
    </style>
</head>
<body>
<div class="header">
    <h1>{{.Title}}</h1>
    <div class="meta">
        Run {{.Index.RunID}} against {{.Index.Server}} · status {{.Index.Status}} · generated {{.GeneratedAt}}
        {{- with .Index.Browser}} · {{.Browser}} {{.Version}} ({{.Driver}}{{if .Headless}}, headless{{end}}){{end}}
        {{- with .Index.CI}} · {{.Provider}} {{.BuildID}}{{end}}
    </div>
    <div class="summary">
        <div><b>{{.Index.Summary.Total}}</b>scenarios</div>
        <div><b>{{.Index.Summary.Passed}}</b>passed</div>
        <div><b>{{.Index.Summary.Failed}}</b>failed</div>
        <div><b>{{.Index.Summary.Skipped}}</b>skipped</div>
        <div><b>{{.Index.Summary.Undefined}}</b>undefined</div>
        <div><b>{{pct .PassRate}}</b>pass rate</div>
        <div><b>{{.TotalDuration}}</b>duration</div>
    </div>
</div>
<main>
{{- range .Scenarios}}
    <details class="scenario {{.StatusClass}}" {{if eq .StatusClass "failed"}}open{{end}}>
        <summary>
            <span class="badge">{{.Status}}</span>
            <span>{{.Name}}</span>
            <span class="feature">{{.Feature}}{{range .Tags}} {{.}}{{end}}</span>
            <span class="duration">{{.DurationStr}}</span>
        </summary>
        <ol class="steps">
        {{- range .Steps}}
            <li class="step {{.StatusClass}}">
                <span class="badge">{{.Status}}</span>
                <span><span class="keyword">{{.Keyword}}</span> {{.Text}}</span>
                <span class="duration">{{.DurationStr}}</span>
                {{- with .Error}}
                <div class="error">[{{.Type}}] {{.Message}}</div>
                {{- end}}
                {{- if .Screenshot}}
                <div class="screenshot"><img src="{{url .Screenshot}}" alt="screenshot"></div>
                {{- end}}
            </li>
        {{- end}}
        </ol>
    </details>
{{- else}}
    <p class="meta">No scenarios finished yet.</p>
{{- end}}
</main>
</body>
</html>
`
