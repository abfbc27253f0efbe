// Package steps maps the ParaBank feature sentences to the request and
// element helpers. Each scenario works on its own World; nothing is shared
// between scenarios except the read-only Config.
package steps

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/element"
	"github.com/devicelab-dev/parabank-e2e/pkg/request"
	"github.com/devicelab-dev/parabank-e2e/pkg/wait"
)

// BrowserFactory starts a browser for a @web scenario.
type BrowserFactory func(ctx context.Context) (core.Driver, error)

// PayloadLoader returns the default registration fields.
type PayloadLoader func() (map[string]string, error)

// Config is shared by every scenario of a suite and never mutated.
type Config struct {
	Server     string
	Policy     wait.Policy
	Artifacts  core.ArtifactConfig
	NewBrowser BrowserFactory
	// Registration loads the default payload; nil uses features/test-files.
	Registration PayloadLoader
	// HTTPClient overrides the request client's transport when set.
	HTTPClient *http.Client
	Expander   *Expander
	Logger     *zap.Logger
}

// World is the typed working state of one scenario.
type World struct {
	cfg *Config
	log *zap.Logger

	client  *request.Client
	Request *request.State

	SessionID           request.Optional[string]
	RegistrationPayload request.Optional[map[string]string]

	Browser core.Driver
	Web     *element.Executor

	Scenario string
}

// NewWorld returns an empty world for one scenario.
func NewWorld(cfg *Config) *World {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	opts := []request.Option{request.WithLogger(log.Named("request"))}
	if cfg.HTTPClient != nil {
		opts = append(opts, request.WithHTTPClient(cfg.HTTPClient))
	}
	return &World{
		cfg:     cfg,
		log:     log,
		client:  request.NewClient(cfg.Server, opts...),
		Request: request.NewState(),
	}
}

// response returns the last response or a precondition error.
func (w *World) response() (*request.Response, error) {
	if w.Request.Response == nil {
		return nil, core.MissingAttribute("response")
	}
	return w.Request.Response, nil
}

func (w *World) sessionID() (string, error) {
	sid, ok := w.SessionID.Get()
	if !ok {
		return "", core.MissingAttribute("session_id")
	}
	return sid, nil
}

func (w *World) web() (*element.Executor, error) {
	if w.Web == nil {
		return nil, core.MissingAttribute("browser")
	}
	return w.Web, nil
}

// expand evaluates ${...} in a step argument.
func (w *World) expand(s string) (string, error) {
	return w.cfg.Expander.Expand(s)
}

// openBrowser replaces any running browser with a fresh one.
func (w *World) openBrowser(ctx context.Context) error {
	if w.cfg.NewBrowser == nil {
		return core.ConfigError("no browser driver configured for @web scenarios")
	}
	w.closeBrowser()
	d, err := w.cfg.NewBrowser(ctx)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	w.Browser = d
	w.Web = element.NewExecutor(d, w.cfg.Policy, w.cfg.Server, w.log.Named("element"))
	return nil
}

func (w *World) closeBrowser() {
	if w.Browser == nil {
		return
	}
	if err := w.Browser.Close(); err != nil {
		w.log.Warn("closing browser", zap.Error(err))
	}
	w.Browser = nil
	w.Web = nil
}

func (w *World) defaultRegistration() (map[string]string, error) {
	load := w.cfg.Registration
	if load == nil {
		load = w.cfg.Expander.Registration
	}
	return load()
}

// formEncode renders fields as application/x-www-form-urlencoded.
func formEncode(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := url.Values{}
	for _, k := range keys {
		v.Set(k, fields[k])
	}
	return v.Encode()
}

func copyFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
