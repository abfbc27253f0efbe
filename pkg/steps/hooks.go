package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// Scenario tags with a lifecycle meaning. Feature tags are inherited.
const (
	TagWeb           = "@web"
	TagCreateAccount = "@create_account"
)

// InitializeScenario returns a godog scenario initializer bound to cfg.
// Every scenario gets a fresh World.
func InitializeScenario(cfg *Config) func(*godog.ScenarioContext) {
	return func(sc *godog.ScenarioContext) {
		w := NewWorld(cfg)
		w.register(sc)

		sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
			w.Scenario = s.Name
			w.log = w.log.With(zap.String("scenario", s.Name))
			w.log.Info("scenario started")

			if hasTag(s, TagWeb) {
				if err := w.openBrowser(ctx); err != nil {
					return ctx, err
				}
				ctx = context.WithValue(ctx, browserKey{}, w.Browser.Info())
			}
			if hasTag(s, TagCreateAccount) {
				if err := w.createAccount(ctx); err != nil {
					return ctx, fmt.Errorf("create account: %w", err)
				}
			}
			return ctx, nil
		})

		sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
			if status == godog.StepFailed {
				w.log.Error("step failed", zap.String("step", st.Text), zap.Error(err))
				return w.captureFailure(ctx), nil
			}
			return ctx, nil
		})

		sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
			w.closeBrowser()
			if err != nil {
				w.log.Info("scenario finished", zap.String("status", "failed"))
			} else {
				w.log.Info("scenario finished", zap.String("status", "passed"))
			}
			return ctx, nil
		})
	}
}

type browserKey struct{}

// BrowserFromContext returns the browser of a @web scenario, as seen by
// hooks registered after InitializeScenario.
func BrowserFromContext(ctx context.Context) *core.BrowserInfo {
	info, _ := ctx.Value(browserKey{}).(*core.BrowserInfo)
	return info
}

func hasTag(s *godog.Scenario, tag string) bool {
	for _, t := range s.Tags {
		if t.Name == tag {
			return true
		}
	}
	return false
}

// captureFailure saves a screenshot of the page body next to the other
// screenshots and attaches it to the step. Failures here are only logged.
func (w *World) captureFailure(ctx context.Context) context.Context {
	if w.Browser == nil || !w.cfg.Artifacts.ShouldCapture(core.StatusFailed) {
		return ctx
	}
	if err := os.MkdirAll(w.cfg.Artifacts.Dir, 0o755); err != nil {
		w.log.Warn("creating screenshots dir", zap.Error(err))
		return ctx
	}
	png, err := w.Browser.Screenshot(ctx, core.ScreenshotSelector)
	if err != nil {
		w.log.Warn("taking screenshot", zap.Error(err))
		return ctx
	}
	path := w.cfg.Artifacts.ScreenshotPath(w.Scenario)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		w.log.Warn("saving screenshot", zap.String("path", path), zap.Error(err))
		return ctx
	}
	w.log.Info("screenshot saved", zap.String("path", path))
	return godog.Attach(ctx, godog.Attachment{
		Body:      png,
		FileName:  filepath.Base(path),
		MediaType: core.ContentTypePNG,
	})
}

// stepDefiner is the part of *godog.ScenarioContext the catalog needs.
type stepDefiner interface {
	Step(expr, stepFunc interface{})
}

type expressions []string

func (e *expressions) Step(expr, _ interface{}) {
	*e = append(*e, expr.(string))
}

// Definitions returns the expression of every step in the catalog, in
// registration order.
func Definitions() []*regexp.Regexp {
	var exprs expressions
	NewWorld(&Config{}).register(&exprs)

	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// register binds every sentence of the catalog to the world.
func (w *World) register(sc stepDefiner) {
	// api: homepage and registration
	sc.Step(`^the user has a public endpoint to visit homepage of parabank\.$`, w.homepageEndpoint)
	sc.Step(`^the user makes the "([^"]*)" request to the endpoint\.$`, func(ctx context.Context, method string) error {
		return w.makeRequest(ctx, method)
	})
	sc.Step(`^the request passes with the status code "([^"]*)"\.$`, w.expanded(w.requestStatus))
	sc.Step(`^the request fails with the status code "([^"]*)"\.$`, w.expanded(w.requestStatus))
	sc.Step(`^the user receives a "([^"]*)" as a token\.$`, w.expanded(w.receivesToken))
	sc.Step(`^the user has already visited the homepage of parabank\.$`, w.alreadyVisitedHomepage)
	sc.Step(`^the user has "([^"]*)" JSESSIONID as a token\.$`, w.expanded(w.sessionStatus))
	sc.Step(`^the user has a public endpoint to visit the registration page of Parabank\.$`, w.registrationPageEndpoint)
	sc.Step(`^the user has already visited the registration page of parabank with "([^"]*)" JSESSIONID\.$`, func(ctx context.Context, status string) error {
		return w.alreadyOnRegistrationPageAPI(ctx, status)
	})
	sc.Step(`^the user has a public endpoint to register a customer account\.$`, w.registerEndpoint)
	sc.Step(`^the user has a payload for account registration\.$`, w.registrationPayload)
	sc.Step(`^the customer account is registered successfully\.$`, w.noop)
	sc.Step(`^the customer account is not registered\.$`, w.noop)

	// api: login
	sc.Step(`^the user has a public endpoint to login into the customer account\.$`, w.loginEndpoint)
	sc.Step(`^the user has "([^"]*)" credentials to login into the customer account\.$`, w.expanded(w.credentials))
	sc.Step(`^the user can see the message "([^"]*)"\.$`, w.expanded(w.responseContains))
	sc.Step(`^the user has already logged into the customer account using "valid" credentials\.$`, w.alreadyLoggedIn)
	sc.Step(`^the user has a private endpoint to visit the dashboard overview of parabank\.$`, w.overviewEndpoint)
	sc.Step(`^the user has a private endpoint to logout of the customer account of parabank\.$`, w.logoutEndpoint)

	// web
	sc.Step(`^the user is on the home page of Parabank\.$`, w.onHomePage)
	sc.Step(`^the user clicks on the "([^"]*)" button\.$`, w.expandedCtx(w.clicksButton))
	sc.Step(`^the user is redirected to "([^"]*)" page\.$`, w.expanded(w.redirectedTo))
	sc.Step(`^the user can see a message "([^"]*)"\.$`, w.expandedCtx(w.seesMessage))
	sc.Step(`^the user is already on the registration page of Parabank\.$`, w.alreadyOnRegistrationPageWeb)
	sc.Step(`^the user enters "([^"]*)" in the "([^"]*)" field\.$`, func(ctx context.Context, value, field string) error {
		v, err := w.expand(value)
		if err != nil {
			return err
		}
		return w.entersField(ctx, v, field)
	})
	sc.Step(`^the user submits the form by clicking on the Register button\.$`, w.submitsRegistration)
}

func (w *World) expanded(fn func(string) error) func(string) error {
	return func(arg string) error {
		v, err := w.expand(arg)
		if err != nil {
			return err
		}
		return fn(v)
	}
}

func (w *World) expandedCtx(fn func(context.Context, string) error) func(context.Context, string) error {
	return func(ctx context.Context, arg string) error {
		v, err := w.expand(arg)
		if err != nil {
			return err
		}
		return fn(ctx, v)
	}
}
