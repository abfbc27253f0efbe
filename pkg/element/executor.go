package element

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/locator"
	"github.com/devicelab-dev/parabank-e2e/pkg/wait"
)

// Strategy picks the condition used to resolve the target of an action.
type Strategy int

const (
	LocatePresence  Strategy = iota // wait for presence, then disambiguate (default)
	LocateClickable                 // wait for the first match to be clickable; index ignored
	LocateVisible                   // wait for every match to be visible, then disambiguate
)

// ClickMode selects how a click is delivered.
type ClickMode int

const (
	ClickNative ClickMode = iota // input-event click through the driver
	ClickScript                  // DOM click(), for elements covered by overlays
)

// Action configures one interaction. The zero value is the common case:
// presence strategy, index 0, contains-text matching, native click and the
// policy's settle duration.
type Action struct {
	Index   int
	Exact   bool // by-text lookups use exact text instead of contains
	Locate  Strategy
	Click   ClickMode
	Clear   bool          // SendKeys clears the field first
	Settle  time.Duration // overrides the policy settle when positive
	Timeout time.Duration // overrides the policy timeout when positive
	Message string        // overrides the NotFound message
}

// Executor resolves elements and acts on them.
//
// Each call goes Idle → Resolving → Found → Acting → Settling → Done, or
// Resolving → TimedOut → Failed. An action error after a successful
// resolution is returned as-is; nothing is retried.
type Executor struct {
	res     *Resolver
	baseURL string
	log     *zap.Logger
}

// NewExecutor creates an executor. baseURL is prefixed to OpenPage paths.
func NewExecutor(d core.Driver, policy wait.Policy, baseURL string, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		res:     NewResolver(d, policy, log),
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Resolver exposes the executor's resolver.
func (x *Executor) Resolver() *Resolver { return x.res }

func (x *Executor) resolve(ctx context.Context, query, text string, a Action) (core.Element, error) {
	subject := xpathSubject(query)
	if text != "" {
		subject = textSubject(text)
	}
	opts := Options{Message: a.Message, Timeout: a.Timeout, subject: subject}

	var cond Condition
	switch a.Locate {
	case LocateClickable:
		cond = Clickable
	case LocateVisible:
		cond = Visible
	default:
		cond = Present
	}

	matches, err := x.res.Resolve(ctx, query, cond, opts)
	if err != nil {
		return nil, err
	}
	if cond == Clickable {
		return matches[0], nil
	}
	el, err := Pick(ctx, matches, a.Index, text)
	if err != nil {
		return nil, err
	}

	x.log.Debug("element found",
		zap.String("text", core.Describe(ctx, el, query).Text),
		zap.String("xpath", query))
	return el, nil
}

func textQuery(text string, exact bool) string {
	mode := locator.Contains
	if exact {
		mode = locator.Exact
	}
	return locator.ByText(text, mode).XPath()
}

// WaitFor waits for xpath to be present and returns the element at a.Index.
func (x *Executor) WaitFor(ctx context.Context, xpath string, a Action) (core.Element, error) {
	a.Locate = LocatePresence
	return x.resolve(ctx, xpath, "", a)
}

// WaitForByText waits for an element with the given text to be present.
func (x *Executor) WaitForByText(ctx context.Context, text string, a Action) (core.Element, error) {
	a.Locate = LocatePresence
	return x.resolve(ctx, textQuery(text, a.Exact), text, a)
}

// WaitForAll waits for xpath to be present and returns every match.
func (x *Executor) WaitForAll(ctx context.Context, xpath string, a Action) ([]core.Element, error) {
	return x.res.Resolve(ctx, xpath, Present, Options{Message: a.Message, Timeout: a.Timeout})
}

// Locate waits for xpath to be visible and returns the element at a.Index.
func (x *Executor) Locate(ctx context.Context, xpath string, a Action) (core.Element, error) {
	a.Locate = LocateVisible
	return x.resolve(ctx, xpath, "", a)
}

// LocateByText waits for elements with the given text to be visible.
func (x *Executor) LocateByText(ctx context.Context, text string, a Action) (core.Element, error) {
	a.Locate = LocateVisible
	return x.resolve(ctx, textQuery(text, a.Exact), text, a)
}

// LocateAll waits for every match of xpath to be visible.
func (x *Executor) LocateAll(ctx context.Context, xpath string, a Action) ([]core.Element, error) {
	return x.res.Resolve(ctx, xpath, Visible, Options{Message: a.Message, Timeout: a.Timeout})
}

// Click resolves xpath and clicks it.
func (x *Executor) Click(ctx context.Context, xpath string, a Action) error {
	el, err := x.resolve(ctx, xpath, "", a)
	if err != nil {
		return err
	}
	return x.click(ctx, el, xpath, a)
}

// ClickByText resolves an element by its text and clicks it.
func (x *Executor) ClickByText(ctx context.Context, text string, a Action) error {
	query := textQuery(text, a.Exact)
	el, err := x.resolve(ctx, query, text, a)
	if err != nil {
		return err
	}
	return x.click(ctx, el, query, a)
}

func (x *Executor) click(ctx context.Context, el core.Element, query string, a Action) error {
	x.log.Debug("clicking element",
		zap.String("text", core.Describe(ctx, el, query).Text),
		zap.Bool("script", a.Click == ClickScript))

	var err error
	if a.Click == ClickScript {
		err = el.ScriptClick(ctx)
	} else {
		err = el.Click(ctx)
	}
	if err != nil {
		return fmt.Errorf("click %s: %w", query, err)
	}
	return wait.Sleep(ctx, x.res.policy.SettleFor(a.Settle))
}

// SendKeys resolves xpath and types keys into it.
func (x *Executor) SendKeys(ctx context.Context, xpath, keys string, a Action) error {
	el, err := x.resolve(ctx, xpath, "", a)
	if err != nil {
		return err
	}
	x.log.Debug("sending keys", zap.String("keys", keys), zap.String("xpath", xpath))
	return x.sendKeys(ctx, el, xpath, keys, a)
}

// SendKeysByText resolves an element by its text and types keys into it.
func (x *Executor) SendKeysByText(ctx context.Context, text, keys string, a Action) error {
	query := textQuery(text, a.Exact)
	el, err := x.resolve(ctx, query, text, a)
	if err != nil {
		return err
	}
	x.log.Debug("sending keys", zap.String("keys", keys), zap.String("text", text))
	return x.sendKeys(ctx, el, query, keys, a)
}

func (x *Executor) sendKeys(ctx context.Context, el core.Element, query, keys string, a Action) error {
	if a.Clear {
		if err := el.Clear(ctx); err != nil {
			return fmt.Errorf("clear %s: %w", query, err)
		}
	}
	if err := el.SendKeys(ctx, keys); err != nil {
		return fmt.Errorf("send keys to %s: %w", query, err)
	}
	return wait.Sleep(ctx, x.res.policy.SettleFor(a.Settle))
}

// OpenPage navigates to baseURL+path. When waitXPath is set it also waits
// for that element to be present.
func (x *Executor) OpenPage(ctx context.Context, path, waitXPath string, a Action) error {
	full := x.baseURL + path
	x.log.Debug("loading page", zap.String("url", full))
	if err := x.res.driver.Open(ctx, full); err != nil {
		return fmt.Errorf("open %s: %w", full, err)
	}
	if waitXPath == "" {
		return nil
	}
	if a.Message == "" {
		a.Message = fmt.Sprintf(`Timed out waiting for page to load element with xpath: "%s".`, waitXPath)
	}
	_, err := x.WaitFor(ctx, waitXPath, a)
	return err
}

// Scroll scripts. Expressions, not function bodies, so every driver can
// evaluate them.
const (
	ScrollHeightScript   = "document.body.scrollHeight"
	ScrollToBottomScript = "window.scrollTo(0, document.body.scrollHeight)"
)

// maxScrolls bounds ScrollToBottom on pages that never stop growing.
const maxScrolls = 50

// ScrollToBottom scrolls until the page height stops changing.
func (x *Executor) ScrollToBottom(ctx context.Context, settle time.Duration) error {
	d := x.res.driver
	var last int64
	if err := d.Evaluate(ctx, ScrollHeightScript, &last); err != nil {
		return fmt.Errorf("read scroll height: %w", err)
	}
	for i := 0; i < maxScrolls; i++ {
		if err := d.Evaluate(ctx, ScrollToBottomScript, nil); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		if err := wait.Sleep(ctx, x.res.policy.SettleFor(settle)); err != nil {
			return err
		}
		var height int64
		if err := d.Evaluate(ctx, ScrollHeightScript, &height); err != nil {
			return fmt.Errorf("read scroll height: %w", err)
		}
		if height == last {
			return nil
		}
		last = height
	}
	x.log.Warn("page kept growing while scrolling", zap.Int("scrolls", maxScrolls))
	return nil
}

// ScrollTo waits for xpath and scrolls it into view.
func (x *Executor) ScrollTo(ctx context.Context, xpath string, a Action) (core.Element, error) {
	el, err := x.WaitFor(ctx, xpath, a)
	if err != nil {
		return nil, err
	}
	if err := el.ScrollIntoView(ctx); err != nil {
		return nil, fmt.Errorf("scroll to %s: %w", xpath, err)
	}
	if err := wait.Sleep(ctx, x.res.policy.SettleFor(a.Settle)); err != nil {
		return nil, err
	}
	return el, nil
}
