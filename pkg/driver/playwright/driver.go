// Package playwright drives Chromium through playwright-go. It is the
// alternate browser driver, selected with --driver playwright.
package playwright

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures the browser.
type Options struct {
	Headless bool
	Width    int
	Height   int
	// Timeout bounds each playwright call, in milliseconds.
	// Polling lives in the element layer, so this only guards against hangs.
	Timeout float64
	Logger  *zap.Logger
}

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 30000

// Driver implements core.Driver with a playwright page.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
	info    *core.BrowserInfo
	log     *zap.Logger
}

// New starts playwright, launches Chromium and opens a page.
func New(opts Options) (*Driver, error) {
	if opts.Width == 0 {
		opts.Width = core.DefaultWindowWidth
	}
	if opts.Height == 0 {
		opts.Height = core.DefaultWindowHeight
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: opts.Width, Height: opts.Height},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("open page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)
	page.SetDefaultNavigationTimeout(opts.Timeout)

	d := &Driver{
		pw:      pw,
		browser: browser,
		page:    page,
		log:     log,
		info: &core.BrowserInfo{
			Driver:   "playwright",
			Browser:  "chrome",
			Version:  browser.Version(),
			Headless: opts.Headless,
			Width:    opts.Width,
			Height:   opts.Height,
		},
	}
	log.Info("browser started", zap.String("driver", "playwright"), zap.String("version", d.info.Version), zap.Bool("headless", opts.Headless))
	return d, nil
}

func (d *Driver) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	return err
}

// FindAll resolves every match of xpath into an nth-locator.
func (d *Driver) FindAll(ctx context.Context, xpath string) ([]core.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	locs, err := d.page.Locator("xpath=" + xpath).All()
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", xpath, err)
	}
	out := make([]core.Element, len(locs))
	for i, l := range locs {
		out[i] = &Element{loc: l}
	}
	return out, nil
}

// Evaluate runs expression and decodes the result through JSON.
func (d *Driver) Evaluate(ctx context.Context, expression string, res any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := d.page.Evaluate(expression)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	if res == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, res)
}

func (d *Driver) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.page.Locator(selector).First().Screenshot()
}

func (d *Driver) Info() *core.BrowserInfo { return d.info }

// Close closes the browser and stops the playwright server.
func (d *Driver) Close() error {
	if d.pw == nil {
		return nil
	}
	var errs []string
	if err := d.browser.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := d.pw.Stop(); err != nil {
		errs = append(errs, err.Error())
	}
	d.pw = nil
	if len(errs) > 0 {
		return fmt.Errorf("close playwright: %s", strings.Join(errs, "; "))
	}
	d.log.Info("browser closed", zap.String("driver", "playwright"))
	return nil
}

// Element wraps a locator pinned to one match.
type Element struct {
	loc playwright.Locator
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.loc.InnerText()
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsVisible()
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.loc.IsEnabled()
}

func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Click()
}

// ScriptClick calls the DOM click() so overlays cannot intercept it.
func (e *Element) ScriptClick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.loc.Evaluate("el => el.click()", nil)
	return err
}

func (e *Element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.Clear()
}

// SendKeys types text after the current value.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.Focus(); err != nil {
		return err
	}
	if err := e.loc.Press("End"); err != nil {
		return err
	}
	return e.loc.PressSequentially(text)
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.loc.ScrollIntoViewIfNeeded()
}
