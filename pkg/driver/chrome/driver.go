// Package chrome drives Chrome over the DevTools protocol with chromedp.
// It is the default browser driver.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// Options configures the Chrome process.
type Options struct {
	Headless bool
	Width    int
	Height   int
	ExecPath string         // empty uses chromedp's lookup
	Flags    map[string]any // extra command line switches
	Logger   *zap.Logger
}

// Driver implements core.Driver on top of a chromedp browser context.
type Driver struct {
	ctx         context.Context // chromedp target context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	info        *core.BrowserInfo
	log         *zap.Logger
}

// New launches Chrome and opens a blank tab.
func New(opts Options) (*Driver, error) {
	if opts.Width == 0 {
		opts.Width = core.DefaultWindowWidth
	}
	if opts.Height == 0 {
		opts.Height = core.DefaultWindowHeight
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	alloc := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.ExecPath != "" {
		alloc = append(alloc, chromedp.ExecPath(opts.ExecPath))
	}
	for k, v := range opts.Flags {
		alloc = append(alloc, chromedp.Flag(k, v))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), alloc...)
	sugar := log.Sugar()
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf))

	var product string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, product, _, _, _, err = browser.GetVersion().Do(ctx)
		return err
	}))
	if err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	version := product
	if _, v, ok := strings.Cut(product, "/"); ok {
		version = v
	}
	d := &Driver{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		log:         log,
		info: &core.BrowserInfo{
			Driver:   "chromedp",
			Browser:  "chrome",
			Version:  version,
			Headless: opts.Headless,
			Width:    opts.Width,
			Height:   opts.Height,
		},
	}
	log.Info("browser started", zap.String("driver", "chromedp"), zap.String("version", version), zap.Bool("headless", opts.Headless))
	return d, nil
}

// run executes actions on the browser tab, aborting when ctx is done.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Open navigates and waits for the load event.
func (d *Driver) Open(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// FindAll runs the XPath through DOM.performSearch.
func (d *Driver) FindAll(ctx context.Context, xpath string) ([]core.Element, error) {
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %s: %w", xpath, err)
	}
	out := make([]core.Element, 0, len(nodes))
	for _, n := range nodes {
		// performSearch also matches text and attribute nodes
		if n.NodeType != cdp.NodeTypeElement {
			continue
		}
		out = append(out, &Element{d: d, node: n})
	}
	return out, nil
}

// Evaluate runs a JavaScript expression in the page.
func (d *Driver) Evaluate(ctx context.Context, expression string, res any) error {
	return d.run(ctx, chromedp.Evaluate(expression, res))
}

// Screenshot captures the first element matching a CSS selector.
func (d *Driver) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", selector, err)
	}
	return buf, nil
}

// Info returns browser details.
func (d *Driver) Info() *core.BrowserInfo { return d.info }

// Close shuts the tab and the Chrome process.
func (d *Driver) Close() error {
	if d.cancel == nil {
		return nil
	}
	err := chromedp.Cancel(d.ctx)
	d.cancel()
	d.allocCancel()
	d.cancel = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close chrome: %w", err)
	}
	d.log.Info("browser closed", zap.String("driver", "chromedp"))
	return nil
}

// Element is a DOM node of the current document.
type Element struct {
	d    *Driver
	node *cdp.Node
}

// JavaScript bodies called with the node bound to this.
const textJS = `function() { return this.innerText !== undefined ? this.innerText : this.textContent; }`

// displayedJS follows WebDriver's isDisplayed, reduced to layout and visibility.
const displayedJS = `function() {
	if (this.nodeName === 'INPUT' && this.type === 'hidden') { return false; }
	const s = window.getComputedStyle(this);
	if (s.visibility === 'hidden' || s.display === 'none') { return false; }
	return !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length);
}`

const enabledJS = `function() { return !this.disabled; }`

const clickJS = `function() { this.click(); }`

const clearJS = `function() {
	if ('value' in this) { this.value = ''; }
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

// call invokes fn with this bound to the element.
func (e *Element) call(ctx context.Context, fn string, res any) error {
	return e.d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()
		return chromedp.CallFunctionOn(fn, res, func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
			return p.WithObjectID(obj.ObjectID)
		}).Do(ctx)
	}))
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, textJS, &s)
	return s, err
}

func (e *Element) Displayed(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, displayedJS, &ok)
	return ok, err
}

func (e *Element) Enabled(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, enabledJS, &ok)
	return ok, err
}

// Click dispatches mouse events at the node's center.
func (e *Element) Click(ctx context.Context) error {
	return e.d.run(ctx, chromedp.MouseClickNode(e.node))
}

func (e *Element) ScriptClick(ctx context.Context) error {
	return e.call(ctx, clickJS, nil)
}

func (e *Element) Clear(ctx context.Context) error {
	return e.call(ctx, clearJS, nil)
}

// SendKeys focuses the node and types text as key events.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	return e.d.run(ctx, chromedp.KeyEventNode(e.node, text))
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	return e.d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID).Do(ctx)
	}))
}
