// Package mock provides an in-memory browser for testing without Chrome.
// Pages are static HTML; queries run real XPath through htmlquery.
package mock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/html"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrStale is returned by element operations after the page changed.
var ErrStale = errors.New("stale element reference: element is not attached to the page document")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("browser session closed")

// minimalPNG is a valid 1x1 transparent PNG.
var minimalPNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89, 0x00, 0x00, 0x00,
	0x0A, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
}

// Config configures mock driver behavior.
type Config struct {
	// Pages maps absolute URLs to HTML documents
	Pages map[string]string
	// Scripts maps JavaScript expressions to the value Evaluate returns
	Scripts map[string]func() any
	// OnFind runs before each FindAll with the 1-based call count;
	// tests use it to mutate the document between polls
	OnFind func(call int, d *Driver)
	// FindDelay adds artificial latency per query
	FindDelay time.Duration
	// FailScreenshot makes Screenshot return an error
	FailScreenshot bool
}

// Driver is a mock implementation of core.Driver.
type Driver struct {
	Config Config

	mu      sync.Mutex
	doc     *html.Node
	current string
	gen     int
	finds   int
	closed  bool
	actions []string
}

// New creates a new mock driver with a blank document.
func New(cfg Config) *Driver {
	if cfg.Pages == nil {
		cfg.Pages = map[string]string{}
	}
	if cfg.Scripts == nil {
		cfg.Scripts = map[string]func() any{}
	}
	d := &Driver{Config: cfg}
	d.doc, _ = htmlquery.Parse(strings.NewReader("<html><body></body></html>"))
	return d
}

// Open loads a registered page.
func (d *Driver) Open(ctx context.Context, rawURL string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.navigateLocked(rawURL)
}

func (d *Driver) navigateLocked(rawURL string) error {
	if d.closed {
		return ErrClosed
	}
	page, ok := d.Config.Pages[rawURL]
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED: no page registered for %s", rawURL)
	}
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	d.doc = doc
	d.current = rawURL
	d.gen++
	d.actions = append(d.actions, "open:"+rawURL)
	return nil
}

// SetHTML replaces the current document in place, invalidating handles.
func (d *Driver) SetHTML(page string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		panic(err)
	}
	d.doc = doc
	d.gen++
}

// FindAll evaluates xpath against the current document.
func (d *Driver) FindAll(ctx context.Context, xpath string) ([]core.Element, error) {
	d.mu.Lock()
	d.finds++
	call := d.finds
	hook := d.Config.OnFind
	d.mu.Unlock()

	if hook != nil {
		hook(call, d)
	}
	if d.Config.FindDelay > 0 {
		time.Sleep(d.Config.FindDelay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	nodes, err := htmlquery.QueryAll(d.doc, xpath)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", xpath, err)
	}
	elems := make([]core.Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &Element{d: d, node: n, gen: d.gen})
	}
	return elems, nil
}

// Evaluate returns the registered value for expression.
func (d *Driver) Evaluate(ctx context.Context, expression string, res any) error {
	d.mu.Lock()
	fn, ok := d.Config.Scripts[expression]
	closed := d.closed
	d.actions = append(d.actions, "eval:"+expression)
	d.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		if res == nil {
			return nil
		}
		return fmt.Errorf("no script registered for %q", expression)
	}
	v := fn()
	if res == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, res)
}

// Screenshot returns a minimal PNG when selector matches.
func (d *Driver) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.Config.FailScreenshot {
		return nil, errors.New("mock screenshot failure")
	}
	if htmlquery.FindOne(d.doc, "//"+selector) == nil {
		return nil, fmt.Errorf("no element matches selector %q", selector)
	}
	d.actions = append(d.actions, "screenshot:"+selector)
	return minimalPNG, nil
}

// Info returns mock browser info.
func (d *Driver) Info() *core.BrowserInfo {
	return &core.BrowserInfo{
		Driver:   "mock",
		Browser:  "chrome",
		Version:  "mock",
		Headless: true,
		Width:    core.DefaultWindowWidth,
		Height:   core.DefaultWindowHeight,
	}
}

// Close marks the session closed.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// URL returns the current page URL.
func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Finds returns how many queries were issued.
func (d *Driver) Finds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds
}

// Actions returns the recorded interactions.
func (d *Driver) Actions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.actions...)
}

// Value returns the value attribute of the first node matching xpath.
func (d *Driver) Value(xpath string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := htmlquery.FindOne(d.doc, xpath)
	if n == nil {
		return ""
	}
	return htmlquery.SelectAttr(n, "value")
}

// Element is a node of the mock document.
type Element struct {
	d    *Driver
	node *html.Node
	gen  int
}

func (e *Element) lock() error {
	e.d.mu.Lock()
	if e.d.closed {
		e.d.mu.Unlock()
		return ErrClosed
	}
	if e.gen != e.d.gen {
		e.d.mu.Unlock()
		return ErrStale
	}
	return nil
}

// Text returns the node's inner text.
func (e *Element) Text(ctx context.Context) (string, error) {
	if err := e.lock(); err != nil {
		return "", err
	}
	defer e.d.mu.Unlock()
	return htmlquery.InnerText(e.node), nil
}

// Displayed is false when the node or an ancestor is hidden.
func (e *Element) Displayed(ctx context.Context) (bool, error) {
	if err := e.lock(); err != nil {
		return false, err
	}
	defer e.d.mu.Unlock()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hasAttr(n, "hidden") {
			return false, nil
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(n, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false, nil
		}
		if n.Data == "input" && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
			return false, nil
		}
	}
	return true, nil
}

// Enabled is false when the node carries a disabled attribute.
func (e *Element) Enabled(ctx context.Context) (bool, error) {
	if err := e.lock(); err != nil {
		return false, err
	}
	defer e.d.mu.Unlock()
	return !hasAttr(e.node, "disabled"), nil
}

// Click follows links and submits forms when the target page is registered.
func (e *Element) Click(ctx context.Context) error {
	return e.click("click")
}

// ScriptClick behaves like Click but is recorded separately.
func (e *Element) ScriptClick(ctx context.Context) error {
	return e.click("scriptclick")
}

func (e *Element) click(kind string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.d.mu.Unlock()

	e.d.actions = append(e.d.actions, kind+":"+strings.TrimSpace(label(e.node)))

	target := ""
	if href := htmlquery.SelectAttr(e.node, "href"); href != "" {
		target = href
	} else if isSubmit(e.node) {
		if form := ancestor(e.node, "form"); form != nil {
			target = htmlquery.SelectAttr(form, "action")
		}
	}
	if target == "" {
		return nil
	}
	next, err := resolve(e.d.current, target)
	if err != nil {
		return err
	}
	if _, ok := e.d.Config.Pages[next]; !ok {
		return nil
	}
	return e.d.navigateLocked(next)
}

// Clear empties the value attribute.
func (e *Element) Clear(ctx context.Context) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.d.mu.Unlock()
	setAttr(e.node, "value", "")
	e.d.actions = append(e.d.actions, "clear:"+htmlquery.SelectAttr(e.node, "name"))
	return nil
}

// SendKeys appends text to the value attribute.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.d.mu.Unlock()
	setAttr(e.node, "value", htmlquery.SelectAttr(e.node, "value")+text)
	e.d.actions = append(e.d.actions, "type:"+htmlquery.SelectAttr(e.node, "name")+"="+text)
	return nil
}

// ScrollIntoView is recorded only.
func (e *Element) ScrollIntoView(ctx context.Context) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.d.mu.Unlock()
	e.d.actions = append(e.d.actions, "scroll:"+strings.TrimSpace(label(e.node)))
	return nil
}

func label(n *html.Node) string {
	if v := htmlquery.SelectAttr(n, "value"); v != "" && n.Data == "input" {
		return v
	}
	return htmlquery.InnerText(n)
}

func isSubmit(n *html.Node) bool {
	t := strings.ToLower(htmlquery.SelectAttr(n, "type"))
	return (n.Data == "input" || n.Data == "button") && t == "submit"
}

func ancestor(n *html.Node, tag string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == tag {
			return p
		}
	}
	return nil
}

func resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
