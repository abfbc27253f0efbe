package element

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/driver/mock"
	"github.com/devicelab-dev/parabank-e2e/pkg/locator"
	"github.com/devicelab-dev/parabank-e2e/pkg/wait"
)

const base = "http://parabank.test"

var fastPolicy = wait.Policy{
	Timeout:  150 * time.Millisecond,
	Interval: 10 * time.Millisecond,
}

const homePage = `<html><body>
<div id="leftPanel">
  <h2>Customer Login</h2>
  <a href="register.htm">Register</a>
  <a href="lookup.htm">Forgot login info?</a>
</div>
<div id="rightPanel">
  <p>Register today</p>
  <input type="submit" value="Log In" disabled/>
  <p style="display: none">Hidden notice</p>
</div>
</body></html>`

const registerPage = `<html><body>
<h1 class="title">Signing up is easy!</h1>
<form action="register.htm" method="post">
<table>
<tr><td>First Name:</td><td><input name="customer.firstName" value="prefilled"/></td></tr>
<tr><td>Last Name:</td><td><input name="customer.lastName"/></td></tr>
</table>
<input type="submit" value="Register"/>
</form>
</body></html>`

const registeredPage = `<html><body><p>Your account was created successfully. You are now logged in.</p></body></html>`

func newDriver(t *testing.T) *mock.Driver {
	t.Helper()
	d := mock.New(mock.Config{Pages: map[string]string{
		base + "/parabank/index.htm":    homePage,
		base + "/parabank/register.htm": registerPage,
	}})
	require.NoError(t, d.Open(context.Background(), base+"/parabank/index.htm"))
	return d
}

func TestResolve_Present(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(d, fastPolicy, nil)

	els, err := r.Resolve(context.Background(), locator.ByText("Register", locator.Contains).XPath(), Present, Options{})

	require.NoError(t, err)
	require.Len(t, els, 2)
	first, _ := els[0].Text(context.Background())
	second, _ := els[1].Text(context.Background())
	assert.Equal(t, "Register", first)
	assert.Equal(t, "Register today", second)
}

func TestResolve_AppearsAfterPolling(t *testing.T) {
	d := newDriver(t)
	d.Config.OnFind = func(call int, d *mock.Driver) {
		if call == 3 {
			d.SetHTML(`<html><body><span>Loaded</span></body></html>`)
		}
	}
	r := NewResolver(d, wait.Policy{Timeout: time.Second, Interval: 5 * time.Millisecond}, nil)

	els, err := r.Resolve(context.Background(), `.//span`, Present, Options{})

	require.NoError(t, err)
	assert.Len(t, els, 1)
	assert.Equal(t, 3, d.Finds())
}

func TestResolve_TimeoutDefaultMessages(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(d, fastPolicy, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		xpath string
		cond  Condition
		want  string
	}{
		{"present", `.//table`, Present, `Elements with xpath ".//table" did not appear on the web page.`},
		{"visible", `.//p[contains(text(), 'Hidden')]`, Visible, `Could not locate elements with xpath ".//p[contains(text(), 'Hidden')]".`},
		{"clickable", `.//input[@value='Log In']`, Clickable, `Element with xpath ".//input[@value='Log In']" is not clickable.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.xpath, tt.cond, Options{})
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindNotFound))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestResolve_CustomMessageAndTimeout(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(d, wait.Policy{Timeout: time.Hour, Interval: 5 * time.Millisecond}, nil)

	start := time.Now()
	_, err := r.Resolve(context.Background(), `.//table`, Present, Options{
		Message: "no table",
		Timeout: 50 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, "no table", err.Error())
	assert.Less(t, time.Since(start), time.Second)
	var e *core.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "present", e.Details["condition"])
}

func TestResolve_ClickableReturnsFirstOnly(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(d, fastPolicy, nil)

	els, err := r.Resolve(context.Background(), `.//a`, Clickable, Options{})

	require.NoError(t, err)
	require.Len(t, els, 1)
	text, _ := els[0].Text(context.Background())
	assert.Equal(t, "Register", text)
}

func TestResolve_FreshPerCall(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(d, fastPolicy, nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, `.//a`, Present, Options{})
	require.NoError(t, err)

	d.SetHTML(`<html><body><a>Only link</a></body></html>`)

	_, err = first[0].Text(ctx)
	assert.ErrorIs(t, err, mock.ErrStale)

	second, err := r.Resolve(ctx, `.//a`, Present, Options{})
	require.NoError(t, err)
	require.Len(t, second, 1)
	text, err := second[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Only link", text)
}

func TestResolve_ContextCancelled(t *testing.T) {
	d := newDriver(t)
	r := NewResolver(d, wait.Policy{Timeout: time.Hour, Interval: 5 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, `.//table`, Present, Options{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, core.IsKind(err, core.KindNotFound))
}

func TestExecutor_ClickByTextFollowsLink(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	require.NoError(t, x.ClickByText(context.Background(), "Register", Action{}))

	assert.Equal(t, base+"/parabank/register.htm", d.URL())
	assert.Contains(t, d.Actions(), "click:Register")
}

func TestExecutor_ClickByTextNotFound(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	err := x.ClickByText(context.Background(), "Transfer Funds", Action{})

	require.Error(t, err)
	assert.Equal(t, `Elements with text "Transfer Funds" did not appear on the web page.`, err.Error())
}

func TestExecutor_ClickScriptMode(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	require.NoError(t, x.Click(context.Background(), `.//a[@href='lookup.htm']`, Action{Click: ClickScript}))

	assert.Contains(t, d.Actions(), "scriptclick:Forgot login info?")
}

func TestExecutor_ClickIndexOutOfRange(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	err := x.Click(context.Background(), `.//a`, Action{Index: 5})

	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindIndex))
}

func TestExecutor_ClickableIgnoresIndex(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	require.NoError(t, x.Click(context.Background(), `.//a`, Action{Index: 7, Locate: LocateClickable}))
	assert.Contains(t, d.Actions(), "click:Register")
}

func TestExecutor_SendKeys(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)
	ctx := context.Background()
	require.NoError(t, x.OpenPage(ctx, "/parabank/register.htm", "", Action{}))

	first := locator.Field("First Name").XPath()
	require.NoError(t, x.SendKeys(ctx, first, "-appended", Action{}))
	assert.Equal(t, "prefilled-appended", d.Value(`.//input[@name='customer.firstName']`))

	require.NoError(t, x.SendKeys(ctx, first, "John", Action{Clear: true}))
	assert.Equal(t, "John", d.Value(`.//input[@name='customer.firstName']`))
}

func TestExecutor_SubmitForm(t *testing.T) {
	d := newDriver(t)
	d.Config.Pages[base+"/parabank/register.htm"] = registerPage
	x := NewExecutor(d, fastPolicy, base, nil)
	ctx := context.Background()
	require.NoError(t, x.OpenPage(ctx, "/parabank/register.htm", locator.RegisterButton, Action{}))

	d.Config.Pages[base+"/parabank/register.htm"] = registeredPage
	require.NoError(t, x.Click(ctx, locator.RegisterButton, Action{}))

	_, err := x.LocateByText(ctx, "Your account was created successfully", Action{})
	assert.NoError(t, err)
}

func TestExecutor_OpenPageWaitMessage(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	err := x.OpenPage(context.Background(), "/parabank/index.htm", `.//table`, Action{})

	require.Error(t, err)
	assert.Equal(t, `Timed out waiting for page to load element with xpath: ".//table".`, err.Error())
}

func TestExecutor_OpenPageUnknown(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	err := x.OpenPage(context.Background(), "/parabank/nowhere.htm", "", Action{})
	assert.Error(t, err)
}

func TestExecutor_LocateByTextSkipsHidden(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	_, err := x.LocateByText(context.Background(), "Hidden notice", Action{})

	require.Error(t, err)
	assert.Equal(t, `Could not locate elements with text "Hidden notice".`, err.Error())

	_, err = x.WaitForByText(context.Background(), "Hidden notice", Action{})
	assert.NoError(t, err)
}

func TestExecutor_ScrollToBottom(t *testing.T) {
	heights := []int64{100, 200, 300, 300}
	calls := 0
	d := newDriver(t)
	d.Config.Scripts[ScrollHeightScript] = func() any {
		h := heights[calls]
		calls++
		return h
	}
	x := NewExecutor(d, fastPolicy, base, nil)

	require.NoError(t, x.ScrollToBottom(context.Background(), time.Millisecond))

	assert.Equal(t, 4, calls)
	scrolls := 0
	for _, a := range d.Actions() {
		if a == "eval:"+ScrollToBottomScript {
			scrolls++
		}
	}
	assert.Equal(t, 3, scrolls)
}

func TestExecutor_ScrollTo(t *testing.T) {
	d := newDriver(t)
	x := NewExecutor(d, fastPolicy, base, nil)

	el, err := x.ScrollTo(context.Background(), `.//a[@href='lookup.htm']`, Action{})

	require.NoError(t, err)
	require.NotNil(t, el)
	assert.Contains(t, d.Actions(), "scroll:Forgot login info?")
}

// fakeDriver answers every query with a fixed list.
type fakeDriver struct {
	els []core.Element
}

func (f *fakeDriver) Open(context.Context, string) error { return nil }
func (f *fakeDriver) FindAll(context.Context, string) ([]core.Element, error) {
	return f.els, nil
}
func (f *fakeDriver) Evaluate(context.Context, string, any) error { return nil }
func (f *fakeDriver) Screenshot(context.Context, string) ([]byte, error) {
	return nil, nil
}
func (f *fakeDriver) Info() *core.BrowserInfo { return &core.BrowserInfo{Driver: "fake"} }
func (f *fakeDriver) Close() error            { return nil }

type fakeElement struct {
	text     string
	clickErr error
	clicked  bool
}

func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }
func (e *fakeElement) Displayed(context.Context) (bool, error) { return true, nil }
func (e *fakeElement) Enabled(context.Context) (bool, error) { return true, nil }
func (e *fakeElement) Click(context.Context) error {
	e.clicked = true
	return e.clickErr
}
func (e *fakeElement) ScriptClick(context.Context) error { return e.clickErr }
func (e *fakeElement) Clear(context.Context) error { return nil }
func (e *fakeElement) SendKeys(context.Context, string) error { return nil }
func (e *fakeElement) ScrollIntoView(context.Context) error { return nil }

func TestExecutor_ActionErrorSurfaces(t *testing.T) {
	detached := errors.New("node is detached from document")
	el := &fakeElement{text: "Log Out", clickErr: detached}
	x := NewExecutor(&fakeDriver{els: []core.Element{el}}, fastPolicy, base, nil)

	err := x.ClickByText(context.Background(), "Log Out", Action{})

	assert.ErrorIs(t, err, detached)
	assert.False(t, core.IsKind(err, core.KindNotFound))
}

func elements(texts ...string) []core.Element {
	out := make([]core.Element, len(texts))
	for i, t := range texts {
		out[i] = &fakeElement{text: t}
	}
	return out
}

func TestPick(t *testing.T) {
	ctx := context.Background()
	els := elements("Register today", " register ", "Registered", "REGISTER")

	tests := []struct {
		name  string
		index int
		text  string
		want  int
	}{
		{"no text uses index", 0, "", 0},
		{"last exact wins at index 0", 0, "Register", 3},
		{"explicit index beats exact", 2, "Register", 2},
		{"no exact falls back to index", 0, "Regist", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pick(ctx, els, tt.index, tt.text)
			require.NoError(t, err)
			assert.Same(t, els[tt.want], got)
		})
	}
}

func TestPick_IndexOutOfRange(t *testing.T) {
	ctx := context.Background()

	_, err := Pick(ctx, elements("a", "b"), 2, "a")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindIndex))
	assert.Equal(t, `Requested Index: "2" | Actual Count: "2" | Element Index should be less than actual elements count.`, err.Error())

	_, err = Pick(ctx, nil, 0, "")
	assert.True(t, core.IsKind(err, core.KindIndex))

	_, err = Pick(ctx, elements("a"), -1, "")
	assert.True(t, core.IsKind(err, core.KindIndex))
}

var labelGen = rapid.StringMatching(`[A-Za-z0-9]{1,8}`)

func pageOf(labels []string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range labels {
		fmt.Fprintf(&b, "<div>%s</div>", l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestProperty_ExactModeReturnsExactText(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		labels := rapid.SliceOfN(labelGen, 1, 8).Draw(rt, "labels")
		target := rapid.SampledFrom(labels).Draw(rt, "target")

		d := mock.New(mock.Config{Pages: map[string]string{base + "/p": pageOf(labels)}})
		ctx := context.Background()
		require.NoError(rt, d.Open(ctx, base+"/p"))
		x := NewExecutor(d, fastPolicy, base, nil)

		el, err := x.LocateByText(ctx, target, Action{Exact: true})
		require.NoError(rt, err)
		got, err := el.Text(ctx)
		require.NoError(rt, err)
		if normalize(got) != normalize(target) {
			rt.Fatalf("got %q, want %q", got, target)
		}
	})
}

func TestProperty_ContainsModeReturnsSuperstring(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		labels := rapid.SliceOfN(labelGen, 1, 8).Draw(rt, "labels")
		source := rapid.SampledFrom(labels).Draw(rt, "source")
		start := rapid.IntRange(0, len(source)-1).Draw(rt, "start")
		end := rapid.IntRange(start+1, len(source)).Draw(rt, "end")
		needle := source[start:end]

		d := mock.New(mock.Config{Pages: map[string]string{base + "/p": pageOf(labels)}})
		ctx := context.Background()
		require.NoError(rt, d.Open(ctx, base+"/p"))
		x := NewExecutor(d, fastPolicy, base, nil)

		el, err := x.WaitForByText(ctx, needle, Action{})
		require.NoError(rt, err)
		got, err := el.Text(ctx)
		require.NoError(rt, err)
		if !strings.Contains(got, needle) {
			rt.Fatalf("%q does not contain %q", got, needle)
		}
	})
}

func TestProperty_SingleExactMatchWinsAtIndexZero(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		target := labelGen.Draw(rt, "target")
		others := rapid.SliceOfN(
			labelGen.Filter(func(s string) bool { return normalize(s) != normalize(target) }),
			0, 6).Draw(rt, "others")
		pos := rapid.IntRange(0, len(others)).Draw(rt, "pos")

		texts := append(append(append([]string{}, others[:pos]...), target), others[pos:]...)
		els := elements(texts...)

		got, err := Pick(context.Background(), els, 0, target)
		require.NoError(rt, err)
		if got != els[pos] {
			rt.Fatalf("picked wrong element for %q at %d in %v", target, pos, texts)
		}
	})
}

func TestProperty_IndexCheckedBeforeExactOverride(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		texts := rapid.SliceOfN(labelGen, 0, 6).Draw(rt, "texts")
		index := rapid.IntRange(len(texts), len(texts)+5).Draw(rt, "index")
		search := ""
		if len(texts) > 0 {
			search = rapid.SampledFrom(texts).Draw(rt, "search")
		}

		_, err := Pick(context.Background(), elements(texts...), index, search)
		if !core.IsKind(err, core.KindIndex) {
			rt.Fatalf("Pick(index=%d, n=%d) err = %v, want index kind", index, len(texts), err)
		}
	})
}
