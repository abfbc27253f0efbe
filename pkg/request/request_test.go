package request

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

type captured struct {
	method      string
	path        string
	contentType string
	cookie      string
	body        string
	form        map[string]string
	files       map[string]string
}

func newServer(t *testing.T) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	mux := http.NewServeMux()
	mux.HandleFunc("/parabank/index.htm", func(w http.ResponseWriter, r *http.Request) {
		record(t, c, r)
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "ABC123", Path: "/parabank"})
		w.Header().Set("Content-Type", "text/html;charset=ISO-8859-1")
		_, _ = io.WriteString(w, "<html>ParaBank</html>")
	})
	mux.HandleFunc("/parabank/login.htm", func(w http.ResponseWriter, r *http.Request) {
		record(t, c, r)
		http.Redirect(w, r, "/parabank/overview.htm", http.StatusFound)
	})
	mux.HandleFunc("/parabank/overview.htm", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Accounts Overview")
	})
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		record(t, c, r)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, c
}

func record(t *testing.T, c *captured, r *http.Request) {
	t.Helper()
	c.method = r.Method
	c.path = r.URL.Path
	c.contentType = r.Header.Get("Content-Type")
	c.cookie = r.Header.Get("Cookie")
	c.form = nil
	c.files = nil
	if strings.HasPrefix(c.contentType, "multipart/form-data") {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		c.form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			c.form[k] = v[0]
		}
		c.files = map[string]string{}
		for k, fhs := range r.MultipartForm.File {
			f, err := fhs[0].Open()
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			_ = f.Close()
			c.files[k] = fhs[0].Filename + ":" + string(data)
		}
		return
	}
	data, _ := io.ReadAll(r.Body)
	c.body = string(data)
}

func TestDo_MissingEndpoint(t *testing.T) {
	c := NewClient("http://unused.test")
	st := NewState()
	st.Payload = Raw("kept")

	_, err := c.Do(context.Background(), http.MethodGet, st, 0)

	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrPrecondition))
	assert.Equal(t, `Context should have a valid "endpoint" attribute to make "GET" request.`, err.Error())
	// state is untouched when no request was attempted
	assert.Equal(t, "kept", st.Payload.RawString())
}

func TestDo_GetStoresResponseAndCookie(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/parabank/index.htm")

	resp, err := c.Do(context.Background(), http.MethodGet, st, http.StatusOK)

	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Empty(t, got.body)
	assert.Same(t, resp, st.Response)
	assert.Equal(t, "text/html", resp.ContentType())
	session, ok := resp.Cookie("JSESSIONID").Get()
	require.True(t, ok)
	assert.Equal(t, "ABC123", session)
	assert.False(t, resp.Cookie("missing").IsSet())
}

func TestDo_EndpointAlreadyAbsolute(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint(srv.URL + "/parabank/index.htm")

	_, err := c.Do(context.Background(), http.MethodGet, st, 200)

	require.NoError(t, err)
	assert.Equal(t, "/parabank/index.htm", got.path)
}

func TestURL(t *testing.T) {
	c := NewClient("https://parabank.parasoft.com/")
	assert.Equal(t, "https://parabank.parasoft.com", c.Server())
	assert.Equal(t, "https://parabank.parasoft.com/parabank/index.htm", c.URL("/parabank/index.htm"))
	assert.Equal(t, "https://parabank.parasoft.com/x", c.URL("https://parabank.parasoft.com/x"))
}

func TestDo_FieldsPayloadIsJSON(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/api/echo")
	st.Payload = Fields(map[string]any{"a": "1"})

	resp, err := c.Do(context.Background(), http.MethodPost, st, 200)

	require.NoError(t, err)
	assert.JSONEq(t, `{"a": "1"}`, got.body)
	assert.Equal(t, "application/json", got.contentType)
	assert.False(t, st.Payload.IsSet(), "payload is cleared after the call")

	var out map[string]bool
	require.NoError(t, resp.JSON(&out))
	assert.True(t, out["ok"])
}

func TestDo_HeaderContentTypeWins(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/api/echo")
	st.SetHeaders(map[string]string{"Content-Type": "application/x-www-form-urlencoded", "Cookie": "JSESSIONID=ABC"})
	st.Payload = Fields(map[string]any{"a": "1"})

	_, err := c.Do(context.Background(), http.MethodPost, st, 200)

	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", got.contentType)
	assert.Equal(t, "JSESSIONID=ABC", got.cookie)
}

func TestDo_RawPayloadVerbatim(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/api/echo")
	st.Payload = Raw("username=a%40b&password=x")

	_, err := c.Do(context.Background(), http.MethodPost, st, 200)

	require.NoError(t, err)
	assert.Equal(t, "username=a%40b&password=x", got.body)
}

func TestDo_RedirectsDisallowed(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/parabank/login.htm")
	st.AllowRedirects = Some(false)

	resp, err := c.Do(context.Background(), http.MethodPost, st, http.StatusFound)

	require.NoError(t, err)
	assert.Equal(t, "/parabank/overview.htm", resp.Header.Get("Location"))
}

func TestDo_RedirectsFollowedByDefault(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/parabank/login.htm")

	resp, err := c.Do(context.Background(), http.MethodPost, st, 0)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Accounts Overview", resp.Text())
	assert.True(t, strings.HasSuffix(resp.URL, "/parabank/overview.htm"))
}

func TestDo_StatusMismatch(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/parabank/index.htm")

	resp, err := c.Do(context.Background(), http.MethodGet, st, http.StatusNotFound)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.True(t, errors.Is(err, core.ErrAssertion))
	assert.Equal(t, `Expected text for "Status Code" was "404" but got "200" instead.`, err.Error())
}

func TestDo_MultipartFiles(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/api/echo")
	st.SetHeaders(map[string]string{"Content-Type": "application/json"})
	st.Payload = Raw("name=statement&year=2024")
	st.AddFile(File{Field: "upload", Name: "statement.csv", Content: []byte("a,b\n1,2\n"), ContentType: "text/csv"})

	_, err := c.Do(context.Background(), http.MethodPost, st, 200)

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.contentType, "multipart/form-data"))
	assert.Equal(t, map[string]string{"name": "statement", "year": "2024"}, got.form)
	assert.Equal(t, map[string]string{"upload": "statement.csv:a,b\n1,2\n"}, got.files)
	assert.Empty(t, st.Files)
}

func TestDo_ContextCancelled(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/parabank/index.htm")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Do(ctx, http.MethodGet, st, 200)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, st.Response)
}

func TestResponse_JSONRequiresContentType(t *testing.T) {
	resp := &Response{Header: http.Header{"Content-Type": {"text/html"}}, Body: []byte(`{}`)}
	var v any
	err := resp.JSON(&v)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindAssertion))
	assert.Contains(t, err.Error(), `"application/json" but got "text/html"`)
}

func TestPayload_String(t *testing.T) {
	assert.Equal(t, "<unset>", Payload{}.String())
	assert.Equal(t, "{a=1, b=2}", Fields(map[string]any{"b": 2, "a": "1"}).String())
	assert.Equal(t, "x=1", Raw("x=1").String())
}

func TestPayload_CloneIsDeep(t *testing.T) {
	p := Fields(map[string]any{"customer": map[string]any{"name": "a"}})
	c := p.Clone()
	c.fields["customer"].(map[string]any)["name"] = "b"
	assert.Equal(t, "a", p.FieldMap()["customer"].(map[string]any)["name"])
}

// Any sequence of calls leaves the state with no payload or files, and the
// endpoint and headers survive.
func TestDo_ResetProperty(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(srv.URL)

	rapid.Check(t, func(rt *rapid.T) {
		st := NewState()
		st.SetEndpoint("/api/echo")
		st.SetHeaders(map[string]string{"X-Trace": "1"})
		calls := rapid.IntRange(1, 4).Draw(rt, "calls")
		for i := 0; i < calls; i++ {
			if rapid.Bool().Draw(rt, "raw") {
				st.Payload = Raw(rapid.StringMatching(`[a-z]{1,8}=[a-z0-9]{0,8}`).Draw(rt, "body"))
			} else {
				st.Payload = Fields(map[string]any{"k": rapid.String().Draw(rt, "v")})
			}
			if rapid.Bool().Draw(rt, "file") {
				st.AddFile(File{Field: "f", Name: "f.txt", Content: []byte("x")})
			}
			if _, err := c.Do(context.Background(), http.MethodPost, st, 200); err != nil {
				rt.Fatalf("call %d: %v", i, err)
			}
			if st.Payload.IsSet() || len(st.Files) != 0 {
				rt.Fatalf("state not reset after call %d", i)
			}
		}
		if v, _ := st.Endpoint.Get(); v != "/api/echo" {
			rt.Fatalf("endpoint changed to %q", v)
		}
		if st.Headers.Get("X-Trace") != "1" {
			rt.Fatalf("headers lost")
		}
	})
}

func TestDo_MultipartWithFieldsPayload(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()
	st.SetEndpoint("/api/echo")
	st.Payload = Fields(map[string]any{"name": "statement", "year": 2024})
	st.AddFile(File{Field: "upload", Name: "a.txt", Content: []byte("x")})

	_, err := c.Do(context.Background(), http.MethodPost, st, 200)

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "statement", "year": "2024"}, got.form)
	assert.Equal(t, map[string]string{"upload": "a.txt:x"}, got.files)
}

func TestDo_CookiesNotCarriedBetweenCalls(t *testing.T) {
	srv, got := newServer(t)
	c := NewClient(srv.URL)
	st := NewState()

	st.SetEndpoint("/parabank/index.htm")
	_, err := c.Do(context.Background(), http.MethodGet, st, 200)
	require.NoError(t, err)

	st.SetEndpoint("/api/echo")
	_, err = c.Do(context.Background(), http.MethodGet, st, 200)
	require.NoError(t, err)
	assert.Empty(t, got.cookie)
}

func TestWithHTTPClient_CallerClientUntouched(t *testing.T) {
	srv, _ := newServer(t)
	hc := &http.Client{Timeout: 5 * time.Second}
	c := NewClient(srv.URL, WithHTTPClient(hc))
	st := NewState()
	st.SetEndpoint("/parabank/login.htm")
	st.AllowRedirects = Some(false)

	_, err := c.Do(context.Background(), http.MethodPost, st, http.StatusFound)

	require.NoError(t, err)
	assert.Nil(t, hc.CheckRedirect)
	assert.Nil(t, hc.Jar)
}
