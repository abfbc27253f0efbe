package request

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// DefaultTimeout bounds a single HTTP call.
const DefaultTimeout = 30 * time.Second

const jsonContentType = "application/json"

// Client performs requests described by a State against one server.
type Client struct {
	server string
	log    *zap.Logger

	// follow and noFollow differ only in their redirect policy, which
	// resty holds per client.
	follow   *resty.Client
	noFollow *resty.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	hc  *http.Client
	log *zap.Logger
}

// WithHTTPClient builds the client on a copy of hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.hc = hc }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewClient returns a client for server, e.g. "https://parabank.parasoft.com".
func NewClient(server string, opts ...Option) *Client {
	o := options{hc: &http.Client{Timeout: DefaultTimeout}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		server: strings.TrimRight(server, "/"),
		log:    o.log,
	}
	c.follow = c.newResty(o.hc)
	c.noFollow = c.newResty(o.hc).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	return c
}

func (c *Client) newResty(hc *http.Client) *resty.Client {
	own := *hc
	rc := resty.NewWithClient(&own).
		SetBaseURL(c.server).
		SetLogger(c.log.Sugar()).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetAllowGetMethodPayload(true).
		// every request carries only the cookies its scenario sets
		SetCookieJar(nil)
	rc.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		c.logResponse(resp)
		return nil
	})
	return rc
}

// Server returns the configured base URL.
func (c *Client) Server() string { return c.server }

// URL returns the absolute URL for endpoint. The server base is prefixed
// unless endpoint already contains it.
func (c *Client) URL(endpoint string) string {
	if c.server != "" && strings.Contains(endpoint, c.server) {
		return endpoint
	}
	return c.server + endpoint
}

// Do sends method to the state's endpoint and stores the response on the
// state. Payload and files are cleared once the request has been attempted.
// When expected is non-zero the status code must match it.
func (c *Client) Do(ctx context.Context, method string, st *State, expected int) (*Response, error) {
	endpoint, ok := st.Endpoint.Get()
	if !ok || endpoint == "" {
		return nil, core.Precondition(fmt.Sprintf(
			`Context should have a valid "endpoint" attribute to make "%s" request.`, method)).
			WithDetail("method", method)
	}
	defer st.reset()

	target := c.URL(endpoint)
	allow := st.AllowRedirects.OrElse(true)
	c.log.Debug("sending request",
		zap.String("method", method),
		zap.String("url", target),
		zap.Stringer("payload", st.Payload),
		zap.Int("files", len(st.Files)),
		zap.Bool("allowRedirects", allow))

	rc := c.follow
	if !allow {
		rc = c.noFollow
	}
	req := rc.R().SetContext(ctx)
	if len(st.Headers) > 0 {
		req.SetHeaderMultiValues(st.Headers.Clone())
	}
	if err := setBody(req, st.Payload, st.Files); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	// an absolute target keeps its host, a path is joined to the base URL
	path := endpoint
	if c.server != "" && strings.Contains(endpoint, c.server) {
		path = target
	}
	raw, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}

	resp := &Response{
		StatusCode: raw.StatusCode(),
		Status:     raw.Status(),
		Header:     raw.Header(),
		Body:       raw.Body(),
		URL:        target,
		cookies:    raw.Cookies(),
	}
	if raw.RawResponse != nil && raw.RawResponse.Request != nil {
		resp.URL = raw.RawResponse.Request.URL.String()
	}
	st.Response = resp

	if expected != 0 {
		if err := AssertStatus(resp, expected); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// AssertStatus compares status codes as text.
func AssertStatus(resp *Response, expected int) error {
	want := strconv.Itoa(expected)
	got := strconv.Itoa(resp.StatusCode)
	if want != got {
		return core.Mismatch("Status Code", want, got)
	}
	return nil
}

func (c *Client) logResponse(resp *resty.Response) {
	ct := resp.Header().Get("Content-Type")
	status := resp.StatusCode()
	switch {
	case ct != "" && mediaType(ct) == jsonContentType:
		c.log.Debug("response", zap.Int("status", status), zap.ByteString("body", resp.Body()))
	case ct != "":
		c.log.Debug("response", zap.Int("status", status), zap.String("contentType", ct))
	case len(resp.Body()) == 0:
		c.log.Debug("response text is empty", zap.Int("status", status))
	default:
		c.log.Debug("unknown response", zap.Int("status", status), zap.ByteString("body", resp.Body()))
	}
}

// setBody attaches the payload. Files turn the body into multipart form
// data and resty then owns the Content-Type. A mapping is sent as JSON
// unless the caller asked for another Content-Type, in which case the JSON
// text goes out under the caller's type.
func setBody(req *resty.Request, p Payload, files []File) error {
	if len(files) > 0 {
		values, err := formValues(p)
		if err != nil {
			return err
		}
		fields := make([]*resty.MultipartField, 0, len(files))
		for _, f := range files {
			ct := f.ContentType
			if ct == "" {
				ct = "application/octet-stream"
			}
			fields = append(fields, &resty.MultipartField{
				Param:       f.Field,
				FileName:    f.Name,
				ContentType: ct,
				Reader:      bytes.NewReader(f.Content),
			})
		}
		req.SetFormDataFromValues(values).SetMultipartFields(fields...)
		return nil
	}

	switch p.Kind() {
	case PayloadFields:
		ct := req.Header.Get("Content-Type")
		if ct == "" {
			req.SetHeader("Content-Type", jsonContentType)
			req.SetBody(p.FieldMap())
			return nil
		}
		if mediaType(ct) == jsonContentType {
			req.SetBody(p.FieldMap())
			return nil
		}
		body, err := p.Encode()
		if err != nil {
			return err
		}
		req.SetBody(body)
	case PayloadRaw:
		req.SetBody(p.RawString())
	}
	return nil
}

// formValues flattens a payload into multipart form fields.
func formValues(p Payload) (url.Values, error) {
	values := url.Values{}
	switch p.Kind() {
	case PayloadFields:
		for k := range p.FieldMap() {
			v, _ := p.Field(k)
			values.Set(k, v)
		}
	case PayloadRaw:
		parsed, err := url.ParseQuery(p.RawString())
		if err != nil {
			return nil, fmt.Errorf("payload is not form encoded: %w", err)
		}
		values = parsed
	}
	return values, nil
}
