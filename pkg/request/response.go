package request

import (
	"mime"
	"net/http"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	URL        string // final URL after redirects

	cookies []*http.Cookie
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// ContentType returns the media type without parameters.
func (r *Response) ContentType() string {
	return mediaType(r.Header.Get("Content-Type"))
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// JSON decodes the body into v. The response must declare application/json.
func (r *Response) JSON(v any) error {
	if ct := r.ContentType(); ct != "application/json" {
		return core.Mismatch("Content-Type", "application/json", r.Header.Get("Content-Type"))
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return core.Assertion("Response body is not valid JSON.").WithCause(err)
	}
	return nil
}

// Cookie returns the value of a cookie set by the response.
func (r *Response) Cookie(name string) Optional[string] {
	for _, c := range r.cookies {
		if c.Name == name {
			return Some(c.Value)
		}
	}
	return None[string]()
}

// Cookies returns every cookie set by the response.
func (r *Response) Cookies() []*http.Cookie {
	return append([]*http.Cookie(nil), r.cookies...)
}
