// Package request sends the HTTP calls made by API scenarios and validates
// their responses. Scenario state lives in a typed State instead of loose
// attributes, so "not set yet" is always explicit.
package request

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Optional holds a value that may be unset.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns a set Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an unset Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it was set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value was set.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value, or def when unset.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// PayloadKind tells how a payload is encoded.
type PayloadKind int

const (
	PayloadUnset  PayloadKind = iota
	PayloadFields             // mapping, sent as a JSON object
	PayloadRaw                // pre-encoded string, sent verbatim
)

// Payload is the body of the next request.
type Payload struct {
	kind   PayloadKind
	fields map[string]any
	raw    string
}

// Fields returns a mapping payload. The map is copied.
func Fields(m map[string]any) Payload {
	return Payload{kind: PayloadFields, fields: copyMap(m)}
}

// Raw returns a pre-encoded payload such as "username=a&password=b".
func Raw(s string) Payload {
	return Payload{kind: PayloadRaw, raw: s}
}

// Kind returns the payload kind.
func (p Payload) Kind() PayloadKind { return p.kind }

// IsSet reports whether the payload carries anything.
func (p Payload) IsSet() bool { return p.kind != PayloadUnset }

// FieldMap returns a copy of the mapping, or nil for other kinds.
func (p Payload) FieldMap() map[string]any {
	if p.kind != PayloadFields {
		return nil
	}
	return copyMap(p.fields)
}

// Field returns one mapping value as text.
func (p Payload) Field(key string) (string, bool) {
	v, ok := p.fields[key]
	if !ok {
		return "", false
	}
	return fmt.Sprint(v), true
}

// RawString returns the pre-encoded body, or "" for other kinds.
func (p Payload) RawString() string { return p.raw }

// Clone returns a deep copy.
func (p Payload) Clone() Payload {
	return Payload{kind: p.kind, fields: copyMap(p.fields), raw: p.raw}
}

// Encode returns the request body. Mappings become a JSON object, raw
// strings are returned verbatim, an unset payload has no body.
func (p Payload) Encode() ([]byte, error) {
	switch p.kind {
	case PayloadFields:
		return json.Marshal(p.fields)
	case PayloadRaw:
		return []byte(p.raw), nil
	default:
		return nil, nil
	}
}

func (p Payload) String() string {
	switch p.kind {
	case PayloadFields:
		keys := make([]string, 0, len(p.fields))
		for k := range p.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%v", k, p.fields[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case PayloadRaw:
		return p.raw
	default:
		return "<unset>"
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			v = copyMap(nested)
		}
		out[k] = v
	}
	return out
}

// File is a multipart attachment.
type File struct {
	Field       string // form field name
	Name        string // file name sent to the server
	Content     []byte
	ContentType string // defaults to application/octet-stream
}

// State is the request half of a scenario's working state.
type State struct {
	Endpoint       Optional[string]
	Payload        Payload
	Headers        http.Header
	AllowRedirects Optional[bool] // unset means follow redirects
	Files          []File

	// Response is the last response received, nil before the first call.
	Response *Response
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Headers: http.Header{}}
}

// SetEndpoint sets the target path or URL.
func (s *State) SetEndpoint(endpoint string) {
	s.Endpoint = Some(endpoint)
}

// SetHeaders replaces all headers.
func (s *State) SetHeaders(h map[string]string) {
	s.Headers = http.Header{}
	for k, v := range h {
		s.Headers.Set(k, v)
	}
}

// AddFile queues a multipart attachment for the next call.
func (s *State) AddFile(f File) {
	s.Files = append(s.Files, f)
}

// reset clears the per-call fields after a request.
func (s *State) reset() {
	s.Payload = Payload{}
	s.Files = nil
}
