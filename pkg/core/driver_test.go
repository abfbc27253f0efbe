package core

import (
	"context"
	"errors"
	"testing"
)

type stubElement struct {
	text    string
	visible bool
	enabled bool
	err     error
}

func (s *stubElement) Text(context.Context) (string, error) { return s.text, s.err }
func (s *stubElement) Displayed(context.Context) (bool, error) { return s.visible, s.err }
func (s *stubElement) Enabled(context.Context) (bool, error) { return s.enabled, s.err }
func (s *stubElement) Click(context.Context) error { return nil }
func (s *stubElement) ScriptClick(context.Context) error { return nil }
func (s *stubElement) Clear(context.Context) error { return nil }
func (s *stubElement) SendKeys(context.Context, string) error { return nil }
func (s *stubElement) ScrollIntoView(context.Context) error { return nil }

func TestDescribe_Visible(t *testing.T) {
	el := &stubElement{text: " Welcome\r\nJohn ", visible: true, enabled: true}

	info := Describe(context.Background(), el, ".//p")

	if info.Text != "Welcome<br>John" {
		t.Errorf("Text = %q, want %q", info.Text, "Welcome<br>John")
	}
	if !info.Visible || !info.Enabled {
		t.Errorf("Visible/Enabled = %v/%v, want true/true", info.Visible, info.Enabled)
	}
	if info.XPath != ".//p" {
		t.Errorf("XPath = %q", info.XPath)
	}
}

func TestDescribe_HiddenHasNoText(t *testing.T) {
	el := &stubElement{text: "secret", visible: false}

	info := Describe(context.Background(), el, "")

	if info.Text != "" {
		t.Errorf("Text = %q, want empty for hidden element", info.Text)
	}
}

func TestDescribe_Errors(t *testing.T) {
	el := &stubElement{text: "x", visible: true, err: errors.New("stale")}

	info := Describe(context.Background(), el, "")

	if info.Visible || info.Text != "" {
		t.Errorf("info = %+v, want zero values on error", info)
	}
}

func TestDescribe_Nil(t *testing.T) {
	info := Describe(context.Background(), nil, ".//x")
	if info == nil || info.XPath != ".//x" {
		t.Errorf("info = %+v", info)
	}
}

func TestDisplayText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"a\nb", "a<br>b"},
		{"  a\r\n  ", "a<br>"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DisplayText(tt.in); got != tt.want {
			t.Errorf("DisplayText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
