package element

import (
	"context"
	"strings"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
)

// Pick selects one element from matches.
//
// The index is range-checked first. Then, when text is non-empty, every
// match is compared to text after lower-casing and trimming both; the last
// exact match wins that scan. An exact match is returned only when index is
// 0, otherwise matches[index] is.
func Pick(ctx context.Context, matches []core.Element, index int, text string) (core.Element, error) {
	if index < 0 || index >= len(matches) {
		return nil, core.IndexOutOfRange(index, len(matches))
	}
	if text == "" || index != 0 {
		return matches[index], nil
	}

	want := normalize(text)
	exact := -1
	for i, m := range matches {
		got, err := m.Text(ctx)
		if err != nil {
			return nil, err
		}
		if normalize(got) == want {
			exact = i
		}
	}
	if exact != -1 {
		return matches[exact], nil
	}
	return matches[index], nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
