// Package textutil has the small text helpers shared by step definitions:
// assertions with stable messages, random test data and path lookup.
package textutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
)

// AssertText fails unless actual equals expected.
func AssertText(expected, actual, what string) error {
	if what == "" {
		what = "Text"
	}
	if expected != actual {
		return core.Mismatch(what, expected, actual)
	}
	logger.Debug(`"%s" | Expected: "%s" | Actual: "%s"`, what, expected, actual)
	return nil
}

// AssertContains fails unless expected is a substring of actual.
func AssertContains(expected, actual, what string) error {
	if what == "" {
		what = "Text"
	}
	if !strings.Contains(actual, expected) {
		return core.Assertion(fmt.Sprintf(
			`Searching in "%s" | Unable to find expected text "%s".`, what, expected)).
			WithDetail("expected", expected)
	}
	logger.Debug(`Searching in "%s" | Contains: "%s"`, what, expected)
	return nil
}

// ToCamelCase turns "first name" into "firstName". Words are split on
// single spaces; every word after the first is title-cased.
func ToCamelCase(s string) string {
	parts := strings.Split(s, " ")
	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		b.WriteString(title(p))
	}
	return b.String()
}

// title upper-cases the first letter of each letter run and lower-cases the rest.
func title(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

const (
	lowercase = "abcdefghijklmnopqrstuvwxyz"
	digits    = "0123456789"
)

// RandomString returns n random lowercase letters.
func RandomString(n int) string {
	s := randomFrom(lowercase, n)
	logger.Debug(`Random string of length %d is "%s"`, n, s)
	return s
}

// RandomNumber returns n random digits. Leading zeros are allowed.
func RandomNumber(n int) string {
	s := randomFrom(digits, n)
	logger.Debug(`Random number of length %d is "%s"`, n, s)
	return s
}

func randomFrom(alphabet string, n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// CleanupText drops carriage returns, turns newlines into spaces and
// collapses repeated spaces.
func CleanupText(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

// TestFilesDir is the test data directory relative to the project root.
const TestFilesDir = "features/test-files"

// FindRoot walks up from dir until it finds a directory containing
// "features". It returns dir unchanged when none is found.
func FindRoot(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for cur := abs; ; {
		if fi, err := os.Stat(filepath.Join(cur, "features")); err == nil && fi.IsDir() {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}

// FilePath returns the path of a test data file under the project root
// found from the working directory.
func FilePath(name string) string {
	return filepath.Join(FindRoot("."), TestFilesDir, name)
}

// DefaultHashSecret is the secret used when none is given.
const DefaultHashSecret = "any_secret_key.com"

// HMACSHA256 returns the hex HMAC-SHA256 of message keyed by secret.
func HMACSHA256(secret, message string) string {
	if secret == "" {
		secret = DefaultHashSecret
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
