// Package element locates elements on the current page and interacts with
// them. Every lookup polls the live document through core.Driver; nothing
// is cached between calls.
package element

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/wait"
)

// Condition is the minimum state matches must reach before Resolve returns.
type Condition int

const (
	Present   Condition = iota // At least one match exists in the document
	Visible                    // At least one match, and every match is displayed
	Clickable                  // The first match is displayed and enabled
)

func (c Condition) String() string {
	switch c {
	case Present:
		return "present"
	case Visible:
		return "visible"
	case Clickable:
		return "clickable"
	default:
		return "unknown"
	}
}

// defaultMessage returns the failure text for cond. subject is either
// `xpath "<query>"` or `text "<label>"`.
func defaultMessage(cond Condition, subject string) string {
	switch cond {
	case Visible:
		return fmt.Sprintf("Could not locate elements with %s.", subject)
	case Clickable:
		return fmt.Sprintf("Element with %s is not clickable.", subject)
	default:
		return fmt.Sprintf("Elements with %s did not appear on the web page.", subject)
	}
}

func xpathSubject(q string) string { return fmt.Sprintf(`xpath "%s"`, q) }
func textSubject(t string) string  { return fmt.Sprintf(`text "%s"`, t) }

// Resolver polls the document for elements matching a query.
type Resolver struct {
	driver core.Driver
	policy wait.Policy
	log    *zap.Logger
}

// NewResolver creates a resolver. A nil logger disables logging.
func NewResolver(d core.Driver, policy wait.Policy, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{driver: d, policy: policy, log: log}
}

// Policy returns the resolver's wait policy.
func (r *Resolver) Policy() wait.Policy { return r.policy }

// Driver returns the underlying browser driver.
func (r *Resolver) Driver() core.Driver { return r.driver }

// Options tune a single lookup.
type Options struct {
	// Message replaces the default NotFound message
	Message string
	// Timeout replaces the policy timeout when positive
	Timeout time.Duration
	subject string
}

// Resolve polls xpath until cond holds and returns the matches in document
// order at that moment. Clickable returns only the first match.
func (r *Resolver) Resolve(ctx context.Context, xpath string, cond Condition, opts Options) ([]core.Element, error) {
	timeout := r.policy.WithTimeout(opts.Timeout).Timeout

	var found []core.Element
	err := wait.Until(ctx, timeout, r.policy.Interval, func(ctx context.Context) (bool, error) {
		// Re-query on every attempt; earlier handles may be detached.
		found = nil
		matches, err := r.driver.FindAll(ctx, xpath)
		if err != nil {
			return false, err
		}
		ok, err := satisfied(ctx, matches, cond)
		if !ok || err != nil {
			return false, err
		}
		if cond == Clickable {
			matches = matches[:1]
		}
		found = matches
		return true, nil
	})
	if err != nil {
		if !errors.Is(err, wait.ErrTimeout) {
			return nil, err
		}
		subject := opts.subject
		if subject == "" {
			subject = xpathSubject(xpath)
		}
		msg := opts.Message
		if msg == "" {
			msg = defaultMessage(cond, subject)
		}
		return nil, core.NotFound(msg).
			WithDetail("xpath", xpath).
			WithDetail("condition", cond.String()).
			WithDetail("timeout", timeout.String()).
			WithCause(errors.Unwrap(err))
	}

	r.log.Debug("elements resolved",
		zap.String("xpath", xpath),
		zap.Stringer("condition", cond),
		zap.Int("count", len(found)))
	return found, nil
}

func satisfied(ctx context.Context, matches []core.Element, cond Condition) (bool, error) {
	if len(matches) == 0 {
		return false, nil
	}
	switch cond {
	case Visible:
		for _, m := range matches {
			ok, err := m.Displayed(ctx)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Clickable:
		ok, err := matches[0].Displayed(ctx)
		if err != nil || !ok {
			return false, err
		}
		return matches[0].Enabled(ctx)
	default:
		return true, nil
	}
}
