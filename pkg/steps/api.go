package steps

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/request"
	"github.com/devicelab-dev/parabank-e2e/pkg/textutil"
)

// ParaBank endpoints, relative to the configured server.
const (
	EndpointHomepage        = "/parabank/index.htm"
	EndpointRegisterSession = "/parabank/register.htm;jsessionid=%s"
	EndpointRegister        = "/parabank/register.htm"
	EndpointLogin           = "/parabank/login.htm"
	EndpointOverview        = "/parabank/overview.htm"
	EndpointLogout          = "/parabank/logout.htm"
)

const (
	SessionCookie     = "JSESSIONID"
	InvalidSessionID  = "invalid_id"
	InvalidCredential = "invalid"
)

const (
	formContentType = "application/x-www-form-urlencoded"
	statusValid     = "valid"
	statusAValid    = "a valid"

	registrationUsernameField = "customer.username"
	registrationPasswordField = "customer.password"
)

func (w *World) homepageEndpoint() error {
	w.Request.SetEndpoint(EndpointHomepage)
	return nil
}

func (w *World) makeRequest(ctx context.Context, method string) error {
	_, err := w.client.Do(ctx, strings.ToUpper(method), w.Request, 0)
	return err
}

// requestStatus backs both the "passes" and the "fails" sentences.
func (w *World) requestStatus(expected string) error {
	resp, err := w.response()
	if err != nil {
		return err
	}
	return textutil.AssertText(expected, strconv.Itoa(resp.StatusCode), "Status Code")
}

func (w *World) receivesToken(key string) error {
	resp, err := w.response()
	if err != nil {
		return err
	}
	sid, ok := resp.Cookie(key).Get()
	if !ok {
		w.log.Warn("response set no session cookie", zap.String("cookie", key))
		w.SessionID = request.None[string]()
		return nil
	}
	w.SessionID = request.Some(sid)
	w.log.Debug(fmt.Sprintf(`Received "%s" is "%s".`, key, sid))
	return nil
}

func (w *World) alreadyVisitedHomepage(ctx context.Context) error {
	if err := w.homepageEndpoint(); err != nil {
		return err
	}
	if err := w.makeRequest(ctx, "GET"); err != nil {
		return err
	}
	if err := w.requestStatus("200"); err != nil {
		return err
	}
	return w.receivesToken(SessionCookie)
}

// sessionStatus keeps the received session for "a valid" and replaces it
// with a bogus id otherwise.
func (w *World) sessionStatus(status string) error {
	if status == statusAValid {
		_, err := w.sessionID()
		return err
	}
	w.SessionID = request.Some(InvalidSessionID)
	return nil
}

func (w *World) registrationPageEndpoint() error {
	sid, err := w.sessionID()
	if err != nil {
		return err
	}
	w.Request.SetEndpoint(fmt.Sprintf(EndpointRegisterSession, sid))
	return nil
}

func (w *World) alreadyOnRegistrationPageAPI(ctx context.Context, status string) error {
	steps := []func() error{
		func() error { return w.alreadyVisitedHomepage(ctx) },
		func() error { return w.sessionStatus(status) },
		w.registrationPageEndpoint,
		func() error { return w.makeRequest(ctx, "GET") },
		func() error { return w.requestStatus("200") },
	}
	return runAll(steps)
}

func (w *World) registerEndpoint() error {
	w.Request.SetEndpoint(EndpointRegister)
	return nil
}

// registrationPayload prepares the form post. An already set payload is
// kept; otherwise the default customer is used. The fields are remembered
// for the login steps.
func (w *World) registrationPayload() error {
	sid, err := w.sessionID()
	if err != nil {
		return err
	}
	w.Request.SetHeaders(map[string]string{
		"Content-Type": formContentType,
		"Cookie":       SessionCookie + "=" + sid,
	})

	var fields map[string]string
	switch w.Request.Payload.Kind() {
	case request.PayloadFields:
		fields = map[string]string{}
		for k := range w.Request.Payload.FieldMap() {
			fields[k], _ = w.Request.Payload.Field(k)
		}
	case request.PayloadRaw:
		values, err := url.ParseQuery(w.Request.Payload.RawString())
		if err != nil {
			return fmt.Errorf("registration payload is not form encoded: %w", err)
		}
		fields = map[string]string{}
		for k := range values {
			fields[k] = values.Get(k)
		}
	default:
		fields, err = w.defaultRegistration()
		if err != nil {
			return fmt.Errorf("load registration payload: %w", err)
		}
		w.Request.Payload = request.Raw(formEncode(fields))
	}
	w.RegistrationPayload = request.Some(copyFields(fields))
	return nil
}

func (w *World) noop() error { return nil }

func (w *World) createAccount(ctx context.Context) error {
	steps := []func() error{
		func() error { return w.alreadyOnRegistrationPageAPI(ctx, statusAValid) },
		w.registerEndpoint,
		w.registrationPayload,
		func() error { return w.makeRequest(ctx, "POST") },
		func() error { return w.requestStatus("200") },
	}
	return runAll(steps)
}

func (w *World) loginEndpoint() error {
	w.Request.SetEndpoint(EndpointLogin)
	return nil
}

// credentials prepares a login post that must not follow the redirect.
func (w *World) credentials(status string) error {
	w.Request.AllowRedirects = request.Some(false)
	sid, err := w.sessionID()
	if err != nil {
		return err
	}
	w.Request.SetHeaders(map[string]string{
		"Content-Type": formContentType,
		"Cookie":       SessionCookie + "=" + sid,
	})

	username, password := InvalidCredential, InvalidCredential
	if status == statusValid {
		reg, ok := w.RegistrationPayload.Get()
		if !ok {
			return core.MissingAttribute("registration_payload")
		}
		username = reg[registrationUsernameField]
		password = reg[registrationPasswordField]
	}
	w.Request.Payload = request.Raw("username=" + url.QueryEscape(username) + "&password=" + url.QueryEscape(password))
	return nil
}

func (w *World) responseContains(expected string) error {
	resp, err := w.response()
	if err != nil {
		return err
	}
	return textutil.AssertContains(expected, resp.Text(), "Response Text")
}

func (w *World) alreadyLoggedIn(ctx context.Context) error {
	steps := []func() error{
		w.loginEndpoint,
		func() error { return w.credentials(statusValid) },
		func() error { return w.makeRequest(ctx, "POST") },
		func() error { return w.requestStatus("302") },
	}
	return runAll(steps)
}

func (w *World) overviewEndpoint() error {
	w.Request.SetEndpoint(EndpointOverview)
	return nil
}

func (w *World) logoutEndpoint() error {
	w.Request.SetEndpoint(EndpointLogout)
	return nil
}

// runAll runs composite step parts in order and stops at the first error.
func runAll(steps []func() error) error {
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
