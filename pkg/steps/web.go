package steps

import (
	"context"

	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/element"
	"github.com/devicelab-dev/parabank-e2e/pkg/locator"
)

// FrontEndHomepage is the page opened by the web scenarios.
const FrontEndHomepage = "/parabank/index.htm"

func (w *World) onHomePage(ctx context.Context) error {
	web, err := w.web()
	if err != nil {
		return err
	}
	return web.OpenPage(ctx, FrontEndHomepage, "", element.Action{})
}

func (w *World) clicksButton(ctx context.Context, name string) error {
	web, err := w.web()
	if err != nil {
		return err
	}
	return web.ClickByText(ctx, name, element.Action{})
}

// redirectedTo only reads well; the next step checks the page content.
func (w *World) redirectedTo(page string) error {
	w.log.Debug("expecting page", zap.String("page", page))
	return nil
}

func (w *World) seesMessage(ctx context.Context, msg string) error {
	web, err := w.web()
	if err != nil {
		return err
	}
	_, err = web.LocateByText(ctx, msg, element.Action{})
	return err
}

func (w *World) alreadyOnRegistrationPageWeb(ctx context.Context) error {
	steps := []func() error{
		func() error { return w.onHomePage(ctx) },
		func() error { return w.clicksButton(ctx, "Register") },
		func() error { return w.redirectedTo("Registration") },
		func() error { return w.seesMessage(ctx, "Signing up is easy!") },
	}
	return runAll(steps)
}

func (w *World) entersField(ctx context.Context, value, field string) error {
	web, err := w.web()
	if err != nil {
		return err
	}
	return web.SendKeys(ctx, locator.Field(field).XPath(), value, element.Action{})
}

func (w *World) submitsRegistration(ctx context.Context) error {
	web, err := w.web()
	if err != nil {
		return err
	}
	return web.Click(ctx, locator.RegisterButton, element.Action{})
}
