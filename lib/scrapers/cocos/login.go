package cocos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/relay"

	"go.opentelemetry.io/otel/codes"
)

// mfaInputSelectors are tried in order of specificity. The generic
// trailing "input" matches whatever is left when the app renders the
// code boxes without any identifying attribute.
var mfaInputSelectors = []string{
	"input[autocomplete='one-time-code']",
	"input[type='tel']",
	"input[inputmode='numeric']",
	"input",
}

const submitSelector = "button[type='submit'], button"

// Login walks the credential and MFA flow to an authenticated session.
// Every failure is terminal for the run: nothing in here retries,
// because each relayed code request is single-use and blind re-entry
// risks an account lockout.
func (c *Client) Login(ctx context.Context, email, password string) (err error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	defer func() {
		if err != nil {
			c.transition(ctx, StateFailed)
			span.RecordError(err)
			span.SetStatus(codes.Error, "login failed")
			c.notify(ctx, fmt.Sprintf("Login falló: %v", err))
		}
	}()

	err = c.driver.Navigate(c.opts.LoginUrl)
	if err != nil {
		return err
	}

	err = c.submitCredentials(email, password)
	if err != nil {
		return err
	}
	c.transition(ctx, StateCredentialsSubmitted)

	// the password field going away is the only evidence the form was
	// accepted; the app gives no explicit signal
	err = c.driver.WaitGone("input[type='password']", c.opts.FormTimeout)
	if err != nil {
		if errors.Is(err, browser.ErrWaitTimeout) {
			return ErrFormTimeout
		}
		return err
	}

	location, err := c.driver.URL()
	if err != nil {
		return err
	}
	if strings.Contains(location, c.opts.HomeMarker) {
		// trusted device: no MFA challenge is ever created
		c.transition(ctx, StateAuthenticated)
		c.loggedIn = true
		slog.InfoContext(ctx, "login succeeded without mfa")
		c.notify(ctx, "Login exitoso (dispositivo confiable).")
		return nil
	}

	c.transition(ctx, StateMfaRequired)
	if c.relay == nil {
		return ErrMfaUnavailable
	}

	code, err := c.relayCode(ctx)
	if err != nil {
		return err
	}
	c.transition(ctx, StateMfaCodeRelayed)

	scope, inputs, err := c.findMfaInputs()
	if err != nil {
		return err
	}
	err = enterCode(inputs, code)
	if err != nil {
		return err
	}

	err = c.submitMfa(scope)
	if err != nil {
		return err
	}
	c.transition(ctx, StateMfaSubmitted)

	err = c.waitForHome(c.opts.FormTimeout)
	if err != nil {
		return ErrMfaRejected
	}

	c.transition(ctx, StateAuthenticated)
	c.loggedIn = true
	slog.InfoContext(ctx, "login succeeded with mfa")
	c.notify(ctx, "Login exitoso con MFA.")
	return nil
}

func (c *Client) submitCredentials(email, password string) error {
	emailField, err := c.driver.Element("input[type='email'], input[name='email']")
	if err != nil {
		return fmt.Errorf("locate email input: %w", err)
	}
	err = emailField.Clear()
	if err != nil {
		return err
	}
	err = emailField.Input(email)
	if err != nil {
		return err
	}

	passwordField, err := c.driver.Element("input[type='password']")
	if err != nil {
		return fmt.Errorf("locate password input: %w", err)
	}
	err = passwordField.Clear()
	if err != nil {
		return err
	}
	err = passwordField.Input(password)
	if err != nil {
		return err
	}

	submit, err := c.driver.Element(submitSelector)
	if err != nil {
		return fmt.Errorf("locate submit button: %w", err)
	}
	return submit.Click()
}

// relayCode issues the single outstanding challenge for this session
// and suspends, bounded, until the operator answers or the deadline
// passes.
func (c *Client) relayCode(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:relayCode")
	defer span.End()

	// the marker is read before the request goes out so a reply landing
	// before the first poll still counts
	since, err := c.relay.LastMarker(ctx)
	if err != nil {
		return "", fmt.Errorf("read relay marker: %w", err)
	}
	challenge := relay.NewChallenge(time.Now(), c.opts.MfaTimeout, since)

	err = c.relay.Send(ctx, fmt.Sprintf(
		"Código MFA requerido. Enviá el código de 6 dígitos que recibiste. Tenés %d minutos.",
		int(c.opts.MfaTimeout.Minutes()),
	))
	if err != nil {
		return "", fmt.Errorf("request mfa code: %w", err)
	}

	slog.InfoContext(ctx, "waiting for mfa code", "timeout", c.opts.MfaTimeout)

	code, err := relay.Await(ctx, c.relay, challenge)
	if errors.Is(err, relay.ErrChallengeTimeout) {
		c.notify(ctx, "Timeout: no se recibió el código a tiempo.")
		return "", ErrMfaTimeout
	}
	if err != nil {
		return "", err
	}

	c.notify(ctx, fmt.Sprintf("Código %s recibido, intentando login...", code))
	return code, nil
}

// findMfaInputs searches the main document first, then enters every
// embedded frame until code inputs turn up. The returned scope is where
// they were found, so the submit button is looked up in the same place.
func (c *Client) findMfaInputs() (browser.Scope, []browser.Element, error) {
	inputs, err := findBySelectors(c.driver)
	if err == nil && len(inputs) > 0 {
		return c.driver, inputs, nil
	}

	frames, err := c.driver.Frames()
	if err != nil {
		return nil, nil, err
	}
	for _, frame := range frames {
		inputs, err := findBySelectors(frame)
		if err != nil || len(inputs) == 0 {
			continue
		}
		return frame, inputs, nil
	}

	return nil, nil, ErrUnrecognizedMfaLayout
}

func findBySelectors(scope browser.Scope) ([]browser.Element, error) {
	for _, selector := range mfaInputSelectors {
		inputs, err := scope.Elements(selector)
		if err != nil {
			return nil, err
		}
		if len(inputs) > 0 {
			return inputs, nil
		}
	}
	return nil, nil
}

// enterCode supports exactly the two shapes the app is known to render:
// one field for the whole code, or six single-digit boxes. Anything
// else means the UI changed underneath us and typing blind could lock
// the account.
func enterCode(inputs []browser.Element, code string) error {
	switch len(inputs) {
	case 1:
		err := inputs[0].Clear()
		if err != nil {
			return err
		}
		return inputs[0].Input(code)
	case len(code):
		for i, digit := range code {
			err := inputs[i].Input(string(digit))
			if err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrUnrecognizedMfaLayout
	}
}

func (c *Client) submitMfa(scope browser.Scope) error {
	submit, err := scope.Element(submitSelector)
	if err != nil {
		// the code boxes can live in a frame while the confirm button
		// stays in the main document
		submit, err = c.driver.Element(submitSelector)
		if err != nil {
			return fmt.Errorf("locate mfa submit button: %w", err)
		}
	}
	return submit.Click()
}

func (c *Client) waitForHome(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		location, err := c.driver.URL()
		if err == nil && strings.Contains(location, c.opts.HomeMarker) {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return browser.ErrWaitTimeout
}
