package cocos

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/relay"

	"github.com/stretchr/testify/require"
)

type fakeElement struct {
	value   string
	clicks  int
	onClick func()
}

func (e *fakeElement) Clear() error {
	e.value = ""
	return nil
}

func (e *fakeElement) Input(text string) error {
	e.value += text
	return nil
}

func (e *fakeElement) Click() error {
	e.clicks++
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Text() (string, error) { return e.value, nil }

func (e *fakeElement) Frame() (browser.Scope, error) {
	return nil, errors.New("not an iframe")
}

type fakeScope struct {
	elements map[string][]browser.Element
}

func (s *fakeScope) Element(selector string) (browser.Element, error) {
	els := s.elements[selector]
	if len(els) == 0 {
		return nil, errors.New("no element matches " + selector)
	}
	return els[0], nil
}

func (s *fakeScope) Elements(selector string) ([]browser.Element, error) {
	return s.elements[selector], nil
}

type fakeDriver struct {
	fakeScope
	url          string
	text         string
	html         string
	navigations  []string
	frames       []browser.Scope
	passwordGone bool
	screenshots  []string
	closed       bool
}

func (d *fakeDriver) Navigate(url string) error {
	d.navigations = append(d.navigations, url)
	return nil
}

func (d *fakeDriver) URL() (string, error)  { return d.url, nil }
func (d *fakeDriver) Text() (string, error) { return d.text, nil }
func (d *fakeDriver) HTML() (string, error) { return d.html, nil }

func (d *fakeDriver) Screenshot(path string) error {
	d.screenshots = append(d.screenshots, path)
	return nil
}

func (d *fakeDriver) Frames() ([]browser.Scope, error) { return d.frames, nil }

func (d *fakeDriver) WaitGone(selector string, timeout time.Duration) error {
	if d.passwordGone {
		return nil
	}
	return browser.ErrWaitTimeout
}

func (d *fakeDriver) WaitText(marker string, timeout time.Duration) error {
	if strings.Contains(d.text, marker) {
		return nil
	}
	return browser.ErrWaitTimeout
}

func (d *fakeDriver) Close() error {
	d.closed = true
	return nil
}

// queuedRelay answers the first poll with the queued code, as if the
// operator replied instantly, and records everything sent to them.
type queuedRelay struct {
	mu       sync.Mutex
	code     string
	outbound []string
}

func (r *queuedRelay) Send(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outbound = append(r.outbound, text)
	return nil
}

func (r *queuedRelay) Poll(ctx context.Context, since int64) ([]relay.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.code == "" {
		return nil, nil
	}
	return []relay.Message{{Marker: since + 1, Text: "tu código es " + r.code}}, nil
}

func (r *queuedRelay) LastMarker(ctx context.Context) (int64, error) { return 0, nil }

func (r *queuedRelay) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outbound...)
}

func testOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.FormTimeout = 500 * time.Millisecond
	opts.SettleTimeout = 50 * time.Millisecond
	opts.MfaTimeout = 5 * time.Second
	opts.DiagnosticsDir = t.TempDir()
	return opts
}

func loginForm(driver *fakeDriver) (email, password, submit *fakeElement) {
	email = &fakeElement{}
	password = &fakeElement{}
	submit = &fakeElement{}
	driver.elements = map[string][]browser.Element{
		"input[type='email'], input[name='email']": {email},
		"input[type='password']":                   {password},
		submitSelector:                             {submit},
	}
	return email, password, submit
}

func TestLoginTrustedDevice(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	email, password, submit := loginForm(driver)
	driver.url = "https://app.cocos.capital/capital-portfolio"

	r := &queuedRelay{}
	client := NewClient(driver, r, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, client.State())
	require.True(t, client.LoggedIn())

	require.Equal(t, "user@example.com", email.value)
	require.Equal(t, "hunter2", password.value)
	require.Equal(t, 1, submit.clicks)

	// no challenge was issued on the trusted path
	for _, msg := range r.sent() {
		require.NotContains(t, msg, "MFA requerido")
	}
}

func TestLoginMfaSixBoxes(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	_, _, submit := loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	boxes := make([]browser.Element, 6)
	for i := range boxes {
		boxes[i] = &fakeElement{}
	}
	driver.elements["input[type='tel']"] = boxes

	mfaSubmit := &fakeElement{onClick: func() {
		driver.url = "https://app.cocos.capital/capital-portfolio"
	}}
	// the mfa view replaces the credential form's button
	submit.onClick = func() {
		driver.elements[submitSelector] = []browser.Element{mfaSubmit}
	}

	r := &queuedRelay{code: "482913"}
	client := NewClient(driver, r, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, client.State())
	require.True(t, client.LoggedIn())

	for i, digit := range "482913" {
		require.Equal(t, string(digit), boxes[i].(*fakeElement).value)
	}
	require.Equal(t, 1, mfaSubmit.clicks)
}

func TestLoginMfaSingleField(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	_, _, submit := loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	field := &fakeElement{value: "stale"}
	driver.elements["input[autocomplete='one-time-code']"] = []browser.Element{field}
	// the mfa view replaces the credential form's button
	submit.onClick = func() {
		driver.elements[submitSelector] = []browser.Element{&fakeElement{onClick: func() {
			driver.url = "https://app.cocos.capital/capital-portfolio"
		}}}
	}

	r := &queuedRelay{code: "118204"}
	client := NewClient(driver, r, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	// the field is cleared before the code goes in
	require.Equal(t, "118204", field.value)
}

func TestLoginMfaInputsInsideFrame(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	_, _, submit := loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	boxes := make([]browser.Element, 6)
	for i := range boxes {
		boxes[i] = &fakeElement{}
	}
	driver.frames = []browser.Scope{
		&fakeScope{elements: map[string][]browser.Element{}},
		&fakeScope{elements: map[string][]browser.Element{
			"input[inputmode='numeric']": boxes,
		}},
	}
	// the confirm button lives in the main document, not the frame
	submit.onClick = func() {
		driver.elements[submitSelector] = []browser.Element{&fakeElement{onClick: func() {
			driver.url = "https://app.cocos.capital/capital-portfolio"
		}}}
	}

	r := &queuedRelay{code: "482913"}
	client := NewClient(driver, r, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "4", boxes[0].(*fakeElement).value)
	require.Equal(t, "3", boxes[5].(*fakeElement).value)
}

func TestLoginMfaWithoutRelay(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	client := NewClient(driver, nil, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.ErrorIs(t, err, ErrMfaUnavailable)
	require.Equal(t, StateFailed, client.State())
	require.False(t, client.LoggedIn())
}

func TestLoginMfaTimeout(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	// an empty queuedRelay never answers a poll
	r := &queuedRelay{}
	opts := testOptions(t)
	opts.MfaTimeout = 0

	client := NewClient(driver, r, opts)

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.ErrorIs(t, err, ErrMfaTimeout)
	require.Equal(t, StateFailed, client.State())
	require.False(t, client.LoggedIn())

	// the operator is told the window closed
	joined := strings.Join(r.sent(), "\n")
	require.Contains(t, joined, "Timeout: no se recibió el código a tiempo.")
}

func TestLoginFormTimeout(t *testing.T) {
	driver := &fakeDriver{passwordGone: false}
	loginForm(driver)

	client := NewClient(driver, &queuedRelay{}, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.ErrorIs(t, err, ErrFormTimeout)
	require.Equal(t, StateFailed, client.State())
}

func TestLoginMfaRejected(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	driver.elements["input[type='tel']"] = []browser.Element{&fakeElement{}}
	// submitting never leaves the verification page

	r := &queuedRelay{code: "482913"}
	client := NewClient(driver, r, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.ErrorIs(t, err, ErrMfaRejected)
	require.Equal(t, StateFailed, client.State())
	require.False(t, client.LoggedIn())
}

func TestLoginUnrecognizedMfaLayout(t *testing.T) {
	driver := &fakeDriver{passwordGone: true}
	loginForm(driver)
	driver.url = "https://app.cocos.capital/verify"

	// four boxes is neither a single field nor one per digit
	boxes := make([]browser.Element, 4)
	for i := range boxes {
		boxes[i] = &fakeElement{}
	}
	driver.elements["input[type='tel']"] = boxes

	r := &queuedRelay{code: "482913"}
	client := NewClient(driver, r, testOptions(t))

	err := client.Login(context.Background(), "user@example.com", "hunter2")
	require.ErrorIs(t, err, ErrUnrecognizedMfaLayout)
	require.Equal(t, StateFailed, client.State())
}

func TestCloseReleasesDriver(t *testing.T) {
	driver := &fakeDriver{}
	client := NewClient(driver, nil, testOptions(t))
	client.Close()
	require.True(t, driver.closed)
	require.False(t, client.LoggedIn())
}
