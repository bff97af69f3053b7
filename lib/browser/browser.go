// Package browser wraps a controllable browser behind a small driver
// interface so the scraping state machines never touch rod directly
// and tests can substitute a fake.
package browser

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Element is a single located DOM element.
type Element interface {
	Clear() error
	Input(text string) error
	Click() error
	Text() (string, error)
	// Frame enters the document of an iframe element. Calling it on
	// anything that is not an iframe is an error.
	Frame() (Scope, error)
}

// Scope is one element-search surface: the main document or the
// document inside one iframe.
type Scope interface {
	// Element waits, bounded, for the first match of an attribute-based
	// selector.
	Element(selector string) (Element, error)
	// Elements returns all current matches without waiting.
	Elements(selector string) ([]Element, error)
}

// Driver is the capability surface a collection run owns exclusively.
// Every wait is deadline-bounded; nothing here blocks indefinitely.
type Driver interface {
	Scope
	Navigate(url string) error
	URL() (string, error)
	// Text reads the full rendered body text.
	Text() (string, error)
	HTML() (string, error)
	Screenshot(path string) error
	// Frames enumerates the embedded frames of the current page as
	// search scopes. Frames that cannot be entered are skipped.
	Frames() ([]Scope, error)
	// WaitGone polls until no visible element matches selector, or the
	// timeout elapses.
	WaitGone(selector string, timeout time.Duration) error
	// WaitText polls until the body text contains marker, or the
	// timeout elapses.
	WaitText(marker string, timeout time.Duration) error
	Close() error
}

var ErrWaitTimeout = errors.New("wait deadline elapsed")

const pollInterval = 250 * time.Millisecond

type Options struct {
	Headless bool `json:"headless"`
	// Bin optionally pins the chrome binary instead of letting the
	// launcher resolve one.
	Bin string `json:"bin"`
	// ElementTimeout bounds how long Element waits for a match.
	ElementTimeout time.Duration `json:"-"`
	// NavTimeout bounds how long Navigate waits for the load event.
	NavTimeout time.Duration `json:"-"`
}

// Rod is the production Driver backed by go-rod.
type Rod struct {
	browser        *rod.Browser
	launcher       *launcher.Launcher
	page           *rod.Page
	elementTimeout time.Duration
	navTimeout     time.Duration
}

func NewRod(opts Options) (*Rod, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("no-sandbox").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1920,1080")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, err
	}
	b := rod.New().ControlURL(url)
	err = b.Connect()
	if err != nil {
		l.Kill()
		return nil, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Kill()
		return nil, err
	}

	elementTimeout := opts.ElementTimeout
	if elementTimeout == 0 {
		elementTimeout = 10 * time.Second
	}
	navTimeout := opts.NavTimeout
	if navTimeout == 0 {
		navTimeout = 40 * time.Second
	}

	return &Rod{
		browser:        b,
		launcher:       l,
		page:           page,
		elementTimeout: elementTimeout,
		navTimeout:     navTimeout,
	}, nil
}

func (r *Rod) Navigate(url string) error {
	err := r.page.Navigate(url)
	if err != nil {
		return err
	}
	return r.page.Timeout(r.navTimeout).WaitLoad()
}

func (r *Rod) URL() (string, error) {
	info, err := r.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (r *Rod) Element(selector string) (Element, error) {
	el, err := r.page.Timeout(r.elementTimeout).Element(selector)
	if err != nil {
		return nil, err
	}
	return rodElement{el: el}, nil
}

func (r *Rod) Elements(selector string) ([]Element, error) {
	return elementsOf(r.page)(selector)
}

func (r *Rod) Text() (string, error) {
	body, err := r.page.Timeout(r.elementTimeout).Element("body")
	if err != nil {
		return "", err
	}
	return body.Text()
}

func (r *Rod) HTML() (string, error) {
	return r.page.HTML()
}

func (r *Rod) Screenshot(path string) error {
	data, err := r.page.Screenshot(true, nil)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (r *Rod) Frames() ([]Scope, error) {
	iframes, err := r.page.Elements("iframe")
	if err != nil {
		return nil, err
	}

	var scopes []Scope
	for _, iframe := range iframes {
		frame, err := iframe.Frame()
		if err != nil {
			continue
		}
		scopes = append(scopes, rodScope{page: frame, elementTimeout: r.elementTimeout})
	}
	return scopes, nil
}

func (r *Rod) WaitGone(selector string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		has, el, err := r.page.Has(selector)
		if err != nil {
			return err
		}
		if !has {
			return nil
		}
		visible, err := el.Visible()
		if err != nil || !visible {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return ErrWaitTimeout
}

func (r *Rod) WaitText(marker string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		text, err := r.Text()
		if err == nil && strings.Contains(text, marker) {
			return nil
		}
		time.Sleep(pollInterval)
	}
	return ErrWaitTimeout
}

func (r *Rod) Close() error {
	var errlist []error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			errlist = append(errlist, err)
		}
	}
	if r.launcher != nil {
		r.launcher.Kill()
	}
	return errors.Join(errlist...)
}

type rodScope struct {
	page           *rod.Page
	elementTimeout time.Duration
}

func (s rodScope) Element(selector string) (Element, error) {
	el, err := s.page.Timeout(s.elementTimeout).Element(selector)
	if err != nil {
		return nil, err
	}
	return rodElement{el: el}, nil
}

func (s rodScope) Elements(selector string) ([]Element, error) {
	return elementsOf(s.page)(selector)
}

func elementsOf(page *rod.Page) func(string) ([]Element, error) {
	return func(selector string) ([]Element, error) {
		els, err := page.Elements(selector)
		if err != nil {
			return nil, err
		}
		out := make([]Element, len(els))
		for i, el := range els {
			out[i] = rodElement{el: el}
		}
		return out, nil
	}
}

type rodElement struct {
	el *rod.Element
}

func (e rodElement) Clear() error {
	err := e.el.SelectAllText()
	if err != nil {
		return err
	}
	return e.el.Input("")
}

func (e rodElement) Input(text string) error {
	return e.el.Input(text)
}

func (e rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e rodElement) Frame() (Scope, error) {
	frame, err := e.el.Frame()
	if err != nil {
		return nil, err
	}
	return rodScope{page: frame, elementTimeout: 10 * time.Second}, nil
}
