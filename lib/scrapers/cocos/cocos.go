// Package cocos drives the broker's web app through a browser session:
// credential login with an operator-relayed MFA code, and recovery of
// the rendered portfolio into a structured form. The app exposes no
// machine-readable holdings API, so everything here works against
// rendered text and defends accordingly.
package cocos

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"cocos-collector/lib/browser"
	"cocos-collector/lib/relay"
	"cocos-collector/lib/restyutil"
	"cocos-collector/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

var tracer = telemetry.Tracer("scrapers/cocos")

var (
	ErrFormTimeout           = errors.New("login form was not dismissed before the deadline")
	ErrMfaUnavailable        = errors.New("mfa required but no relay is configured")
	ErrMfaTimeout            = errors.New("no mfa code arrived before the challenge deadline")
	ErrUnrecognizedMfaLayout = errors.New("mfa input layout is neither one field nor six")
	ErrMfaRejected           = errors.New("authenticated area not reached after submitting the mfa code")
	ErrNoData                = errors.New("no portfolio data could be extracted")
	ErrNotLoggedIn           = errors.New("extraction requires a logged in session")
)

// State of the login machine. FAILED is reachable from everywhere.
type State string

const (
	StateStart                State = "start"
	StateCredentialsSubmitted State = "credentials_submitted"
	StateMfaRequired          State = "mfa_required"
	StateMfaCodeRelayed       State = "mfa_code_relayed"
	StateMfaSubmitted         State = "mfa_submitted"
	StateAuthenticated        State = "authenticated"
	StateFailed               State = "failed"
)

type Options struct {
	LoginUrl     string
	PortfolioUrl string
	// HomeMarker is the url fragment that identifies the authenticated
	// area.
	HomeMarker string
	// SectionMarker splits the header (total value) region from the
	// holdings table in the rendered text.
	SectionMarker string
	// Tickers is the allow-list of instrument symbols the extraction
	// patterns recognize. Anything outside it is invisible.
	Tickers []string

	TotalCurrency    string
	PositionCurrency string

	FormTimeout   time.Duration
	SettleTimeout time.Duration
	MfaTimeout    time.Duration

	// DiagnosticsDir receives screenshots and page dumps when an
	// extraction comes back empty.
	DiagnosticsDir string
}

func DefaultOptions() Options {
	return Options{
		LoginUrl:         "https://app.cocos.capital/login",
		PortfolioUrl:     "https://app.cocos.capital/capital-portfolio",
		HomeMarker:       "capital-portfolio",
		SectionMarker:    "Tenencia valorizada",
		Tickers:          []string{"CVX", "GOOGL", "TSLA", "NVDA", "AAPL", "MSFT"},
		TotalCurrency:    "ARS",
		PositionCurrency: "USD",
		FormTimeout:      40 * time.Second,
		SettleTimeout:    8 * time.Second,
		MfaTimeout:       2 * time.Minute,
		DiagnosticsDir:   ".",
	}
}

// Client owns one browser driver for its whole lifetime. It is not safe
// for concurrent use: one client, one collection run.
type Client struct {
	driver   browser.Driver
	relay    relay.Relay
	opts     Options
	http     *resty.Client
	state    State
	loggedIn bool
}

// NewClient wires a driver and an optional relay (nil means MFA cannot
// be completed and logins on untrusted devices will fail fast).
func NewClient(driver browser.Driver, r relay.Relay, opts Options) *Client {
	http := resty.New()
	http.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	http.SetTimeout(time.Second * 30)
	http.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(http.GetClient().Transport)

	var dumps restyutil.Output
	if opts.DiagnosticsDir != "" {
		out, err := restyutil.NewFilesystemOutput(filepath.Join(opts.DiagnosticsDir, "http"))
		if err == nil {
			dumps = out
		}
	}
	restyutil.InstrumentClient(http, tracer, dumps)

	return &Client{
		driver: driver,
		relay:  r,
		opts:   opts,
		http:   http,
		state:  StateStart,
	}
}

func (c *Client) State() State   { return c.state }
func (c *Client) LoggedIn() bool { return c.loggedIn }

func (c *Client) transition(ctx context.Context, next State) {
	slog.DebugContext(ctx, "login state", "from", c.state, "to", next)
	c.state = next
}

// Preflight checks the login surface is reachable before paying for a
// browser launch. The broker sits behind bot protection, hence the
// bypass transport.
func (c *Client) Preflight(ctx context.Context) error {
	res, err := c.http.R().
		SetContext(ctx).
		Get(c.opts.LoginUrl)
	if err != nil {
		return err
	}
	if res.StatusCode() >= 500 {
		return errors.New("login surface returned a server error")
	}
	return nil
}

// notify is an observability side effect, never part of the control
// contract: failures to send are logged and swallowed.
func (c *Client) notify(ctx context.Context, text string) {
	if c.relay == nil {
		return
	}
	err := c.relay.Send(ctx, text)
	if err != nil {
		slog.WarnContext(ctx, "relay notification failed", "err", err)
	}
}

// Close releases the browser. Must run on every exit path of a
// collection run, success or failure.
func (c *Client) Close() {
	err := c.driver.Close()
	if err != nil {
		slog.Warn("failed to close browser driver", "err", err)
	}
	c.loggedIn = false
}
