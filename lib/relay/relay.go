// Package relay is the out-of-band channel used to reach a human
// operator during a collection run: it requests the MFA code, receives
// it back, and carries success/failure notifications.
package relay

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// Message is one inbound message from the operator. Marker orders
// messages so polling can resume from the last one seen.
type Message struct {
	Marker int64
	Text   string
}

type Relay interface {
	Send(ctx context.Context, text string) error
	// Poll returns inbound messages with a marker strictly greater
	// than since.
	Poll(ctx context.Context, since int64) ([]Message, error)
	// LastMarker returns the marker of the newest message currently
	// known. Captured before the code request goes out, so a challenge
	// considers every reply from that point on.
	LastMarker(ctx context.Context) (int64, error)
}

var codeRegex = regexp.MustCompile(`\b(\d{6})\b`)

// ExtractCode finds a standalone 6-digit run in free-form text, e.g.
// "tu código es 482913, gracias" yields "482913".
func ExtractCode(text string) (string, bool) {
	m := codeRegex.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

type ChallengeStatus string

const (
	StatusWaiting   ChallengeStatus = "waiting"
	StatusReceived  ChallengeStatus = "received"
	StatusTimedOut  ChallengeStatus = "timed_out"
	StatusCancelled ChallengeStatus = "cancelled"
)

// Challenge is one outstanding code request. It is never retried: a
// timed out challenge fails the whole collection run. Since must be the
// relay's LastMarker from before the request was sent, otherwise a
// reply arriving before the first poll is mistaken for old chatter.
type Challenge struct {
	RequestedAt time.Time
	Timeout     time.Duration
	Since       int64
	Status      ChallengeStatus
	Code        string
}

func NewChallenge(now time.Time, timeout time.Duration, since int64) *Challenge {
	return &Challenge{
		RequestedAt: now,
		Timeout:     timeout,
		Since:       since,
		Status:      StatusWaiting,
	}
}

var ErrChallengeTimeout = errors.New("no code message arrived before the challenge deadline")

// PollInterval is how often Await asks the relay for new messages. The
// challenge timeout is enforced across many short polls rather than one
// blocking call so the deadline stays accurate.
const PollInterval = 2 * time.Second

// Await polls r until a message containing a 6-digit code arrives or
// the challenge deadline passes. The challenge status reflects the
// outcome either way.
func Await(ctx context.Context, r Relay, c *Challenge) (string, error) {
	deadline := c.RequestedAt.Add(c.Timeout)
	since := c.Since

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		if !time.Now().Before(deadline) {
			c.Status = StatusTimedOut
			return "", ErrChallengeTimeout
		}

		messages, err := r.Poll(ctx, since)
		if err == nil {
			for _, msg := range messages {
				if msg.Marker > since {
					since = msg.Marker
				}
				code, ok := ExtractCode(msg.Text)
				if !ok {
					continue
				}
				c.Status = StatusReceived
				c.Code = code
				return code, nil
			}
		}

		select {
		case <-ctx.Done():
			c.Status = StatusCancelled
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
