package client

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"coldbench/internal/auth"
	"coldbench/internal/sample"
)

// coldStartMarker is the bare query key that tells the remote function to
// terminate its process shortly after responding.
const coldStartMarker = "coldstart"

// Policy controls the retry loop around one measurement.
type Policy struct {
	// MaxAttempts bounds the loop; 0 retries until a request is accepted.
	MaxAttempts int
	// RateLimitBackoff is the pause after a 429 before the identical
	// request is reissued.
	RateLimitBackoff time.Duration
	// TransientDelay is the pause after any other failure; zero retries
	// immediately.
	TransientDelay time.Duration
}

func DefaultPolicy() Policy {
	return Policy{RateLimitBackoff: 30 * time.Second}
}

// WithColdStartMarker appends the cold-start query key to a URL exactly
// once; applying it to a URL that already carries the marker is a no-op.
func WithColdStartMarker(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Query().Has(coldStartMarker) {
		return rawURL
	}
	if u.RawQuery == "" {
		u.RawQuery = coldStartMarker
	} else {
		u.RawQuery += "&" + coldStartMarker
	}
	return u.String()
}

// Client issues one authenticated GET per trial and measures the wall-clock
// latency of the accepted attempt. Failed attempts are discarded and
// retried per Policy; only a 200 produces a sample.
type Client struct {
	http   *http.Client
	tokens auth.TokenSource
	policy Policy

	// sleep is injected so tests can observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
	log   *logrus.Entry
}

// New builds a Client. A zero timeout leaves requests unbounded; operators
// measuring over flaky links should set one so a hung request is
// reclassified as transient instead of blocking the run forever.
func New(tokens auth.TokenSource, policy Policy, timeout time.Duration) *Client {
	t := http.DefaultTransport.(*http.Transport).Clone()
	// One request in flight at a time; keep a single warm connection.
	t.MaxIdleConnsPerHost = 1

	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
		tokens: tokens,
		policy: policy,
		sleep:  sleepCtx,
		log:    logrus.WithField("component", "client"),
	}
}

// Send performs trials against rawURL until one is accepted and returns
// that attempt's latency. The timing of rejected attempts never leaks into
// the returned sample. With an unbounded policy the only error paths are
// context cancellation and token acquisition failure (a local fault the
// retry loop cannot fix).
func (c *Client) Send(ctx context.Context, rawURL string, forceColdStart bool) (sample.Sample, error) {
	if forceColdStart {
		rawURL = WithColdStartMarker(rawURL)
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return sample.Sample{}, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			return sample.Sample{}, errors.Wrap(err, "acquiring token")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return sample.Sample{}, errors.Wrap(err, "building request")
		}
		req.Header.Set("Authorization", "Bearer "+token)

		start := time.Now()
		resp, reqErr := c.http.Do(req)
		end := time.Now()

		status := 0
		delay := c.policy.TransientDelay
		if reqErr == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			status = resp.StatusCode

			switch status {
			case http.StatusOK:
				return sample.Sample{CapturedAt: start, Latency: end.Sub(start)}, nil
			case http.StatusTooManyRequests:
				delay = c.policy.RateLimitBackoff
			case http.StatusUnauthorized, http.StatusForbidden:
				c.tokens.Invalidate()
				delay = 0
			}
		}

		if c.policy.MaxAttempts > 0 && attempt >= c.policy.MaxAttempts {
			if reqErr != nil {
				return sample.Sample{}, errors.Wrapf(reqErr, "no success after %d attempts", attempt)
			}
			return sample.Sample{}, errors.Errorf("no success after %d attempts, last status %d", attempt, status)
		}

		entry := c.log.WithFields(logrus.Fields{"attempt": attempt, "status": status, "backoff": delay})
		if reqErr != nil {
			entry = entry.WithError(reqErr)
		}
		entry.Debug("retrying trial")

		if delay > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return sample.Sample{}, err
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
