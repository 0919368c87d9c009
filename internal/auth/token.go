package auth

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
)

// TokenSource yields bearer tokens for outbound requests. Invalidate drops
// any cached token so the next Token call fetches a fresh one; the client
// calls it when the remote side rejects the credential.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Static is a fixed token, useful for tests and local dummy targets.
type Static string

func (s Static) Token(context.Context) (string, error) { return string(s), nil }
func (Static) Invalidate()                             {}

// CommandSource obtains a token by running an external CLI and reading its
// stdout, e.g. `gcloud auth print-identity-token`.
type CommandSource struct {
	Name string
	Args []string
}

func NewCommandSource(name string, args ...string) *CommandSource {
	return &CommandSource{Name: name, Args: args}
}

func (c *CommandSource) Token(ctx context.Context) (string, error) {
	var token string
	err := retry.Do(
		func() error {
			out, err := exec.CommandContext(ctx, c.Name, c.Args...).Output()
			if err != nil {
				return errors.Wrapf(err, "running %s", c.Name)
			}
			token = strings.TrimSpace(string(out))
			if token == "" {
				return errors.Errorf("%s produced an empty token", c.Name)
			}
			return nil
		},
		retry.Attempts(3),
		retry.LastErrorOnly(true),
	)
	return token, err
}

func (c *CommandSource) Invalidate() {}

// Cached wraps a TokenSource and reuses its token until ttl elapses or
// Invalidate is called. A ttl of zero caches for the life of the process.
type Cached struct {
	source TokenSource
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

func NewCached(source TokenSource, ttl time.Duration) *Cached {
	return &Cached{source: source, ttl: ttl, now: time.Now}
}

func (c *Cached) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.ttl <= 0 || c.now().Sub(c.fetchedAt) < c.ttl) {
		return c.token, nil
	}

	token, err := c.source.Token(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.fetchedAt = c.now()
	return token, nil
}

func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.source.Invalidate()
}
