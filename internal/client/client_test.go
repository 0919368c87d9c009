package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coldbench/internal/auth"
)

func TestWithColdStartMarker(t *testing.T) {
	marked := WithColdStartMarker("http://example.com/fn")
	assert.Equal(t, "http://example.com/fn?coldstart", marked)

	// Applying the marker twice must not duplicate it.
	assert.Equal(t, marked, WithColdStartMarker(marked))

	withQuery := WithColdStartMarker("http://example.com/fn?a=1")
	assert.Equal(t, "http://example.com/fn?a=1&coldstart", withQuery)
	assert.Equal(t, withQuery, WithColdStartMarker(withQuery))
}

// recordingServer captures every request it sees.
type recordingServer struct {
	mu       sync.Mutex
	urls     []string
	auths    []string
	statuses []int // responses to return, last one repeats
}

func (s *recordingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.urls = append(s.urls, r.URL.String())
		s.auths = append(s.auths, r.Header.Get("Authorization"))
		idx := len(s.urls) - 1
		s.mu.Unlock()

		if idx >= len(s.statuses) {
			idx = len(s.statuses) - 1
		}
		w.WriteHeader(s.statuses[idx])
	}
}

func newTestClient(tokens auth.TokenSource, policy Policy) (*Client, *[]time.Duration) {
	c := New(tokens, policy, 0)
	slept := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

func TestSendAcceptsFirstOK(t *testing.T) {
	rec := &recordingServer{statuses: []int{http.StatusOK}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c, slept := newTestClient(auth.Static("tok"), DefaultPolicy())

	s, err := c.Send(context.Background(), srv.URL+"/fn", false)
	require.NoError(t, err)
	assert.Greater(t, s.Latency, time.Duration(0))
	assert.False(t, s.CapturedAt.IsZero())
	assert.Empty(t, *slept)
	require.Len(t, rec.urls, 1)
	assert.Equal(t, "Bearer tok", rec.auths[0])
}

func TestSendBacksOffOn429(t *testing.T) {
	rec := &recordingServer{statuses: []int{http.StatusTooManyRequests, http.StatusOK}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c, slept := newTestClient(auth.Static("tok"), DefaultPolicy())

	_, err := c.Send(context.Background(), srv.URL+"/fn", false)
	require.NoError(t, err)

	// Exactly one 30s pause, and the retried request is identical.
	require.Equal(t, []time.Duration{30 * time.Second}, *slept)
	require.Len(t, rec.urls, 2)
	assert.Equal(t, rec.urls[0], rec.urls[1])
	assert.Equal(t, rec.auths[0], rec.auths[1])
}

func TestSendRetriesTransientImmediately(t *testing.T) {
	rec := &recordingServer{statuses: []int{
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusOK,
	}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c, slept := newTestClient(auth.Static("tok"), DefaultPolicy())

	_, err := c.Send(context.Background(), srv.URL+"/fn", false)
	require.NoError(t, err)
	assert.Len(t, rec.urls, 3)
	assert.Empty(t, *slept)
}

func TestSendLatencyCoversOnlyAcceptedAttempt(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()

		if first {
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := newTestClient(auth.Static("tok"), DefaultPolicy())

	s, err := c.Send(context.Background(), srv.URL, false)
	require.NoError(t, err)
	assert.Less(t, s.Latency, 250*time.Millisecond,
		"latency must not include time spent in the rejected attempt")
}

func TestSendForceColdStartMarksURLOnce(t *testing.T) {
	rec := &recordingServer{statuses: []int{http.StatusInternalServerError, http.StatusOK}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c, _ := newTestClient(auth.Static("tok"), DefaultPolicy())

	_, err := c.Send(context.Background(), srv.URL+"/fn", true)
	require.NoError(t, err)

	for _, u := range rec.urls {
		assert.Equal(t, 1, strings.Count(u, "coldstart"), "url %q", u)
	}
}

type rotatingSource struct {
	tokens      []string
	i           int
	invalidated int
}

func (r *rotatingSource) Token(context.Context) (string, error) {
	return r.tokens[r.i], nil
}

func (r *rotatingSource) Invalidate() {
	r.invalidated++
	if r.i < len(r.tokens)-1 {
		r.i++
	}
}

func TestSendRefreshesTokenOnAuthRejection(t *testing.T) {
	rec := &recordingServer{statuses: []int{http.StatusUnauthorized, http.StatusOK}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	tokens := &rotatingSource{tokens: []string{"stale", "fresh"}}
	c, slept := newTestClient(tokens, DefaultPolicy())

	_, err := c.Send(context.Background(), srv.URL, false)
	require.NoError(t, err)

	assert.Equal(t, 1, tokens.invalidated)
	require.Len(t, rec.auths, 2)
	assert.Equal(t, "Bearer stale", rec.auths[0])
	assert.Equal(t, "Bearer fresh", rec.auths[1])
	assert.Empty(t, *slept, "auth rejection retries immediately")
}

func TestSendBoundedPolicyGivesUp(t *testing.T) {
	rec := &recordingServer{statuses: []int{http.StatusInternalServerError}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c, _ := newTestClient(auth.Static("tok"), Policy{
		MaxAttempts:      3,
		RateLimitBackoff: 30 * time.Second,
	})

	_, err := c.Send(context.Background(), srv.URL, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Len(t, rec.urls, 3)
}

func TestSendStopsOnCancelledContext(t *testing.T) {
	rec := &recordingServer{statuses: []int{http.StatusOK}}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, _ := newTestClient(auth.Static("tok"), DefaultPolicy())

	_, err := c.Send(ctx, srv.URL, false)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.urls)
}
