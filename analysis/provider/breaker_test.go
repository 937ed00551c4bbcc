package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/sony/gobreaker"
)

// scriptedTransport fails the first failFirst requests and answers the rest
// with a minimal Responses payload. The failure text stays clear of the
// status-code strings the retry tiering sniffs for, so failed calls return
// immediately instead of sleeping.
type scriptedTransport struct {
	calls     atomic.Int64
	failFirst int64
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := s.calls.Add(1)
	if n <= s.failFirst {
		return nil, errors.New("kaboom")
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(`{"id":"resp_1"}`)),
		Request:    req,
	}, nil
}

func TestNewCaller_StartsClosed(t *testing.T) {
	t.Parallel()

	caller := NewCaller(nil, CallerOptions{})
	if got := caller.State(); got != "closed" {
		t.Fatalf("State()=%q, want closed", got)
	}
}

func TestCaller_LimiterHonorsContext(t *testing.T) {
	t.Parallel()

	// The limiter checks the context before reserving a slot, so a cancelled
	// context surfaces before the client is ever touched.
	caller := NewCaller(nil, CallerOptions{RequestsPerMinute: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := caller.Call(ctx, responses.ResponseNewParams{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestCaller_BreakerLifecycle(t *testing.T) {
	t.Parallel()

	transport := &scriptedTransport{failFirst: 2}
	client := openai.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL("http://model.invalid"),
		option.WithHTTPClient(&http.Client{Transport: transport}),
		option.WithMaxRetries(0),
	)
	caller := NewCaller(&client, CallerOptions{
		BreakerMaxFailures: 2,
		BreakerCooldown:    50 * time.Millisecond,
	})

	params := responses.ResponseNewParams{
		Model: "test-model",
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String("ping"),
		},
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := caller.Call(ctx, params)
		if err == nil {
			t.Fatalf("call %d: expected error", i)
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("call %d: breaker opened too early: %v", i, err)
		}
	}
	if got := caller.State(); got != "open" {
		t.Fatalf("State()=%q after failures, want open", got)
	}

	// Open breaker short-circuits without touching the transport.
	_, err := caller.Call(ctx, params)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err=%v, want gobreaker.ErrOpenState", err)
	}
	if got := transport.calls.Load(); got != 2 {
		t.Fatalf("transport calls=%d, want 2", got)
	}

	// After the cooldown a probe call goes through and closes the breaker.
	time.Sleep(200 * time.Millisecond)
	if got := caller.State(); got != "half-open" {
		t.Fatalf("State()=%q after cooldown, want half-open", got)
	}
	resp, err := caller.Call(ctx, params)
	if err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if resp.ID != "resp_1" {
		t.Fatalf("resp.ID=%q, want resp_1", resp.ID)
	}
	if got := caller.State(); got != "closed" {
		t.Fatalf("State()=%q after probe, want closed", got)
	}
}
