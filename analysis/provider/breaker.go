package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// CallerOptions configures the client-side protections around model calls.
// The zero value disables the limiter and uses the default breaker settings.
type CallerOptions struct {
	// RequestsPerMinute caps outbound calls. <= 0 disables the limiter.
	RequestsPerMinute int

	// BreakerMaxFailures is the consecutive-failure count that opens the
	// breaker (default 3).
	BreakerMaxFailures uint32

	// BreakerCooldown is how long the breaker stays open before allowing a
	// probe call (default 30s).
	BreakerCooldown time.Duration
}

// Caller wraps the OpenAI Responses API with a requests-per-minute limiter, a
// circuit breaker, and tiered retries for rate-limit and server errors. Batch
// tools share one Caller across their workers so the protections apply to the
// whole run, not per goroutine.
type Caller struct {
	client  *openai.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewCaller(client *openai.Client, opts CallerOptions) *Caller {
	if opts.BreakerMaxFailures == 0 {
		opts.BreakerMaxFailures = 3
	}
	if opts.BreakerCooldown == 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerMaxFailures
		},
	})

	return &Caller{client: client, limiter: limiter, breaker: breaker}
}

// Call issues one Responses API request through the limiter, breaker, and
// retry layers. When the breaker is open the error wraps
// gobreaker.ErrOpenState so callers can stop a batch early instead of
// queueing calls that will all fail.
func (c *Caller) Call(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("Call: limiter wait: %w", err)
		}
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return callWithRetry(ctx, c.client, params)
	})
	if err != nil {
		return nil, fmt.Errorf("Call: %w", err)
	}
	resp, ok := out.(*responses.Response)
	if !ok {
		return nil, fmt.Errorf("Call: unexpected result type %T", out)
	}
	return resp, nil
}

// State reports the breaker state for progress lines: "closed", "open" or
// "half-open".
func (c *Caller) State() string {
	switch c.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
