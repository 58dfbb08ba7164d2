package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps an LLMClient with a token-bucket limiter so a
// burst of concurrent turns cannot exhaust the backend's quota.
type RateLimitedClient struct {
	inner   LLMClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with the given requests-per-second
// budget and burst size.
func NewRateLimitedClient(inner LLMClient, rps float64, burst int) *RateLimitedClient {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Model implements the LLMClient interface.
func (c *RateLimitedClient) Model() string {
	return c.inner.Model()
}

// Generate implements the LLMClient interface.
//
// Waits for a limiter token before delegating. A context cancelled or
// expired while waiting is classified (ErrTimeout for deadline expiry).
func (c *RateLimitedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", Classify(err)
	}
	return c.inner.Generate(ctx, prompt, params)
}
