package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// Classified errors for LLM calls. Callers branch on these with errors.Is
// to decide between fallback, retry, and abort.
var (
	// ErrTimeout indicates the call exceeded its deadline.
	ErrTimeout = errors.New("llm call timed out")

	// ErrRateLimited indicates the backend rejected the call for rate limits.
	ErrRateLimited = errors.New("llm call rate limited")

	// ErrInvalidOutput indicates the model returned output that failed
	// parsing or schema validation.
	ErrInvalidOutput = errors.New("llm returned invalid output")

	// ErrProvider indicates any other backend failure.
	ErrProvider = errors.New("llm provider error")
)

// Classify wraps a backend error with its classified sentinel.
//
// Errors already carrying a sentinel pass through unchanged, so wrappers
// can call Classify unconditionally.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrInvalidOutput) || errors.Is(err, ErrProvider) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return errors.Join(ErrRateLimited, err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return errors.Join(ErrTimeout, err)
		}
	}

	return errors.Join(ErrProvider, err)
}
