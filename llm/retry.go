package llm

import (
	"context"
	"time"
)

// Sleeper is an interface for sleeping, allowing tests to override
// inter-attempt delays.
type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// DefaultSleeper is the production sleeper.
var DefaultSleeper Sleeper = realSleeper{}

const (
	// defaultOpenAIRetries is the retry budget beyond the first attempt
	// on the OpenAI-compatible path.
	defaultOpenAIRetries = 5
	// defaultLinearAttempts is the total attempt budget on the
	// Anthropic and Groq paths.
	defaultLinearAttempts = 5

	// openAIRetryDelay is the fixed delay between OpenAI-path attempts.
	openAIRetryDelay = time.Second
	// linearBackoffBase scales the Anthropic/Groq inter-attempt delay
	// by the retry index; the first retry sleeps zero.
	linearBackoffBase = time.Second

	// fallbackTemperature is applied alongside every OpenAI model
	// downgrade.
	fallbackTemperature = 0.8
)

// openAIService selects which OpenAI-compatible service a request is
// sent to. It may flip from Azure to direct mid retry loop.
type openAIService int

const (
	serviceDirect openAIService = iota
	serviceAzure
)

func (s openAIService) String() string {
	if s == serviceAzure {
		return "azure"
	}
	return "openai"
}

// retryState is the mutable state carried across attempts of one
// call-with-retries invocation. It owns a private copy of the request:
// remediation mutations are cumulative across attempts and never reach
// the caller's value. Never shared across concurrent calls.
type retryState struct {
	attempt int
	req     GenericRequest
	service openAIService
}

// callOpenAIWithRetries wraps the streaming OpenAI-compatible call with
// the full remediation ladder.
func (c *Client) callOpenAIWithRetries(ctx context.Context, id string, req GenericRequest, opts callOptions) (*ParsedResponseMessage, error) {
	service := serviceDirect
	if c.cfg.OpenAI.Azure != nil {
		service = serviceAzure
	}
	state := &retryState{req: req.clone(), service: service}

	retries := defaultOpenAIRetries
	if opts.retryBound > 0 {
		retries = opts.retryBound
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		state.attempt = attempt
		if attempt > 0 {
			c.remediateOpenAI(state, lastErr, id)
			c.sleeper.Sleep(openAIRetryDelay)
		}

		msg, err := c.openAIStreamCall(ctx, state, opts)
		if err == nil {
			return msg, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("openai attempt failed",
			"call", id, "attempt", attempt, "service", state.service.String(), "error", err)
	}

	return nil, &ExhaustionError{
		SDKError: SDKError{Message: "openai call exhausted retries", Cause: lastErr},
		Attempts: retries + 1,
		LastRaw:  providerErrorRaw(lastErr),
	}
}

// remediateOpenAI mutates the retry state before the attempt at
// state.attempt, in fixed precedence order.
func (c *Client) remediateOpenAI(state *retryState, lastErr error, id string) {
	// Every retry: downgrade the model and raise temperature.
	state.req.Model = fallbackOpenAIModel
	t := fallbackTemperature
	state.req.Temperature = &t

	code := providerErrorCode(lastErr)

	if code == codeContentPolicyViolation {
		stripNonTextContent(&state.req)
		c.logger.Warn("stripped non-text content after policy violation", "call", id)
	}

	if state.attempt >= 2 && state.service == serviceAzure && code == codeContentFilter {
		state.service = serviceDirect
		c.logger.Warn("switching azure to direct openai after content filter", "call", id, "attempt", state.attempt)
	}

	if state.attempt == 3 && state.service == serviceAzure {
		state.service = serviceDirect
		c.logger.Warn("switching azure to direct openai", "call", id, "attempt", state.attempt)
	}

	if state.attempt == 4 && len(state.req.Functions) > 0 {
		state.req.FunctionCall = FunctionCallNone
		c.logger.Warn("disabling tool use", "call", id, "attempt", state.attempt)
	}
}

// stripNonTextContent removes every file attachment from every message.
func stripNonTextContent(req *GenericRequest) {
	for i := range req.Messages {
		req.Messages[i].Files = nil
	}
}

// callAnthropicWithRetries wraps the Anthropic call with linear backoff
// and model-downgrade remediation.
func (c *Client) callAnthropicWithRetries(ctx context.Context, id string, req GenericRequest, opts callOptions) (*ParsedResponseMessage, error) {
	attempts := defaultLinearAttempts
	if opts.retryBound > 0 {
		attempts = opts.retryBound
	}
	state := &retryState{req: req.clone()}

	remediate := func(lastErr error) {
		switch {
		case state.attempt == attempts-1:
			// Last attempt only: downgrade to the fallback tier.
			state.req.Model = fallbackAnthropicModel
			c.logger.Warn("downgrading anthropic model for final attempt", "call", id)
		case isRateLimit(lastErr):
			state.req.Model = fallbackAnthropicModel
			c.logger.Warn("switching anthropic model after rate limit", "call", id, "attempt", state.attempt)
		}
	}

	return c.callLinear(ctx, id, state, attempts, remediate, func(ctx context.Context) (*ParsedResponseMessage, error) {
		return c.anthropicCall(ctx, state.req)
	})
}

// callGroqWithRetries wraps the Groq call with linear backoff and no
// payload mutation.
func (c *Client) callGroqWithRetries(ctx context.Context, id string, req GenericRequest, opts callOptions) (*ParsedResponseMessage, error) {
	attempts := defaultLinearAttempts
	if opts.retryBound > 0 {
		attempts = opts.retryBound
	}
	state := &retryState{req: req.clone()}

	return c.callLinear(ctx, id, state, attempts, func(error) {}, func(ctx context.Context) (*ParsedResponseMessage, error) {
		return c.groqCall(ctx, state.req)
	})
}

// callLinear runs up to attempts total attempts with linear backoff:
// the nth retry sleeps (n-1) times the base delay, so the first retry
// is immediate.
func (c *Client) callLinear(ctx context.Context, id string, state *retryState, attempts int, remediate func(lastErr error), call func(context.Context) (*ParsedResponseMessage, error)) (*ParsedResponseMessage, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		state.attempt = attempt
		if attempt > 0 {
			remediate(lastErr)
			c.sleeper.Sleep(time.Duration(attempt-1) * linearBackoffBase)
		}

		msg, err := call(ctx)
		if err == nil {
			return msg, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		c.logger.Warn("attempt failed", "call", id, "attempt", attempt, "error", err)
	}

	return nil, &ExhaustionError{
		SDKError: SDKError{Message: "call exhausted retries", Cause: lastErr},
		Attempts: attempts,
		LastRaw:  providerErrorRaw(lastErr),
	}
}
