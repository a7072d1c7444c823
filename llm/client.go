package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Config is the opaque structured configuration the host application
// supplies. Only providers that will actually be called need filling in.
type Config struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Groq      GroqConfig
	Google    GoogleConfig
}

// Client routes provider-agnostic requests to provider APIs. Clients
// are safe for concurrent use: every call owns its own retry and stream
// state.
type Client struct {
	cfg     Config
	http    *httpClient
	images  ImageNormalizer
	sleeper Sleeper
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithImageNormalizer sets the image normalizer collaborator.
func WithImageNormalizer(n ImageNormalizer) ClientOption {
	return func(c *Client) { c.images = n }
}

// WithSleeper overrides inter-retry sleeping, for tests.
func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) { c.sleeper = s }
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	c := &Client{
		cfg:     cfg,
		http:    newHTTPClient(),
		images:  newFetchingNormalizer(),
		sleeper: DefaultSleeper,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// callOptions carries per-call overrides.
type callOptions struct {
	retryBound   int
	chunkTimeout time.Duration
}

// CallOption configures one CallWithRetries invocation.
type CallOption func(*callOptions)

// WithRetryBound overrides the attempt budget: retries beyond the first
// try on the OpenAI-compatible path, total attempts elsewhere.
func WithRetryBound(n int) CallOption {
	return func(o *callOptions) { o.retryBound = n }
}

// WithChunkTimeout overrides the per-chunk stream timeout.
func WithChunkTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.chunkTimeout = d }
}

// CallWithRetries routes the request to the provider its model belongs
// to, wrapped in that provider's retry policy, and returns the
// normalized response. The identifier tags log lines for the call; when
// empty a fresh UUID is generated.
func (c *Client) CallWithRetries(ctx context.Context, identifier string, req GenericRequest, opts ...CallOption) (*ParsedResponseMessage, error) {
	if identifier == "" {
		identifier = uuid.NewString()
	}

	var options callOptions
	for _, opt := range opts {
		opt(&options)
	}

	// The provider union is resolved exactly once, here.
	provider, err := req.Model.Provider()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("dispatching call",
		"call", identifier, "provider", string(provider), "model", string(req.Model))

	switch provider {
	case ProviderOpenAI:
		return c.callOpenAIWithRetries(ctx, identifier, req, options)
	case ProviderAnthropic:
		return c.callAnthropicWithRetries(ctx, identifier, req, options)
	case ProviderGroq:
		return c.callGroqWithRetries(ctx, identifier, req, options)
	case ProviderGoogle:
		// No retry policy is defined for the Google path; a failure
		// surfaces directly.
		return c.googleCall(ctx, req)
	}

	return nil, &ValidationError{SDKError: SDKError{
		Message: "unsupported provider " + string(provider),
	}}
}
