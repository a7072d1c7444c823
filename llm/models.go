package llm

import "sort"

// Provider is the tagged union of supported provider APIs. A request's
// provider is resolved exactly once, at the request boundary, from its
// model identifier.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGroq      Provider = "groq"
	ProviderGoogle    Provider = "google"
)

// Model is a provider-specific model identifier.
type Model string

// OpenAI models.
const (
	GPT4o     Model = "gpt-4o"
	GPT4oMini Model = "gpt-4o-mini"
	GPT4Turbo Model = "gpt-4-turbo"
	GPT4      Model = "gpt-4"
	GPT35     Model = "gpt-3.5-turbo"
)

// Anthropic models.
const (
	Claude3Opus    Model = "claude-3-opus-latest"
	Claude35Sonnet Model = "claude-3-5-sonnet-latest"
	Claude35Haiku  Model = "claude-3-5-haiku-latest"
)

// Groq models.
const (
	Llama3_70B  Model = "llama3-70b-8192"
	Llama3_8B   Model = "llama3-8b-8192"
	Mixtral8x7B Model = "mixtral-8x7b-32768"
)

// Google models.
const (
	Gemini15Pro   Model = "gemini-1.5-pro"
	Gemini15Flash Model = "gemini-1.5-flash"
)

// Fallback models used by retry remediation.
const (
	// fallbackOpenAIModel is the lower-capability model every
	// OpenAI-path retry downgrades to.
	fallbackOpenAIModel = GPT4o
	// fallbackAnthropicModel is the sonnet-tier model used on the last
	// Anthropic attempt and on rate limits.
	fallbackAnthropicModel = Claude35Sonnet
)

var modelProviders = map[Model]Provider{
	GPT4o:     ProviderOpenAI,
	GPT4oMini: ProviderOpenAI,
	GPT4Turbo: ProviderOpenAI,
	GPT4:      ProviderOpenAI,
	GPT35:     ProviderOpenAI,

	Claude3Opus:    ProviderAnthropic,
	Claude35Sonnet: ProviderAnthropic,
	Claude35Haiku:  ProviderAnthropic,

	Llama3_70B:  ProviderGroq,
	Llama3_8B:   ProviderGroq,
	Mixtral8x7B: ProviderGroq,

	Gemini15Pro:   ProviderGoogle,
	Gemini15Flash: ProviderGoogle,
}

// Provider resolves which provider enumeration the model belongs to.
func (m Model) Provider() (Provider, error) {
	if p, ok := modelProviders[m]; ok {
		return p, nil
	}
	return "", &ValidationError{SDKError: SDKError{
		Message: "unknown model: " + string(m),
	}}
}

// ListModels returns the known models for a provider, sorted by
// identifier.
func ListModels(p Provider) []Model {
	var out []Model
	for m, mp := range modelProviders {
		if mp == p {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
