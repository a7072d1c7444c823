package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, records ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, r := range records {
		w.Write([]byte("data: " + r + "\n\n"))
	}
	w.Write([]byte("data: [DONE]\n\n"))
}

func decodeBody(t *testing.T, r *http.Request) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenAIStreamingCall(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		captured = decodeBody(t, r)
		writeSSE(w,
			`{"choices":[{"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"delta":{"content":"lo"}}]}`,
		)
	}))
	defer server.Close()

	c, sleeper := testClient(Config{OpenAI: OpenAIConfig{APIKey: "test-key", BaseURL: server.URL}})

	msg, err := c.CallWithRetries(context.Background(), "test-call", GenericRequest{
		Model:    GPT4o,
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Text())
	assert.Empty(t, sleeper.slept)

	assert.Equal(t, string(GPT4o), captured["model"])
	assert.Equal(t, true, captured["stream"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].(map[string]interface{})["content"])
}

func TestOpenAIFunctionDirectives(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = decodeBody(t, r)
		writeSSE(w, `{"choices":[{"delta":{"function_call":{"name":"lookup","arguments":"{}"}}}]}`)
	}))
	defer server.Close()

	c, _ := testClient(Config{OpenAI: OpenAIConfig{APIKey: "k", BaseURL: server.URL}})

	msg, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:        GPT4o,
		Messages:     []GenericMessage{{Role: RoleUser, Content: "find it"}},
		Functions:    []FunctionDef{{Name: "lookup", Description: "finds things"}},
		FunctionCall: "lookup",
	})
	require.NoError(t, err)
	require.NotNil(t, msg.FunctionCall)
	assert.Equal(t, "lookup", msg.FunctionCall.Name)
	assert.Empty(t, msg.FunctionCall.Arguments)

	// A named directive is sent as an object, not a bare string.
	assert.Equal(t, map[string]interface{}{"name": "lookup"}, captured["function_call"])
	functions := captured["functions"].([]interface{})
	require.Len(t, functions, 1)
	assert.Equal(t, "lookup", functions[0].(map[string]interface{})["name"])
}

func TestAzureRequestShape(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/openai/deployments/prod-4o/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-01", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		writeSSE(w, `{"choices":[{"delta":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	c, _ := testClient(Config{OpenAI: OpenAIConfig{
		APIKey: "unused-direct-key",
		Azure: &AzureConfig{
			Endpoint:    server.URL,
			APIKey:      "az-key",
			Deployments: map[string]string{string(GPT4o): "prod-4o"},
		},
	}})

	msg, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    GPT4o,
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text())
	assert.Equal(t, int32(1), hits.Load())
}

func TestAzureFallsBackToDirect(t *testing.T) {
	var azureHits atomic.Int32
	azure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		azureHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"upstream exploded"}}`))
	}))
	defer azure.Close()

	var directHits atomic.Int32
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		directHits.Add(1)
		body := decodeBody(t, r)
		// By the time the loop reaches the direct service the model has
		// been downgraded and the temperature raised.
		assert.Equal(t, string(GPT4o), body["model"])
		assert.Equal(t, 0.8, body["temperature"])
		writeSSE(w, `{"choices":[{"delta":{"content":"recovered"}}]}`)
	}))
	defer direct.Close()

	c, sleeper := testClient(Config{OpenAI: OpenAIConfig{
		APIKey:  "direct-key",
		BaseURL: direct.URL,
		Azure:   &AzureConfig{Endpoint: azure.URL, APIKey: "az-key"},
	}})

	msg, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    Model("gpt-4-turbo"),
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", msg.Text())

	// Attempts 0 through 2 hit azure; the third retry switches service.
	assert.Equal(t, int32(3), azureHits.Load())
	assert.Equal(t, int32(1), directHits.Load())
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, sleeper.slept)
}

func TestAzureContentFilterSwitchesEarly(t *testing.T) {
	var azureHits atomic.Int32
	azure := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		azureHits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"filtered","code":"content_filter"}}`))
	}))
	defer azure.Close()

	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"choices":[{"delta":{"content":"ok"}}]}`)
	}))
	defer direct.Close()

	c, _ := testClient(Config{OpenAI: OpenAIConfig{
		APIKey:  "direct-key",
		BaseURL: direct.URL,
		Azure:   &AzureConfig{Endpoint: azure.URL, APIKey: "az-key"},
	}})

	msg, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    GPT4o,
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text())
	// The filter-specific switch engages at the second retry, one round
	// earlier than the unconditional one.
	assert.Equal(t, int32(2), azureHits.Load())
}

func TestPolicyViolationStripsAttachments(t *testing.T) {
	var bodies []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodies = append(bodies, decodeBody(t, r))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"rejected","code":"content_policy_violation"}}`))
			return
		}
		writeSSE(w, `{"choices":[{"delta":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	c, _ := testClient(Config{OpenAI: OpenAIConfig{APIKey: "k", BaseURL: server.URL}})

	_, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model: GPT4o,
		Messages: []GenericMessage{{
			Role:    RoleUser,
			Content: "describe this",
			Files:   []File{{MimeType: "image/png", URL: "https://example.com/cat.png"}},
		}},
	})
	require.NoError(t, err)
	require.Len(t, bodies, 2)

	firstMsg := bodies[0]["messages"].([]interface{})[0].(map[string]interface{})
	_, multipart := firstMsg["content"].([]interface{})
	assert.True(t, multipart, "first attempt should carry the image part")

	secondMsg := bodies[1]["messages"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "describe this", secondMsg["content"])
}

func TestOpenAIExhaustion(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"still broken"}}`))
	}))
	defer server.Close()

	c, sleeper := testClient(Config{OpenAI: OpenAIConfig{APIKey: "k", BaseURL: server.URL}})

	_, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    GPT4o,
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	}, WithRetryBound(2))

	var ee *ExhaustionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 3, ee.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, sleeper.slept, 2)

	var se *ServerError
	assert.ErrorAs(t, err, &se)
}

func TestOpenAITransportFailureExhaustsDefaultBudget(t *testing.T) {
	// A server that is already gone produces connection-level failures
	// on every attempt.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c, sleeper := testClient(Config{OpenAI: OpenAIConfig{APIKey: "k", BaseURL: server.URL}})

	_, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    Model("gpt-4-turbo"),
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})

	var ee *ExhaustionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 6, ee.Attempts)
	assert.Len(t, sleeper.slept, 5)

	var ne *NetworkError
	assert.ErrorAs(t, err, &ne)
}

func TestOpenAIMissingKeyIsConfigurationError(t *testing.T) {
	c, sleeper := testClient(Config{})

	_, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    GPT4o,
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, sleeper.slept)
}

func TestOpenAIRateLimitRetryAfter(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"slow down","code":"rate_limit_exceeded"}}`))
			return
		}
		writeSSE(w, `{"choices":[{"delta":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	c, _ := testClient(Config{OpenAI: OpenAIConfig{APIKey: "k", BaseURL: server.URL}})

	msg, err := c.CallWithRetries(context.Background(), "", GenericRequest{
		Model:    GPT4o,
		Messages: []GenericMessage{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Text())
}
