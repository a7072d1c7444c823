// Package llm is a unification layer over several LLM provider APIs:
// OpenAI (direct or Azure), Anthropic (direct or AWS Bedrock), Groq, and
// Google Generative AI. It accepts one provider-agnostic request shape,
// routes it to the right provider, translates payloads to and from each
// provider's wire format, and returns one normalized response shape.
//
// # Quick start
//
//	client := llm.NewClient(llm.Config{
//	    OpenAI: llm.OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
//	})
//
//	resp, err := client.CallWithRetries(ctx, "", llm.GenericRequest{
//	    Model: llm.GPT4o,
//	    Messages: []llm.GenericMessage{
//	        {Role: llm.RoleUser, Content: "Hello"},
//	    },
//	})
//	fmt.Println(*resp.Content)
//
// # Architecture
//
// A call flows through four pieces:
//
//   - Payload translators map GenericRequest to each provider's wire
//     format and unwrap provider response envelopes into a
//     ParsedResponseMessage.
//   - The OpenAI-compatible path streams: a chunk framer decodes the
//     SSE byte stream (tolerating records split across reads), and an
//     accumulator folds delta records into text and function-call
//     fragments until the [DONE] sentinel.
//   - A retry controller wraps every provider call with bounded retries
//     and provider-specific remediation (model downgrade, content
//     stripping, Azure-to-direct failover, tool disabling).
//   - The Anthropic path first repairs the message sequence so it
//     satisfies that API's strict user/assistant alternation contract.
//
// # Limitations
//
// Streamed responses track only the first tool-call slot; parallel tool
// calls in one response are ignored beyond slot 0. The only cancellation
// path is the per-chunk stream timeout; callers wanting an overall
// deadline should use context.WithTimeout.
package llm
