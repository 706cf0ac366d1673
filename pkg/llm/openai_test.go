package llm_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arclane/conduit/pkg/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, events []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, e := range events {
			fmt.Fprintf(w, "data: %s\n\n", e)
			flusher.Flush()
		}
	}))
}

func TestStreamChatAssemblesContentAndUsage(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"hel"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":2}}`,
		"[DONE]",
	})
	defer srv.Close()

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{BaseURL: srv.URL, APIKey: "test"})

	var content string
	var sawFinish bool
	for delta, err := range provider.StreamChat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, llm.ModelConfig{Model: "gpt-4o-mini"}, "test", "sess-1") {
		require.NoError(t, err)
		switch delta.Type {
		case llm.DeltaContent:
			content += delta.Content
		case llm.DeltaFinish:
			sawFinish = true
			require.NotNil(t, delta.Usage)
			assert.Equal(t, 10, delta.Usage.InputTokens)
			assert.Equal(t, 2, delta.Usage.OutputTokens)
		}
	}

	assert.Equal(t, "hello", content)
	assert.True(t, sawFinish)
}

func TestStreamChatAssemblesToolCallArguments(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":"{\"city\":"}}]},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"paris\"}"}}]},"finish_reason":null}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		"[DONE]",
	})
	defer srv.Close()

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{BaseURL: srv.URL, APIKey: "test"})

	var calls int
	var assembled string
	for delta, err := range provider.StreamChat(context.Background(), nil, llm.ModelConfig{Model: "gpt-4o-mini"}, "test", "sess-1") {
		require.NoError(t, err)
		if delta.Type == llm.DeltaToolCall {
			calls++
			require.NotNil(t, delta.ToolCall)
			assembled += delta.ToolCall.ArgumentsFragment
		}
	}
	assert.Equal(t, 2, calls)
	assert.Equal(t, `{"city":"paris"}`, assembled)
}

func TestStreamChatStopsOnConsumerBreak(t *testing.T) {
	srv := sseServer(t, []string{
		`{"choices":[{"delta":{"content":"a"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"b"},"finish_reason":null}]}`,
		`{"choices":[{"delta":{"content":"c"},"finish_reason":null}]}`,
		"[DONE]",
	})
	defer srv.Close()

	provider := llm.NewOpenAIProvider(llm.OpenAIConfig{BaseURL: srv.URL, APIKey: "test"})

	count := 0
	for delta, err := range provider.StreamChat(context.Background(), nil, llm.ModelConfig{Model: "gpt-4o-mini"}, "test", "sess-1") {
		require.NoError(t, err)
		count++
		if delta.Content == "b" {
			break
		}
	}
	assert.Equal(t, 2, count)
}
