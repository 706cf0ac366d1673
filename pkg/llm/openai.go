package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/httpclient"
)

// OpenAIProvider speaks the OpenAI chat-completions streaming wire
// format (§4.1 "Must be OpenAI-chat-completions-compatible at the wire
// level").
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *httpclient.Client
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	BaseURL    string // default https://api.openai.com/v1
	APIKey     string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	TLS        *httpclient.TLSConfig
}

// NewOpenAIProvider builds a provider with a retrying HTTP client tuned
// to OpenAI's rate-limit header conventions.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}

	opts := []httpclient.Option{
		httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, httpclient.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.BaseDelay > 0 {
		opts = append(opts, httpclient.WithBaseDelay(cfg.BaseDelay))
	}
	if cfg.MaxDelay > 0 {
		opts = append(opts, httpclient.WithMaxDelay(cfg.MaxDelay))
	}
	if cfg.TLS != nil {
		opts = append(opts, httpclient.WithTLSConfig(cfg.TLS))
	}

	return &OpenAIProvider{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  httpclient.New(opts...),
	}
}

type openAIRequest struct {
	Model       string            `json:"model"`
	Messages    []openAIMessage   `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream"`
	Tools       []openAIToolDef   `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role       string            `json:"role"`
	Content    string            `json:"content"`
	ToolCalls  []openAIToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
}

type openAIToolDef struct {
	Type     string           `json:"type"`
	Function openAIToolDefFun `json:"function"`
}

type openAIToolDefFun struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	Index    int                  `json:"index"`
	ID       string               `json:"id"`
	Type     string               `json:"type"`
	Function openAIToolCallFunc   `json:"function"`
}

type openAIToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIStreamChunk struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage"`
}

type openAIStreamChoice struct {
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason *string           `json:"finish_reason"`
}

type openAIStreamDelta struct {
	Content   string           `json:"content"`
	ToolCalls []openAIToolCall `json:"tool_calls"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

func toOpenAIMessages(messages []Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		om := openAIMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			om.ToolCalls = append(om.ToolCalls, openAIToolCall{
				Index: tc.Index,
				ID:    tc.ID,
				Type:  "function",
				Function: openAIToolCallFunc{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, om)
	}
	return out
}

// StreamChat posts a streaming chat-completions request and yields one
// ChatDelta per SSE "data:" event, terminating the sequence on
// "data: [DONE]", on a request or read error, or on ctx cancellation.
// An event whose JSON fails to decode yields a DeltaError delta with
// the error, and the stream continues if the consumer keeps reading (§4.1
// "Cancellation: the client must abort the underlying transport and
// stop producing deltas promptly").
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []Message, cfg ModelConfig, stepName, sessionID string) iter.Seq2[ChatDelta, error] {
	return func(yield func(ChatDelta, error) bool) {
		reqBody := openAIRequest{
			Model:       cfg.Model,
			Messages:    toOpenAIMessages(messages),
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Stream:      true,
		}
		for _, t := range cfg.Tools {
			reqBody.Tools = append(reqBody.Tools, openAIToolDef{
				Type:     "function",
				Function: openAIToolDefFun{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			})
		}

		body, err := json.Marshal(reqBody)
		if err != nil {
			yield(ChatDelta{}, fmt.Errorf("llm_transport: marshal request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			yield(ChatDelta{}, fmt.Errorf("llm_transport: build request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, err := p.client.Do(httpReq)
		if err != nil {
			yield(ChatDelta{}, fmt.Errorf("llm_transport: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			yield(ChatDelta{}, fmt.Errorf("llm_transport: status %d", resp.StatusCode))
			return
		}

		state := &streamState{}
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			if ctx.Err() != nil {
				yield(ChatDelta{}, ctx.Err())
				return
			}

			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			if data == "" {
				continue
			}

			var chunkObj openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunkObj); err != nil {
				if !yield(ChatDelta{Type: DeltaError, Err: err}, err) {
					return
				}
				continue
			}

			for _, delta := range state.deltasFrom(chunkObj) {
				if !yield(delta, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield(ChatDelta{}, fmt.Errorf("llm_transport: %w", err))
		}
	}
}

// streamState tracks whether a usage record has already been emitted.
// Tool-call argument fragments are passed through one ChatDelta per
// fragment, unassembled; the agent layer joins them by Index.
type streamState struct {
	emittedUsage bool
}

func (s *streamState) deltasFrom(c openAIStreamChunk) []ChatDelta {
	var out []ChatDelta

	for _, choice := range c.Choices {
		if choice.Delta.Content != "" {
			out = append(out, ChatDelta{Type: DeltaContent, Content: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			out = append(out, ChatDelta{
				Type: DeltaToolCall,
				ToolCall: &ToolCallDelta{
					Index:             tc.Index,
					ID:                tc.ID,
					Name:              tc.Function.Name,
					ArgumentsFragment: tc.Function.Arguments,
				},
			})
		}
		if choice.FinishReason != nil {
			d := ChatDelta{Type: DeltaFinish, FinishedBy: *choice.FinishReason}
			if c.Usage != nil && !s.emittedUsage {
				s.emittedUsage = true
				usage := &chunk.UsageStats{
					InputTokens:  c.Usage.PromptTokens,
					OutputTokens: c.Usage.CompletionTokens,
				}
				if c.Usage.PromptTokensDetails != nil {
					usage.CachedTokens = c.Usage.PromptTokensDetails.CachedTokens
				}
				if c.Usage.CompletionTokensDetails != nil {
					usage.ReasoningTokens = c.Usage.CompletionTokensDetails.ReasoningTokens
				}
				d.Usage = usage
			}
			out = append(out, d)
		}
	}

	return out
}
