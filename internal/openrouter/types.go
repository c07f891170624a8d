package openrouter

import "fmt"

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for structured output, either
// {"type":"json_object"} or {"type":"json_schema","json_schema":{...}}.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema interface{} `json:"json_schema,omitempty"`
}

// Plugin enables provider-side plugins; {id:"web", max_results:n} turns on
// web search grounding.
type Plugin struct {
	ID         string `json:"id"`
	MaxResults int    `json:"max_results,omitempty"`
}

// ChatRequest is the chat-completions request body.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float32         `json:"temperature,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	Plugins        []Plugin        `json:"plugins,omitempty"`
}

// APIError is the error envelope OpenRouter returns, sometimes wrapped in
// an HTTP 200.
type APIError struct {
	Code    interface{} `json:"code,omitempty"`
	Message string      `json:"message"`
	Type    string      `json:"type,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("openrouter error %v: %s", e.Code, e.Message)
	}
	return "openrouter error: " + e.Message
}

// ChatResponse is a non-streaming completion response. Besides the
// standard OpenAI schema, Perplexity deep-research models answer through
// "answer" or "output" fields, so both are carried.
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text,omitempty"`
	} `json:"choices"`
	Answer string    `json:"answer,omitempty"`
	Output string    `json:"output,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// Content normalizes the response to plain text.
func (r *ChatResponse) Content() string {
	if len(r.Choices) > 0 {
		if c := r.Choices[0].Message.Content; c != "" {
			return c
		}
		if r.Choices[0].Text != "" {
			return r.Choices[0].Text
		}
	}
	if r.Answer != "" {
		return r.Answer
	}
	return r.Output
}

// StreamChunk is one decoded chat-completion streaming payload.
type StreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Answer string    `json:"answer,omitempty"`
	Output string    `json:"output,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// Delta returns the incremental text carried by the chunk.
func (c *StreamChunk) Delta() string {
	if len(c.Choices) > 0 && c.Choices[0].Delta.Content != "" {
		return c.Choices[0].Delta.Content
	}
	if c.Answer != "" {
		return c.Answer
	}
	return c.Output
}

// Model describes one entry from GET /models.
type Model struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	ContextLength       int      `json:"context_length,omitempty"`
	SupportedParameters []string `json:"supported_parameters,omitempty"`
}

// SupportsParameter reports whether the model advertises a parameter such
// as "structured_outputs".
func (m *Model) SupportsParameter(param string) bool {
	for _, p := range m.SupportedParameters {
		if p == param {
			return true
		}
	}
	return false
}

type modelList struct {
	Data []Model `json:"data"`
}
