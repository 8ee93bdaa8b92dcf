// Package llm wraps the chat-completions provider behind a small interface
// the orchestrator and tests can share.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"github.com/homelead/askdb/pkg/config"
)

// ErrUnavailable wraps provider failures so callers can map them to a 502
// instead of a generic server error.
var ErrUnavailable = errors.New("llm unavailable")

// Roles of chat messages, mirroring the chat-completions API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

// Message is one turn of a chat-completions conversation.
type Message struct {
	Role         string
	Content      string
	Name         string
	FunctionCall *FunctionCall
}

// FunctionCall is the model's request to invoke a declared function.
type FunctionCall struct {
	Name      string
	Arguments string
}

// Function declares one callable tool to the model.
type Function struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one chat-completions call.
type Request struct {
	Model       string
	Messages    []Message
	Functions   []Function
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Client is the surface the orchestrator depends on. The production
// implementation talks to the OpenAI API; tests script responses.
type Client interface {
	Complete(ctx context.Context, req Request) (Message, error)
}

type openAIClient struct {
	api          *openai.Client
	defaultModel string
}

// NewClient creates the production client from config.
func NewClient(cfg config.LLMConfig) Client {
	return &openAIClient{
		api:          openai.NewClient(cfg.APIKey),
		defaultModel: cfg.Model,
	}
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (Message, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toChatMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	}
	if len(req.Functions) > 0 {
		chatReq.Functions = toFunctionDefinitions(req.Functions)
		chatReq.FunctionCall = "auto"
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		slog.Error("chat completion failed", "model", model, "error", err)
		return Message{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Message{}, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	return fromChatMessage(resp.Choices[0].Message), nil
}

func toChatMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		}
		if m.FunctionCall != nil {
			out[i].FunctionCall = &openai.FunctionCall{
				Name:      m.FunctionCall.Name,
				Arguments: m.FunctionCall.Arguments,
			}
		}
	}
	return out
}

func toFunctionDefinitions(functions []Function) []openai.FunctionDefinition {
	out := make([]openai.FunctionDefinition, len(functions))
	for i, f := range functions {
		out[i] = openai.FunctionDefinition{
			Name:        f.Name,
			Description: f.Description,
			Parameters:  f.Parameters,
		}
	}
	return out
}

func fromChatMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{Role: m.Role, Content: m.Content}
	if m.FunctionCall != nil {
		msg.FunctionCall = &FunctionCall{
			Name:      m.FunctionCall.Name,
			Arguments: m.FunctionCall.Arguments,
		}
	}
	return msg
}
