package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/llm"
)

// scriptClient replays a fixed sequence of responses and records every
// request it saw.
type scriptClient struct {
	responses []llm.Message
	errs      []error
	requests  []llm.Request
}

func (c *scriptClient) Complete(_ context.Context, req llm.Request) (llm.Message, error) {
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i < len(c.errs) && c.errs[i] != nil {
		return llm.Message{}, c.errs[i]
	}
	if i < len(c.responses) {
		return c.responses[i], nil
	}
	return llm.Message{Role: llm.RoleAssistant, Content: ""}, nil
}

func assistant(content string) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, Content: content}
}

func functionCall(name, args string) llm.Message {
	return llm.Message{Role: llm.RoleAssistant, FunctionCall: &llm.FunctionCall{Name: name, Arguments: args}}
}

func newTestRouter(client llm.Client) *Router {
	return NewRouter(client, config.DefaultConfig().LLM)
}

func TestRouter_DataSentinel(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{assistant(` {"route":"data"} `)}}
	r := newTestRouter(client)

	reply, isData := r.Route(context.Background(), "t1", "how many leads?")

	assert.True(t, isData)
	assert.Equal(t, dataSentinel, reply)
	require.Len(t, client.requests, 1)
	assert.Equal(t, "gpt-4o-mini", client.requests[0].Model)
}

func TestRouter_ChatReplyVerbatim(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{assistant("Hello! How can I help?")}}
	r := newTestRouter(client)

	reply, isData := r.Route(context.Background(), "t1", "hi there")

	assert.False(t, isData)
	assert.Equal(t, "Hello! How can I help?", reply)
}

func TestRouter_FallbackKeywords(t *testing.T) {
	client := &scriptClient{errs: []error{llm.ErrUnavailable, llm.ErrUnavailable, llm.ErrUnavailable}}
	r := newTestRouter(client)
	ctx := context.Background()

	_, isData := r.Route(ctx, "t1", "kitne leads hain?")
	assert.True(t, isData, "data keywords route to data without the model")

	reply, isData := r.Route(ctx, "t1", "namaste")
	assert.False(t, isData)
	assert.Contains(t, reply, "HomeLead")
}

func TestRouter_FallbackFollowUpAfterData(t *testing.T) {
	client := &scriptClient{errs: []error{errors.New("down"), errors.New("down")}}
	r := newTestRouter(client)
	ctx := context.Background()

	_, isData := r.Route(ctx, "t1", "how many bookings?")
	require.True(t, isData)

	_, isData = r.Route(ctx, "t1", "and?")
	assert.True(t, isData, "a short follow-up after a data turn stays on the data path")
}

func TestRouter_ContextIncludedInPrompt(t *testing.T) {
	client := &scriptClient{responses: []llm.Message{
		assistant(dataSentinel),
		assistant(dataSentinel),
	}}
	r := newTestRouter(client)
	ctx := context.Background()

	r.Route(ctx, "t1", "count leads")
	r.Route(ctx, "t1", "and converted?")

	require.Len(t, client.requests, 2)
	assert.Contains(t, client.requests[1].Messages[0].Content, "count leads",
		"the previous turn feeds the router prompt")
}
