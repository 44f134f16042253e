/*
PURPOSE:
  OpenAI-compatible chat completion provider.

REQUIREMENTS:
  User-specified:
  - Real usage numbers come from the response's usage block.
  - Any failure degrades to the local provider for that call.

  Implementation-discovered:
  - ChatClient interface lets tests replace the HTTP client.
  - base_url allows OpenAI-compatible gateways.

ARCHITECTURE INTEGRATION:
  - Created by: provider.New when an API key is present
  - Dependencies: github.com/sashabaranov/go-openai

ERROR HANDLING:
  - Errors and empty choice lists are logged at Warn and answered locally,
    with Completion.Fallback and Completion.Warning set.

RELATED FILES:
  - internal/provider/local.go
*/

package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/daryltucker/donkey-runner/internal/model"
	"github.com/daryltucker/donkey-runner/internal/output"
)

// ChatClient is the subset of *openai.Client used by Remote.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Remote calls an OpenAI-compatible chat completion endpoint.
type Remote struct {
	client      ChatClient
	model       string
	temperature float32
	local       *Local
}

// NewRemote builds a Remote backed by the go-openai client.
func NewRemote(opts Options) *Remote {
	clientCfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		clientCfg.BaseURL = opts.BaseURL
	}
	return NewRemoteWithClient(openai.NewClientWithConfig(clientCfg), opts)
}

// NewRemoteWithClient builds a Remote around an existing chat client.
func NewRemoteWithClient(client ChatClient, opts Options) *Remote {
	m := opts.Model
	if m == "" {
		m = openai.GPT3Dot5Turbo
	}
	return &Remote{
		client:      client,
		model:       m,
		temperature: opts.Temperature,
		local:       NewLocal(),
	}
}

func (r *Remote) Name() string { return "openai:" + r.model }

// Complete sends a single user message. On any failure the Local variant
// answers instead and the completion is flagged as a fallback.
func (r *Remote) Complete(ctx context.Context, prompt string, maxTokens int) model.Completion {
	c, err := r.call(ctx, prompt, maxTokens)
	if err == nil {
		return c
	}

	output.Logger.Warn("Remote completion failed, using local provider", "model", r.model, "error", err)
	c = r.local.Complete(ctx, prompt, maxTokens)
	c.Fallback = true
	c.Warning = err.Error()
	return c
}

var errNoChoices = errors.New("no choices returned")

func (r *Remote) call(ctx context.Context, prompt string, maxTokens int) (model.Completion, error) {
	req := openai.ChatCompletionRequest{
		Model: r.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: r.temperature,
	}

	resp, err := r.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return model.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Completion{}, errNoChoices
	}

	return model.Completion{
		Text:           resp.Choices[0].Message.Content,
		PromptTokens:   resp.Usage.PromptTokens,
		ResponseTokens: resp.Usage.CompletionTokens,
		TotalTokens:    resp.Usage.TotalTokens,
	}, nil
}
