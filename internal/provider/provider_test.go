package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/donkey-runner/internal/tokens"
)

type fakeChat struct {
	resp openai.ChatCompletionResponse
	err  error
	reqs []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func TestNew_SelectsVariantByKey(t *testing.T) {
	_, isLocal := New(Options{}).(*Local)
	assert.True(t, isLocal)

	_, isRemote := New(Options{APIKey: "sk-test", Model: "gpt-4o-mini"}).(*Remote)
	assert.True(t, isRemote)
}

func TestLocal_CannedResponses(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"even proof", "Prove that the sum of two EVEN numbers is even.", evenSumProof},
		{"capital", "What is the capital of France?", franceCapital},
		{"prove without even", "Prove that sqrt(2) is irrational.", genericResponse},
		{"generic", "Summarize this paragraph.", genericResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Respond(tt.prompt))
		})
	}
}

func TestLocal_UsageFromEstimator(t *testing.T) {
	prompt := "What is the capital of France?"
	c := NewLocal().Complete(context.Background(), prompt, 100)

	assert.Equal(t, franceCapital, c.Text)
	assert.Equal(t, tokens.Estimate(prompt), c.PromptTokens)
	assert.Equal(t, tokens.Estimate(franceCapital), c.ResponseTokens)
	assert.Equal(t, c.PromptTokens+c.ResponseTokens, c.TotalTokens)
	assert.False(t, c.Fallback)
}

func TestLocal_Deterministic(t *testing.T) {
	l := NewLocal()
	a := l.Complete(context.Background(), "anything", 10)
	b := l.Complete(context.Background(), "anything", 10)
	assert.Equal(t, a, b)
}

func TestRemote_UsesReportedUsage(t *testing.T) {
	fake := &fakeChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "42"}}},
		Usage:   openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}}
	r := NewRemoteWithClient(fake, Options{Model: "gpt-4o-mini", Temperature: 0.7})

	c := r.Complete(context.Background(), "What is 6*7?", 50)

	assert.Equal(t, "42", c.Text)
	assert.Equal(t, 12, c.PromptTokens)
	assert.Equal(t, 3, c.ResponseTokens)
	assert.Equal(t, 15, c.TotalTokens)
	assert.False(t, c.Fallback)

	require.Len(t, fake.reqs, 1)
	assert.Equal(t, "gpt-4o-mini", fake.reqs[0].Model)
	assert.Equal(t, 50, fake.reqs[0].MaxTokens)
	assert.InDelta(t, 0.7, fake.reqs[0].Temperature, 1e-6)
	require.Len(t, fake.reqs[0].Messages, 1)
	assert.Equal(t, openai.ChatMessageRoleUser, fake.reqs[0].Messages[0].Role)
}

func TestRemote_FallsBackOnError(t *testing.T) {
	fake := &fakeChat{err: errors.New("401 unauthorized")}
	r := NewRemoteWithClient(fake, Options{})
	prompt := "What is the capital of France?"

	c := r.Complete(context.Background(), prompt, 100)

	assert.True(t, c.Fallback)
	assert.Contains(t, c.Warning, "401 unauthorized")
	assert.Equal(t, franceCapital, c.Text)
	assert.Equal(t, tokens.Estimate(prompt)+tokens.Estimate(franceCapital), c.TotalTokens)
}

func TestRemote_FallsBackOnEmptyChoices(t *testing.T) {
	r := NewRemoteWithClient(&fakeChat{}, Options{})

	c := r.Complete(context.Background(), "hello", 100)

	assert.True(t, c.Fallback)
	assert.Equal(t, genericResponse, c.Text)
}

func TestRemote_DefaultModel(t *testing.T) {
	r := NewRemoteWithClient(&fakeChat{}, Options{})
	assert.Equal(t, "openai:"+openai.GPT3Dot5Turbo, r.Name())
}
