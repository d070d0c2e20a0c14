// Package mocks provides hand-rolled collaborator fakes shared by the
// package test suites: a scripted completion provider, a memory store and
// a rate limiter.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/openfleet/flowcore/llm"
	"github.com/openfleet/flowcore/types"
)

// Provider is a scripted llm.Provider. Responses are served in order;
// when the queue empties the Default response is served. Err, when set,
// fails every call (ErrTimes > 0 limits how many).
type Provider struct {
	mu        sync.Mutex
	Responses []*llm.ChatResponse
	Default   *llm.ChatResponse
	Err       error
	ErrTimes  int
	Requests  []*llm.ChatRequest
}

// NewProvider creates a provider that answers every call with the given
// text, a clean stop and the given token usage.
func NewProvider(text string, totalTokens int) *Provider {
	return &Provider{
		Default: &llm.ChatResponse{
			Model: "mock-model",
			Choices: []llm.ChatChoice{{
				FinishReason: llm.FinishStop,
				Message:      types.NewAssistantMessage(text),
			}},
			Usage: types.TokenUsage{
				PromptTokens:     totalTokens / 2,
				CompletionTokens: totalTokens - totalTokens/2,
				TotalTokens:      totalTokens,
			},
			CreatedAt: time.Now(),
		},
	}
}

// Completion implements llm.Provider.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)

	if p.Err != nil {
		if p.ErrTimes == 0 {
			return nil, p.Err
		}
		if p.ErrTimes > 0 {
			p.ErrTimes--
			if p.ErrTimes == 0 {
				err := p.Err
				p.Err = nil
				return nil, err
			}
			return nil, p.Err
		}
	}

	if len(p.Responses) > 0 {
		resp := p.Responses[0]
		p.Responses = p.Responses[1:]
		return resp, nil
	}
	return p.Default, nil
}

// HealthCheck implements llm.Provider.
func (p *Provider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "mock" }

// Calls returns how many completion calls the provider served.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// LastRequest returns the most recent completion request, or nil.
func (p *Provider) LastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return nil
	}
	return p.Requests[len(p.Requests)-1]
}
