package providers

import (
	"context"

	"github.com/moduleforge/builder/internal/gateway"
)

// Scripted is a deterministic, in-memory Provider for tests: each call to
// Complete consumes the next entry from Responses, repeating the last entry
// once exhausted. It never performs I/O, matching the corpus's own
// preference for local-first test doubles over live-service tests
// (agents/shared/docker fakes the Docker client rather than requiring a
// daemon).
type Scripted struct {
	ProviderName string
	Responses    []gateway.ProviderResult
	Errors       []error
	calls        int
}

func (s *Scripted) Name() string {
	if s.ProviderName == "" {
		return "scripted"
	}
	return s.ProviderName
}

func (s *Scripted) Complete(ctx context.Context, _ gateway.GenerateRequest) (gateway.ProviderResult, error) {
	if err := ctx.Err(); err != nil {
		return gateway.ProviderResult{}, err
	}
	i := s.calls
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	s.calls++
	var err error
	if i >= 0 && i < len(s.Errors) {
		err = s.Errors[i]
	}
	if i < 0 {
		return gateway.ProviderResult{}, nil
	}
	return s.Responses[i], err
}

// Calls reports how many times Complete has been invoked.
func (s *Scripted) Calls() int { return s.calls }
