// Package mock provides a scripted recognition provider for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/lxm0851/shadowing/pkg/provider/asr"
)

// Provider is a configurable [asr.Provider] that records every request it
// receives. Zero value returns an empty Result instantly.
type Provider struct {
	mu sync.Mutex

	// Result and Err are returned from Recognize when the call completes.
	Result *asr.Result
	Err    error

	// Delay postpones completion; cancellation during the delay returns
	// (nil, nil) like a real provider.
	Delay time.Duration

	// Release, when non-nil, blocks Recognize until it is closed (or the
	// context is cancelled). Lets tests hold a recognition in flight.
	Release chan struct{}

	// Requests holds every request received, in order.
	Requests []asr.Request
}

var _ asr.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return "mock" }

func (p *Provider) Recognize(ctx context.Context, req asr.Request) (*asr.Result, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	result, err := p.Result, p.Err
	delay, release := p.Delay, p.Release
	p.mu.Unlock()

	if ctx.Err() != nil {
		return nil, nil
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, nil
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, nil
		}
	}
	if ctx.Err() != nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return &asr.Result{}, nil
	}
	out := *result
	return &out, nil
}

// Count returns the number of Recognize calls seen so far.
func (p *Provider) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}

// Last returns the most recent request, or the zero Request when none.
func (p *Provider) Last() asr.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Requests) == 0 {
		return asr.Request{}
	}
	return p.Requests[len(p.Requests)-1]
}
