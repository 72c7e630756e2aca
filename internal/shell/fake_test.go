// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/invowk/scribe/internal/l2l"
)

type (
	request struct {
		Target string
		Action string
		Data   any
	}

	// fakePeer answers requests from a per-action reply table and records
	// every request and registered service.
	fakePeer struct {
		mu       sync.Mutex
		replies  map[string]func(data any) any
		requests []request
		services map[string]l2l.Handler
		err      error
	}
)

func newFakePeer() *fakePeer {
	return &fakePeer{
		replies:  make(map[string]func(any) any),
		services: make(map[string]l2l.Handler),
	}
}

func (p *fakePeer) reply(action string, fn func(data any) any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[action] = fn
}

func (p *fakePeer) SendAndWait(_ context.Context, target, action string, data any) (*l2l.Message, error) {
	p.mu.Lock()
	p.requests = append(p.requests, request{Target: target, Action: action, Data: data})
	fn, ok := p.replies[action]
	err := p.err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fake: no reply for %s", action)
	}
	msg, merr := l2l.NewMessage(action+"-response", fn(data))
	if merr != nil {
		return nil, merr
	}
	return msg, nil
}

func (p *fakePeer) AddService(action string, h l2l.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services[action] = h
}

func (p *fakePeer) sent(action string) []request {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []request
	for _, r := range p.requests {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

// push delivers a notification through the registered service.
func (p *fakePeer) push(action string, data any) {
	p.mu.Lock()
	h := p.services[action]
	p.mu.Unlock()
	msg, err := l2l.NewMessage(action, data)
	if err != nil {
		panic(err)
	}
	h(context.Background(), msg, func(any) error { return nil })
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
