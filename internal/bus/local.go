// SPDX-License-Identifier: MIT
package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("bus is closed")

// LocalBus delivers messages in-process, synchronously, to exact topic
// matches. It backs the stand-alone play command and tests.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
}

var _ Bus = (*LocalBus)(nil)

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]Handler)}
}

func (b *LocalBus) Subscribe(topic string, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return &TransportError{Topic: topic, Err: ErrClosed}
	}
	b.handlers[topic] = append(b.handlers[topic], h)
	return nil
}

func (b *LocalBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Topic: topic, Err: err}
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return &TransportError{Topic: topic, Err: ErrClosed}
	}
	handlers := append([]Handler(nil), b.handlers[topic]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
