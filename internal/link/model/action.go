package model

import (
	"fmt"
	"sync"

	"enginelink/internal/link/protocol"

	"github.com/vmihailenco/msgpack/v5"
)

// Action is a one-way call to the peer. Invoke sends; handlers registered
// with Handle run only for calls arriving from the peer.
type Action[T any] struct {
	owner *Model
	name  string

	mu       sync.Mutex
	nextID   int
	handlers []subscription[T]
}

func newAction[T any](m *Model, name string) *Action[T] {
	a := &Action[T]{owner: m, name: name}
	m.registerAction(a)
	return a
}

func (a *Action[T]) Name() string {
	return a.name
}

func (a *Action[T]) Invoke(v T) error {
	payload, err := protocol.EncodePayload(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", a.name, err)
	}
	msg := protocol.Message{Kind: protocol.KindAction, Name: a.name, Origin: a.owner.role, Payload: payload}
	if err := a.owner.checkFrame(msg); err != nil {
		return err
	}
	a.owner.send(msg)
	return nil
}

func (a *Action[T]) Handle(fn func(T)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.handlers = append(a.handlers, subscription[T]{id: id, fn: fn})
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, s := range a.handlers {
			if s.id == id {
				a.handlers = append(a.handlers[:i:i], a.handlers[i+1:]...)
				return
			}
		}
	}
}

func (a *Action[T]) deliver(msg protocol.Message) error {
	var v T
	if err := msgpack.Unmarshal(msg.Payload, &v); err != nil {
		return fmt.Errorf("decode %s: %w", a.name, err)
	}
	a.mu.Lock()
	handlers := append([]subscription[T](nil), a.handlers...)
	a.mu.Unlock()
	for _, h := range handlers {
		h.fn(v)
	}
	return nil
}

func (a *Action[T]) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = nil
}
