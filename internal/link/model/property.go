package model

import (
	"fmt"
	"log/slog"
	"sync"

	"enginelink/internal/link/protocol"

	"github.com/vmihailenco/msgpack/v5"
)

type subscription[T any] struct {
	id int
	fn func(T)
}

// Property is a named, versioned value of the shared model. Observers run
// synchronously, in registration order, only when the value changes.
type Property[T comparable] struct {
	owner *Model
	name  string
	kind  protocol.Kind
	local bool
	def   T

	mu        sync.Mutex
	value     T
	version   uint64
	nextID    int
	observers []subscription[T]
	hooks     []func()
}

func newProperty[T comparable](m *Model, name string, kind protocol.Kind, def T) *Property[T] {
	p := &Property[T]{owner: m, name: name, kind: kind, def: def, value: def}
	m.register(p)
	return p
}

// newLocalProperty is never sent to or accepted from the peer.
func newLocalProperty[T comparable](m *Model, name string, def T) *Property[T] {
	return &Property[T]{owner: m, name: name, local: true, def: def, value: def}
}

func (p *Property[T]) Name() string {
	return p.name
}

func (p *Property[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *Property[T]) Version() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.version
}

// Set writes v locally and forwards it to the peer. Writing the current
// value is a no-op. A value too large for one frame is refused and leaves
// the property unchanged.
func (p *Property[T]) Set(v T) {
	if err := p.Update(v); err != nil {
		slog.Error("property write refused", "name", p.name, "error", err)
	}
}

// Update is Set reporting a refused write.
func (p *Property[T]) Update(v T) error {
	p.mu.Lock()
	if p.value == v {
		p.mu.Unlock()
		return nil
	}
	var msg protocol.Message
	if !p.local {
		msg = p.message(v, p.version+1)
		if err := p.owner.checkFrame(msg); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.version++
	p.value = v
	p.mu.Unlock()

	if !p.local {
		p.owner.send(msg)
	}
	p.notify(v)
	return nil
}

// Subscribe registers fn for future changes and returns a func that
// removes it.
func (p *Property[T]) Subscribe(fn func(T)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.observers = append(p.observers, subscription[T]{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.observers {
			if s.id == id {
				p.observers = append(p.observers[:i:i], p.observers[i+1:]...)
				return
			}
		}
	}
}

func (p *Property[T]) onChange(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, fn)
}

func (p *Property[T]) notify(v T) {
	p.mu.Lock()
	observers := append([]subscription[T](nil), p.observers...)
	hooks := append([]func(){}, p.hooks...)
	p.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	for _, s := range observers {
		s.fn(v)
	}
}

func (p *Property[T]) message(v T, version uint64) protocol.Message {
	msg := protocol.Message{Kind: p.kind, Name: p.name, Version: version, Origin: p.owner.role}
	payload, err := protocol.EncodePayload(v)
	if err != nil {
		slog.Error("failed to encode property", "name", p.name, "error", err)
		return msg
	}
	msg.Payload = payload
	return msg
}

// applyRemote applies a peer write under the convergence rule: a newer
// version wins; on equal versions the leader's value wins on both ends.
func (p *Property[T]) applyRemote(msg protocol.Message) (bool, error) {
	var v T
	if err := msgpack.Unmarshal(msg.Payload, &v); err != nil {
		return false, fmt.Errorf("decode %s: %w", p.name, err)
	}

	p.mu.Lock()
	switch {
	case msg.Version > p.version:
	case msg.Version == p.version && msg.Origin.Leader() && !p.owner.role.Leader():
	default:
		p.mu.Unlock()
		return false, nil
	}
	p.version = msg.Version
	changed := p.value != v
	p.value = v
	p.mu.Unlock()

	if changed {
		p.notify(v)
	}
	return changed, nil
}

func (p *Property[T]) snapshot() (protocol.Message, bool) {
	p.mu.Lock()
	v, version := p.value, p.version
	p.mu.Unlock()
	if version == 0 {
		return protocol.Message{}, false
	}
	return p.message(v, version), true
}

func (p *Property[T]) reset() {
	p.mu.Lock()
	p.observers = nil
	p.value = p.def
	p.version = 0
	p.mu.Unlock()
	for _, h := range p.hooksCopy() {
		h()
	}
}

func (p *Property[T]) hooksCopy() []func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]func(){}, p.hooks...)
}

// Derived is a read-only value computed from other properties.
type Derived[T comparable] struct {
	compute func() T

	mu        sync.Mutex
	value     T
	nextID    int
	observers []subscription[T]
}

func newDerived[T comparable](compute func() T, sources ...interface{ onChange(func()) }) *Derived[T] {
	d := &Derived[T]{compute: compute, value: compute()}
	for _, src := range sources {
		src.onChange(d.recompute)
	}
	return d
}

func (d *Derived[T]) Get() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value
}

func (d *Derived[T]) Subscribe(fn func(T)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.observers = append(d.observers, subscription[T]{id: id, fn: fn})
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.observers {
			if s.id == id {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

func (d *Derived[T]) recompute() {
	v := d.compute()
	d.mu.Lock()
	if d.value == v {
		d.mu.Unlock()
		return
	}
	d.value = v
	observers := append([]subscription[T](nil), d.observers...)
	d.mu.Unlock()
	for _, s := range observers {
		s.fn(v)
	}
}

func (d *Derived[T]) reset() {
	d.mu.Lock()
	d.observers = nil
	d.value = d.compute()
	d.mu.Unlock()
}
