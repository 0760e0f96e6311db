package symbolindex

import (
	"context"
	"sync"

	"enginelink/internal/core/ports"
	"enginelink/internal/engine/symbols"
)

var _ ports.SymbolLookup = (*MemoryIndex)(nil)

// MemoryIndex is an in-process symbol index used when no database is
// configured and in tests.
type MemoryIndex struct {
	mu      sync.RWMutex
	nextID  symbols.ID
	classes map[string][]symbols.Symbol
	members map[symbols.ID][]symbols.Symbol
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		classes: make(map[string][]symbols.Symbol),
		members: make(map[symbols.ID][]symbols.Symbol),
	}
}

func (m *MemoryIndex) AddClass(name string, loc symbols.Location) symbols.Symbol {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addClassLocked(m.classes, name, loc)
}

func (m *MemoryIndex) AddMember(owner symbols.Symbol, name string, loc symbols.Location) symbols.Symbol {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addMemberLocked(m.members, owner, name, loc)
}

// Replace swaps the whole index content for defs.
func (m *MemoryIndex) Replace(_ context.Context, defs []ClassDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	classes := make(map[string][]symbols.Symbol, len(defs))
	members := make(map[symbols.ID][]symbols.Symbol, len(defs))
	for _, def := range defs {
		owner := m.addClassLocked(classes, def.Name, def.Location)
		for _, member := range def.Members {
			m.addMemberLocked(members, owner, member.Name, member.Location)
		}
	}
	m.classes, m.members = classes, members
	return nil
}

func (m *MemoryIndex) addClassLocked(classes map[string][]symbols.Symbol, name string, loc symbols.Location) symbols.Symbol {
	m.nextID++
	sym := symbols.Symbol{ID: m.nextID, Kind: symbols.KindClass, Name: name, Location: loc}
	classes[name] = append(classes[name], sym)
	return sym
}

func (m *MemoryIndex) addMemberLocked(members map[symbols.ID][]symbols.Symbol, owner symbols.Symbol, name string, loc symbols.Location) symbols.Symbol {
	m.nextID++
	sym := symbols.Symbol{
		ID:        m.nextID,
		Kind:      symbols.KindMember,
		Name:      name,
		Owner:     owner.ID,
		OwnerName: owner.Name,
		Location:  loc,
	}
	members[owner.ID] = append(members[owner.ID], sym)
	return sym
}

func (m *MemoryIndex) Find(_ context.Context, name string) ([]symbols.Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]symbols.Symbol(nil), m.classes[name]...), nil
}

func (m *MemoryIndex) FindMember(_ context.Context, owner symbols.Symbol, name string) ([]symbols.Symbol, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []symbols.Symbol
	for _, sym := range m.members[owner.ID] {
		if sym.Name == name {
			out = append(out, sym)
		}
	}
	return out, nil
}

func (m *MemoryIndex) Close() error {
	return nil
}
