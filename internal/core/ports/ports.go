package ports

import (
	"context"

	"enginelink/internal/engine/symbols"
)

// SymbolLookup abstracts the authoritative symbol index. Both calls may be
// slow; callers must not hold locks needed by unrelated work while calling.
type SymbolLookup interface {
	// Find returns every class symbol declared with exactly this name.
	Find(ctx context.Context, name string) ([]symbols.Symbol, error)
	// FindMember returns the children of owner declared with this name.
	FindMember(ctx context.Context, owner symbols.Symbol, name string) ([]symbols.Symbol, error)
}

// Guard is a held access scope. Release is idempotent.
type Guard interface {
	Release()
}

// ProgramAccess hands out the program-model scopes navigation runs under.
// Callers acquire read before context and release in reverse order.
type ProgramAccess interface {
	AcquireRead(ctx context.Context) (Guard, error)
	AcquireContext(ctx context.Context) (Guard, error)
}

// View performs the navigation side effect: moving the user's active view to
// a resolved symbol.
type View interface {
	Show(ctx context.Context, sym symbols.Symbol) error
}

// ReferenceChecker is the side-effect-free half of the navigator, used to decide
// whether text should be presented as a navigable reference.
type ReferenceChecker interface {
	IsReferenceValid(ctx context.Context, owner, member string) bool
}
