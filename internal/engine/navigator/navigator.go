// Package navigator resolves engine-side class and member references and
// moves the user's view to them.
//
// Resolution is side-effect free. The only side effect, ports.View.Show,
// runs under the program-model read scope and then the compilation-context
// scope; both are released in reverse order on every path. A missing or
// ambiguous name is an ordinary false result, never an error.
package navigator

import (
	"context"
	"fmt"
	"log/slog"

	"enginelink/internal/core/ports"
	"enginelink/internal/engine/resolver"
	"enginelink/internal/engine/symbols"
	"enginelink/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ ports.ReferenceChecker = (*Navigator)(nil)

type Navigator struct {
	resolver *resolver.Resolver
	access   ports.ProgramAccess
	view     ports.View
}

func New(r *resolver.Resolver, access ports.ProgramAccess, view ports.View) (*Navigator, error) {
	if r == nil || access == nil || view == nil {
		return nil, fmt.Errorf("navigator requires a resolver, program access and view")
	}
	return &Navigator{resolver: r, access: access, view: view}, nil
}

// NavigateToClass resolves name and moves the view to its declaration.
func (n *Navigator) NavigateToClass(ctx context.Context, name string) bool {
	ctx, span := observability.Tracer.Start(ctx, "navigator.NavigateToClass",
		trace.WithAttributes(attribute.String("class", name)))
	defer span.End()

	sym, ok := n.resolver.Class(ctx, name)
	if !ok {
		slog.Debug("class reference not found", "name", name)
		observability.NavigationsTotal.WithLabelValues("class", "not_found").Inc()
		return false
	}
	return n.navigate(ctx, "class", sym)
}

// NavigateToMember resolves owner, then member within owner, and moves the
// view to the member. An unresolved owner fails closed without a member lookup.
func (n *Navigator) NavigateToMember(ctx context.Context, owner, member string) bool {
	ctx, span := observability.Tracer.Start(ctx, "navigator.NavigateToMember",
		trace.WithAttributes(attribute.String("class", owner), attribute.String("member", member)))
	defer span.End()

	sym, ok := n.resolveMember(ctx, owner, member)
	if !ok {
		slog.Debug("member reference not found", "owner", owner, "member", member)
		observability.NavigationsTotal.WithLabelValues("member", "not_found").Inc()
		return false
	}
	return n.navigate(ctx, "member", sym)
}

// IsReferenceValid reports whether owner and member both resolve.
func (n *Navigator) IsReferenceValid(ctx context.Context, owner, member string) bool {
	_, ok := n.resolveMember(ctx, owner, member)
	return ok
}

// Locate resolves "Class" or "Class::Member" without navigating.
func (n *Navigator) Locate(ctx context.Context, owner, member string) (symbols.Symbol, bool) {
	if member == "" {
		return n.resolver.Class(ctx, owner)
	}
	return n.resolveMember(ctx, owner, member)
}

func (n *Navigator) resolveMember(ctx context.Context, owner, member string) (symbols.Symbol, bool) {
	cls, ok := n.resolver.Class(ctx, owner)
	if !ok {
		return symbols.Symbol{}, false
	}
	return n.resolver.Member(ctx, cls, member)
}

func (n *Navigator) navigate(ctx context.Context, kind string, sym symbols.Symbol) bool {
	read, err := n.access.AcquireRead(ctx)
	if err != nil {
		slog.Debug("navigation abandoned waiting for read access", "symbol", sym.QualifiedName(), "error", err)
		observability.NavigationsTotal.WithLabelValues(kind, "abandoned").Inc()
		return false
	}
	defer read.Release()

	compilation, err := n.access.AcquireContext(ctx)
	if err != nil {
		slog.Debug("navigation abandoned waiting for compilation context", "symbol", sym.QualifiedName(), "error", err)
		observability.NavigationsTotal.WithLabelValues(kind, "abandoned").Inc()
		return false
	}
	defer compilation.Release()

	if err := n.view.Show(ctx, sym); err != nil {
		// Stale locations are reported at low priority; the symbol itself resolved.
		slog.Debug("navigation target could not be shown", "symbol", sym.QualifiedName(), "location", sym.Location.String(), "error", err)
		observability.NavigationsTotal.WithLabelValues(kind, "stale").Inc()
		return true
	}
	observability.NavigationsTotal.WithLabelValues(kind, "success").Inc()
	return true
}
