// Package resolver turns engine-side class and member names into declared
// symbols, caching every outcome (including absence) in bounded
// direct-mapped caches in front of the authoritative symbol lookup.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"enginelink/internal/core/ports"
	"enginelink/internal/engine/symbols"
	"enginelink/internal/shared/observability"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MemberKey scopes a member name to the class that declares it.
type MemberKey struct {
	Owner symbols.ID
	Name  string
}

func (k MemberKey) String() string {
	return strconv.FormatInt(int64(k.Owner), 10) + "::" + k.Name
}

type Options struct {
	// CacheSize is the slot count of each cache.
	CacheSize int
	// Ignore holds glob patterns for generated names that never resolve.
	Ignore []string
}

type Resolver struct {
	lookup  ports.SymbolLookup
	classes *DirectMappedCache[string, symbols.Resolution]
	members *DirectMappedCache[MemberKey, symbols.Resolution]
	ignore  atomic.Pointer[[]glob.Glob]
}

func New(lookup ports.SymbolLookup, opts Options) (*Resolver, error) {
	if lookup == nil {
		return nil, fmt.Errorf("resolver requires a symbol lookup")
	}
	r := &Resolver{
		lookup:  lookup,
		classes: NewDirectMappedCache[string, symbols.Resolution]("class", opts.CacheSize, func(k string) string { return k }),
		members: NewDirectMappedCache[MemberKey, symbols.Resolution]("member", opts.CacheSize, MemberKey.String),
	}
	if err := r.SetIgnorePatterns(opts.Ignore); err != nil {
		return nil, err
	}
	return r, nil
}

// SetIgnorePatterns replaces the generated-name patterns. Cached entries are
// left alone; patterns only short-circuit future lookups.
func (r *Resolver) SetIgnorePatterns(patterns []string) error {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid resolver ignore pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	r.ignore.Store(&compiled)
	return nil
}

// ResolveClass returns the cached or freshly computed resolution for a class
// name. Lookup errors are reported as NotFound and are not cached.
func (r *Resolver) ResolveClass(ctx context.Context, name string) symbols.Resolution {
	if name == "" || r.ignored(name) {
		return symbols.Resolution{Outcome: symbols.NotFound}
	}
	res, err := r.classes.GetOrCreate(ctx, name, func(ctx context.Context) (symbols.Resolution, error) {
		return r.lookupClass(ctx, name)
	})
	if err != nil {
		slog.Warn("class lookup failed", "name", name, "error", err)
		return symbols.Resolution{Outcome: symbols.NotFound}
	}
	return res
}

// ResolveMember resolves name among the children of owner. It never looks
// outside the owning class.
func (r *Resolver) ResolveMember(ctx context.Context, owner symbols.Symbol, name string) symbols.Resolution {
	if name == "" || owner.ID == 0 || owner.Kind != symbols.KindClass {
		return symbols.Resolution{Outcome: symbols.NotFound}
	}
	key := MemberKey{Owner: owner.ID, Name: name}
	res, err := r.members.GetOrCreate(ctx, key, func(ctx context.Context) (symbols.Resolution, error) {
		return r.lookupMember(ctx, owner, name)
	})
	if err != nil {
		slog.Warn("member lookup failed", "owner", owner.Name, "member", name, "error", err)
		return symbols.Resolution{Outcome: symbols.NotFound}
	}
	return res
}

// Class is ResolveClass with Ambiguous collapsed to absent.
func (r *Resolver) Class(ctx context.Context, name string) (symbols.Symbol, bool) {
	return r.ResolveClass(ctx, name).Get()
}

// Member is ResolveMember with Ambiguous collapsed to absent.
func (r *Resolver) Member(ctx context.Context, owner symbols.Symbol, name string) (symbols.Symbol, bool) {
	return r.ResolveMember(ctx, owner, name).Get()
}

// Invalidate drops both caches. Called whenever the symbol index is known to
// have changed.
func (r *Resolver) Invalidate() {
	r.classes.Invalidate()
	r.members.Invalidate()
}

type Stats struct {
	ClassEntries  int `json:"class_entries"`
	MemberEntries int `json:"member_entries"`
	Capacity      int `json:"capacity"`
}

func (r *Resolver) Stats() Stats {
	return Stats{
		ClassEntries:  r.classes.Len(),
		MemberEntries: r.members.Len(),
		Capacity:      r.classes.Cap(),
	}
}

func (r *Resolver) ignored(name string) bool {
	patterns := r.ignore.Load()
	if patterns == nil {
		return false
	}
	for _, g := range *patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (r *Resolver) lookupClass(ctx context.Context, name string) (symbols.Resolution, error) {
	ctx, span := observability.Tracer.Start(ctx, "resolver.lookupClass",
		trace.WithAttributes(attribute.String("name", name)))
	defer span.End()

	started := time.Now()
	candidates, err := r.lookup.Find(ctx, name)
	if err != nil {
		span.RecordError(err)
		return symbols.Resolution{}, err
	}
	classes := candidates[:0:0]
	for _, c := range candidates {
		if c.Kind == symbols.KindClass {
			classes = append(classes, c)
		}
	}
	res := symbols.Resolve(classes)
	observability.LookupDuration.WithLabelValues(string(symbols.KindClass), res.Outcome.String()).Observe(time.Since(started).Seconds())
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	if res.Outcome == symbols.Ambiguous {
		slog.Info("ambiguous class name left unresolved", "name", name, "candidates", res.Candidates)
	}
	return res, nil
}

func (r *Resolver) lookupMember(ctx context.Context, owner symbols.Symbol, name string) (symbols.Resolution, error) {
	ctx, span := observability.Tracer.Start(ctx, "resolver.lookupMember",
		trace.WithAttributes(attribute.String("owner", owner.Name), attribute.String("name", name)))
	defer span.End()

	started := time.Now()
	candidates, err := r.lookup.FindMember(ctx, owner, name)
	if err != nil {
		span.RecordError(err)
		return symbols.Resolution{}, err
	}
	scoped := candidates[:0:0]
	for _, c := range candidates {
		if c.Kind == symbols.KindMember && c.Owner == owner.ID {
			scoped = append(scoped, c)
		}
	}
	res := symbols.Resolve(scoped)
	observability.LookupDuration.WithLabelValues(string(symbols.KindMember), res.Outcome.String()).Observe(time.Since(started).Seconds())
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
	if res.Outcome == symbols.Ambiguous {
		slog.Info("ambiguous member name left unresolved", "owner", owner.Name, "member", name, "candidates", res.Candidates)
	}
	return res, nil
}
