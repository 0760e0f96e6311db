// Package symbols defines the declared-symbol types shared by the symbol
// index, the resolution caches and the navigator.
package symbols

import "fmt"

type Kind string

const (
	KindClass  Kind = "class"
	KindMember Kind = "member"
)

// ID identifies a declared symbol inside one symbol index. Zero is never valid.
type ID int64

type Location struct {
	File   string `json:"file" toml:"file"`
	Line   int    `json:"line" toml:"line"`
	Column int    `json:"column" toml:"column"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Symbol is a resolved, navigable program location. Member symbols carry the
// ID and name of their declaring class.
type Symbol struct {
	ID        ID       `json:"id"`
	Kind      Kind     `json:"kind"`
	Name      string   `json:"name"`
	Owner     ID       `json:"owner,omitempty"`
	OwnerName string   `json:"owner_name,omitempty"`
	Location  Location `json:"location"`
}

func (s Symbol) QualifiedName() string {
	if s.Kind == KindMember && s.OwnerName != "" {
		return s.OwnerName + "::" + s.Name
	}
	return s.Name
}

type Outcome uint8

const (
	NotFound Outcome = iota
	Found
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Resolution is the outcome of resolving one name. Candidates is the number
// of symbols the lookup service reported; Symbol is only meaningful when
// Outcome is Found.
type Resolution struct {
	Outcome    Outcome
	Symbol     Symbol
	Candidates int
}

// Resolve collapses a candidate set into a Resolution. More than one candidate
// is Ambiguous; ambiguous names are never guessed.
func Resolve(candidates []Symbol) Resolution {
	switch len(candidates) {
	case 0:
		return Resolution{Outcome: NotFound}
	case 1:
		return Resolution{Outcome: Found, Symbol: candidates[0], Candidates: 1}
	default:
		return Resolution{Outcome: Ambiguous, Candidates: len(candidates)}
	}
}

// Get returns the resolved symbol and whether it is usable.
func (r Resolution) Get() (Symbol, bool) {
	if r.Outcome != Found {
		return Symbol{}, false
	}
	return r.Symbol, true
}
