package symbolindex

import (
	"context"
	"fmt"
	"os"
	"strings"

	"enginelink/internal/engine/symbols"

	"github.com/BurntSushi/toml"
)

// ClassDef is one class entry of an index manifest.
type ClassDef struct {
	Name     string           `toml:"name"`
	Location symbols.Location `toml:"location"`
	Members  []MemberDef      `toml:"members"`
}

type MemberDef struct {
	Name     string           `toml:"name"`
	Location symbols.Location `toml:"location"`
}

type manifest struct {
	Classes []ClassDef `toml:"classes"`
}

// Index is a replaceable symbol index.
type Index interface {
	Find(ctx context.Context, name string) ([]symbols.Symbol, error)
	FindMember(ctx context.Context, owner symbols.Symbol, name string) ([]symbols.Symbol, error)
	Replace(ctx context.Context, defs []ClassDef) error
	Close() error
}

// LoadManifest reads a TOML manifest of the form
//
//	[[classes]]
//	name = "AMyActor"
//	location = { file = "Source/MyActor.h", line = 12, column = 7 }
//	[[classes.members]]
//	name = "bMyProperty"
//	location = { file = "Source/MyActor.h", line = 20, column = 10 }
func LoadManifest(path string) ([]ClassDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("decode index manifest %q: %w", path, err)
	}
	for i := range m.Classes {
		def := &m.Classes[i]
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			return nil, fmt.Errorf("index manifest %q: classes[%d].name must not be empty", path, i)
		}
		for j := range def.Members {
			def.Members[j].Name = strings.TrimSpace(def.Members[j].Name)
			if def.Members[j].Name == "" {
				return nil, fmt.Errorf("index manifest %q: classes[%d].members[%d].name must not be empty", path, i, j)
			}
		}
	}
	return m.Classes, nil
}
