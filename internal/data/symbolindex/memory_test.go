package symbolindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"enginelink/internal/engine/symbols"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndex_ScopesMembersToOwner(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Replace(ctx, sampleDefs()))

	actors, err := idx.Find(ctx, "AMyActor")
	require.NoError(t, err)
	require.Len(t, actors, 1)
	others, err := idx.Find(ctx, "UOtherComponent")
	require.NoError(t, err)
	require.Len(t, others, 1)

	actorTick, err := idx.FindMember(ctx, actors[0], "Tick")
	require.NoError(t, err)
	otherTick, err := idx.FindMember(ctx, others[0], "Tick")
	require.NoError(t, err)
	require.Len(t, actorTick, 1)
	require.Len(t, otherTick, 1)
	assert.NotEqual(t, actorTick[0].ID, otherTick[0].ID)
	assert.Equal(t, "AMyActor::Tick", actorTick[0].QualifiedName())

	none, err := idx.FindMember(ctx, others[0], "bMyProperty")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryIndex_ReplaceIssuesFreshIDs(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Replace(ctx, sampleDefs()))
	before, _ := idx.Find(ctx, "AMyActor")

	require.NoError(t, idx.Replace(ctx, sampleDefs()))
	after, _ := idx.Find(ctx, "AMyActor")

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.NotEqual(t, before[0].ID, after[0].ID)

	stale, err := idx.FindMember(ctx, before[0], "Tick")
	require.NoError(t, err)
	assert.Empty(t, stale, "members of a replaced class must not be reachable")
}

func TestMemoryIndex_FindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	idx.AddClass("AMyActor", symbols.Location{File: "A.h", Line: 1})

	got, _ := idx.Find(ctx, "AMyActor")
	got[0].Name = "mutated"

	again, _ := idx.Find(ctx, "AMyActor")
	assert.Equal(t, "AMyActor", again[0].Name)
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.toml")
	content := `
[[classes]]
name = "AMyActor"
location = { file = "Source/MyActor.h", line = 12, column = 7 }

  [[classes.members]]
  name = " bMyProperty "
  location = { file = "Source/MyActor.h", line = 20, column = 10 }

[[classes]]
name = "UOtherComponent"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	defs, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "AMyActor", defs[0].Name)
	assert.Equal(t, 12, defs[0].Location.Line)
	require.Len(t, defs[0].Members, 1)
	assert.Equal(t, "bMyProperty", defs[0].Members[0].Name)
	assert.Equal(t, "Source/MyActor.h:20:10", defs[0].Members[0].Location.String())
	assert.Empty(t, defs[1].Members)
}

func TestLoadManifest_RejectsEmptyNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[classes]]\nname = \"  \"\n"), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestLoadManifest_MissingFile(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}
