package symbolindex

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"enginelink/internal/engine/symbols"
)

func sampleDefs() []ClassDef {
	return []ClassDef{
		{
			Name:     "AMyActor",
			Location: symbols.Location{File: "Source/MyActor.h", Line: 12, Column: 7},
			Members: []MemberDef{
				{Name: "bMyProperty", Location: symbols.Location{File: "Source/MyActor.h", Line: 20, Column: 10}},
				{Name: "Tick", Location: symbols.Location{File: "Source/MyActor.h", Line: 24, Column: 15}},
			},
		},
		{
			Name:     "UOtherComponent",
			Location: symbols.Location{File: "Source/Other.h", Line: 5, Column: 1},
			Members: []MemberDef{
				{Name: "Tick", Location: symbols.Location{File: "Source/Other.h", Line: 9, Column: 3}},
			},
		},
	}
}

func TestSQLiteIndex_ReplaceAndFind(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLiteIndex(filepath.Join(t.TempDir(), "nested", "index.db"))
	if err != nil {
		t.Fatalf("open sqlite index: %v", err)
	}
	defer idx.Close()

	if err := idx.Replace(ctx, sampleDefs()); err != nil {
		t.Fatalf("replace: %v", err)
	}

	classes, err := idx.Find(ctx, "AMyActor")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(classes) != 1 {
		t.Fatalf("expected one class, got %d", len(classes))
	}
	actor := classes[0]
	if actor.Kind != symbols.KindClass || actor.Location.Line != 12 {
		t.Fatalf("unexpected class row: %+v", actor)
	}

	members, err := idx.FindMember(ctx, actor, "Tick")
	if err != nil {
		t.Fatalf("find member: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected member scoped to owner, got %d", len(members))
	}
	if members[0].Owner != actor.ID || members[0].OwnerName != "AMyActor" || members[0].Location.Line != 24 {
		t.Fatalf("unexpected member row: %+v", members[0])
	}

	if got, _ := idx.Find(ctx, "UnknownActor"); len(got) != 0 {
		t.Fatalf("expected no match for unknown class, got %d", len(got))
	}

	nc, nm, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if nc != 2 || nm != 3 {
		t.Fatalf("expected 2 classes and 3 members, got %d/%d", nc, nm)
	}
}

func TestSQLiteIndex_ReplaceDropsPreviousContent(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open sqlite index: %v", err)
	}
	defer idx.Close()

	if err := idx.Replace(ctx, sampleDefs()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := idx.Replace(ctx, []ClassDef{{Name: "ANewActor"}}); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if got, _ := idx.Find(ctx, "AMyActor"); len(got) != 0 {
		t.Fatalf("expected old class to be gone, got %d", len(got))
	}
	if got, _ := idx.Find(ctx, "ANewActor"); len(got) != 1 {
		t.Fatalf("expected new class, got %d", len(got))
	}
}

func TestSQLiteIndex_DuplicateNamesAreAllReturned(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open sqlite index: %v", err)
	}
	defer idx.Close()

	a, err := idx.PutClass(ctx, "FDuplicate", symbols.Location{File: "A.h", Line: 1})
	if err != nil {
		t.Fatalf("put class: %v", err)
	}
	if _, err := idx.PutClass(ctx, "FDuplicate", symbols.Location{File: "B.h", Line: 1}); err != nil {
		t.Fatalf("put class: %v", err)
	}
	if _, err := idx.PutMember(ctx, a, "Value", symbols.Location{File: "A.h", Line: 3}); err != nil {
		t.Fatalf("put member: %v", err)
	}

	got, err := idx.Find(ctx, "FDuplicate")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both declarations, got %d", len(got))
	}
	if symbols.Resolve(got).Outcome != symbols.Ambiguous {
		t.Fatal("expected duplicate declarations to resolve as ambiguous")
	}
}

func TestSQLiteIndex_RejectsDirectoryPath(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenSQLiteIndex(dir); err == nil {
		t.Fatal("expected error for directory path")
	}
	if _, err := OpenSQLiteIndex("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLiteIndex(path)
	if err != nil {
		t.Fatalf("open sqlite index: %v", err)
	}
	if err := idx.Replace(ctx, sampleDefs()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected index file on disk: %v", err)
	}

	reopened, err := OpenSQLiteIndex(path)
	if err != nil {
		t.Fatalf("reopen sqlite index: %v", err)
	}
	defer reopened.Close()
	if got, _ := reopened.Find(ctx, "UOtherComponent"); len(got) != 1 {
		t.Fatalf("expected class after reopen, got %d", len(got))
	}
}
