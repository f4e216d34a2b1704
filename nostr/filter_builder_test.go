package nostr

import "testing"

func TestFilterBuilderKindMerge(t *testing.T) {
	t.Parallel()

	a := NewFilter().WithKind(0).WithKind(1).WithKinds([]Kind{4, 0, 30023})
	b := NewFilter().WithKinds([]Kind{0, 1, 4, 30023})

	if !a.Equal(b) {
		t.Fatalf("expected set-equal kind builders, got %v vs %v", a.Kinds, b.Kinds)
	}
}

func TestFilterBuilderRemoveID(t *testing.T) {
	t.Parallel()

	zero := hexID("00")
	e := hexID("0e")

	f := NewFilter().WithIDs([]EventID{zero, e}).WithoutID(zero)

	if !f.Equal(NewFilter().WithID(e)) {
		t.Fatalf("expected only %v left, got %v", e, f.IDs)
	}
}

func TestFilterBuilderCloneIsIndependent(t *testing.T) {
	t.Parallel()

	orig := NewFilter().WithKind(KindTextNote)
	clone := orig.Clone().WithKind(KindReaction)

	if len(orig.Kinds) != 1 {
		t.Fatalf("expected original filter untouched by clone mutation, got %v", orig.Kinds)
	}
	if len(clone.Kinds) != 2 {
		t.Fatalf("expected clone to carry both kinds, got %v", clone.Kinds)
	}
}
