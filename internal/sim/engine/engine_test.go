package engine

import (
	"errors"
	"log"
	"os"
	"sync"
	"testing"

	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/grid"
	"blocklife.gg/internal/sim/match"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	logger := log.New(os.Stderr, "[test] ", 0)
	return New(grid.NewState(10, 10), Config{RewardBase: 10, MaxTier: 5}, logger)
}

func kindsOf(batch []Effect) []EffectKind {
	out := make([]EffectKind, 0, len(batch))
	for _, e := range batch {
		out = append(out, e.Kind)
	}
	return out
}

func TestPlace_OneEffectPerMutation(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Place(grid.Vec2i{X: 0, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	batch := e.Dispatch()
	if len(batch) != 1 || batch[0].Kind != EffectBlockPlaced {
		t.Fatalf("expected exactly one BLOCK_PLACED, got %v", kindsOf(batch))
	}
	if e.PendingEffects() != 0 {
		t.Fatalf("queue should be empty after dispatch")
	}
}

func TestPlace_RejectionsProduceNoEffect(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Place(grid.Vec2i{X: 2, Y: 2}, grid.KindFun, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	e.Dispatch()

	cases := []struct {
		pos  grid.Vec2i
		kind grid.Kind
		code string
	}{
		{grid.Vec2i{X: -1, Y: 0}, grid.KindFun, protocol.ErrOutOfBounds},
		{grid.Vec2i{X: 2, Y: 2}, grid.KindFun, protocol.ErrOccupied},
		{grid.Vec2i{X: 3, Y: 3}, grid.Kind(99), protocol.ErrUnknownKind},
	}
	for _, c := range cases {
		_, err := e.Place(c.pos, c.kind, 2)
		if err == nil {
			t.Fatalf("place %s should fail", c.pos)
		}
		if CodeOf(err) != c.code {
			t.Fatalf("place %s: code %s, want %s", c.pos, CodeOf(err), c.code)
		}
	}
	if got := e.Dispatch(); len(got) != 0 {
		t.Fatalf("failed commands must not enqueue effects: %v", kindsOf(got))
	}
}

func TestMove_NoOpIssuesNoEffect(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Place(grid.Vec2i{X: 1, Y: 1}, grid.KindStudy, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	e.Dispatch()

	did, err := e.Move(grid.Vec2i{X: 1, Y: 1}, grid.Vec2i{X: 1, Y: 1}, 2)
	if err != nil {
		t.Fatalf("self-move must succeed: %v", err)
	}
	if did {
		t.Fatalf("self-move must report no movement")
	}
	if got := e.Dispatch(); len(got) != 0 {
		t.Fatalf("no-op move must not publish: %v", kindsOf(got))
	}
}

func TestMove_EffectCarriesEndpoints(t *testing.T) {
	e := newTestEngine(t)
	b, err := e.Place(grid.Vec2i{X: 1, Y: 1}, grid.KindStudy, 1)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	e.Dispatch()

	did, err := e.Move(grid.Vec2i{X: 1, Y: 1}, grid.Vec2i{X: 4, Y: 1}, 2)
	if err != nil || !did {
		t.Fatalf("move: did=%v err=%v", did, err)
	}
	batch := e.Dispatch()
	if len(batch) != 1 || batch[0].Kind != EffectBlockMoved {
		t.Fatalf("expected one BLOCK_MOVED, got %v", kindsOf(batch))
	}
	ef := batch[0]
	if ef.From != (grid.Vec2i{X: 1, Y: 1}) || ef.To != (grid.Vec2i{X: 4, Y: 1}) || ef.Block.ID != b.ID {
		t.Fatalf("moved effect wrong: %+v", ef)
	}
}

func TestRemove_OneEffect(t *testing.T) {
	e := newTestEngine(t)
	b, err := e.Place(grid.Vec2i{X: 5, Y: 5}, grid.KindHealth, 1)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	e.Dispatch()

	got, err := e.Remove(grid.Vec2i{X: 5, Y: 5}, 2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got.ID != b.ID {
		t.Fatalf("removed wrong block")
	}
	batch := e.Dispatch()
	if len(batch) != 1 || batch[0].Kind != EffectBlockRemoved {
		t.Fatalf("expected one BLOCK_REMOVED, got %v", kindsOf(batch))
	}
	if _, err := e.Remove(grid.Vec2i{X: 5, Y: 5}, 3); CodeOf(err) != protocol.ErrEmpty {
		t.Fatalf("second remove should be E_EMPTY, got %v", err)
	}
}

func TestPlace_TripleMergesAndPaysReward(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Place(grid.Vec2i{X: 0, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := e.Place(grid.Vec2i{X: 1, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := e.Place(grid.Vec2i{X: 2, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}

	batch := e.Dispatch()
	var placed, removed, merged, resolved int
	for _, ef := range batch {
		switch ef.Kind {
		case EffectBlockPlaced:
			placed++
		case EffectBlockRemoved:
			removed++
		case EffectBlockMerged:
			merged++
		case EffectMatchResolved:
			resolved++
			if ef.Match.Size != 3 || ef.Match.ChainDepth != 0 || !ef.Match.Merged {
				t.Fatalf("match info wrong: %+v", ef.Match)
			}
		}
	}
	if placed != 3 || removed != 3 || merged != 1 || resolved != 1 {
		t.Fatalf("effects placed=%d removed=%d merged=%d resolved=%d: %v",
			placed, removed, merged, resolved, kindsOf(batch))
	}

	// Merged block sits at the trigger cell, one tier up.
	b, ok := e.Grid().BlockAt(grid.Vec2i{X: 2, Y: 0})
	if !ok || b.Tier != 2 || b.Kind != grid.KindWork {
		t.Fatalf("expected tier-2 WORK at trigger cell, got %+v ok=%v", b, ok)
	}
	if e.Grid().Count() != 1 {
		t.Fatalf("board should hold only the merged block, has %d", e.Grid().Count())
	}
	// 3 blocks x base 10 x tier 1 x multiplier 1.0.
	if got := e.Ledger().Get(match.ResMoney); got != 30 {
		t.Fatalf("money = %d, want 30", got)
	}
}

func TestPlace_MergeTriggersChainReaction(t *testing.T) {
	e := newTestEngine(t)
	// Two tier-2 blocks waiting next to where the tier-1 merge will land.
	for _, x := range []int{3, 4} {
		b := grid.NewBlock(grid.Vec2i{X: x, Y: 0}, grid.KindWork, 0).WithTier(2, 0)
		if err := e.Grid().Place(b); err != nil {
			t.Fatalf("seed place: %v", err)
		}
	}
	if _, err := e.Place(grid.Vec2i{X: 0, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := e.Place(grid.Vec2i{X: 1, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := e.Place(grid.Vec2i{X: 2, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}

	batch := e.Dispatch()
	var resolved []*MatchInfo
	for _, ef := range batch {
		if ef.Kind == EffectMatchResolved {
			resolved = append(resolved, ef.Match)
		}
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved matches, got %d (%v)", len(resolved), kindsOf(batch))
	}
	if resolved[0].ChainDepth != 0 || resolved[1].ChainDepth != 1 {
		t.Fatalf("chain depths: %d then %d", resolved[0].ChainDepth, resolved[1].ChainDepth)
	}
	if resolved[1].Tier != 2 {
		t.Fatalf("chain match should be tier 2, got %d", resolved[1].Tier)
	}

	// Board reduced to a single tier-3 block at the chain match's seed.
	b, ok := e.Grid().BlockAt(grid.Vec2i{X: 3, Y: 0})
	if !ok || b.Tier != 3 {
		t.Fatalf("expected tier-3 block at (3,0), got %+v ok=%v", b, ok)
	}
	if e.Grid().Count() != 1 {
		t.Fatalf("board count = %d, want 1", e.Grid().Count())
	}
	// 30 for the tier-1 match, 60 for the tier-2 chain.
	if got := e.Ledger().Get(match.ResMoney); got != 90 {
		t.Fatalf("money = %d, want 90", got)
	}
}

func TestPlace_MixedGroupRemovesWithoutMerge(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Place(grid.Vec2i{X: 0, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := e.Place(grid.Vec2i{X: 1, Y: 0}, grid.KindCareerOpportunity, 1); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, err := e.Place(grid.Vec2i{X: 2, Y: 0}, grid.KindWork, 1); err != nil {
		t.Fatalf("place: %v", err)
	}

	batch := e.Dispatch()
	for _, ef := range batch {
		if ef.Kind == EffectBlockMerged {
			t.Fatalf("mixed group must not merge")
		}
		if ef.Kind == EffectMatchResolved && ef.Match.Merged {
			t.Fatalf("resolved match must not be flagged merged")
		}
	}
	if e.Grid().Count() != 0 {
		t.Fatalf("mixed match should clear the cells, count=%d", e.Grid().Count())
	}
}

func TestMaxTier_NoMergeAtCap(t *testing.T) {
	e := New(grid.NewState(10, 10), Config{RewardBase: 10, MaxTier: 2}, nil)
	for _, x := range []int{0, 1} {
		b := grid.NewBlock(grid.Vec2i{X: x, Y: 0}, grid.KindFun, 0).WithTier(2, 0)
		if err := e.Grid().Place(b); err != nil {
			t.Fatalf("seed place: %v", err)
		}
	}
	b := grid.NewBlock(grid.Vec2i{X: 2, Y: 0}, grid.KindFun, 0).WithTier(2, 0)
	if err := e.Grid().Place(b); err != nil {
		t.Fatalf("seed place: %v", err)
	}
	// Trigger resolution with an adjacent move.
	mv := grid.NewBlock(grid.Vec2i{X: 5, Y: 5}, grid.KindFun, 0).WithTier(2, 0)
	if err := e.Grid().Place(mv); err != nil {
		t.Fatalf("seed place: %v", err)
	}
	if _, err := e.Move(grid.Vec2i{X: 5, Y: 5}, grid.Vec2i{X: 3, Y: 0}, 1); err != nil {
		t.Fatalf("move: %v", err)
	}

	batch := e.Dispatch()
	for _, ef := range batch {
		if ef.Kind == EffectBlockMerged {
			t.Fatalf("blocks at max tier must not merge")
		}
	}
	if e.Grid().Count() != 0 {
		t.Fatalf("capped match should clear the board, count=%d", e.Grid().Count())
	}
}

func TestConcurrentRemovals_ExactlyNEffects(t *testing.T) {
	e := newTestEngine(t)
	const n = 100
	positions := make([]grid.Vec2i, 0, n)
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			p := grid.Vec2i{X: x, Y: y}
			// Alternate kinds so no matches resolve during setup.
			kind := grid.KindWork
			if (x+y)%2 == 1 {
				kind = grid.KindFun
			}
			if err := e.Grid().Place(grid.NewBlock(p, kind, 0)); err != nil {
				t.Fatalf("seed place: %v", err)
			}
			positions = append(positions, p)
		}
	}

	var wg sync.WaitGroup
	for _, p := range positions {
		wg.Add(1)
		go func(p grid.Vec2i) {
			defer wg.Done()
			if _, err := e.Remove(p, 1); err != nil {
				t.Errorf("remove %s: %v", p, err)
			}
		}(p)
	}
	wg.Wait()

	batch := e.Dispatch()
	if len(batch) != n {
		t.Fatalf("expected exactly %d removal effects, got %d", n, len(batch))
	}
	seen := make(map[grid.Vec2i]bool, n)
	for _, ef := range batch {
		if ef.Kind != EffectBlockRemoved {
			t.Fatalf("unexpected effect %s", ef.Kind)
		}
		if seen[ef.Block.Pos] {
			t.Fatalf("duplicate removal effect for %s", ef.Block.Pos)
		}
		seen[ef.Block.Pos] = true
	}
}

func TestCorruption_StaysExtractableThroughCodedWrapper(t *testing.T) {
	corrupt := &grid.CorruptionError{Op: "move-rollback", Detail: "test"}
	err := error(&Error{Code: protocol.ErrInternal, Err: corrupt})

	var got *grid.CorruptionError
	if !errors.As(err, &got) {
		t.Fatalf("corruption must stay extractable through the coded wrapper")
	}
	if CodeOf(err) != protocol.ErrInternal {
		t.Fatalf("code = %s, want %s", CodeOf(err), protocol.ErrInternal)
	}
}
