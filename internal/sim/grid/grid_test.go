package grid

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func TestPlaceRemoveMove_IndicesStayConsistent(t *testing.T) {
	s := NewState(10, 10)
	rng := rand.New(rand.NewSource(7))

	var live []Block
	for i := 0; i < 500; i++ {
		switch rng.Intn(3) {
		case 0: // place
			p := Vec2i{rng.Intn(10), rng.Intn(10)}
			b := NewBlock(p, KindWork, uint64(i))
			if err := s.Place(b); err == nil {
				live = append(live, b)
			}
		case 1: // remove
			if len(live) == 0 {
				continue
			}
			idx := rng.Intn(len(live))
			if _, err := s.Remove(live[idx].Pos); err != nil {
				t.Fatalf("remove %s: %v", live[idx].Pos, err)
			}
			live = append(live[:idx], live[idx+1:]...)
		case 2: // move
			if len(live) == 0 {
				continue
			}
			idx := rng.Intn(len(live))
			to := Vec2i{rng.Intn(10), rng.Intn(10)}
			moved, did, err := s.Move(live[idx].Pos, to, uint64(i))
			if err != nil {
				if !errors.Is(err, ErrOccupied) {
					t.Fatalf("move: %v", err)
				}
				continue
			}
			if did {
				live[idx] = moved
			}
		}
		if err := s.CheckConsistency(); err != nil {
			t.Fatalf("after op %d: %v", i, err)
		}
	}
	if s.Count() != len(live) {
		t.Fatalf("expected %d blocks, state has %d", len(live), s.Count())
	}
}

func TestPlace_RejectsOutOfBoundsAndOccupied(t *testing.T) {
	s := NewState(10, 10)
	if err := s.Place(NewBlock(Vec2i{-1, 0}, KindFun, 0)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
	if err := s.Place(NewBlock(Vec2i{10, 9}, KindFun, 0)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected out of bounds, got %v", err)
	}
	if err := s.Place(NewBlock(Vec2i{3, 3}, KindFun, 0)); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := s.Place(NewBlock(Vec2i{3, 3}, KindWork, 0)); !errors.Is(err, ErrOccupied) {
		t.Fatalf("expected occupied, got %v", err)
	}
}

func TestMove_ToOwnPositionIsNoOp(t *testing.T) {
	s := NewState(10, 10)
	b := NewBlock(Vec2i{4, 4}, KindStudy, 1)
	if err := s.Place(b); err != nil {
		t.Fatalf("place: %v", err)
	}
	got, did, err := s.Move(Vec2i{4, 4}, Vec2i{4, 4}, 2)
	if err != nil {
		t.Fatalf("self-move should succeed: %v", err)
	}
	if did {
		t.Fatalf("self-move must not report movement")
	}
	if got.ID != b.ID || got.ModifiedTick != b.ModifiedTick {
		t.Fatalf("self-move must not touch the block: %+v", got)
	}
	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestMove_RollbackRestoresSource(t *testing.T) {
	s := NewState(10, 10)
	b := NewBlock(Vec2i{1, 1}, KindHealth, 1)
	if err := s.Place(b); err != nil {
		t.Fatalf("place: %v", err)
	}
	s.failAttach = func(Vec2i) bool { return true }

	_, did, err := s.Move(Vec2i{1, 1}, Vec2i{2, 1}, 2)
	if did {
		t.Fatalf("move must not succeed when attach fails")
	}
	if !errors.Is(err, ErrOccupied) {
		t.Fatalf("expected occupied from failed attach, got %v", err)
	}
	got, ok := s.BlockAt(Vec2i{1, 1})
	if !ok || got.ID != b.ID {
		t.Fatalf("rollback must restore the source cell")
	}
	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency after rollback: %v", err)
	}
}

func TestMove_FailedRollbackSurfacesCorruption(t *testing.T) {
	s := NewState(10, 10)
	b := NewBlock(Vec2i{1, 1}, KindHealth, 1)
	if err := s.Place(b); err != nil {
		t.Fatalf("place: %v", err)
	}
	phantom := NewBlock(Vec2i{1, 1}, KindWork, 1)
	// Simulate an interleaved writer grabbing the source cell between the
	// detach and the failed attach.
	s.failAttach = func(Vec2i) bool {
		s.byPos[Vec2i{1, 1}] = phantom
		return true
	}

	_, did, err := s.Move(Vec2i{1, 1}, Vec2i{2, 1}, 2)
	if did {
		t.Fatalf("move must not succeed")
	}
	var corrupt *CorruptionError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected CorruptionError, got %v", err)
	}
	if corrupt.From != (Vec2i{1, 1}) || corrupt.To != (Vec2i{2, 1}) {
		t.Fatalf("corruption should carry the move endpoints: %+v", corrupt)
	}
}

func TestAdjacent_AtMostFourConstantLookups(t *testing.T) {
	s := NewState(10, 10)
	// Fill the whole board.
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			if err := s.Place(NewBlock(Vec2i{x, y}, KindFun, 0)); err != nil {
				t.Fatalf("place (%d,%d): %v", x, y, err)
			}
		}
	}
	if got := len(s.Adjacent(Vec2i{5, 5})); got != 4 {
		t.Fatalf("center cell should have 4 neighbors, got %d", got)
	}
	if got := len(s.Adjacent(Vec2i{0, 0})); got != 2 {
		t.Fatalf("corner cell should have 2 neighbors, got %d", got)
	}
	if got := len(s.Adjacent(Vec2i{0, 5})); got != 3 {
		t.Fatalf("edge cell should have 3 neighbors, got %d", got)
	}
}

func TestConcurrentPlacements_NoDoubleOccupancy(t *testing.T) {
	s := NewState(10, 10)
	const workers = 100

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := Vec2i{n % 10, (n / 10) % 5} // 50 distinct cells, 2 contenders each
			errs[n] = s.Place(NewBlock(p, KindWork, uint64(n)))
		}(i)
	}
	wg.Wait()

	var okCount int
	for _, err := range errs {
		if err == nil {
			okCount++
		} else if !errors.Is(err, ErrOccupied) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if okCount != 50 {
		t.Fatalf("expected exactly 50 winners, got %d", okCount)
	}
	if s.Count() != 50 {
		t.Fatalf("expected 50 blocks, got %d", s.Count())
	}
	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestConcurrentMoves_IndicesStayConsistent(t *testing.T) {
	s := NewState(10, 10)
	for x := 0; x < 10; x++ {
		if err := s.Place(NewBlock(Vec2i{x, 0}, KindStudy, 0)); err != nil {
			t.Fatalf("seed place: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			from := Vec2i{n % 10, 0}
			to := Vec2i{n % 10, 1 + n%9}
			_, _, _ = s.Move(from, to, uint64(n))
			_, _, _ = s.Move(to, from, uint64(n))
		}(i)
	}
	wg.Wait()

	if err := s.CheckConsistency(); err != nil {
		t.Fatalf("consistency: %v", err)
	}
	if s.Count() != 10 {
		t.Fatalf("block count changed under concurrent moves: %d", s.Count())
	}
}

func TestDigest_IgnoresHistoryAndIDs(t *testing.T) {
	a := NewState(10, 10)
	b := NewState(10, 10)

	if err := a.Place(NewBlock(Vec2i{1, 1}, KindWork, 5)); err != nil {
		t.Fatalf("place: %v", err)
	}
	// Same cell contents, different id and history.
	if err := b.Place(NewBlock(Vec2i{3, 3}, KindWork, 9)); err != nil {
		t.Fatalf("place: %v", err)
	}
	if _, _, err := b.Move(Vec2i{3, 3}, Vec2i{1, 1}, 10); err != nil {
		t.Fatalf("move: %v", err)
	}

	if a.Digest() != b.Digest() {
		t.Fatalf("digest should depend only on cell contents")
	}

	if _, err := b.Remove(Vec2i{1, 1}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if a.Digest() == b.Digest() {
		t.Fatalf("digest should change when contents change")
	}
}

func TestKindCompatibility(t *testing.T) {
	cases := []struct {
		a, b Kind
		want bool
	}{
		{KindWork, KindWork, true},
		{KindWork, KindStudy, false},
		{KindCareerOpportunity, KindWork, true},
		{KindCareerOpportunity, KindStudy, true},
		{KindStudy, KindCareerOpportunity, true},
		{KindCareerOpportunity, KindFun, false},
		{KindPartnership, KindRelationship, true},
		{KindPartnership, KindWellness, false},
		{KindWellness, KindHealth, true},
		{KindNone, KindNone, false},
	}
	for _, c := range cases {
		if got := Compatible(c.a, c.b); got != c.want {
			t.Fatalf("Compatible(%s,%s) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestParseKind_RoundTrip(t *testing.T) {
	for k := KindWork; k <= KindWellness; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("round trip %s: got %v ok=%v", k, got, ok)
		}
	}
	if _, ok := ParseKind("MONEY"); ok {
		t.Fatalf("MONEY is not a kind")
	}
}

func TestWithHelpers_DoNotMutateOriginal(t *testing.T) {
	b := NewBlock(Vec2i{2, 2}, KindCreativity, 1)
	moved := b.WithPos(Vec2i{3, 2}, 2)
	tiered := b.WithTier(2, 3)

	if b.Pos != (Vec2i{2, 2}) || b.Tier != 1 || b.ModifiedTick != 1 {
		t.Fatalf("original block mutated: %+v", b)
	}
	if moved.Pos != (Vec2i{3, 2}) || moved.ID != b.ID {
		t.Fatalf("WithPos wrong: %+v", moved)
	}
	if tiered.Tier != 2 || tiered.ModifiedTick != 3 {
		t.Fatalf("WithTier wrong: %+v", tiered)
	}
}

func TestMoveErrors(t *testing.T) {
	s := NewState(10, 10)
	if err := s.Place(NewBlock(Vec2i{0, 0}, KindWork, 0)); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := s.Place(NewBlock(Vec2i{1, 0}, KindWork, 0)); err != nil {
		t.Fatalf("place: %v", err)
	}

	for _, c := range []struct {
		from, to Vec2i
		want     error
	}{
		{Vec2i{-1, 0}, Vec2i{0, 1}, ErrOutOfBounds},
		{Vec2i{0, 0}, Vec2i{0, 10}, ErrOutOfBounds},
		{Vec2i{5, 5}, Vec2i{6, 5}, ErrEmpty},
		{Vec2i{0, 0}, Vec2i{1, 0}, ErrOccupied},
	} {
		_, _, err := s.Move(c.from, c.to, 1)
		if !errors.Is(err, c.want) {
			t.Fatalf("move %s->%s: got %v, want %v", c.from, c.to, err, c.want)
		}
	}
}

func BenchmarkAdjacent(b *testing.B) {
	s := NewState(10, 10)
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			_ = s.Place(NewBlock(Vec2i{x, y}, KindFun, 0))
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Adjacent(Vec2i{i % 10, (i / 10) % 10})
	}
}
