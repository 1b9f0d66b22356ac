package grid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrOutOfBounds = errors.New("position out of bounds")
	ErrOccupied    = errors.New("position occupied")
	ErrEmpty       = errors.New("position empty")
	ErrDuplicateID = errors.New("block id already present")
	ErrUnknownID   = errors.New("unknown block id")
)

// CorruptionError marks a failed rollback during a two-phase move. The two
// indices can no longer be trusted; callers must treat this as fatal rather
// than retry or ignore it.
type CorruptionError struct {
	Op     string
	From   Vec2i
	To     Vec2i
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("grid corruption during %s %s->%s: %s", e.Op, e.From, e.To, e.Detail)
}

// State is the authoritative board. Two indices (position and id) live
// behind one lock so that a multi-step mutation can never be observed
// half-applied: every id has exactly one position entry and vice versa.
type State struct {
	width  int
	height int

	mu    sync.RWMutex
	byPos map[Vec2i]Block
	byID  map[uuid.UUID]Block

	// Test hook: forces the attach phase of Move to fail so the rollback
	// path can be exercised. Nil in production.
	failAttach func(Vec2i) bool
}

func NewState(width, height int) *State {
	if width <= 0 {
		width = 10
	}
	if height <= 0 {
		height = 10
	}
	return &State{
		width:  width,
		height: height,
		byPos:  make(map[Vec2i]Block, width*height),
		byID:   make(map[uuid.UUID]Block, width*height),
	}
}

func (s *State) Width() int { return s.width }
func (s *State) Height() int { return s.height }

func (s *State) InBounds(p Vec2i) bool {
	return p.X >= 0 && p.X < s.width && p.Y >= 0 && p.Y < s.height
}

func (s *State) Occupied(p Vec2i) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byPos[p]
	return ok
}

func (s *State) BlockAt(p Vec2i) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byPos[p]
	return b, ok
}

func (s *State) BlockByID(id uuid.UUID) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byID[id]
	return b, ok
}

func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPos)
}

// Adjacent returns the blocks in the four orthogonal neighbor cells of p.
// At most four results; each neighbor is a single map lookup.
func (s *State) Adjacent(p Vec2i) []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Block, 0, 4)
	for _, n := range p.Neighbors4() {
		if b, ok := s.byPos[n]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Blocks returns a copy of every block on the board.
func (s *State) Blocks() []Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Block, 0, len(s.byPos))
	for _, b := range s.byPos {
		out = append(out, b)
	}
	return out
}

// Place inserts b at b.Pos. The position must be in bounds and empty and
// the id must be new.
func (s *State) Place(b Block) error {
	if !s.InBounds(b.Pos) {
		return fmt.Errorf("place %s: %w", b.Pos, ErrOutOfBounds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPos[b.Pos]; ok {
		return fmt.Errorf("place %s: %w", b.Pos, ErrOccupied)
	}
	if _, ok := s.byID[b.ID]; ok {
		return fmt.Errorf("place %s: %w", b.Pos, ErrDuplicateID)
	}
	s.byPos[b.Pos] = b
	s.byID[b.ID] = b
	return nil
}

// Remove deletes the block at p and returns it.
func (s *State) Remove(p Vec2i) (Block, error) {
	if !s.InBounds(p) {
		return Block{}, fmt.Errorf("remove %s: %w", p, ErrOutOfBounds)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byPos[p]
	if !ok {
		return Block{}, fmt.Errorf("remove %s: %w", p, ErrEmpty)
	}
	delete(s.byPos, p)
	delete(s.byID, b.ID)
	return b, nil
}

// Move relocates the block at from to to. Moving a block onto its own
// position succeeds without touching state (moved=false, no error).
//
// The move is two-phase: detach from the source cell, attach at the
// destination. If the attach fails the source entry is restored; a failed
// restore means the indices have diverged and comes back as
// *CorruptionError, which callers must treat as non-recoverable.
func (s *State) Move(from, to Vec2i, tick uint64) (moved Block, didMove bool, err error) {
	if !s.InBounds(from) {
		return Block{}, false, fmt.Errorf("move from %s: %w", from, ErrOutOfBounds)
	}
	if !s.InBounds(to) {
		return Block{}, false, fmt.Errorf("move to %s: %w", to, ErrOutOfBounds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.byPos[from]
	if !ok {
		return Block{}, false, fmt.Errorf("move from %s: %w", from, ErrEmpty)
	}
	if from == to {
		return src, false, nil
	}
	if _, ok := s.byPos[to]; ok {
		return Block{}, false, fmt.Errorf("move to %s: %w", to, ErrOccupied)
	}

	// Phase 1: detach.
	delete(s.byPos, from)

	// Phase 2: attach at destination.
	dst := src.WithPos(to, tick)
	if !s.attachLocked(dst) {
		// Roll back phase 1. If the source cell was taken in the meantime
		// the board is split-brain: surface it, never swallow it.
		if other, taken := s.byPos[from]; taken && other.ID != src.ID {
			return Block{}, false, &CorruptionError{
				Op:     "move-rollback",
				From:   from,
				To:     to,
				Detail: fmt.Sprintf("source reoccupied by %s; block %s dropped from position index", other.ID, src.ID),
			}
		}
		s.byPos[from] = src
		return Block{}, false, fmt.Errorf("move to %s: %w", to, ErrOccupied)
	}
	return dst, true, nil
}

func (s *State) attachLocked(b Block) bool {
	if s.failAttach != nil && s.failAttach(b.Pos) {
		return false
	}
	if _, ok := s.byPos[b.Pos]; ok {
		return false
	}
	s.byPos[b.Pos] = b
	s.byID[b.ID] = b
	return true
}

// ReplaceTier swaps the block at p for a copy with the given tier.
func (s *State) ReplaceTier(p Vec2i, tier int, tick uint64) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byPos[p]
	if !ok {
		return Block{}, fmt.Errorf("tier %s: %w", p, ErrEmpty)
	}
	nb := b.WithTier(tier, tick)
	s.byPos[p] = nb
	s.byID[nb.ID] = nb
	return nb, nil
}

// CheckConsistency verifies the mutual-consistency invariant between the
// two indices. Used by tests and the state digest.
func (s *State) CheckConsistency() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.byPos) != len(s.byID) {
		return fmt.Errorf("index size mismatch: %d positions vs %d ids", len(s.byPos), len(s.byID))
	}
	for p, b := range s.byPos {
		if b.Pos != p {
			return fmt.Errorf("block %s keyed at %s but carries pos %s", b.ID, p, b.Pos)
		}
		ib, ok := s.byID[b.ID]
		if !ok {
			return fmt.Errorf("block %s at %s missing from id index", b.ID, p)
		}
		if ib.Pos != p {
			return fmt.Errorf("block %s id index says %s, position index says %s", b.ID, ib.Pos, p)
		}
	}
	return nil
}
