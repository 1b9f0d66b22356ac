package engine

import (
	"fmt"

	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/grid"
)

// Command preconditions are expressed as small composable rules so each
// handler declares its own checklist instead of inlining branch soup.
type rule func(s *grid.State) error

func runRules(s *grid.State, rules ...rule) error {
	for _, r := range rules {
		if err := r(s); err != nil {
			return err
		}
	}
	return nil
}

func inBounds(p grid.Vec2i) rule {
	return func(s *grid.State) error {
		if !s.InBounds(p) {
			return &Error{Code: protocol.ErrOutOfBounds, Err: fmt.Errorf("%s: %w", p, grid.ErrOutOfBounds)}
		}
		return nil
	}
}

func cellEmpty(p grid.Vec2i) rule {
	return func(s *grid.State) error {
		if s.Occupied(p) {
			return &Error{Code: protocol.ErrOccupied, Err: fmt.Errorf("%s: %w", p, grid.ErrOccupied)}
		}
		return nil
	}
}

func cellOccupied(p grid.Vec2i) rule {
	return func(s *grid.State) error {
		if !s.Occupied(p) {
			return &Error{Code: protocol.ErrEmpty, Err: fmt.Errorf("%s: %w", p, grid.ErrEmpty)}
		}
		return nil
	}
}

func validKind(k grid.Kind) rule {
	return func(s *grid.State) error {
		if !k.Valid() {
			return &Error{Code: protocol.ErrUnknownKind, Err: fmt.Errorf("kind %d", k)}
		}
		return nil
	}
}
