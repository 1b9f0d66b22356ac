package grid

import (
	"fmt"

	"github.com/google/uuid"
)

type Vec2i struct {
	X int
	Y int
}

func (v Vec2i) Add(o Vec2i) Vec2i { return Vec2i{v.X + o.X, v.Y + o.Y} }
func (v Vec2i) ToArray() [2]int { return [2]int{v.X, v.Y} }
func (v Vec2i) String() string { return fmt.Sprintf("(%d,%d)", v.X, v.Y) }
func FromArray(a [2]int) Vec2i { return Vec2i{a[0], a[1]} }

// Neighbors4 returns the orthogonal neighbors in a fixed order
// (left, right, down, up) so traversals stay deterministic.
func (v Vec2i) Neighbors4() [4]Vec2i {
	return [4]Vec2i{
		{v.X - 1, v.Y},
		{v.X + 1, v.Y},
		{v.X, v.Y - 1},
		{v.X, v.Y + 1},
	}
}

// Kind is the life-domain category of a block. The three composite kinds
// are match-compatible with either of their constituent kinds.
type Kind uint8

const (
	KindNone Kind = iota
	KindWork
	KindStudy
	KindHealth
	KindCreativity
	KindFun
	KindRelationship
	KindCareerOpportunity // Work + Study
	KindPartnership       // Relationship + Fun
	KindWellness          // Health + Creativity
)

var kindNames = map[Kind]string{
	KindWork:              "WORK",
	KindStudy:             "STUDY",
	KindHealth:            "HEALTH",
	KindCreativity:        "CREATIVITY",
	KindFun:               "FUN",
	KindRelationship:      "RELATIONSHIP",
	KindCareerOpportunity: "CAREER_OPPORTUNITY",
	KindPartnership:       "PARTNERSHIP",
	KindWellness:          "WELLNESS",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "NONE"
}

func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindNone, false
}

// constituents maps a composite kind to the two plain kinds it covers.
var constituents = map[Kind][2]Kind{
	KindCareerOpportunity: {KindWork, KindStudy},
	KindPartnership:       {KindRelationship, KindFun},
	KindWellness:          {KindHealth, KindCreativity},
}

func (k Kind) Composite() bool {
	_, ok := constituents[k]
	return ok
}

// Compatible reports whether two kinds may participate in the same match
// group. Plain kinds match only themselves; a composite matches itself and
// either constituent. Two distinct composites never match.
func Compatible(a, b Kind) bool {
	if a == b {
		return a.Valid()
	}
	if c, ok := constituents[a]; ok && !b.Composite() {
		return b == c[0] || b == c[1]
	}
	if c, ok := constituents[b]; ok && !a.Composite() {
		return a == c[0] || a == c[1]
	}
	return false
}

// Block is an immutable value: every state change goes through a With*
// helper that returns a fresh copy.
type Block struct {
	ID           uuid.UUID
	Pos          Vec2i
	Kind         Kind
	Tier         int
	CreatedTick  uint64
	ModifiedTick uint64
}

func NewBlock(pos Vec2i, kind Kind, tick uint64) Block {
	return Block{
		ID:           uuid.New(),
		Pos:          pos,
		Kind:         kind,
		Tier:         1,
		CreatedTick:  tick,
		ModifiedTick: tick,
	}
}

func (b Block) WithPos(pos Vec2i, tick uint64) Block {
	b.Pos = pos
	b.ModifiedTick = tick
	return b
}

func (b Block) WithTier(tier int, tick uint64) Block {
	b.Tier = tier
	b.ModifiedTick = tick
	return b
}
