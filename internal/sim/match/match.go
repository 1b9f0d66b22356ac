// Package match finds connected groups of compatible blocks and prices
// their rewards. Detection is shape-agnostic: any 4-connected component of
// three or more compatible same-tier blocks counts, whether it is a line,
// an L, a T, or a blob.
package match

import (
	"blocklife.gg/internal/sim/grid"
)

const MinGroupSize = 3

// Resource names credited to the player ledger.
const (
	ResMoney         = "MONEY"
	ResKnowledge     = "KNOWLEDGE"
	ResHealth        = "HEALTH"
	ResInspiration   = "INSPIRATION"
	ResHappiness     = "HAPPINESS"
	ResSocialCapital = "SOCIAL_CAPITAL"
)

// resourceFor maps a plain kind to the resource it pays out.
var resourceFor = map[grid.Kind]string{
	grid.KindWork:         ResMoney,
	grid.KindStudy:        ResKnowledge,
	grid.KindHealth:       ResHealth,
	grid.KindCreativity:   ResInspiration,
	grid.KindFun:          ResHappiness,
	grid.KindRelationship: ResSocialCapital,
}

// compositeSplit maps composite kinds to the two resources they pay, half
// the base each.
var compositeSplit = map[grid.Kind][2]string{
	grid.KindCareerOpportunity: {ResMoney, ResKnowledge},
	grid.KindPartnership:       {ResSocialCapital, ResHappiness},
	grid.KindWellness:          {ResHealth, ResInspiration},
}

// Group is one detected match: the connected blocks, the seed that
// triggered detection, and the tier shared by every member.
type Group struct {
	Seed   grid.Vec2i
	Kind   grid.Kind // kind of the seed block
	Tier   int
	Blocks []grid.Block
}

func (g Group) Size() int { return len(g.Blocks) }

// Uniform reports whether every block in the group has the same concrete
// kind. Only uniform groups are eligible for a tier-up merge; mixed groups
// (a composite bridging two plain kinds) resolve as plain removals.
func (g Group) Uniform() bool {
	for _, b := range g.Blocks {
		if b.Kind != g.Kind {
			return false
		}
	}
	return true
}

// SizeMultiplier prices group size: 3 pays base, 4 pays 1.5x, 5 pays 2x,
// anything larger pays 3x.
func SizeMultiplier(size int) float64 {
	switch {
	case size >= 6:
		return 3.0
	case size == 5:
		return 2.0
	case size == 4:
		return 1.5
	case size == 3:
		return 1.0
	default:
		return 0
	}
}

// Reward computes the resource deltas for a group. Each block contributes
// base x tier to its kind's resource (composites split half/half between
// their constituents), and the group total is scaled by the size
// multiplier.
func Reward(g Group, base int) map[string]int {
	if base <= 0 || g.Size() < MinGroupSize {
		return nil
	}
	mult := SizeMultiplier(g.Size())
	out := make(map[string]int, 2)
	for _, b := range g.Blocks {
		amount := base * b.Tier
		if split, ok := compositeSplit[b.Kind]; ok {
			half := amount / 2
			out[split[0]] += int(float64(half) * mult)
			out[split[1]] += int(float64(half) * mult)
			continue
		}
		if res, ok := resourceFor[b.Kind]; ok {
			out[res] += int(float64(amount) * mult)
		}
	}
	return out
}

// FindAt flood-fills from the block at seed over 4-connected neighbors
// whose kind is compatible with the seed's and whose tier matches. Returns
// false when the cell is empty or the component is smaller than
// MinGroupSize. Each step is a direct index lookup, independent of board
// occupancy.
func FindAt(s *grid.State, seed grid.Vec2i) (Group, bool) {
	root, ok := s.BlockAt(seed)
	if !ok {
		return Group{}, false
	}
	visited := map[grid.Vec2i]bool{seed: true}
	component := []grid.Block{root}
	frontier := []grid.Vec2i{seed}
	for len(frontier) > 0 {
		p := frontier[0]
		frontier = frontier[1:]
		for _, n := range p.Neighbors4() {
			if visited[n] {
				continue
			}
			b, ok := s.BlockAt(n)
			if !ok {
				continue
			}
			if b.Tier != root.Tier || !grid.Compatible(root.Kind, b.Kind) {
				continue
			}
			visited[n] = true
			component = append(component, b)
			frontier = append(frontier, n)
		}
	}
	if len(component) < MinGroupSize {
		return Group{}, false
	}
	return Group{Seed: seed, Kind: root.Kind, Tier: root.Tier, Blocks: component}, true
}

// ChainCandidates returns the orthogonal neighbors of the removed cells,
// deduplicated, excluding the removed cells themselves. These are the
// positions a resolver re-examines for chain reactions.
func ChainCandidates(s *grid.State, removed []grid.Vec2i) []grid.Vec2i {
	gone := make(map[grid.Vec2i]bool, len(removed))
	for _, p := range removed {
		gone[p] = true
	}
	seen := make(map[grid.Vec2i]bool)
	out := make([]grid.Vec2i, 0, len(removed)*2)
	for _, p := range removed {
		for _, n := range p.Neighbors4() {
			if gone[n] || seen[n] || !s.InBounds(n) {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
