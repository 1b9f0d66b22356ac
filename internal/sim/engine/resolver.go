package engine

import (
	"blocklife.gg/internal/sim/grid"
	"blocklife.gg/internal/sim/match"
)

type chainSeed struct {
	pos   grid.Vec2i
	depth int
}

// resolve runs match detection at the just-mutated position, applies
// rewards, and chases chain reactions breadth-first. Depth is bounded by
// MaxChainDepth so a pathological board cannot spin forever.
func (e *Engine) resolve(seed grid.Vec2i, tick uint64) {
	frontier := []chainSeed{{pos: seed, depth: 0}}
	for len(frontier) > 0 {
		c := frontier[0]
		frontier = frontier[1:]
		if c.depth > e.cfg.MaxChainDepth {
			if e.logger != nil {
				e.logger.Printf("resolve: chain depth cap %d hit at %s", e.cfg.MaxChainDepth, c.pos)
			}
			continue
		}
		g, ok := match.FindAt(e.grid, c.pos)
		if !ok {
			continue
		}
		merged := g.Uniform() && g.Tier < e.cfg.MaxTier
		reward := match.Reward(g, e.cfg.RewardBase)

		removed := make([]grid.Vec2i, 0, g.Size())
		for _, b := range g.Blocks {
			rb, err := e.grid.Remove(b.Pos)
			if err != nil {
				// The group was computed from live state under this loop's
				// control; a miss here means a bug, not a race.
				if e.logger != nil {
					e.logger.Printf("resolve: remove %s: %v", b.Pos, err)
				}
				continue
			}
			removed = append(removed, rb.Pos)
			e.queue.Enqueue(Effect{Kind: EffectBlockRemoved, Tick: tick, Block: rb})
		}

		if merged {
			nb := grid.NewBlock(g.Seed, g.Kind, tick).WithTier(g.Tier+1, tick)
			if err := e.grid.Place(nb); err != nil {
				if e.logger != nil {
					e.logger.Printf("resolve: merge place %s: %v", g.Seed, err)
				}
				merged = false
			} else {
				e.queue.Enqueue(Effect{Kind: EffectBlockMerged, Tick: tick, Block: nb})
			}
		}

		e.ledger.Credit(reward)
		e.queue.Enqueue(Effect{
			Kind: EffectMatchResolved,
			Tick: tick,
			Match: &MatchInfo{
				Kind:       g.Kind,
				Size:       g.Size(),
				Tier:       g.Tier,
				ChainDepth: c.depth,
				Merged:     merged,
				Positions:  removed,
				Reward:     reward,
			},
		})

		for _, p := range match.ChainCandidates(e.grid, removed) {
			frontier = append(frontier, chainSeed{pos: p, depth: c.depth + 1})
		}
		if merged {
			// The tier-up block itself can complete a higher-tier group.
			frontier = append(frontier, chainSeed{pos: g.Seed, depth: c.depth + 1})
		}
	}
}
