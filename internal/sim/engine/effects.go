package engine

import (
	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/grid"
)

type EffectKind string

const (
	EffectBlockPlaced   EffectKind = "BLOCK_PLACED"
	EffectBlockMoved    EffectKind = "BLOCK_MOVED"
	EffectBlockRemoved  EffectKind = "BLOCK_REMOVED"
	EffectBlockMerged   EffectKind = "BLOCK_MERGED"
	EffectMatchResolved EffectKind = "MATCH_RESOLVED"
)

// Effect is the transient record of one successful mutation. Every
// successful grid mutation produces exactly one effect; failed commands and
// no-op moves produce none.
type Effect struct {
	Kind  EffectKind
	Tick  uint64
	Block grid.Block // subject: placed, removed, or merged-into block
	From  grid.Vec2i // BLOCK_MOVED only
	To    grid.Vec2i // BLOCK_MOVED only
	Match *MatchInfo // MATCH_RESOLVED only
}

type MatchInfo struct {
	Kind       grid.Kind
	Size       int
	Tier       int
	ChainDepth int
	Merged     bool
	Positions  []grid.Vec2i
	Reward     map[string]int
}

// Proto renders the effect as a wire event.
func (e Effect) Proto() protocol.Event {
	ev := protocol.Event{
		"t":    e.Tick,
		"type": string(e.Kind),
	}
	switch e.Kind {
	case EffectBlockPlaced, EffectBlockRemoved, EffectBlockMerged:
		ev["block_id"] = e.Block.ID.String()
		ev["pos"] = e.Block.Pos.ToArray()
		ev["kind"] = e.Block.Kind.String()
		ev["tier"] = e.Block.Tier
	case EffectBlockMoved:
		ev["block_id"] = e.Block.ID.String()
		ev["from"] = e.From.ToArray()
		ev["to"] = e.To.ToArray()
	case EffectMatchResolved:
		if m := e.Match; m != nil {
			ev["kind"] = m.Kind.String()
			ev["size"] = m.Size
			ev["tier"] = m.Tier
			ev["chain_depth"] = m.ChainDepth
			ev["merged"] = m.Merged
			pos := make([][2]int, 0, len(m.Positions))
			for _, p := range m.Positions {
				pos = append(pos, p.ToArray())
			}
			ev["positions"] = pos
			ev["reward"] = m.Reward
		}
	}
	return ev
}
