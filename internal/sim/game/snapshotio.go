package game

import (
	"fmt"

	"github.com/google/uuid"

	"blocklife.gg/internal/persistence/snapshot"
	"blocklife.gg/internal/sim/grid"
)

const snapshotVersion = 1

func (g *Game) buildSnapshot(tick uint64) snapshot.SnapshotV1 {
	tune := g.cfg.Tune
	blocks := g.eng.Grid().Blocks()
	out := make([]snapshot.BlockV1, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, snapshot.BlockV1{
			ID:           b.ID.String(),
			X:            b.Pos.X,
			Y:            b.Pos.Y,
			Kind:         b.Kind.String(),
			Tier:         b.Tier,
			CreatedTick:  b.CreatedTick,
			ModifiedTick: b.ModifiedTick,
		})
	}
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshotVersion,
			GameID:  g.cfg.ID,
			Tick:    tick,
		},
		GridWidth:          tune.GridWidth,
		GridHeight:         tune.GridHeight,
		TickRate:           tune.TickRateHz,
		MaxTier:            tune.MaxTier,
		RewardBase:         tune.RewardBase,
		MaxChainDepth:      tune.MaxChainDepth,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
		Blocks:             out,
		Resources:          g.eng.Ledger().Snapshot(),
		Counters: snapshot.CountersV1{
			NextPlayer: g.nextPlayerNum.Load(),
		},
	}
}

// Restore loads state from a snapshot into a freshly constructed Game.
// Must be called before Run.
func (g *Game) Restore(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	for _, bv := range snap.Blocks {
		id, err := uuid.Parse(bv.ID)
		if err != nil {
			return fmt.Errorf("block id %q: %w", bv.ID, err)
		}
		kind, ok := grid.ParseKind(bv.Kind)
		if !ok {
			return fmt.Errorf("block kind %q", bv.Kind)
		}
		b := grid.Block{
			ID:           id,
			Pos:          grid.Vec2i{X: bv.X, Y: bv.Y},
			Kind:         kind,
			Tier:         bv.Tier,
			CreatedTick:  bv.CreatedTick,
			ModifiedTick: bv.ModifiedTick,
		}
		if err := g.eng.Grid().Place(b); err != nil {
			return fmt.Errorf("restore block at %s: %w", b.Pos, err)
		}
	}
	g.eng.Ledger().Restore(snap.Resources)
	g.tick.Store(snap.Header.Tick)
	g.nextPlayerNum.Store(snap.Counters.NextPlayer)
	return nil
}
