// Package engine executes grid commands: validate, mutate, enqueue exactly
// one effect per successful mutation, then resolve any matches and chain
// reactions the mutation produced.
package engine

import (
	"errors"
	"log"

	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/grid"
)

type Config struct {
	RewardBase    int // base resource payout per block per tier
	MaxTier       int
	MaxChainDepth int
}

func (c *Config) applyDefaults() {
	if c.RewardBase <= 0 {
		c.RewardBase = 10
	}
	if c.MaxTier <= 0 {
		c.MaxTier = 5
	}
	if c.MaxChainDepth <= 0 {
		c.MaxChainDepth = 32
	}
}

type Engine struct {
	grid   *grid.State
	queue  *Queue
	bridge *Bridge
	ledger *Ledger
	cfg    Config
	logger *log.Logger
}

func New(g *grid.State, cfg Config, logger *log.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		grid:   g,
		queue:  NewQueue(),
		bridge: NewBridge(logger),
		ledger: NewLedger(),
		cfg:    cfg,
		logger: logger,
	}
}

func (e *Engine) Grid() *grid.State { return e.grid }
func (e *Engine) Ledger() *Ledger { return e.ledger }
func (e *Engine) Bridge() *Bridge { return e.bridge }
func (e *Engine) Config() Config { return e.cfg }

// Place creates a tier-1 block of the given kind at pos.
func (e *Engine) Place(pos grid.Vec2i, kind grid.Kind, tick uint64) (grid.Block, error) {
	if err := runRules(e.grid, validKind(kind), inBounds(pos), cellEmpty(pos)); err != nil {
		return grid.Block{}, err
	}
	b := grid.NewBlock(pos, kind, tick)
	if err := e.grid.Place(b); err != nil {
		return grid.Block{}, codedErr(err)
	}
	e.queue.Enqueue(Effect{Kind: EffectBlockPlaced, Tick: tick, Block: b})
	e.resolve(pos, tick)
	return b, nil
}

// Move relocates a block. Moving onto its own cell succeeds as a no-op:
// no state change, no effect. A corruption error from the grid's rollback
// path is logged as fatal and propagated untouched so callers can halt.
func (e *Engine) Move(from, to grid.Vec2i, tick uint64) (didMove bool, err error) {
	if err := runRules(e.grid, inBounds(from), inBounds(to), cellOccupied(from)); err != nil {
		return false, err
	}
	moved, didMove, err := e.grid.Move(from, to, tick)
	if err != nil {
		var corrupt *grid.CorruptionError
		if errors.As(err, &corrupt) {
			if e.logger != nil {
				e.logger.Printf("FATAL: %v", corrupt)
			}
			return false, &Error{Code: protocol.ErrInternal, Err: corrupt}
		}
		return false, codedErr(err)
	}
	if !didMove {
		return false, nil
	}
	e.queue.Enqueue(Effect{Kind: EffectBlockMoved, Tick: tick, Block: moved, From: from, To: to})
	e.resolve(to, tick)
	return true, nil
}

// Remove deletes the block at pos.
func (e *Engine) Remove(pos grid.Vec2i, tick uint64) (grid.Block, error) {
	if err := runRules(e.grid, inBounds(pos), cellOccupied(pos)); err != nil {
		return grid.Block{}, err
	}
	b, err := e.grid.Remove(pos)
	if err != nil {
		return grid.Block{}, codedErr(err)
	}
	e.queue.Enqueue(Effect{Kind: EffectBlockRemoved, Tick: tick, Block: b})
	return b, nil
}

// PendingEffects reports queued-but-undispatched effects.
func (e *Engine) PendingEffects() int { return e.queue.Len() }

// Dispatch drains the effect queue, publishes each effect through the
// bridge in enqueue order, and returns the drained batch.
func (e *Engine) Dispatch() []Effect {
	batch := e.queue.Drain()
	for _, ef := range batch {
		e.bridge.Publish(ef)
	}
	return batch
}
