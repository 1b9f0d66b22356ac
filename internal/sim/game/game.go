// Package game owns the live session: a single goroutine runs the tick
// loop and is the only writer of session state. Clients talk to it through
// channels (join, leave, cmd inbox); every tick drains pending commands,
// runs them through the engine, and fans the resulting effect batch out to
// connected clients.
package game

import (
	"fmt"
	"log"
	"sync/atomic"

	"blocklife.gg/internal/persistence/indexdb"
	persistlog "blocklife.gg/internal/persistence/log"
	"blocklife.gg/internal/persistence/snapshot"
	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/engine"
	"blocklife.gg/internal/sim/grid"
	"blocklife.gg/internal/sim/tuning"
)

type Config struct {
	ID   string
	Tune tuning.Tuning
}

type CmdEnvelope struct {
	PlayerID string
	Cmd      protocol.CmdMsg
}

type JoinRequest struct {
	Name        string
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	State   protocol.StateMsg
}

type clientState struct {
	Out chan []byte
}

type player struct {
	ID          string
	Name        string
	ResumeToken string

	// Sliding command-rate window, in ticks.
	rateWindowStart uint64
	rateUsed        int
}

type Game struct {
	cfg    Config
	logger *log.Logger

	eng  *engine.Engine
	tick atomic.Uint64

	players map[string]*player
	clients map[string]*clientState

	inbox chan CmdEnvelope
	join  chan JoinRequest
	leave chan string
	stop  chan struct{}

	nextPlayerNum atomic.Uint64
	clientCount   atomic.Int64

	// Optional persistence hooks (any may be nil).
	effectLog    *persistlog.EffectLogger
	tickLog      *persistlog.TickLogger
	index        *indexdb.SQLiteIndex
	snapshotSink chan<- snapshot.SnapshotV1
}

type Option func(*Game)

func WithEffectLog(l *persistlog.EffectLogger) Option {
	return func(g *Game) { g.effectLog = l }
}

func WithTickLog(l *persistlog.TickLogger) Option {
	return func(g *Game) { g.tickLog = l }
}

func WithIndex(idx *indexdb.SQLiteIndex) Option {
	return func(g *Game) { g.index = idx }
}

// WithSnapshotSink routes periodic snapshots to an off-thread writer so
// the tick loop never blocks on disk.
func WithSnapshotSink(ch chan<- snapshot.SnapshotV1) Option {
	return func(g *Game) { g.snapshotSink = ch }
}

func New(cfg Config, logger *log.Logger, opts ...Option) *Game {
	cfg.Tune.ApplyDefaults()
	if cfg.ID == "" {
		cfg.ID = "game_1"
	}
	g := &Game{
		cfg:    cfg,
		logger: logger,
		eng: engine.New(
			grid.NewState(cfg.Tune.GridWidth, cfg.Tune.GridHeight),
			engine.Config{
				RewardBase:    cfg.Tune.RewardBase,
				MaxTier:       cfg.Tune.MaxTier,
				MaxChainDepth: cfg.Tune.MaxChainDepth,
			},
			logger,
		),
		players: make(map[string]*player),
		clients: make(map[string]*clientState),
		inbox:   make(chan CmdEnvelope, 256),
		join:    make(chan JoinRequest, 16),
		leave:   make(chan string, 16),
		stop:    make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Game) ID() string { return g.cfg.ID }
func (g *Game) Tick() uint64 { return g.tick.Load() }
func (g *Game) Engine() *engine.Engine { return g.eng }
func (g *Game) Inbox() chan<- CmdEnvelope { return g.inbox }
func (g *Game) Join() chan<- JoinRequest { return g.join }
func (g *Game) Leave() chan<- string { return g.leave }

// ClientCount reports how many clients are currently attached. Safe to
// call from any goroutine.
func (g *Game) ClientCount() int { return int(g.clientCount.Load()) }

func (g *Game) newPlayerID() string {
	n := g.nextPlayerNum.Add(1)
	return fmt.Sprintf("P%04d", n)
}

func (g *Game) resumeToken(playerID string) string {
	return fmt.Sprintf("resume_%s_%s", g.cfg.ID, playerID)
}
