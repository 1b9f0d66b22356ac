package game

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"blocklife.gg/internal/persistence/indexdb"
	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/engine"
	"blocklife.gg/internal/sim/grid"
)

func (g *Game) Run(ctx context.Context) error {
	// The loop is the only sender on the snapshot sink, so it owns the
	// close: the off-thread writer drains what is buffered and exits once
	// the loop returns. Nobody else may close this channel, or a snapshot
	// tick racing shutdown would panic the loop.
	if g.snapshotSink != nil {
		defer close(g.snapshotSink)
	}

	interval := time.Second / time.Duration(g.cfg.Tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingCmds []CmdEnvelope
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.stop:
			return nil
		case req := <-g.join:
			g.handleJoin(req)
		case id := <-g.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-g.inbox:
			pendingCmds = append(pendingCmds, env)
		case <-ticker.C:
			g.step(pendingCmds, pendingLeaves)
			pendingCmds = pendingCmds[:0]
			pendingLeaves = pendingLeaves[:0]
		}
	}
}

func (g *Game) Stop() { close(g.stop) }

// StepOnce advances the session a single tick with the same ordering as
// the live loop. Intended for tests and deterministic replays.
func (g *Game) StepOnce(cmds []CmdEnvelope) (tick uint64, digest string) {
	g.step(cmds, nil)
	return g.tick.Load(), g.eng.Grid().Digest()
}

func (g *Game) handleJoin(req JoinRequest) {
	var p *player
	if req.ResumeToken != "" {
		for _, cand := range g.players {
			if cand.ResumeToken == req.ResumeToken {
				p = cand
				break
			}
		}
	}
	if p == nil {
		id := g.newPlayerID()
		p = &player{ID: id, Name: req.Name, ResumeToken: g.resumeToken(id)}
		g.players[id] = p
	}
	if _, attached := g.clients[p.ID]; !attached {
		g.clientCount.Add(1)
	}
	g.clients[p.ID] = &clientState{Out: req.Out}

	tune := g.cfg.Tune
	resp := JoinResponse{
		Welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			PlayerID:        p.ID,
			ResumeToken:     p.ResumeToken,
			GridParams: protocol.GridParams{
				Width:      tune.GridWidth,
				Height:     tune.GridHeight,
				TickRateHz: tune.TickRateHz,
				MaxTier:    tune.MaxTier,
			},
			Tick:        g.tick.Load(),
			StateDigest: g.eng.Grid().Digest(),
		},
		State: g.buildStateMsg(),
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (g *Game) step(cmds []CmdEnvelope, leaves []string) {
	for _, id := range leaves {
		if _, attached := g.clients[id]; attached {
			delete(g.clients, id)
			g.clientCount.Add(-1)
		}
	}

	nowTick := g.tick.Add(1)

	for _, env := range cmds {
		ack := g.executeCmd(env, nowTick)
		g.sendTo(env.PlayerID, ack)
	}

	batch := g.eng.Dispatch()
	if len(batch) > 0 {
		events := make([]protocol.Event, 0, len(batch))
		for _, ef := range batch {
			ev := ef.Proto()
			events = append(events, ev)
			if g.effectLog != nil {
				if err := g.effectLog.WriteEffect(ev); err != nil && g.logger != nil {
					g.logger.Printf("effect log: %v", err)
				}
			}
			if ef.Kind == engine.EffectMatchResolved && ef.Match != nil && g.index != nil {
				g.index.WriteMatch(indexdb.MatchRow{
					Tick:       nowTick,
					Kind:       ef.Match.Kind.String(),
					Size:       ef.Match.Size,
					Tier:       ef.Match.Tier,
					ChainDepth: ef.Match.ChainDepth,
					Merged:     ef.Match.Merged,
					Reward:     ef.Match.Reward,
				})
			}
		}
		g.broadcast(protocol.EventMsg{
			Type:            protocol.TypeEvent,
			ProtocolVersion: protocol.Version,
			Tick:            nowTick,
			Events:          events,
		})
	}

	digest := g.eng.Grid().Digest()
	row := indexdb.TickRow{Tick: nowTick, Digest: digest, Cmds: len(cmds), Effects: len(batch)}
	if g.tickLog != nil {
		if err := g.tickLog.WriteTick(row); err != nil && g.logger != nil {
			g.logger.Printf("tick log: %v", err)
		}
	}
	if g.index != nil {
		g.index.WriteTick(row)
	}

	if g.snapshotSink != nil && g.cfg.Tune.SnapshotEveryTicks > 0 && nowTick%uint64(g.cfg.Tune.SnapshotEveryTicks) == 0 {
		select {
		case g.snapshotSink <- g.buildSnapshot(nowTick):
		default:
			if g.logger != nil {
				g.logger.Printf("snapshot sink full; skipping tick %d", nowTick)
			}
		}
	}
}

func (g *Game) executeCmd(env CmdEnvelope, nowTick uint64) protocol.AckMsg {
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          env.Cmd.CmdID,
		ServerTick:      nowTick,
	}

	p := g.players[env.PlayerID]
	if p == nil {
		ack.Code = protocol.ErrProtoBadRequest
		ack.Message = "unknown player"
		return ack
	}
	if env.Cmd.Op != protocol.OpGetState && !g.rateAllow(p, nowTick) {
		ack.Code = protocol.ErrRateLimit
		return ack
	}

	var err error
	switch env.Cmd.Op {
	case protocol.OpPlace:
		kind, ok := grid.ParseKind(env.Cmd.BlockKind)
		if !ok {
			ack.Code = protocol.ErrUnknownKind
			ack.Message = env.Cmd.BlockKind
			return ack
		}
		_, err = g.eng.Place(grid.FromArray(env.Cmd.Pos), kind, nowTick)
	case protocol.OpMove:
		_, err = g.eng.Move(grid.FromArray(env.Cmd.Pos), grid.FromArray(env.Cmd.To), nowTick)
	case protocol.OpRemove:
		_, err = g.eng.Remove(grid.FromArray(env.Cmd.Pos), nowTick)
	case protocol.OpGetState:
		g.sendTo(env.PlayerID, g.buildStateMsg())
	default:
		ack.Code = protocol.ErrProtoBadRequest
		ack.Message = "unknown op " + env.Cmd.Op
		return ack
	}

	if err != nil {
		var corrupt *grid.CorruptionError
		if errors.As(err, &corrupt) {
			// The board indices no longer agree. Continuing would serve
			// corrupted state to every client, so halt loudly.
			if g.logger != nil {
				g.logger.Printf("FATAL: halting session %s: %v", g.cfg.ID, corrupt)
			}
			panic(corrupt)
		}
		ack.Code = engine.CodeOf(err)
		ack.Message = err.Error()
		return ack
	}
	ack.Accepted = true
	return ack
}

func (g *Game) rateAllow(p *player, nowTick uint64) bool {
	window := uint64(g.cfg.Tune.RateLimits.CmdWindowTicks)
	if nowTick-p.rateWindowStart >= window {
		p.rateWindowStart = nowTick
		p.rateUsed = 0
	}
	if p.rateUsed >= g.cfg.Tune.RateLimits.CmdMax {
		return false
	}
	p.rateUsed++
	return true
}

func (g *Game) buildStateMsg() protocol.StateMsg {
	blocks := g.eng.Grid().Blocks()
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Pos.Y != blocks[j].Pos.Y {
			return blocks[i].Pos.Y < blocks[j].Pos.Y
		}
		return blocks[i].Pos.X < blocks[j].Pos.X
	})
	out := make([]protocol.BlockState, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, protocol.BlockState{
			ID:   b.ID.String(),
			Pos:  b.Pos.ToArray(),
			Kind: b.Kind.String(),
			Tier: b.Tier,
		})
	}
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            g.tick.Load(),
		Blocks:          out,
		Resources:       g.eng.Ledger().Snapshot(),
	}
}

func (g *Game) sendTo(playerID string, v any) {
	c := g.clients[playerID]
	if c == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	sendLatest(c.Out, b)
}

func (g *Game) broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, c := range g.clients {
		sendLatest(c.Out, b)
	}
}

// sendLatest drops the oldest queued message instead of blocking when a
// client's out channel is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
