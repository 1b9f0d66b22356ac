package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"blocklife.gg/internal/protocol"
)

var placeableKinds = []string{
	"WORK", "STUDY", "HEALTH", "CREATIVITY", "FUN", "RELATIONSHIP",
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "player name")
		interval = flag.Duration("interval", 500*time.Millisecond, "delay between commands")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		MaxQueue:        16,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var params protocol.GridParams
	var cmdNum int
	lastCmd := time.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			params = w.GridParams
			logger.Printf("WELCOME player_id=%s grid=%dx%d tick_rate=%d", w.PlayerID, params.Width, params.Height, params.TickRateHz)

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			if !ack.Accepted {
				logger.Printf("ACK %s rejected: %s", ack.AckFor, ack.Code)
			}

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			for _, e := range ev.Events {
				if e["type"] == "MATCH_RESOLVED" {
					logger.Printf("match: size=%v kind=%v chain=%v reward=%v", e["size"], e["kind"], e["chain_depth"], e["reward"])
				}
			}
		}

		if params.Width > 0 && time.Since(lastCmd) >= *interval {
			cmdNum++
			cmd := protocol.CmdMsg{
				Type:            protocol.TypeCmd,
				ProtocolVersion: protocol.Version,
				CmdID:           fmt.Sprintf("C%06d", cmdNum),
				Op:              protocol.OpPlace,
				Pos:             [2]int{rng.Intn(params.Width), rng.Intn(params.Height)},
				BlockKind:       placeableKinds[rng.Intn(len(placeableKinds))],
			}
			if err := conn.WriteJSON(cmd); err != nil {
				return
			}
			lastCmd = time.Now()
		}
	}
}
