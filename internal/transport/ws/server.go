package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"blocklife.gg/internal/protocol"
	"blocklife.gg/internal/sim/game"
)

type Server struct {
	game *game.Game
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(g *game.Game, logger *log.Logger) *Server {
	s := &Server{
		game: g,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, out, ok := s.handshake(conn)
		if !ok {
			// The join may already have been processed before the welcome
			// write failed; release the registration either way.
			if playerID != "" {
				s.game.Leave() <- playerID
			}
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeCmd {
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				continue
			}
			s.game.Inbox() <- game.CmdEnvelope{PlayerID: playerID, Cmd: cmd}
		}

		// Cleanup.
		s.game.Leave() <- playerID
	}
}

func (s *Server) handshake(conn *websocket.Conn) (playerID string, out chan []byte, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil, false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil, false
	}
	if hello.PlayerName == "" {
		hello.PlayerName = "player"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 16
	}
	if maxQ > 128 {
		maxQ = 128
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan game.JoinResponse, 1)
	s.game.Join() <- game.JoinRequest{
		Name:        hello.PlayerName,
		ResumeToken: strings.TrimSpace(hello.ResumeToken),
		Out:         out,
		Resp:        respCh,
	}
	resp := <-respCh

	// Send welcome + initial state immediately. The join went through, so
	// from here on failures hand the player id back for cleanup.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		return resp.Welcome.PlayerID, nil, false
	}
	if err := writeJSON(conn, resp.State); err != nil {
		return resp.Welcome.PlayerID, nil, false
	}

	return resp.Welcome.PlayerID, out, true
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
