package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	ResumeToken     string `json:"resume_token,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	PlayerID        string     `json:"player_id"`
	ResumeToken     string     `json:"resume_token"`
	GridParams      GridParams `json:"grid_params"`
	Tick            uint64     `json:"tick"`
	StateDigest     string     `json:"state_digest,omitempty"`
}

type GridParams struct {
	Width      int `json:"width"`
	Height     int `json:"height"`
	TickRateHz int `json:"tick_rate_hz"`
	MaxTier    int `json:"max_tier"`
}

// STATE (server -> client): full grid plus the player's resource ledger.
// Sent on join and on explicit request.
type StateMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Blocks          []BlockState   `json:"blocks"`
	Resources       map[string]int `json:"resources"`
}

type BlockState struct {
	ID   string `json:"id"`
	Pos  [2]int `json:"pos"`
	Kind string `json:"kind"`
	Tier int    `json:"tier"`
}

// CMD (client -> server): one grid command per message.
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	CmdID           string `json:"cmd_id"`
	Op              string `json:"op"` // PLACE | MOVE | REMOVE | GET_STATE
	Pos             [2]int `json:"pos,omitempty"`
	To              [2]int `json:"to,omitempty"`
	BlockKind       string `json:"block_kind,omitempty"`
}

// Command ops.
const (
	OpPlace    = "PLACE"
	OpMove     = "MOVE"
	OpRemove   = "REMOVE"
	OpGetState = "GET_STATE"
)

// ACK (server -> client)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// EVENT (server -> client): the effect batch for one tick.
type EventMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Events          []Event `json:"events"`
}

// Event is a loose record; "type" discriminates
// (BLOCK_PLACED, BLOCK_MOVED, BLOCK_REMOVED, BLOCK_MERGED, MATCH_RESOLVED).
type Event map[string]any
