package protocol

// JOIN (client -> server). The first and only handshake message.
type JoinMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Name            string           `json:"name"`
	Color           string           `json:"color,omitempty"` // preferred "#RRGGBB"
	Capabilities    JoinCapabilities `json:"capabilities,omitempty"`
}

type JoinCapabilities struct {
	// CellsRLE asks for the occupancy plane as a run-length encoded
	// field on every snapshot.
	CellsRLE bool `json:"cells_rle,omitempty"`
}

// JOIN_ACK (server -> client).
type JoinAckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SnakeID         string `json:"snake_id"`
	GridWidth       int    `json:"grid_width"`
	GridHeight      int    `json:"grid_height"`
	TickIntervalMs  int    `json:"tick_interval_ms"`
	StartLength     int    `json:"start_length"`
	EdgePolicy      string `json:"edge_policy"`
	Color           string `json:"color"`
}

// JOIN_REJECT (server -> client). Sent instead of JOIN_ACK, then the
// connection is closed.
type JoinRejectMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Reason          string `json:"reason,omitempty"`
}

// DIRECTION (client -> server). No acknowledgment; the latest one before
// a tick boundary wins.
type DirectionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Heading         string `json:"heading"` // up, down, left, right
}

// SNAPSHOT (server -> client), one per tick.
type SnapshotMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Snakes          []SnakeState `json:"snakes"`
	Apples          []AppleState `json:"apples"`
	// CellsRLE is the row-major occupancy plane (0 empty, 1 snake,
	// 2 apple) as base64 varint run-length pairs. Present only for
	// sessions that requested the cells_rle capability.
	CellsRLE string `json:"cells_rle,omitempty"`
}

type SnakeState struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Segments [][2]int `json:"segments"` // head first
	Color    string   `json:"color"`
	Alive    bool     `json:"alive"`
	Score    int      `json:"score"`
}

type AppleState struct {
	Cell   [2]int `json:"cell"`
	Growth int    `json:"growth"`
}

// DISCONNECT (either direction), graceful teardown.
type DisconnectMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}
