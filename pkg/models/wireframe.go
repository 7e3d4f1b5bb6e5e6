package models

// EvalCommand is the outbound {cmd:"eval", ...} frame.
type EvalCommand struct {
	Cmd       string `json:"cmd"`
	Script    string `json:"script"`
	RequestID string `json:"requestId"`
}

// SubscribeCommand is the outbound {cmd:"subscribe", ...} frame.
type SubscribeCommand struct {
	Cmd   string `json:"cmd"`
	Match string `json:"match"`
	Every int    `json:"every"`
}

// UnsubscribeCommand is the outbound {cmd:"unsubscribe", ...} frame.
type UnsubscribeCommand struct {
	Cmd   string `json:"cmd"`
	Match string `json:"match"`
}

// TouchCommand is the outbound {cmd:"touch", ...} frame.
type TouchCommand struct {
	Cmd  string `json:"cmd"`
	Name string `json:"name"`
}

// InboundFrame is the generic shape every inbound homebase frame is first
// unmarshaled into, so the dispatcher can tell which concrete shape to
// re-decode as.
type InboundFrame struct {
	RequestID string `json:"requestId,omitempty"`
	Status    string `json:"status,omitempty"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`

	Type      string `json:"type,omitempty"`
	Name      string `json:"name,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	DType     string `json:"dtype,omitempty"`
	Data      string `json:"data,omitempty"`

	IsChunkedMessage bool   `json:"isChunkedMessage,omitempty"`
	MessageID        string `json:"messageId,omitempty"`
	ChunkIndex       int    `json:"chunkIndex,omitempty"`
	TotalChunks      int    `json:"totalChunks,omitempty"`
	IsLastChunk      bool   `json:"isLastChunk,omitempty"`

	Action string `json:"action,omitempty"`
}
