// Package wire defines the JSON message frames exchanged on a worker session.
package wire

import "encoding/json"

// Type identifies the shape of a Frame's Payload.
type Type string

const (
	// TypeRegister is sent worker->server as the first message on a session.
	TypeRegister Type = "register"
	// TypeUnregister is sent worker->server to withdraw a worker voluntarily.
	TypeUnregister Type = "unregister"
	// TypeToolRequest is sent server->worker to invoke a tool.
	TypeToolRequest Type = "tool_request"
	// TypeToolResponse is sent worker->server with the result of a tool_request.
	TypeToolResponse Type = "tool_response"
	// TypePing is sent by either side to probe liveness.
	TypePing Type = "ping"
	// TypePong answers a TypePing.
	TypePong Type = "pong"
	// TypeError is sent by either side to report a protocol-level problem, such
	// as a malformed or unknown frame, a rejected register, or session replacement.
	TypeError Type = "error"
)

// Frame is the envelope for every message on a session. Exactly one of the
// typed payload fields is populated, selected by Type.
type Frame struct {
	Type Type `json:"type"`

	Register     *RegisterPayload     `json:"register,omitempty"`
	Unregister   *UnregisterPayload   `json:"unregister,omitempty"`
	ToolRequest  *ToolRequestPayload  `json:"tool_request,omitempty"`
	ToolResponse *ToolResponsePayload `json:"tool_response,omitempty"`
	Ping         *PingPayload         `json:"ping,omitempty"`
	Pong         *PongPayload         `json:"pong,omitempty"`
	Error        *ErrorPayload        `json:"error,omitempty"`
}

// RegisterPayload announces a worker's identity and tool offering.
type RegisterPayload struct {
	WorkerID    string       `json:"worker_id"`
	WorkerToken string       `json:"worker_token"`
	Tools       []ToolSchema `json:"tools"`
}

// UnregisterPayload withdraws a worker voluntarily.
type UnregisterPayload struct {
	WorkerID string `json:"worker_id"`
}

// ToolRequestPayload asks a worker to execute a tool.
type ToolRequestPayload struct {
	RequestID string                 `json:"request_id"`
	ToolName  string                 `json:"tool_name"`
	Args      map[string]interface{} `json:"args"`
}

// ToolResponsePayload carries a worker's reply to a ToolRequestPayload.
// Exactly one of Result or Error is populated.
type ToolResponsePayload struct {
	RequestID string          `json:"request_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PingPayload carries a liveness-probe timestamp (unix millis).
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload answers a PingPayload with the same timestamp convention.
type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorPayload reports a protocol-level problem, optionally correlated to a request.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ToolSchema describes one tool offered by a worker. Parameters and Returns
// are JSON-Schema-subset documents; $ref/oneOf/allOf/anyOf are not
// interpreted by this system and are passed through the description
// generator's sanitizer as opaque leaves rather than expanded.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Returns     json.RawMessage `json:"returns,omitempty"`
}
