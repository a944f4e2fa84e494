package rpc

import "encoding/json"

// -----------------------------------------------------------------------------
// JSON-RPC 2.0 framing
// -----------------------------------------------------------------------------

const JSONRPCVersion = "2.0"

// Protocol error codes. The first five are the JSON-RPC reserved codes;
// CodeNotInitialized is the application code for requests arriving before
// the initialize handshake completed.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotInitialized = -32002
)

// ProtocolVersion is the handshake revision this server speaks.
const ProtocolVersion = "2024-11-05"

// Request is one incoming JSON-RPC frame. A frame without an id is a
// notification and never receives a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the frame carries no id.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response is one outgoing JSON-RPC frame.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is the JSON-RPC error member.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newResult(id interface{}, result interface{}) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func newError(id interface{}, code int, message string) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: &Error{Code: code, Message: message}}
}

// -----------------------------------------------------------------------------
// Method payloads
// -----------------------------------------------------------------------------

type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      *ClientInfo            `json:"clientInfo"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	SessionID       string             `json:"sessionId"`
}

type ServerCapabilities struct {
	Tools map[string]interface{} `json:"tools"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentItem is one entry of a tools/call result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type CallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ListResult struct {
	Tools interface{} `json:"tools"`
}
