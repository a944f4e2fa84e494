package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"deribit-gateway/src/logger"
	"deribit-gateway/src/tools"
)

// -----------------------------------------------------------------------------
// Session state machine
// -----------------------------------------------------------------------------

type State int32

const (
	StateUninitialized State = iota
	StateInitialized
)

const streamBuffer = 32

// Session runs the per-connection request state machine. Every response is
// fed to two independent sinks: the synchronous return of HandleMessage and,
// when a stream is attached, the session's broadcast channel. The stream
// copy is best effort; a slow or gone consumer never blocks dispatch.
type Session struct {
	id       string
	registry *tools.Registry
	logger   *logger.Logger
	server   ServerInfo

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	stream   chan []byte
	streamOn bool
	closed   bool
}

// NewSession creates a session in the uninitialized state. The parent
// context bounds every handler this session runs.
func NewSession(parent context.Context, registry *tools.Registry, log *logger.Logger, server ServerInfo) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:       uuid.NewString(),
		registry: registry,
		logger:   log,
		server:   server,
		ctx:      ctx,
		cancel:   cancel,
		stream:   make(chan []byte, streamBuffer),
	}
}

func (s *Session) ID() string { return s.id }

// Stream exposes the broadcast sink. The channel is closed when the
// session closes.
func (s *Session) Stream() <-chan []byte { return s.stream }

// AttachStream turns on stream delivery. Before this, responses only go
// out on the synchronous path.
func (s *Session) AttachStream() {
	s.mu.Lock()
	s.streamOn = true
	s.mu.Unlock()
}

// Close tears the session down: pending handler work is cancelled and the
// stream channel is closed. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	// Closed under the mutex so deliver's send can never race it.
	close(s.stream)
	s.mu.Unlock()
	s.cancel()
}

// HandleMessage processes one raw frame and returns the serialized
// response, or nil for notifications. The same bytes are pushed on the
// stream sink when one is attached.
func (s *Session) HandleMessage(raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return s.deliver(newError(nil, CodeParseError, "parse error"))
	}
	if req.Method == "" {
		return s.deliver(newError(req.ID, CodeInvalidRequest, "missing method"))
	}

	if req.IsNotification() {
		s.handleNotification(&req)
		return nil
	}
	return s.deliver(s.dispatch(&req))
}

func (s *Session) handleNotification(req *Request) {
	switch req.Method {
	case "notifications/initialized":
		// Client acknowledgment, nothing to do.
	default:
		s.logger.Debug("session %s: ignoring notification %s", s.id, req.Method)
	}
}

func (s *Session) dispatch(req *Request) *Response {
	if req.Method == "initialize" {
		return s.handleInitialize(req)
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateInitialized {
		return newError(req.ID, CodeNotInitialized, "session not initialized")
	}

	switch req.Method {
	case "tools/list":
		return newResult(req.ID, ListResult{Tools: s.registry.List()})
	case "tools/call":
		return s.handleCall(req)
	case "ping":
		return newResult(req.ID, map[string]interface{}{})
	default:
		return newError(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

// handleInitialize transitions to initialized. A repeat initialize is
// accepted and re-confirms capabilities without further side effects.
func (s *Session) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return newError(req.ID, CodeInvalidParams, "malformed initialize params")
		}
	}

	s.mu.Lock()
	s.state = StateInitialized
	s.mu.Unlock()

	if params.ClientInfo != nil {
		s.logger.Info("session %s: initialized by %s %s", s.id, params.ClientInfo.Name, params.ClientInfo.Version)
	}

	return newResult(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    ServerCapabilities{Tools: map[string]interface{}{"listChanged": false}},
		ServerInfo:      s.server,
		SessionID:       s.id,
	})
}

func (s *Session) handleCall(req *Request) *Response {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return newError(req.ID, CodeInvalidParams, "tools/call requires a tool name")
	}

	payload, err := s.registry.Invoke(s.ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *tools.ErrUnknownTool
		var invalid *tools.ErrInvalidArgs
		switch {
		case asErr(err, &unknown):
			return newError(req.ID, CodeMethodNotFound, err.Error())
		case asErr(err, &invalid):
			return newError(req.ID, CodeInvalidParams, err.Error())
		default:
			return newError(req.ID, CodeInternalError, err.Error())
		}
	}

	return newResult(req.ID, CallResult{
		Content: []ContentItem{{Type: "text", Text: string(payload)}},
	})
}

func asErr[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// deliver serializes the response, pushes it to the stream sink when one
// is attached, and hands the bytes back for the synchronous path.
func (s *Session) deliver(resp *Response) []byte {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("session %s: response serialization failed: %v", s.id, err)
		fallback := newError(resp.ID, CodeInternalError, "response serialization failed")
		payload, _ = json.Marshal(fallback)
	}

	s.mu.Lock()
	if s.streamOn && !s.closed {
		select {
		case s.stream <- payload:
		default:
			s.logger.Warning("session %s: stream sink full, dropping push copy", s.id)
		}
	}
	s.mu.Unlock()
	return payload
}
