package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/config"
	"deribit-gateway/src/interfaces"
	"deribit-gateway/src/logger"
	"deribit-gateway/src/models"
	"deribit-gateway/src/upstream"
	"deribit-gateway/src/utils"
)

// -----------------------------------------------------------------------------
// Typed tool registry
// -----------------------------------------------------------------------------

// Tool is one callable operation. Implementations are fixed typed structs
// registered once at startup, never resolved dynamically.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Call(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// ErrUnknownTool marks a tools/call against a name the registry does not
// hold; the session maps it to a MethodNotFound protocol error.
type ErrUnknownTool struct{ Name string }

func (e *ErrUnknownTool) Error() string { return fmt.Sprintf("unknown tool: %s", e.Name) }

// ErrInvalidArgs marks arguments the typed input struct rejected; the
// session maps it to an InvalidParams protocol error.
type ErrInvalidArgs struct{ Cause error }

func (e *ErrInvalidArgs) Error() string { return fmt.Sprintf("invalid arguments: %v", e.Cause) }
func (e *ErrInvalidArgs) Unwrap() error { return e.Cause }

// ToolFunc is the typed handler body.
type ToolFunc[I any] func(ctx context.Context, input I) (interface{}, error)

// typedTool binds a name, a schema and a typed handler.
type typedTool[I any] struct {
	name        string
	description string
	schema      map[string]interface{}
	fn          ToolFunc[I]
}

// NewTool constructs a typed tool. Argument decoding is strict: unknown
// fields fail with ErrInvalidArgs before the handler runs.
func NewTool[I any](name, description string, schema map[string]interface{}, fn ToolFunc[I]) Tool {
	return &typedTool[I]{name: name, description: description, schema: schema, fn: fn}
}

func (t *typedTool[I]) Name() string                        { return t.name }
func (t *typedTool[I]) Description() string                 { return t.description }
func (t *typedTool[I]) InputSchema() map[string]interface{} { return t.schema }

func (t *typedTool[I]) Call(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var input I
	if len(args) > 0 && !bytes.Equal(args, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(args))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&input); err != nil {
			return nil, &ErrInvalidArgs{Cause: err}
		}
	}
	return t.fn(ctx, input)
}

// -----------------------------------------------------------------------------

// Descriptor is the listing entry for one tool.
type Descriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Deps carries the shared components every handler may use. Constructed
// once at startup and passed by reference, never global.
type Deps struct {
	Client *upstream.Client
	Engine *analytics.Engine
	Config *config.Config
	Logger *logger.Logger
	Store  interfaces.IDatabase
	Ring   *utils.MetricsRing
}

// Registry is the closed catalog of tools.
type Registry struct {
	deps  *Deps
	tools map[string]Tool
	order []string
}

// NewRegistry builds the full catalog. Private account tools are only
// registered when API credentials are configured.
func NewRegistry(deps *Deps) (*Registry, error) {
	r := &Registry{deps: deps, tools: make(map[string]Tool)}

	all := []Tool{
		newStatusTool(deps),
		newInstrumentsTool(deps),
		newTickerTool(deps),
		newOrderbookSummaryTool(deps),
		newDvolSnapshotTool(deps),
		newSurfaceSnapshotTool(deps),
		newExpectedMoveTool(deps),
		newFundingSnapshotTool(deps),
		newOptionChainTool(deps),
		newOpenInterestByStrikeTool(deps),
		newGammaExposureTool(deps),
		newMaxPainTool(deps),
		newIVTermStructureTool(deps),
		newSkewMetricsTool(deps),
	}
	if deps.Client.HasCredentials() {
		all = append(all,
			newAccountSummaryTool(deps),
			newPositionsTool(deps),
			newOpenOrdersTool(deps),
		)
	}

	for _, t := range all {
		if err := r.register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(t Tool) error {
	if t.Name() == "" {
		return fmt.Errorf("tool with empty name")
	}
	if _, dup := r.tools[t.Name()]; dup {
		return fmt.Errorf("duplicate tool name: %s", t.Name())
	}
	if t.InputSchema() == nil {
		return fmt.Errorf("tool %s has no input schema", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// List returns the descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return out
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}

// Invoke runs a tool and returns its serialized result. Handler failures
// come back as the structured error envelope rather than a Go error; only
// registry-level problems (unknown tool, bad arguments) surface as errors.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, &ErrUnknownTool{Name: name}
	}

	started := time.Now()
	result, err := t.Call(ctx, args)
	if err != nil {
		var ia *ErrInvalidArgs
		if asErr(err, &ia) {
			return nil, err
		}
		result = ErrorEnvelope(err, nil)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("serializing %s result: %w", name, err)
	}

	soft := r.deps.Config.Analytics.SoftLimitByte
	hard := r.deps.Config.Analytics.HardLimitByte
	if len(payload) > hard {
		r.deps.Logger.Error("tool %s output %dB exceeds hard ceiling %dB", name, len(payload), hard)
		result = &models.MErrorResponse{
			Error:     true,
			ErrorCode: -1,
			Message:   fmt.Sprintf("Result too large: %dB exceeds %dB limit", len(payload), hard),
			Notes:     []string{"tool:" + name, "oversize"},
		}
		payload, err = json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("serializing %s oversize envelope: %w", name, err)
		}
	} else if len(payload) > soft {
		r.deps.Logger.Warning("tool %s output %dB exceeds soft target %dB", name, len(payload), soft)
	}

	r.record(name, args, result, payload, time.Since(started))
	return payload, nil
}

// snapshotTools are the derived-analytics payloads worth archiving for
// later inspection.
var snapshotTools = map[string]bool{
	"compute_gamma_exposure": true,
	"compute_max_pain":       true,
	"get_iv_term_structure":  true,
	"get_skew_metrics":       true,
}

// record persists the invocation, best effort.
func (r *Registry) record(name string, args json.RawMessage, result interface{}, payload json.RawMessage, took time.Duration) {
	ok := true
	code := 0
	if env, isErr := result.(*models.MErrorResponse); isErr {
		ok = false
		code = env.ErrorCode
	}
	now := time.Now()
	inv := models.MInvocation{
		Tool:       name,
		ArgsJSON:   string(args),
		OK:         ok,
		ErrorCode:  code,
		DurationMs: took.Milliseconds(),
		OutputByte: len(payload),
		Timestamp:  now.UnixMilli(),
		CreatedAt:  now,
	}
	if r.deps.Ring != nil {
		r.deps.Ring.Record(inv)
	}
	if r.deps.Store == nil {
		return
	}
	if err := r.deps.Store.SaveInvocation(inv); err != nil {
		r.deps.Logger.Warning("saving invocation record failed: %v", err)
	}
	if ok && snapshotTools[name] {
		var in struct {
			Currency string `json:"currency"`
		}
		_ = json.Unmarshal(args, &in)
		ccy, err := normalizeCurrency(in.Currency)
		if err != nil {
			ccy = in.Currency
		}
		snap := models.MSnapshot{
			Tool:      name,
			Ccy:       ccy,
			Payload:   string(payload),
			Timestamp: now.UnixMilli(),
			CreatedAt: now,
		}
		if err := r.deps.Store.SaveSnapshot(snap); err != nil {
			r.deps.Logger.Warning("archiving %s snapshot failed: %v", name, err)
		}
	}
}
