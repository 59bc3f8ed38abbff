package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aiveilix/aiveilix/internal/common"
	"github.com/aiveilix/aiveilix/internal/interfaces"
	"github.com/aiveilix/aiveilix/internal/models"
)

// Execution limits and slow-call thresholds.
const (
	toolCallTimeout = 30 * time.Second
	slowToolWarn    = 3 * time.Second
	slowRequestWarn = 5 * time.Second
)

// discoveryMethods may be called without authentication.
var discoveryMethods = map[string]bool{
	"initialize":     true,
	"tools/list":     true,
	"resources/list": true,
	"prompts/list":   true,
}

// Dispatcher routes JSON-RPC requests to tool and resource handlers.
type Dispatcher struct {
	bridge    interfaces.CredentialBridge
	knowledge interfaces.KnowledgeClient
	logger    *common.Logger

	tools    []models.Tool
	handlers map[string]toolHandler
}

// NewDispatcher creates the protocol dispatcher.
func NewDispatcher(bridge interfaces.CredentialBridge, knowledge interfaces.KnowledgeClient, logger *common.Logger) *Dispatcher {
	d := &Dispatcher{
		bridge:    bridge,
		knowledge: knowledge,
		logger:    logger,
		tools:     toolDefs(),
	}
	d.handlers = d.toolHandlers()
	return d
}

// Tools returns the static tool registry.
func (d *Dispatcher) Tools() []models.Tool {
	return d.tools
}

// StaticResources returns the fixed resource entry points.
func (d *Dispatcher) StaticResources() []models.Resource {
	return staticResources()
}

// ParseRequest decodes a raw JSON-RPC message. A nil response with a
// non-nil error means the transport should reply with a parse error.
func ParseRequest(data []byte) (*models.RPCRequest, *Error) {
	var req models.RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, parseError("Parse error")
	}
	return &req, nil
}

// ErrorResponse builds an error response envelope for the request id.
func ErrorResponse(id json.RawMessage, derr *Error) *models.RPCResponse {
	return &models.RPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   derr.RPCError(),
	}
}

// Dispatch executes one JSON-RPC request. A nil principal is allowed for
// discovery methods; everything else fails with an auth error.
func (d *Dispatcher) Dispatch(ctx context.Context, principal *models.Principal, req *models.RPCRequest) *models.RPCResponse {
	start := time.Now()
	resp := d.dispatch(ctx, principal, req)
	elapsed := time.Since(start)

	if elapsed > slowRequestWarn {
		d.logger.Warn().
			Str("method", req.Method).
			Dur("elapsed", elapsed).
			Msg("Slow MCP request")
	}
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, principal *models.Principal, req *models.RPCRequest) *models.RPCResponse {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return ErrorResponse(req.ID, invalidRequest("Invalid JSON-RPC request"))
	}

	if principal == nil && !discoveryMethods[req.Method] {
		return ErrorResponse(req.ID, authRequired())
	}

	var (
		result any
		derr   *Error
	)

	switch req.Method {
	case "initialize":
		result = d.handleInitialize()
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = map[string]any{"tools": d.tools}
	case "tools/call":
		result, derr = d.handleToolCall(ctx, principal, req.Params)
	case "resources/list":
		var resources []models.Resource
		resources, derr = d.listResources(ctx, principal)
		if derr == nil {
			result = map[string]any{"resources": resources}
		}
	case "resources/read":
		result, derr = d.handleResourceRead(ctx, principal, req.Params)
	case "prompts/list":
		result = map[string]any{"prompts": []any{}}
	default:
		derr = methodNotFound(req.Method)
	}

	if derr != nil {
		return ErrorResponse(req.ID, derr)
	}
	return &models.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (d *Dispatcher) handleInitialize() map[string]any {
	return map[string]any{
		"protocolVersion": models.MCPProtocolVersion,
		"capabilities": map[string]any{
			"tools":     map[string]any{"listChanged": false},
			"resources": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    models.MCPServerName,
			"version": models.MCPServerVersion,
		},
	}
}

// toolCallParams is the params shape of tools/call.
type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (d *Dispatcher) handleToolCall(ctx context.Context, principal *models.Principal, params json.RawMessage) (any, *Error) {
	var call toolCallParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &call); err != nil {
			return nil, invalidRequest("Invalid tools/call params")
		}
	}
	if call.Name == "" {
		return nil, domainError(CodeMissingParameter, "Missing tool name")
	}

	handler, ok := d.handlers[call.Name]
	if !ok {
		return nil, domainError(CodeUnknownTool, "Unknown tool: "+call.Name)
	}

	var requiredScope string
	for _, tool := range d.tools {
		if tool.Name == call.Name {
			requiredScope = tool.RequiredScope
			break
		}
	}
	if requiredScope != "" {
		if err := d.bridge.CheckScope(principal, requiredScope); err != nil {
			return nil, domainError(CodeMissingScope, err.Error())
		}
	}

	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}

	// Hard deadline; the knowledge client honors ctx so in-flight upstream
	// work is actually canceled.
	callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
	defer cancel()

	start := time.Now()
	result, derr := handler(callCtx, principal, call.Arguments)
	elapsed := time.Since(start)

	if elapsed > slowToolWarn {
		d.logger.Warn().
			Str("tool", call.Name).
			Str("user_id", principal.UserID).
			Dur("elapsed", elapsed).
			Msg("Slow tool call")
	}

	if derr != nil {
		if callCtx.Err() == context.DeadlineExceeded && derr.Kind != KindTimeout {
			return nil, timeoutError("Tool execution timed out")
		}
		return nil, derr
	}
	return result, nil
}

// resourceReadParams is the params shape of resources/read.
type resourceReadParams struct {
	URI string `json:"uri"`
}

func (d *Dispatcher) handleResourceRead(ctx context.Context, principal *models.Principal, params json.RawMessage) (any, *Error) {
	var read resourceReadParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &read); err != nil {
			return nil, invalidRequest("Invalid resources/read params")
		}
	}
	if read.URI == "" {
		return nil, domainError(CodeMissingParameter, "Missing resource uri")
	}

	contents, derr := d.readResource(ctx, principal, read.URI)
	if derr != nil {
		return nil, derr
	}
	return map[string]any{"contents": contents}, nil
}

// Compile-time check
var _ interfaces.ProtocolDispatcher = (*Dispatcher)(nil)
