// ABOUTME: Routes parsed JSON-RPC requests to protocol handlers and tools.
// ABOUTME: Owns the per-call timeout, result truncation, and error mapping.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/insightfinder/mcp-server/internal/auth"
	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/validate"
)

// ServerName and ServerVersion identify this server in the initialize
// handshake.
const (
	ServerName    = "insightfinder-mcp-server"
	ServerVersion = "1.0.0"
)

// ErrInvalidArgs marks a handler failure caused by the caller's
// arguments rather than by execution.
var ErrInvalidArgs = errors.New("invalid arguments")

// Dispatcher owns the method routing for all transports. Each raw
// payload results in at most one tool invocation.
type Dispatcher struct {
	registry *Registry
	limits   validate.Limits
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given tool registry.
func NewDispatcher(registry *Registry, limits validate.Limits, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry: registry,
		limits:   limits,
		timeout:  insightfinder.CallTimeout,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Registry exposes the tool catalog for non-JSON-RPC surfaces.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch parses one JSON-RPC payload and executes it. The returned
// response is nil exactly when the payload was a notification, which
// receives no reply. The payload must already have passed size
// validation.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte, tenant *insightfinder.Credential, progress ProgressSink) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewError(nil, CodeParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return NewError(req.ID, CodeInvalidRequest, "invalid JSON-RPC version")
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			d.logger.Warn("notification for non-notification method", "method", req.Method)
		} else {
			d.logger.Debug("accepted notification", "method", req.Method)
		}
		return nil
	}

	switch req.Method {
	case "initialize":
		return d.handleInitialize(req)
	case "tools/list":
		return d.handleToolsList(req)
	case "tools/call":
		return d.handleToolsCall(ctx, req, tenant, progress)
	default:
		return NewError(req.ID, CodeMethodNotFound, "method not found")
	}
}

func (d *Dispatcher) handleInitialize(req Request) *Response {
	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": ServerVersion,
		},
	}
	return NewResult(req.ID, result)
}

func (d *Dispatcher) handleToolsList(req Request) *Response {
	tools := d.registry.List()
	result := ListToolsResult{Tools: make([]ToolInfo, len(tools))}
	for i, t := range tools {
		result.Tools[i] = ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}
	d.logger.Debug("tools/list", "count", len(tools))
	return NewResult(req.ID, result)
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req Request, tenant *insightfinder.Credential, progress ProgressSink) *Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "tool name is required")
	}

	tool, ok := d.registry.Get(params.Name)
	if !ok {
		return NewError(req.ID, CodeMethodNotFound, "unknown tool: "+params.Name)
	}

	// Tenant credentials gate execution, not discovery. The check runs
	// before the handler so a credentialless call never reaches the
	// upstream API.
	if tenant == nil || !tenant.Valid() {
		return NewError(req.ID, CodeInvalidParams, "missing tenant credentials: set the "+auth.HeaderLicenseKey+" and "+auth.HeaderUserName+" headers")
	}

	callID := uuid.NewString()
	d.logger.Debug("tools/call", "tool", params.Name, "call_id", callID)

	result, err := d.invoke(ctx, tool, params.Arguments, tenant, progress)
	if err != nil {
		return NewError(req.ID, codeForToolError(err), d.messageForToolError(params.Name, callID, err))
	}

	text, err := d.renderResult(result)
	if err != nil {
		d.logger.Error("serializing tool result", "tool", params.Name, "call_id", callID, "error", err)
		return NewError(req.ID, CodeInternalError, "internal error")
	}

	d.logger.Debug("tools/call complete", "tool", params.Name, "call_id", callID)
	return NewResult(req.ID, TextResult(text, false))
}

// invoke runs the handler under the per-call timeout.
func (d *Dispatcher) invoke(ctx context.Context, tool *Tool, args json.RawMessage, tenant *insightfinder.Credential, progress ProgressSink) (any, error) {
	if progress == nil {
		progress = func(Progress) {}
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return tool.Handler(callCtx, args, tenant, progress)
}

// renderResult serializes the handler's return value and applies the
// string length cap.
func (d *Dispatcher) renderResult(result any) (string, error) {
	var text string
	switch v := result.(type) {
	case string:
		text = v
	case json.RawMessage:
		text = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		text = string(data)
	}
	return d.limits.TruncateString(text), nil
}

func codeForToolError(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgs):
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

// messageForToolError returns a client-safe message. Upstream and
// internal failures are logged in full but reported generically; the
// call ID lets operators correlate the two.
func (d *Dispatcher) messageForToolError(tool, callID string, err error) string {
	switch {
	case errors.Is(err, ErrInvalidArgs):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		d.logger.Warn("tool call timed out", "tool", tool, "call_id", callID)
		return "tool execution timed out"
	case errors.Is(err, insightfinder.ErrUpstream):
		d.logger.Error("upstream request failed", "tool", tool, "call_id", callID, "error", err)
		return "upstream request failed"
	default:
		d.logger.Error("tool execution failed", "tool", tool, "call_id", callID, "error", err)
		return "internal error"
	}
}
