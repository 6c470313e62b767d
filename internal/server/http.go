// ABOUTME: HTTP transport: REST tool routes, JSON-RPC endpoint, and the
// ABOUTME: SSE streaming variants, behind the security middleware.

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/insightfinder/mcp-server/internal/auth"
	"github.com/insightfinder/mcp-server/internal/config"
	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
	"github.com/insightfinder/mcp-server/internal/sse"
	"github.com/insightfinder/mcp-server/internal/validate"
)

// httpAPI holds the handlers behind the HTTP transport.
type httpAPI struct {
	cfg        *config.Config
	dispatcher *mcp.Dispatcher
	manager    *sse.Manager
	middleware *auth.Middleware
	limits     validate.Limits
	logger     *slog.Logger
	startedAt  time.Time
}

func newHTTPAPI(cfg *config.Config, dispatcher *mcp.Dispatcher, manager *sse.Manager, middleware *auth.Middleware, logger *slog.Logger) *httpAPI {
	return &httpAPI{
		cfg:        cfg,
		dispatcher: dispatcher,
		manager:    manager,
		middleware: middleware,
		limits: validate.Limits{
			MaxPayloadSize:  cfg.Limits.MaxPayloadSize,
			MaxStringLength: cfg.Limits.MaxStringLength,
		},
		logger:    logger.With("component", "http"),
		startedAt: time.Now(),
	}
}

// router assembles the route tree. The descriptor and health endpoints
// stay outside the security pipeline so liveness checks work without
// credentials; everything else goes through it.
func (h *httpAPI) router() http.Handler {
	r := chi.NewRouter()

	if h.cfg.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.cfg.CORS.Origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{
				"Content-Type", "Authorization", "X-API-Key",
				auth.HeaderLicenseKey, auth.HeaderUserName, auth.HeaderAPIURL,
				auth.LegacyHeaderLicenseKey, auth.LegacyHeaderUserName,
			},
			MaxAge: 300,
		}))
	}

	r.Get("/", h.handleDescriptor)
	r.Get("/health", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.middleware.Wrap)

		r.Get("/tools", h.handleListTools)
		r.Post("/tools/{name}", h.handleCallTool)
		r.Post("/tools/{name}/stream", h.handleCallToolStream)

		r.Post("/mcp", h.handleJSONRPC)
		r.Post("/mcp/stream", h.handleJSONRPCStream)
		r.Get("/mcp/events", h.handleEvents)

		r.Get("/sse/connections", h.handleConnections)
	})

	return r
}

// handleDescriptor reports what this server is and where its endpoints
// live.
func (h *httpAPI) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":             mcp.ServerName,
		"version":          mcp.ServerVersion,
		"protocol_version": mcp.ProtocolVersion,
		"transport":        "http",
		"endpoints": map[string]string{
			"health":    "/health",
			"tools":     "/tools",
			"jsonrpc":   "/mcp",
			"streaming": "/mcp/stream",
			"events":    "/mcp/events",
		},
	})
}

func (h *httpAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"tools":       h.dispatcher.Registry().Len(),
		"connections": h.manager.Count(),
	})
}

func (h *httpAPI) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := h.dispatcher.Registry().List()
	infos := make([]mcp.ToolInfo, len(tools))
	for i, t := range tools {
		infos[i] = mcp.ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": infos, "count": len(infos)})
}

// handleCallTool invokes one tool directly, outside the JSON-RPC
// envelope. The request body is the tool's argument object.
func (h *httpAPI) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args, ok := h.readBody(w, r)
	if !ok {
		return
	}

	// Reuse the JSON-RPC path so direct calls share its timeout,
	// truncation, and error mapping.
	resp := h.dispatchCall(r, name, args, nil)
	if resp.Error != nil {
		writeJSON(w, httpStatusForRPC(resp.Error.Code), map[string]any{"error": resp.Error.Message})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": resp.Result})
}

// handleCallToolStream invokes one tool and streams progress and the
// final result as SSE frames. The stream counts against the connection
// cap for its duration.
func (h *httpAPI) handleCallToolStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	args, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.streamDispatch(w, r, func(sink mcp.ProgressSink) *mcp.Response {
		return h.dispatchCall(r, name, args, sink)
	})
}

// handleJSONRPC processes one JSON-RPC request and returns the
// response, or 202 for notifications.
func (h *httpAPI) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	resp := h.dispatcher.Dispatch(r.Context(), body, tenantOf(r), nil)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleJSONRPCStream processes one JSON-RPC request with progress
// streamed as SSE frames before the final response frame.
func (h *httpAPI) handleJSONRPCStream(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	h.streamDispatch(w, r, func(sink mcp.ProgressSink) *mcp.Response {
		return h.dispatcher.Dispatch(r.Context(), body, tenantOf(r), sink)
	})
}

// handleEvents opens a long-lived SSE connection that receives
// heartbeats until the client disconnects.
func (h *httpAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFrom(r.Context())
	conn, err := h.manager.Open(identityAddr(identity, r), identityPrincipal(identity))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "connection limit reached"})
		return
	}
	defer h.manager.Remove(conn.ID)

	opened, _ := json.Marshal(map[string]string{"connection_id": conn.ID})
	_ = conn.Enqueue(sse.Event{Kind: sse.KindConnected, Data: opened})

	if err := conn.Serve(r.Context(), w); err != nil && !errors.Is(err, r.Context().Err()) {
		h.logger.Debug("event stream ended", "conn_id", conn.ID, "error", err)
	}
}

func (h *httpAPI) handleConnections(w http.ResponseWriter, r *http.Request) {
	infos := h.manager.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"connections": infos, "count": len(infos)})
}

// streamDispatch runs one dispatch through a managed SSE connection,
// emitting progress frames as they happen and the JSON-RPC response as
// the final frame.
func (h *httpAPI) streamDispatch(w http.ResponseWriter, r *http.Request, run func(mcp.ProgressSink) *mcp.Response) {
	identity := auth.IdentityFrom(r.Context())
	conn, err := h.manager.Open(identityAddr(identity, r), identityPrincipal(identity))
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "connection limit reached"})
		return
	}
	defer h.manager.Remove(conn.ID)

	// Tool events block on queue space rather than drop, so the
	// terminal frame always reaches a consumer that is still reading.
	go func() {
		defer conn.Close()
		resp := run(func(p mcp.Progress) {
			data, err := json.Marshal(p)
			if err != nil {
				return
			}
			if err := conn.EnqueueWait(r.Context(), sse.Event{Kind: sse.KindProgress, Data: data}); err != nil {
				h.logger.Debug("progress event not delivered", "conn_id", conn.ID, "error", err)
			}
		})
		if resp == nil {
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			h.logger.Error("serializing streamed response", "conn_id", conn.ID, "error", err)
			return
		}
		kind := sse.KindResult
		if resp.Error != nil {
			kind = sse.KindError
		}
		if err := conn.EnqueueWait(r.Context(), sse.Event{Kind: kind, Data: data}); err != nil {
			h.logger.Warn("terminal event not delivered", "conn_id", conn.ID, "kind", kind, "error", err)
		}
	}()

	if err := conn.Serve(r.Context(), w); err != nil && !errors.Is(err, r.Context().Err()) {
		h.logger.Debug("stream ended", "conn_id", conn.ID, "error", err)
	}
}

// dispatchCall wraps a direct tool invocation in a synthetic JSON-RPC
// request.
func (h *httpAPI) dispatchCall(r *http.Request, name string, args json.RawMessage, sink mcp.ProgressSink) *mcp.Response {
	params, _ := json.Marshal(mcp.CallToolParams{Name: name, Arguments: args})
	envelope, _ := json.Marshal(mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`"rest"`),
		Method:  "tools/call",
		Params:  params,
	})
	return h.dispatcher.Dispatch(r.Context(), envelope, tenantOf(r), sink)
}

// readBody validates the method, media type, and size, then returns
// the payload. On failure it writes the error response itself.
func (h *httpAPI) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if err := validate.ContentType(r); err != nil {
		writeJSON(w, validate.StatusFor(err), map[string]any{"error": err.Error()})
		return nil, false
	}
	body, err := h.limits.Body(r)
	if err != nil {
		writeJSON(w, validate.StatusFor(err), map[string]any{"error": err.Error()})
		return nil, false
	}
	return body, true
}

func tenantOf(r *http.Request) *insightfinder.Credential {
	identity := auth.IdentityFrom(r.Context())
	if identity == nil {
		return nil
	}
	return identity.Tenant
}

func identityAddr(identity *auth.ClientIdentity, r *http.Request) string {
	if identity != nil && identity.RemoteAddr != "" {
		return identity.RemoteAddr
	}
	return r.RemoteAddr
}

func identityPrincipal(identity *auth.ClientIdentity) string {
	if identity == nil {
		return ""
	}
	return identity.Principal
}

// httpStatusForRPC maps JSON-RPC error codes onto REST status codes for
// the direct tool routes.
func httpStatusForRPC(code int) int {
	switch code {
	case mcp.CodeParseError, mcp.CodeInvalidRequest, mcp.CodeInvalidParams:
		return http.StatusBadRequest
	case mcp.CodeMethodNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
