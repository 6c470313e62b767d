// Package server wires the transports together and owns the process
// lifecycle.
//
// # HTTP API
//
//   - GET  /                    - server descriptor (public)
//   - GET  /health              - liveness and counters (public)
//   - GET  /tools               - tool catalog
//   - POST /tools/{name}        - call one tool, JSON response
//   - POST /tools/{name}/stream - call one tool, SSE response
//   - POST /mcp                 - JSON-RPC 2.0 endpoint
//   - POST /mcp/stream          - JSON-RPC over SSE
//   - GET  /mcp/events          - long-lived SSE event stream
//   - GET  /sse/connections     - live connection snapshot
//
// Protected routes pass through the auth middleware. Streamed calls
// open a managed SSE connection, so every stream counts against the
// connection cap.
//
// # Lifecycle
//
// New builds the dispatcher, limiter, connection manager, and, for the
// http transport, the router and http.Server. Run serves the configured
// transport until the context is canceled, then shuts down with a
// bounded timeout.
package server
