// Package mcp implements the Model Context Protocol server core.
//
// # Protocol
//
// Requests are JSON-RPC 2.0. The dispatcher handles:
//
//   - initialize: capabilities and server identity
//   - tools/list: the registered tool catalog
//   - tools/call: invoke one tool with its arguments
//   - notifications/*: accepted and discarded, no response
//
// Errors use the standard codes (-32700 parse, -32600 invalid request,
// -32601 method not found, -32602 invalid params, -32603 internal).
// Client-visible error messages are generic; detail goes to the log
// with the call ID.
//
// # Tools
//
// A Tool pairs a JSON schema with a Handler. Handlers receive the
// request's tenant credential and a ProgressSink; tools marked
// Streaming emit progress stages through the sink when the transport
// can carry them. Each call runs under a timeout and its rendered
// result is truncated to the configured string limit.
//
// # Transports
//
// The dispatcher is transport-neutral. StdioServer runs it over
// newline-delimited JSON-RPC on stdin/stdout; the server package runs
// it over HTTP and SSE.
package mcp
