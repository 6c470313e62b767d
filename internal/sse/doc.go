// Package sse manages server-sent-event connections for streaming tool
// output.
//
// Each connection owns a bounded FIFO queue of events. Producers
// enqueue without blocking; a single Serve call per connection drains
// the queue to the client. The Manager enforces a global connection
// cap, refusing new connections rather than evicting live ones, and
// sends periodic heartbeats so idle connections are kept open through
// proxies.
package sse
