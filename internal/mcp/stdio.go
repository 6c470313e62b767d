// ABOUTME: Stdio transport: newline-delimited JSON-RPC over stdin/stdout.
// ABOUTME: Requests are processed strictly in order; logs go to stderr only.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/validate"
)

// StdioServer reads one JSON-RPC request per line from in and writes
// one response per line to out. The stdio transport has no request
// headers, so every tool call runs as the configured default tenant.
type StdioServer struct {
	dispatcher *Dispatcher
	limits     validate.Limits
	tenant     *insightfinder.Credential
	in         io.Reader
	out        io.Writer
	logger     *slog.Logger
}

// NewStdioServer creates a stdio transport over the given streams.
func NewStdioServer(dispatcher *Dispatcher, limits validate.Limits, tenant *insightfinder.Credential, in io.Reader, out io.Writer, logger *slog.Logger) *StdioServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioServer{
		dispatcher: dispatcher,
		limits:     limits,
		tenant:     tenant,
		in:         in,
		out:        out,
		logger:     logger.With("component", "stdio"),
	}
}

// Run serves requests until EOF or context cancellation. Requests are
// handled one at a time in arrival order.
func (s *StdioServer) Run(ctx context.Context) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(s.in, 64*1024)
		for {
			line, err := readLine(reader, s.limits.MaxPayloadSize)
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
		}
	}()

	writer := bufio.NewWriter(s.out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("reading stdin: %w", err)
		case line, ok := <-lines:
			if !ok {
				s.logger.Info("stdin closed, shutting down")
				return nil
			}
			resp := s.handleLine(ctx, line)
			if resp == nil {
				continue
			}
			if err := writeLine(writer, resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

// readLine reads the next newline-terminated line, retaining at most
// max+1 bytes. Anything beyond that is discarded while still scanning
// for the line end, so a single oversized line is rejected without
// buffering it whole and the next line parses normally.
func readLine(r *bufio.Reader, max int64) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if int64(len(buf)) <= max {
			keep := chunk
			if excess := int64(len(buf)+len(chunk)) - (max + 1); excess > 0 {
				keep = chunk[:int64(len(chunk))-excess]
			}
			buf = append(buf, keep...)
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return buf, err
	}
}

func (s *StdioServer) handleLine(ctx context.Context, line []byte) *Response {
	if int64(len(line)) > s.limits.MaxPayloadSize {
		s.logger.Warn("oversized request", "bytes", len(line))
		return NewError(nil, CodeInvalidRequest, "request payload too large")
	}
	return s.dispatcher.Dispatch(ctx, line, s.tenant, nil)
}

func writeLine(w *bufio.Writer, resp *Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
