// ABOUTME: Tool reporting the server's current time, so clients can build
// ABOUTME: correct millisecond time windows for the query tools.

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
)

func registerServerTime(registry *mcp.Registry) error {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	return registry.Register(&mcp.Tool{
		Name:        "get_server_time",
		Description: "Returns the server's current time as a Unix millisecond timestamp and RFC 3339 string. Call this before building time windows for the query tools.",
		InputSchema: schema,
		Handler: func(ctx context.Context, raw json.RawMessage, tenant *insightfinder.Credential, progress mcp.ProgressSink) (any, error) {
			now := time.Now()
			return map[string]any{
				"status":      "success",
				"timestamp":   now.UTC().Format(time.RFC3339),
				"unix_ms":     now.UnixMilli(),
				"unix_s":      now.Unix(),
				"utc_offset":  "+00:00",
				"day_of_week": now.UTC().Weekday().String(),
			}, nil
		},
	})
}
