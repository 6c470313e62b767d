// ABOUTME: Tool listing the systems visible to the request tenant.

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
)

func registerSystems(registry *mcp.Registry, client *insightfinder.Client, logger *slog.Logger) error {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	return registry.Register(&mcp.Tool{
		Name:        "list_all_systems",
		Description: "Lists every system the current account can query, with project counts. Use this to discover valid system_name values for the other tools.",
		InputSchema: schema,
		Handler: func(ctx context.Context, raw json.RawMessage, tenant *insightfinder.Credential, progress mcp.ProgressSink) (any, error) {
			systems, err := client.Systems(ctx, tenant)
			if err != nil {
				return nil, err
			}
			sort.Slice(systems, func(i, j int) bool {
				return systems[i].SystemName < systems[j].SystemName
			})
			return map[string]any{
				"status":  "success",
				"count":   len(systems),
				"systems": systems,
			}, nil
		},
	})
}
