// ABOUTME: Tool catalog registration and shared argument handling.
// ABOUTME: Every tool runs against the tenant carried by its request.

package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
)

// Default window when the caller gives no time range.
const defaultLookback = 24 * time.Hour

// List size bounds.
const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RegisterAll registers the complete tool catalog.
func RegisterAll(registry *mcp.Registry, client *insightfinder.Client, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	for _, cat := range categories {
		if err := registerCategory(registry, client, logger, cat); err != nil {
			return err
		}
	}
	if err := registerSystems(registry, client, logger); err != nil {
		return err
	}
	return registerServerTime(registry)
}

// timelineArgs are the shared arguments of every timeline-backed tool.
type timelineArgs struct {
	SystemName    string `json:"system_name"`
	StartTimeMs   int64  `json:"start_time_ms,omitempty"`
	EndTimeMs     int64  `json:"end_time_ms,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	ComponentName string `json:"component_name,omitempty"`
	PatternName   string `json:"pattern_name,omitempty"`
}

func parseTimelineArgs(raw json.RawMessage) (timelineArgs, error) {
	var args timelineArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return args, fmt.Errorf("%w: %v", mcp.ErrInvalidArgs, err)
		}
	}
	if args.SystemName == "" {
		return args, fmt.Errorf("%w: system_name is required", mcp.ErrInvalidArgs)
	}
	if args.StartTimeMs < 0 || args.EndTimeMs < 0 {
		return args, fmt.Errorf("%w: timestamps must be non-negative", mcp.ErrInvalidArgs)
	}
	if args.EndTimeMs != 0 && args.StartTimeMs != 0 && args.EndTimeMs < args.StartTimeMs {
		return args, fmt.Errorf("%w: end_time_ms precedes start_time_ms", mcp.ErrInvalidArgs)
	}

	// Missing bounds default to the last 24 hours.
	now := time.Now()
	if args.EndTimeMs == 0 {
		args.EndTimeMs = now.UnixMilli()
	}
	if args.StartTimeMs == 0 {
		args.StartTimeMs = args.EndTimeMs - defaultLookback.Milliseconds()
	}

	if args.Limit <= 0 {
		args.Limit = defaultListLimit
	}
	if args.Limit > maxListLimit {
		args.Limit = maxListLimit
	}
	return args, nil
}

func formatMs(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func timeRange(args timelineArgs) map[string]string {
	return map[string]string{
		"start": formatMs(args.StartTimeMs),
		"end":   formatMs(args.EndTimeMs),
	}
}
