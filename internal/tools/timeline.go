// ABOUTME: Layered timeline tools: overview, list, and details per event
// ABOUTME: category, shaped so clients can drill down without re-fetching.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/insightfinder/mcp-server/internal/insightfinder"
	"github.com/insightfinder/mcp-server/internal/mcp"
	"github.com/insightfinder/mcp-server/internal/validate"
)

// category describes one flavor of timeline event. Each category gets
// three tools at increasing levels of detail.
type category struct {
	// singular and plural name fragments, e.g. "incident"/"incidents".
	singular  string
	plural    string
	eventType string
	noun      string
}

var categories = []category{
	{singular: "incident", plural: "incidents", eventType: "incident", noun: "incidents"},
	{singular: "metric_anomaly", plural: "metric_anomalies", eventType: "metricAnomaly", noun: "metric anomalies"},
	{singular: "log_anomaly", plural: "log_anomalies", eventType: "logAnomaly", noun: "log anomalies"},
	{singular: "deployment", plural: "deployments", eventType: "deployment", noun: "deployment events"},
	{singular: "trace", plural: "traces", eventType: "trace", noun: "trace events"},
}

func registerCategory(registry *mcp.Registry, client *insightfinder.Client, logger *slog.Logger, cat category) error {
	tools := []*mcp.Tool{
		{
			Name: "get_" + cat.plural + "_overview",
			Description: fmt.Sprintf("High-level overview of %s for a system: counts, unique components and patterns, and the time span covered. "+
				"The most compact view; use it first.", cat.noun),
			InputSchema: timelineSchema(false),
			Handler:     overviewHandler(client, cat),
		},
		{
			Name: "get_" + cat.plural + "_list",
			Description: fmt.Sprintf("Compact list of %s for a system within a time window. "+
				"Returns one row per event without raw data or root cause detail.", cat.noun),
			InputSchema: timelineSchema(true),
			Handler:     listHandler(client, cat),
		},
		{
			Name: "get_" + cat.singular + "_details",
			Description: fmt.Sprintf("Full detail for %s matching the filters, including raw event data and root cause analysis where available. "+
				"Narrow the window or filter by component or pattern to keep results small.", cat.noun),
			InputSchema: timelineSchema(true),
			Streaming:   true,
			Handler:     detailsHandler(client, logger, cat),
		},
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func fetch(ctx context.Context, client *insightfinder.Client, tenant *insightfinder.Credential, cat category, args timelineArgs) ([]insightfinder.TimelineEntry, error) {
	return client.Timelines(ctx, tenant, insightfinder.TimelineQuery{
		SystemName:  args.SystemName,
		StartTimeMs: args.StartTimeMs,
		EndTimeMs:   args.EndTimeMs,
		EventType:   cat.eventType,
	})
}

// overviewHandler reduces the window to counts only.
func overviewHandler(client *insightfinder.Client, cat category) mcp.Handler {
	return func(ctx context.Context, raw json.RawMessage, tenant *insightfinder.Credential, progress mcp.ProgressSink) (any, error) {
		args, err := parseTimelineArgs(raw)
		if err != nil {
			return nil, err
		}
		entries, err := fetch(ctx, client, tenant, cat, args)
		if err != nil {
			return nil, err
		}

		components := map[string]struct{}{}
		instances := map[string]struct{}{}
		patterns := map[string]struct{}{}
		incidents := 0
		var firstMs, lastMs int64
		for _, e := range entries {
			components[e.ComponentName] = struct{}{}
			instances[e.InstanceName] = struct{}{}
			patterns[e.PatternName] = struct{}{}
			if e.IsIncident {
				incidents++
			}
			if firstMs == 0 || e.Timestamp < firstMs {
				firstMs = e.Timestamp
			}
			if e.Timestamp > lastMs {
				lastMs = e.Timestamp
			}
		}

		return map[string]any{
			"status":      "success",
			"system_name": args.SystemName,
			"time_range":  timeRange(args),
			"summary": map[string]any{
				"total_events":      len(entries),
				"true_incidents":    incidents,
				"unique_components": len(components),
				"unique_instances":  len(instances),
				"unique_patterns":   len(patterns),
				"first_event":       formatMs(firstMs),
				"last_event":        formatMs(lastMs),
				"has_incidents":     incidents > 0,
			},
		}, nil
	}
}

// listEntry is the compact per-event row.
type listEntry struct {
	Timestamp     string  `json:"timestamp"`
	TimestampMs   int64   `json:"timestamp_ms"`
	ComponentName string  `json:"component_name"`
	InstanceName  string  `json:"instance_name"`
	ProjectName   string  `json:"project_name"`
	PatternName   string  `json:"pattern_name"`
	IsIncident    bool    `json:"is_incident"`
	AnomalyScore  float64 `json:"anomaly_score"`
}

func listHandler(client *insightfinder.Client, cat category) mcp.Handler {
	return func(ctx context.Context, raw json.RawMessage, tenant *insightfinder.Credential, progress mcp.ProgressSink) (any, error) {
		args, err := parseTimelineArgs(raw)
		if err != nil {
			return nil, err
		}
		entries, err := fetch(ctx, client, tenant, cat, args)
		if err != nil {
			return nil, err
		}
		entries = filterEntries(entries, args)
		sortNewestFirst(entries)

		truncated := false
		if len(entries) > args.Limit {
			entries = entries[:args.Limit]
			truncated = true
		}

		rows := make([]listEntry, len(entries))
		for i, e := range entries {
			rows[i] = listEntry{
				Timestamp:     formatMs(e.Timestamp),
				TimestampMs:   e.Timestamp,
				ComponentName: e.ComponentName,
				InstanceName:  e.InstanceName,
				ProjectName:   e.ProjectName,
				PatternName:   e.PatternName,
				IsIncident:    e.IsIncident,
				AnomalyScore:  e.AnomalyScore,
			}
		}

		return map[string]any{
			"status":      "success",
			"system_name": args.SystemName,
			"time_range":  timeRange(args),
			"count":       len(rows),
			"truncated":   truncated,
			"events":      rows,
		}, nil
	}
}

// detailEntry adds raw data and root cause analysis to the compact row.
type detailEntry struct {
	listEntry
	RawData   string          `json:"raw_data,omitempty"`
	RootCause json.RawMessage `json:"root_cause,omitempty"`
}

func detailsHandler(client *insightfinder.Client, logger *slog.Logger, cat category) mcp.Handler {
	return func(ctx context.Context, raw json.RawMessage, tenant *insightfinder.Credential, progress mcp.ProgressSink) (any, error) {
		args, err := parseTimelineArgs(raw)
		if err != nil {
			return nil, err
		}

		progress(mcp.Progress{Tool: "get_" + cat.singular + "_details", Stage: "querying",
			Message: fmt.Sprintf("fetching %s for %s", cat.noun, args.SystemName)})

		entries, err := fetch(ctx, client, tenant, cat, args)
		if err != nil {
			return nil, err
		}
		entries = filterEntries(entries, args)
		sortNewestFirst(entries)

		truncated := false
		if len(entries) > args.Limit {
			entries = entries[:args.Limit]
			truncated = true
		}

		progress(mcp.Progress{Tool: "get_" + cat.singular + "_details", Stage: "shaping",
			Message: fmt.Sprintf("formatting %d events", len(entries))})

		rows := make([]detailEntry, len(entries))
		for i, e := range entries {
			rows[i] = detailEntry{
				listEntry: listEntry{
					Timestamp:     formatMs(e.Timestamp),
					TimestampMs:   e.Timestamp,
					ComponentName: e.ComponentName,
					InstanceName:  e.InstanceName,
					ProjectName:   e.ProjectName,
					PatternName:   e.PatternName,
					IsIncident:    e.IsIncident,
					AnomalyScore:  e.AnomalyScore,
				},
				RootCause: e.RootCause,
			}
			rows[i].RawData = capRawData(e.RawData, logger)
		}

		return map[string]any{
			"status":      "success",
			"system_name": args.SystemName,
			"time_range":  timeRange(args),
			"count":       len(rows),
			"truncated":   truncated,
			"events":      rows,
		}, nil
	}
}

// capRawData replaces oversized raw segments with a marker instead of
// failing the whole call.
func capRawData(raw string, logger *slog.Logger) string {
	if raw == "" {
		return ""
	}
	if _, err := validate.CapRaw([]byte(raw)); err != nil {
		logger.Debug("omitting oversized raw data", "bytes", len(raw))
		return fmt.Sprintf("[raw data omitted: %d bytes exceeds %d byte limit]", len(raw), validate.MaxRawPayload)
	}
	return raw
}

func filterEntries(entries []insightfinder.TimelineEntry, args timelineArgs) []insightfinder.TimelineEntry {
	if args.ComponentName == "" && args.PatternName == "" {
		return entries
	}
	out := entries[:0]
	for _, e := range entries {
		if args.ComponentName != "" && e.ComponentName != args.ComponentName {
			continue
		}
		if args.PatternName != "" && e.PatternName != args.PatternName {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortNewestFirst(entries []insightfinder.TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})
}

// timelineSchema builds the JSON schema for timeline tools. List-level
// tools additionally accept limit and filter fields.
func timelineSchema(withFilters bool) json.RawMessage {
	base := map[string]any{
		"system_name": map[string]any{
			"type":        "string",
			"description": "Name of the system to query.",
		},
		"start_time_ms": map[string]any{
			"type":        "integer",
			"description": "Start of the time window, Unix milliseconds. Defaults to 24 hours ago.",
		},
		"end_time_ms": map[string]any{
			"type":        "integer",
			"description": "End of the time window, Unix milliseconds. Defaults to now.",
		},
	}
	if withFilters {
		base["limit"] = map[string]any{
			"type":        "integer",
			"description": "Maximum events to return (default 20, max 100).",
		}
		base["component_name"] = map[string]any{
			"type":        "string",
			"description": "Only return events from this component.",
		}
		base["pattern_name"] = map[string]any{
			"type":        "string",
			"description": "Only return events matching this pattern.",
		}
	}
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": base,
		"required":   []string{"system_name"},
	})
	return schema
}
