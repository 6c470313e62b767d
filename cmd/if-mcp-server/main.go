// ABOUTME: Entry point for the InsightFinder MCP server.
// ABOUTME: Serves monitoring tools over stdio or HTTP with SSE streaming.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/insightfinder/mcp-server/internal/config"
	"github.com/insightfinder/mcp-server/internal/mcp"
	"github.com/insightfinder/mcp-server/internal/server"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _        __       _       _      __ _           _
 (_)_ __  / _|     | |     | |    / _(_)_ __   __| | ___ _ __
 | | '_ \| |_ _____| |_____| |__ | |_| | '_ \ / _' |/ _ \ '__|
 | | | | |  _|_____| |_____| '_ \|  _| | | | | (_| |  __/ |
 |_|_| |_|_|       |_|     |_| |_|_| |_|_| |_|\__,_|\___|_|
                                                 mcp-server
`

// getConfigPath returns the path to the server config file.
// Priority: IF_MCP_CONFIG env var > XDG_CONFIG_HOME > ~/.config.
func getConfigPath() string {
	if envPath := os.Getenv("IF_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "insightfinder", "mcp-server.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: if-mcp-server <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the MCP server")
		fmt.Println("  health   Check a running server's health endpoint")
		fmt.Println("  tools    List the tools a running server exposes")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// On stdio the protocol owns stdout, so the banner and all logs go
	// to stderr.
	stdio := cfg.Server.Transport == config.TransportStdio
	logger := setupLogger(cfg.Logging, stdio)

	if !stdio {
		cyan := color.New(color.FgCyan)
		cyan.Print(banner)
		gray := color.New(color.FgHiBlack)
		gray.Printf("    version: %s\n\n", version)

		green := color.New(color.FgGreen)
		green.Print("    ▶ ")
		fmt.Printf("Config:    %s\n", configPath)
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
		green.Print("    ▶ ")
		fmt.Printf("Upstream:  %s\n", cfg.InsightFinder.APIURL)
		if cfg.Auth.Enabled {
			green.Print("    ▶ ")
			fmt.Printf("Auth:      %s\n", cfg.Auth.Method)
		} else {
			yellow := color.New(color.FgYellow)
			yellow.Print("    ▶ ")
			fmt.Printf("Auth:      disabled\n")
		}
		fmt.Println()
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// loadConfig reads the config file, falling back to defaults when no
// file exists at the resolved path.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func runHealth(ctx context.Context) error {
	body, err := getJSON(ctx, "/health")
	if err != nil {
		return err
	}

	var health struct {
		Status      string `json:"status"`
		Uptime      string `json:"uptime"`
		Tools       int    `json:"tools"`
		Connections int    `json:"connections"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("parsing health response: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("● %s\n", health.Status)
	fmt.Printf("  uptime:      %s\n", health.Uptime)
	fmt.Printf("  tools:       %d\n", health.Tools)
	fmt.Printf("  connections: %d\n", health.Connections)
	return nil
}

func runTools(ctx context.Context) error {
	body, err := getJSON(ctx, "/tools")
	if err != nil {
		return err
	}

	var list struct {
		Tools []mcp.ToolInfo `json:"tools"`
		Count int            `json:"count"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return fmt.Errorf("parsing tools response: %w", err)
	}

	bold := color.New(color.Bold)
	for _, t := range list.Tools {
		bold.Println(t.Name)
		desc := t.Description
		if i := strings.IndexByte(desc, '.'); i > 0 {
			desc = desc[:i+1]
		}
		fmt.Printf("  %s\n", desc)
	}
	fmt.Printf("\n%d tools\n", list.Count)
	return nil
}

func getJSON(ctx context.Context, path string) ([]byte, error) {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s%s", cfg.Server.HTTPAddr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.Enabled && cfg.Auth.Method == config.AuthMethodAPIKey && cfg.Auth.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.Auth.APIKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func setupLogger(cfg config.LoggingConfig, stderrOnly bool) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch {
	case stderrOnly:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case cfg.Format == "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = newColorHandler(level)
	}

	return slog.New(handler)
}

// colorHandler renders compact colorized log lines for interactive
// serving. Structured output for log shippers comes from the json
// format instead.
type colorHandler struct {
	mu    sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func newColorHandler(level slog.Level) *colorHandler {
	return &colorHandler{out: os.Stdout, level: level}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return color.New(color.FgRed, color.Bold).Sprint("ERR ")
	case level >= slog.LevelWarn:
		return color.YellowString("WRN ")
	case level >= slog.LevelInfo:
		return color.CyanString("INF ")
	default:
		return color.MagentaString("DBG ")
	}
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	buf.WriteByte(' ')
	buf.WriteString(levelTag(r.Level))
	buf.WriteString(r.Message)
	for _, a := range h.attrs {
		h.appendAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) appendAttr(buf *strings.Builder, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	buf.WriteString(color.HiBlackString(" " + key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &colorHandler{out: h.out, level: h.level, attrs: merged, group: h.group}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &colorHandler{out: h.out, level: h.level, attrs: h.attrs, group: group}
}
