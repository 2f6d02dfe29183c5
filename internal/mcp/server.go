// Package mcp exposes the aggregator as Model Context Protocol tools.
package mcp

import (
	"context"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	mcp "github.com/mark3labs/mcp-go/mcp"
	srv "github.com/mark3labs/mcp-go/server"

	"github.com/Laisky/api-aggregator/internal/aggregator"
	"github.com/Laisky/api-aggregator/library/log"
	"github.com/Laisky/api-aggregator/library/metrics"
)

const (
	serverName    = "api-aggregator"
	serverVersion = "1.0.0"
)

// Aggregator runs one aggregation.
type Aggregator interface {
	Aggregate(ctx context.Context, q aggregator.Query) (*aggregator.Result, error)
}

// StatsProvider returns the current per-source latency counters.
type StatsProvider interface {
	Snapshot() []metrics.Stats
}

// Server wraps the MCP server state for the HTTP transport.
type Server struct {
	handler    http.Handler
	logger     logSDK.Logger
	aggregator Aggregator
	stats      StatsProvider
}

// NewServer constructs a remote MCP server exposing the aggregate and
// source_stats tools under a single streamable HTTP handler.
func NewServer(agg Aggregator, stats StatsProvider, logger logSDK.Logger) (*Server, error) {
	if agg == nil {
		return nil, errors.New("aggregator is required")
	}
	if stats == nil {
		return nil, errors.New("stats provider is required")
	}
	if logger == nil {
		logger = log.Logger
	}

	mcpServer := srv.NewMCPServer(
		serverName,
		serverVersion,
		srv.WithToolCapabilities(true),
		srv.WithInstructions("Use the aggregate tool to search GitHub, Hacker News and current weather in one call. "+
			"Use source_stats to inspect per-source latency."),
		srv.WithRecovery(),
		srv.WithHooks(newMCPHooks(logger.Named("mcp_hooks"))),
	)

	s := &Server{
		handler:    srv.NewStreamableHTTPServer(mcpServer),
		logger:     logger.Named("mcp"),
		aggregator: agg,
		stats:      stats,
	}

	mcpServer.AddTool(aggregateTool(), s.handleAggregate)
	mcpServer.AddTool(sourceStatsTool(), s.handleSourceStats)

	return s, nil
}

// Handler returns the HTTP handler that should be mounted to serve MCP traffic.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func aggregateTool() mcp.Tool {
	return mcp.NewTool(
		"aggregate",
		mcp.WithDescription("Query GitHub repositories, Hacker News stories and current weather concurrently "+
			"and return the merged, filtered and sorted items plus one error per failed source."),
		mcp.WithString("query",
			mcp.Description("Free text for GitHub and Hacker News, or \"<lat>,<lon>\" for weather.")),
		mcp.WithString("sort_by",
			mcp.Description("Sort field. Defaults to date."),
			mcp.Enum("date", "score")),
		mcp.WithString("order",
			mcp.Description("Sort direction. Defaults to desc."),
			mcp.Enum("asc", "desc")),
		mcp.WithString("from",
			mcp.Description("Keep items dated at or after this RFC 3339 timestamp or YYYY-MM-DD date.")),
		mcp.WithString("to",
			mcp.Description("Keep items dated at or before this RFC 3339 timestamp or YYYY-MM-DD date.")),
		mcp.WithString("sources",
			mcp.Description("Comma separated subset of GitHub, Weather, HackerNews. Empty means all.")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func sourceStatsTool() mcp.Tool {
	return mcp.NewTool(
		"source_stats",
		mcp.WithDescription("Return call counts and latency buckets (fast <100ms, average 100-200ms, slow >200ms) per source."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func (s *Server) handleAggregate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := argumentsMap(req.Params.Arguments)

	q := aggregator.Query{
		Text:   stringArg(args, "query"),
		SortBy: stringArg(args, "sort_by"),
		Order:  stringArg(args, "order"),
	}
	if raw := stringArg(args, "sources"); raw != "" {
		q.Sources = []string{raw}
	}

	var err error
	if q.From, err = aggregator.ParseTimeBound(stringArg(args, "from")); err != nil {
		return mcp.NewToolResultError("from: " + err.Error()), nil
	}
	if q.To, err = aggregator.ParseTimeBound(stringArg(args, "to")); err != nil {
		return mcp.NewToolResultError("to: " + err.Error()), nil
	}

	result, err := s.aggregator.Aggregate(ctx, q)
	if err != nil {
		s.logger.Warn("aggregate tool failed", zap.Error(err), zap.String("query", q.Text))
		return mcp.NewToolResultError("aggregate failed: " + err.Error()), nil
	}

	toolResult, err := mcp.NewToolResultJSON(result)
	if err != nil {
		s.logger.Error("encode aggregate result", zap.Error(err))
		return mcp.NewToolResultError("failed to encode aggregate result"), nil
	}
	return toolResult, nil
}

func (s *Server) handleSourceStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	toolResult, err := mcp.NewToolResultJSON(map[string]any{"stats": s.stats.Snapshot()})
	if err != nil {
		s.logger.Error("encode source stats", zap.Error(err))
		return mcp.NewToolResultError("failed to encode source stats"), nil
	}
	return toolResult, nil
}

func argumentsMap(raw any) map[string]any {
	switch value := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return value
	case map[string]string:
		result := make(map[string]any, len(value))
		for key, item := range value {
			result[key] = item
		}
		return result
	default:
		return nil
	}
}

// stringArg reads a string argument. Arrays of strings are comma-joined.
func stringArg(args map[string]any, key string) string {
	switch value := args[key].(type) {
	case string:
		return strings.TrimSpace(value)
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			if text, ok := item.(string); ok {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(value, ",")
	default:
		return ""
	}
}

func newMCPHooks(logger logSDK.Logger) *srv.Hooks {
	hooks := &srv.Hooks{}

	hooks.AddBeforeAny(func(ctx context.Context, id any, method mcp.MCPMethod, message any) {
		logger.Debug("mcp request received", hookLogFields(ctx, id, method)...)
	})

	hooks.AddOnSuccess(func(ctx context.Context, id any, method mcp.MCPMethod, message any, result any) {
		logger.Debug("mcp request succeeded", hookLogFields(ctx, id, method)...)
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		fields := append(hookLogFields(ctx, id, method), zap.Error(err))
		logger.Warn("mcp request failed", fields...)
	})

	hooks.AddOnRegisterSession(func(ctx context.Context, session srv.ClientSession) {
		logger.Info("mcp session registered", zap.String("session_id", session.SessionID()))
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session srv.ClientSession) {
		logger.Info("mcp session unregistered", zap.String("session_id", session.SessionID()))
	})

	return hooks
}

func hookLogFields(ctx context.Context, id any, method mcp.MCPMethod) []zap.Field {
	fields := []zap.Field{
		zap.Any("request_id", id),
		zap.String("method", string(method)),
	}

	if session := srv.ClientSessionFromContext(ctx); session != nil {
		fields = append(fields, zap.String("session_id", session.SessionID()))
	}

	return fields
}
