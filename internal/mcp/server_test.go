package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v6/log"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/api-aggregator/internal/aggregator"
	"github.com/Laisky/api-aggregator/library/metrics"
	"github.com/Laisky/api-aggregator/library/source"
)

type stubAggregator struct {
	got    aggregator.Query
	result *aggregator.Result
	err    error
}

func (s *stubAggregator) Aggregate(_ context.Context, q aggregator.Query) (*aggregator.Result, error) {
	s.got = q
	return s.result, s.err
}

func newRequest(args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{Params: mcpgo.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServerRequiresCollaborators(t *testing.T) {
	s, err := NewServer(nil, metrics.NewStore(), glog.Shared)
	require.Nil(t, s)
	require.Error(t, err)

	s, err = NewServer(&stubAggregator{}, nil, glog.Shared)
	require.Nil(t, s)
	require.Error(t, err)

	s, err = NewServer(&stubAggregator{}, metrics.NewStore(), glog.Shared)
	require.NoError(t, err)
	require.NotNil(t, s.Handler())
}

func TestHandleAggregatePassesArguments(t *testing.T) {
	date := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	agg := &stubAggregator{result: &aggregator.Result{
		Items:  []source.Item{{Title: "hn", URL: "https://hn", Source: source.HackerNews, Date: &date}},
		Errors: []string{"GitHub: down"},
	}}
	s, err := NewServer(agg, metrics.NewStore(), glog.Shared)
	require.NoError(t, err)

	result, err := s.handleAggregate(context.Background(), newRequest(map[string]any{
		"query":   " golang ",
		"sort_by": "score",
		"order":   "asc",
		"from":    "2025-01-01",
		"sources": []any{"GitHub", "HackerNews"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Equal(t, "golang", agg.got.Text)
	require.Equal(t, "score", agg.got.SortBy)
	require.Equal(t, "asc", agg.got.Order)
	require.Equal(t, []string{"GitHub,HackerNews"}, agg.got.Sources)
	require.NotNil(t, agg.got.From)
	require.Nil(t, agg.got.To)

	payload := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	require.Equal(t, []any{"GitHub: down"}, payload["errors"])
	items, ok := payload["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Equal(t, "HackerNews", items[0].(map[string]any)["source"])
}

func TestHandleAggregateRejectsBadTimestamp(t *testing.T) {
	agg := &stubAggregator{}
	s, err := NewServer(agg, metrics.NewStore(), glog.Shared)
	require.NoError(t, err)

	result, err := s.handleAggregate(context.Background(), newRequest(map[string]any{"to": "soon"}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, resultText(t, result), "to:")
}

func TestHandleAggregateReportsCancellation(t *testing.T) {
	agg := &stubAggregator{err: errors.Wrap(context.Canceled, "aggregate canceled")}
	s, err := NewServer(agg, metrics.NewStore(), glog.Shared)
	require.NoError(t, err)

	result, err := s.handleAggregate(context.Background(), newRequest(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.Contains(t, resultText(t, result), "canceled")
}

func TestHandleSourceStats(t *testing.T) {
	store := metrics.NewStore()
	store.Record(source.Weather, 250)

	s, err := NewServer(&stubAggregator{}, store, glog.Shared)
	require.NoError(t, err)

	result, err := s.handleSourceStats(context.Background(), newRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.JSONEq(t,
		`{"stats":[{"source":"Weather","totalRequests":1,"avgMs":250,"fastCount":0,"averageCount":0,"slowCount":1}]}`,
		resultText(t, result))
}

func TestStringArg(t *testing.T) {
	args := map[string]any{
		"plain":  "  x ",
		"array":  []any{"a", 1, "b"},
		"typed":  []string{"c", "d"},
		"number": 3.0,
	}
	require.Equal(t, "x", stringArg(args, "plain"))
	require.Equal(t, "a,b", stringArg(args, "array"))
	require.Equal(t, "c,d", stringArg(args, "typed"))
	require.Empty(t, stringArg(args, "number"))
	require.Empty(t, stringArg(nil, "missing"))
}
