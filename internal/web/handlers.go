package web

import (
	"context"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/Laisky/api-aggregator/internal/aggregator"
	"github.com/Laisky/api-aggregator/library/metrics"
)

// statusClientClosedRequest is the de facto status for a request the client abandoned.
const statusClientClosedRequest = 499

type handlers struct {
	engine  *aggregator.Engine
	store   *metrics.Store
	timeout time.Duration
	logger  logSDK.Logger
}

func (h *handlers) index(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"message": "API aggregator is running. Try /aggregate?q=golang&sources=GitHub,HackerNews&sortBy=score&order=desc",
		"endpoints": []string{
			"/aggregate?q=&sortBy=date|score&order=asc|desc&from=&to=&sources=",
			"/stats",
			"/health",
			"/diag",
			"/metrics",
		},
	})
}

func (h *handlers) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) diag(ctx *gin.Context) {
	ids := h.engine.Sources()
	types := make([]string, 0, len(ids))
	for _, id := range ids {
		types = append(types, id.String())
	}

	ctx.JSON(http.StatusOK, gin.H{
		"count": len(types),
		"types": types,
	})
}

func (h *handlers) stats(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, h.store.Snapshot())
}

// aggregate never rejects malformed parameters: unparseable time bounds are
// ignored and unknown sources or sort values fall back to defaults.
func (h *handlers) aggregate(ctx *gin.Context) {
	logger := h.logFromCtx(ctx).With(zap.String("request_id", ctx.GetString(requestIDHeader)))

	q := aggregator.Query{
		Text:    ctx.Query("q"),
		SortBy:  ctx.Query("sortBy"),
		Order:   ctx.Query("order"),
		Sources: ctx.QueryArray("sources"),
	}
	q.From = parseBoundParam(logger, "from", ctx.Query("from"))
	q.To = parseBoundParam(logger, "to", ctx.Query("to"))

	reqCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.engine.Aggregate(reqCtx, q)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case ctx.Request.Context().Err() != nil:
			status = statusClientClosedRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}

		logger.Warn("aggregate aborted", zap.Error(err), zap.Int("status", status))
		ctx.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, result)
}

func parseBoundParam(logger logSDK.Logger, name, value string) *time.Time {
	ts, err := aggregator.ParseTimeBound(value)
	if err != nil {
		logger.Warn("ignore unparseable time bound",
			zap.String("param", name),
			zap.String("value", value),
			zap.Error(err))
		return nil
	}
	return ts
}

func (h *handlers) logFromCtx(ctx *gin.Context) logSDK.Logger {
	if logger := gmw.GetLogger(ctx); logger != nil {
		return logger.Named("aggregate")
	}
	return h.logger
}
