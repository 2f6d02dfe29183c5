package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

// logBodyLimit caps the number of response bytes logged for debugging.
const logBodyLimit = 4096

// ContextLogger prefers the request-scoped logger when ctx descends from a
// gin request, and falls back to the given logger otherwise.
// Contexts derived from a *gin.Context still resolve it through gin.ContextKey.
func ContextLogger(ctx context.Context, fallback logSDK.Logger, name string) logSDK.Logger {
	if ctx == nil {
		return fallback
	}

	if ginCtx, ok := gmw.GetGinCtxFromStdCtx(ctx); ok {
		return gmw.GetLogger(ginCtx).Named(name)
	}
	if ginCtx, ok := ctx.Value(gin.ContextKey).(*gin.Context); ok && ginCtx != nil {
		return gmw.GetLogger(ginCtx).Named(name)
	}

	return fallback
}

// GetJSON sends req with client and decodes a 200 response body into out.
// Any other status is reported as an error carrying the truncated body.
func GetJSON(client *http.Client, logger logSDK.Logger, req *http.Request, out any) error {
	if logger != nil {
		logger.Debug("outgoing http request",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
		)
	}

	startAt := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "send request to %s", req.URL.Host)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	truncatedBody, truncated := TruncateForLog(body, logBodyLimit)
	if logger != nil {
		logger.Debug("incoming http response",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncatedBody),
			zap.Bool("body_truncated", truncated),
			zap.Duration("cost", time.Since(startAt)),
		)
	}

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("upstream returned status %d: %s", resp.StatusCode, truncatedBody)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "unmarshal response")
	}

	return nil
}
