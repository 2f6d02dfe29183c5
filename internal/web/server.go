// Package web serves the aggregation engine over HTTP.
package web

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Laisky/api-aggregator/internal/aggregator"
	"github.com/Laisky/api-aggregator/library/log"
	"github.com/Laisky/api-aggregator/library/metrics"
)

const (
	defaultRequestTimeout = 30 * time.Second
	requestIDHeader       = "X-Request-Id"
	shutdownTimeout       = 10 * time.Second
)

// Options wires the HTTP surface to its collaborators.
type Options struct {
	Engine *aggregator.Engine
	Store  *metrics.Store
	// MCP is mounted at /mcp when not nil.
	MCP http.Handler
	// RequestTimeout bounds every request. Zero means the default of 30s.
	RequestTimeout time.Duration
	// AllowedOrigins lists host suffixes allowed by CORS, e.g. "example.com"
	// admits example.com and every subdomain. Empty disables CORS headers.
	AllowedOrigins []string
	Logger         logSDK.Logger
}

// NewRouter builds the gin engine serving every route.
func NewRouter(opt Options) (*gin.Engine, error) {
	if opt.Engine == nil {
		return nil, errors.New("aggregation engine is required")
	}
	if opt.Store == nil {
		return nil, errors.New("metrics store is required")
	}
	if opt.Logger == nil {
		opt.Logger = log.Logger.Named("web")
	}
	if opt.RequestTimeout <= 0 {
		opt.RequestTimeout = defaultRequestTimeout
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics.NewCollector(opt.Store)); err != nil {
		return nil, errors.Wrap(err, "register source metrics")
	}
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Wrap(err, "register go metrics")
	}

	router := gin.New()
	// propagate client disconnects through gin.Context
	router.ContextWithFallback = true
	router.Use(
		gin.Recovery(),
		requestID,
		gmw.NewLoggerMiddleware(
			gmw.WithLogger(opt.Logger),
		),
		newCORSMiddleware(opt.AllowedOrigins),
	)

	h := &handlers{
		engine:  opt.Engine,
		store:   opt.Store,
		timeout: opt.RequestTimeout,
		logger:  opt.Logger,
	}

	router.GET("/", h.index)
	router.GET("/health", h.health)
	router.GET("/diag", h.diag)
	router.GET("/aggregate", h.aggregate)
	router.GET("/stats", h.stats)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	if opt.MCP != nil {
		router.Any("/mcp", gin.WrapH(opt.MCP))
	}

	return router, nil
}

// RunServer serves on addr until ctx is done, then shuts down gracefully.
func RunServer(ctx context.Context, addr string, opt Options) error {
	router, err := NewRouter(opt)
	if err != nil {
		return errors.Wrap(err, "build router")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Logger.Info("listening on http", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "http server exit")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}

	log.Logger.Info("http server stopped", zap.String("addr", addr))
	return nil
}

// requestID reuses the caller's request id or assigns a new one.
func requestID(ctx *gin.Context) {
	id := strings.TrimSpace(ctx.GetHeader(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Set(requestIDHeader, id)
	ctx.Header(requestIDHeader, id)
	ctx.Next()
}

func newCORSMiddleware(allowedSuffixes []string) gin.HandlerFunc {
	suffixes := make([]string, 0, len(allowedSuffixes))
	for _, suffix := range allowedSuffixes {
		if trimmed := strings.Trim(strings.ToLower(strings.TrimSpace(suffix)), "."); trimmed != "" {
			suffixes = append(suffixes, trimmed)
		}
	}

	return func(ctx *gin.Context) {
		allowCORS(ctx, suffixes)
	}
}

func allowCORS(ctx *gin.Context, suffixes []string) {
	origin := ctx.Request.Header.Get("Origin")
	allowedOrigin := ""

	if origin != "" {
		parsedOriginURL, err := url.Parse(origin)
		if err == nil {
			host := strings.ToLower(parsedOriginURL.Hostname())
			if host != "" && hostAllowed(host, suffixes) {
				allowedOrigin = origin
			}
		}
	}

	if allowedOrigin != "" {
		ctx.Header("Access-Control-Allow-Origin", allowedOrigin)
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin, X-Requested-With, Mcp-Session-Id, "+requestIDHeader)
		ctx.Header("Access-Control-Max-Age", "86400")
		ctx.Header("Vary", "Origin")

		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
	} else if origin != "" && ctx.Request.Method == http.MethodOptions {
		// deny preflight from disallowed origins
		ctx.AbortWithStatus(http.StatusForbidden)
		return
	}

	ctx.Next()
}

func hostAllowed(host string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
