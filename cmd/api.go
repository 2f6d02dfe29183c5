package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Laisky/api-aggregator/internal/aggregator"
	"github.com/Laisky/api-aggregator/internal/mcp"
	"github.com/Laisky/api-aggregator/internal/web"
	"github.com/Laisky/api-aggregator/library/log"
	"github.com/Laisky/api-aggregator/library/metrics"
	"github.com/Laisky/api-aggregator/library/source"
	"github.com/Laisky/api-aggregator/library/source/github"
	"github.com/Laisky/api-aggregator/library/source/hackernews"
	"github.com/Laisky/api-aggregator/library/source/weather"
	"github.com/Laisky/api-aggregator/library/throttle"

	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	gutils "github.com/Laisky/go-utils/v6"
	gcmd "github.com/Laisky/go-utils/v6/cmd"
	"github.com/Laisky/zap"
	"github.com/spf13/cobra"
)

const upstreamHTTPTimeout = 20 * time.Second

var apiCMD = &cobra.Command{
	Use:   "api",
	Short: "api",
	Long:  `serve the aggregation API over http and mcp`,
	Args:  gcmd.NoExtraArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		if err := initialize(ctx, cmd); err != nil {
			log.Logger.Panic("init", zap.Error(err))
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runAPI(ctx, gconfig.Shared.GetString("listen"), loadServiceSettings())
	},
}

func init() {
	rootCMD.AddCommand(apiCMD)
}

func runAPI(ctx context.Context, addr string, cfg serviceSettings) error {
	logger := log.Logger.Named("api")

	httpcli, err := gutils.NewHTTPClient(
		gutils.WithHTTPClientTimeout(upstreamHTTPTimeout),
	)
	if err != nil {
		return errors.Wrap(err, "new http client")
	}

	sources, err := buildSources(cfg, httpcli)
	if err != nil {
		return errors.Wrap(err, "build sources")
	}

	store := metrics.NewStore()
	engine, err := aggregator.NewEngine(sources, store,
		aggregator.WithLogger(log.Logger.Named("aggregator")),
		aggregator.WithCacheTTL(cfg.CacheAbsoluteTTL, cfg.CacheSlidingTTL),
		aggregator.WithSourceTimeout(cfg.SourceTimeout),
	)
	if err != nil {
		return errors.Wrap(err, "new aggregation engine")
	}
	names := make([]string, 0, len(sources))
	for _, id := range engine.Sources() {
		names = append(names, id.String())
	}
	logger.Info("aggregation engine ready", zap.Strings("sources", names))

	go runCacheSweeper(ctx, engine, cfg.CacheSweepInterval)

	var mcpHandler http.Handler
	if cfg.MCPEnabled {
		mcpServer, err := mcp.NewServer(engine, store, log.Logger.Named("mcp"))
		if err != nil {
			return errors.Wrap(err, "new mcp server")
		}
		mcpHandler = mcpServer.Handler()
	}

	return web.RunServer(ctx, addr, web.Options{
		Engine:         engine,
		Store:          store,
		MCP:            mcpHandler,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log.Logger.Named("web"),
	})
}

// buildSources constructs every enabled adapter in registration order,
// each behind the shared throttle.
func buildSources(cfg serviceSettings, httpcli *http.Client) ([]source.Source, error) {
	limiter, err := throttle.New(cfg.TotalLimit)
	if err != nil {
		return nil, errors.Wrap(err, "new throttle")
	}

	type candidate struct {
		enabled bool
		src     source.Source
		limit   throttle.Limit
	}

	githubOpts := []github.Option{
		github.WithHTTPClient(httpcli),
		github.WithLogger(log.Logger.Named("github")),
		github.WithToken(cfg.GitHub.Token),
		github.WithPerPage(cfg.GitHub.PerPage),
	}
	if cfg.GitHub.Endpoint != "" {
		githubOpts = append(githubOpts, github.WithEndpoint(cfg.GitHub.Endpoint))
	}
	if cfg.GitHub.DefaultQuery != "" {
		githubOpts = append(githubOpts, github.WithDefaultQuery(cfg.GitHub.DefaultQuery))
	}

	weatherOpts := []weather.Option{
		weather.WithHTTPClient(httpcli),
		weather.WithLogger(log.Logger.Named("weather")),
		weather.WithDefaultLocation(cfg.Weather.DefaultLat, cfg.Weather.DefaultLon),
	}
	if cfg.Weather.Endpoint != "" {
		weatherOpts = append(weatherOpts, weather.WithEndpoint(cfg.Weather.Endpoint))
	}

	hnOpts := []hackernews.Option{
		hackernews.WithHTTPClient(httpcli),
		hackernews.WithLogger(log.Logger.Named("hackernews")),
		hackernews.WithHitsPerPage(cfg.HackerNews.PerPage),
	}
	if cfg.HackerNews.Endpoint != "" {
		hnOpts = append(hnOpts, hackernews.WithEndpoint(cfg.HackerNews.Endpoint))
	}
	if cfg.HackerNews.DefaultQuery != "" {
		hnOpts = append(hnOpts, hackernews.WithDefaultQuery(cfg.HackerNews.DefaultQuery))
	}

	candidates := []candidate{
		{cfg.GitHub.Enabled, github.New(githubOpts...), cfg.GitHub.Limit},
		{cfg.Weather.Enabled, weather.New(weatherOpts...), cfg.Weather.Limit},
		{cfg.HackerNews.Enabled, hackernews.New(hnOpts...), cfg.HackerNews.Limit},
	}

	var sources []source.Source
	for _, c := range candidates {
		if !c.enabled {
			continue
		}

		wrapped, err := limiter.Wrap(c.src, c.limit)
		if err != nil {
			return nil, errors.Wrapf(err, "throttle source %s", c.src.ID())
		}
		sources = append(sources, wrapped)
	}

	if len(sources) == 0 {
		return nil, errors.New("every source is disabled")
	}

	return sources, nil
}

// runCacheSweeper evicts expired cache entries until ctx is done.
func runCacheSweeper(ctx context.Context, engine *aggregator.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := engine.SweepCache(); n > 0 {
				log.Logger.Debug("sweep aggregation cache", zap.Int("evicted", n))
			}
		}
	}
}
