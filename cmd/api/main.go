package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"courtside/internal/http/handlers"
	httpapi "courtside/internal/http/httpapi"
	"courtside/internal/imagefetch"
	"courtside/internal/imagegen"
	"courtside/internal/infra"
	"courtside/internal/providers/chat"
	"courtside/internal/resolver"
)

func main() {
	// Optional .env
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	dialect, err := resolver.ParseDialect(cfg.UpstreamDialect)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid upstream dialect")
	}

	chatLogger := logger.With().Str("component", "chat").Logger()
	client := chat.NewClient(chat.Options{
		APIKey:           cfg.OpenAIAPIKey,
		BaseURL:          cfg.OpenAIBaseURL,
		Model:            cfg.UpstreamModel,
		Logger:           &chatLogger,
		RequestTimeout:   cfg.UpstreamTimeout,
		MaxResponseBytes: cfg.MaxResponseBytes,
	})

	fetchLogger := logger.With().Str("component", "imagefetch").Logger()
	fetcher := imagefetch.New(imagefetch.Options{
		Timeout:           cfg.FetchTimeout,
		AllowPrivateHosts: cfg.ProxyAllowPrivate,
		Logger:            &fetchLogger,
	})

	// Finished images are immutable; the proxy may serve them from memory.
	var proxySource handlers.ImageFetcher = fetcher
	if cfg.ProxyCacheEntries > 0 {
		cached, err := imagefetch.NewCaching(fetcher, cfg.ProxyCacheEntries)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to build proxy cache")
		}
		proxySource = cached
	}

	resolverLogger := logger.With().Str("component", "resolver").Logger()
	pipeline := resolver.NewPipeline(resolver.PipelineOptions{
		Resolver: resolver.New(resolver.Options{
			CDNPrefixes:    cfg.TrustedCDNPrefixes,
			JobStatusHosts: cfg.JobStatusHosts,
		}),
		Fetcher: fetcher,
		Dialect: dialect,
		Inline:  cfg.InlineImages,
		Logger:  &resolverLogger,
	})

	genLogger := logger.With().Str("component", "imagegen").Logger()
	service := imagegen.NewService(imagegen.Options{
		Invoker:  client,
		Pipeline: pipeline,
		Prompts:  imagegen.Prompts{Single: cfg.GenerationPrompt, Pair: cfg.PairPrompt},
		Model:    cfg.UpstreamModel,
		Timeout:  cfg.UpstreamTimeout + cfg.FetchTimeout,
		Logger:   &genLogger,
	})

	app := handlers.NewApp(handlers.Options{
		Generator:       service,
		Fetcher:         proxySource,
		Logger:          &logger,
		MaxRequestBytes: cfg.MaxRequestBytes,
		KeepAlive:       cfg.ChatKeepAlive,
	})

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := infra.NewHTTPServer(cfg, router, logger)

	go func() {
		logger.Info().
			Str("dialect", string(dialect)).
			Str("model", cfg.UpstreamModel).
			Bool("inline", cfg.InlineImages).
			Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// In-flight generations may take up to the upstream timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout+5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
