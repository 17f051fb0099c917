package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/kindred/internal/config"
	dbQdrant "github.com/kailas-cloud/kindred/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/kindred/internal/db/redis"
	"github.com/kailas-cloud/kindred/internal/db/sqldb"
	"github.com/kailas-cloud/kindred/internal/domain"
	"github.com/kailas-cloud/kindred/internal/domain/ranking"
	logpkg "github.com/kailas-cloud/kindred/internal/logger"
	"github.com/kailas-cloud/kindred/internal/metrics"
	"github.com/kailas-cloud/kindred/internal/repository/embcache"
	entityrepo "github.com/kailas-cloud/kindred/internal/repository/entity"
	ledgerrepo "github.com/kailas-cloud/kindred/internal/repository/ledger"
	"github.com/kailas-cloud/kindred/internal/repository/vector"
	"github.com/kailas-cloud/kindred/internal/resilience"
	chiTransport "github.com/kailas-cloud/kindred/internal/transport/chi"
	"github.com/kailas-cloud/kindred/internal/transport/langchain"
	"github.com/kailas-cloud/kindred/internal/transport/llm"
	natsTransport "github.com/kailas-cloud/kindred/internal/transport/nats"
	openaiTransport "github.com/kailas-cloud/kindred/internal/transport/openai"
	"github.com/kailas-cloud/kindred/internal/transport/sparse"
	embeddinguc "github.com/kailas-cloud/kindred/internal/usecase/embedding"
	explainuc "github.com/kailas-cloud/kindred/internal/usecase/explain"
	healthuc "github.com/kailas-cloud/kindred/internal/usecase/health"
	intentuc "github.com/kailas-cloud/kindred/internal/usecase/intent"
	messageuc "github.com/kailas-cloud/kindred/internal/usecase/message"
	profileuc "github.com/kailas-cloud/kindred/internal/usecase/profile"
	searchuc "github.com/kailas-cloud/kindred/internal/usecase/search"
	swipeuc "github.com/kailas-cloud/kindred/internal/usecase/swipe"
	"github.com/kailas-cloud/kindred/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting kindred API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_primary", cfg.Index.Primary),
		zap.String("index_secondary", cfg.Index.Secondary),
		zap.String("reasoning_provider", cfg.Reasoning.Provider),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterRetrievalMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Entity store, embedding cache and the optional Redis index tier share one client
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:      cfg.Database.Addrs,
		Username:   cfg.Database.Username,
		Password:   cfg.Database.Password,
		DB:         cfg.Database.DB,
		ClientName: cfg.Database.ClientName,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database", zap.Strings("addrs", cfg.Database.Addrs))

	index, closeIndex, err := buildIndex(ctx, cfg, store, logger)
	if err != nil {
		logger.Fatal("Failed to build vector index", zap.Error(err))
	}
	defer closeIndex()

	// Ledger
	ledgerDB, err := sqldb.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.DSN)
	if err != nil {
		logger.Fatal("Failed to open ledger database", zap.Error(err))
	}
	defer func() { _ = ledgerDB.Close() }()
	ledger := ledgerrepo.New(ledgerDB)
	if err := ledger.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate ledger", zap.Error(err))
	}

	// Embedders
	denseBase := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.Dense.APIKey,
		BaseURL:    cfg.Embedding.Dense.BaseURL,
		Model:      cfg.Embedding.Dense.Model,
		Dimensions: cfg.Embedding.Dense.Dimensions,
		Provider:   cfg.Embedding.Dense.Provider,
		Logger:     logger,
	})
	sparseBase, sparseModel := buildSparse(cfg)

	cacheTTL := time.Duration(cfg.Embedding.CacheTTL) * time.Second
	docDense := buildDense(denseBase, cfg, cfg.Embedding.Dense.DocumentInstruction, store, cacheTTL, logger)
	queryDense := buildDense(denseBase, cfg, cfg.Embedding.Dense.QueryInstruction, store, cacheTTL, logger)
	var sparseEmb domain.SparseEmbedder = embcache.NewSparse(
		sparseBase, store, sparseModel, cacheTTL, metrics.EmbeddingCacheTotal, logger,
	)
	sparseEmb = embeddinguc.NewInstrumentedSparse(
		sparseEmb, cfg.Embedding.Sparse.Provider, cfg.Embedding.MaxTokens, logger,
	)

	retry := resilience.DefaultConfig()
	retry.RetryMaxAttempts = cfg.Embedding.Retry.MaxAttempts
	retry.RetryInitialBackoff = time.Duration(cfg.Embedding.Retry.InitialBackoffMS) * time.Millisecond
	retry.RetryMaxBackoff = time.Duration(cfg.Embedding.Retry.MaxBackoffMS) * time.Millisecond
	retry.RetryMultiplier = cfg.Embedding.Retry.Multiplier
	retry.BreakerEnabled = false
	embExec := resilience.NewExecutor(retry, logger).OnRetry(func(op string, _ int, _ error) {
		metrics.EmbeddingRetriesTotal.WithLabelValues(strings.TrimPrefix(op, "embed.")).Inc()
	})
	embSvc := embeddinguc.NewService(docDense, sparseEmb, embExec, logger)

	// Write path
	entities := entityrepo.New(store)
	profileSvc := profileuc.New(entities, embSvc, index, logger).WithWorkers(cfg.Reindex.Concurrency)

	// Read path
	ranker, err := searchuc.NewRanker(queryDense, sparseEmb, index, searchuc.RankerConfig{
		Strategy:        ranking.Strategy(cfg.Ranking.Strategy),
		RRFK:            cfg.Ranking.RRFK,
		Alpha:           cfg.Ranking.Alpha,
		OverfetchFactor: cfg.Ranking.OverfetchFactor,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create ranker", zap.Error(err))
	}

	reasoner, err := buildReasoner(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create reasoning provider", zap.Error(err))
	}
	reasoningTimeout := time.Duration(cfg.Reasoning.TimeoutSec) * time.Second

	// Pass nil interfaces (not typed nil pointers) when reasoning is off.
	var (
		explainer      searchuc.Explainer
		intentReasoner intentuc.Reasoner
		answerer       messageuc.Answerer
	)
	if reasoner != nil {
		explainer = explainuc.New(reasoner, entities, explainuc.Config{
			TopK:        cfg.Ranking.ExplainTopK,
			Concurrency: cfg.Reasoning.MaxConcurrency,
			RatePerSec:  cfg.Reasoning.RatePerSec,
			Burst:       cfg.Reasoning.Burst,
			Timeout:     reasoningTimeout,
		}, logger)
		intentReasoner = reasoner
		answerer = reasoner
	}

	searchSvc := searchuc.New(ranker, explainer, searchuc.Limits{
		DefaultLimit: cfg.Ranking.DefaultLimit,
		MaxLimit:     cfg.Ranking.MaxLimit,
		Timeout:      time.Duration(cfg.Ranking.TimeoutSec) * time.Second,
	}, logger)
	classifier := intentuc.NewClassifier(intentReasoner, cfg.Intent.ConfidenceThreshold, reasoningTimeout, logger)
	messageSvc := messageuc.New(classifier, searchSvc, answerer, entities, reasoningTimeout, logger)
	swipeSvc := swipeuc.New(ledger, logger)

	healthSvc := healthuc.New(healthuc.Deps{
		Store:  store,
		Ledger: ledger,
		Dense:  providerChecker{denseBase},
		Sparse: providerChecker{sparseBase},
	})

	server := chiTransport.NewServer(profileSvc, searchSvc, messageSvc, swipeSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		profileSvc.RunStaleLoop(gctx, time.Duration(cfg.Reindex.StaleIntervalSec)*time.Second)
		return nil
	})

	if cfg.NATS.Enabled {
		sub, err := natsTransport.NewSubscriber(natsTransport.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Queue:   cfg.NATS.Queue,
		}, profileSvc, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer sub.Close()
		g.Go(func() error { return sub.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

// providerChecker adapts an embedder to health.ProviderChecker.
// Providers without a health check always report ok.
type providerChecker struct {
	provider any
}

func (p providerChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := p.provider.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("provider health check: %w", err)
		}
	}
	return nil
}

// buildIndex assembles primary -> secondary tiers, each instrumented, behind a breaker.
func buildIndex(
	ctx context.Context, cfg config.Config, store *dbRedis.Store, logger *zap.Logger,
) (domain.VectorIndex, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	tier := func(name string) (domain.VectorIndex, error) {
		switch name {
		case "qdrant":
			client, err := dbQdrant.Connect(ctx, dbQdrant.Config{
				Host:    cfg.Index.Qdrant.Host,
				Port:    cfg.Index.Qdrant.Port,
				UseTLS:  cfg.Index.Qdrant.UseTLS,
				APIKey:  cfg.Index.Qdrant.APIKey,
				Timeout: time.Duration(cfg.Index.Qdrant.TimeoutSec) * time.Second,
			}, logger)
			if err != nil {
				return nil, err
			}
			closers = append(closers, func() { _ = client.Close() })
			idx := vector.NewQdrant(client, cfg.Index.Qdrant.Collection, cfg.Embedding.Dense.Dimensions)
			if err := idx.EnsureCollection(ctx); err != nil {
				return nil, err
			}
			return idx, nil
		case "redis":
			idx := vector.NewRedis(store, cfg.Index.Redis.Name, cfg.Embedding.Dense.Dimensions,
				cfg.Index.Redis.HNSWM, cfg.Index.Redis.HNSWEFConstruct)
			if err := idx.EnsureIndex(ctx); err != nil {
				return nil, err
			}
			return idx, nil
		case "memory":
			return vector.NewMemory(), nil
		default:
			return nil, fmt.Errorf("unknown index tier %q", name)
		}
	}

	primary, err := tier(cfg.Index.Primary)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("primary index %s: %w", cfg.Index.Primary, err)
	}
	primary = vector.NewInstrumented(primary, cfg.Index.Primary,
		metrics.IndexRequestsTotal, metrics.IndexRequestDuration)

	var secondary domain.VectorIndex
	if cfg.Index.Secondary != "none" {
		sec, err := tier(cfg.Index.Secondary)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("secondary index %s: %w", cfg.Index.Secondary, err)
		}
		secondary = vector.NewInstrumented(sec, cfg.Index.Secondary,
			metrics.IndexRequestsTotal, metrics.IndexRequestDuration)
	}

	exec := resilience.NewExecutor(resilience.BreakerOnly(
		cfg.Index.Breaker.MinRequests,
		cfg.Index.Breaker.FailureRatio,
		time.Duration(cfg.Index.Breaker.OpenTimeoutSec)*time.Second,
	), logger)
	return vector.NewTiered(primary, secondary, exec, metrics.IndexFallbackTotal, logger), closeAll, nil
}

// buildDense assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction
func buildDense(
	base domain.Embedder,
	cfg config.Config,
	instruction string,
	store *dbRedis.Store,
	ttl time.Duration,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder = embcache.New(
		base, store, cfg.Embedding.Dense.Model, ttl, metrics.EmbeddingCacheTotal, logger,
	)
	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Embedding.Dense.Provider, cfg.Embedding.Dense.Model, cfg.Embedding.MaxTokens, logger,
	)

	// Instruction prefix is outermost so the cache key includes it
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func buildSparse(cfg config.Config) (domain.SparseEmbedder, string) {
	if cfg.Embedding.Sparse.Provider == "tei" {
		return sparse.NewTEIClient(sparse.TEIConfig{
			URL:      cfg.Embedding.Sparse.URL,
			Model:    "tei",
			MaxTerms: cfg.Embedding.Sparse.MaxTerms,
			Timeout:  time.Duration(cfg.Embedding.Sparse.TimeoutSec) * time.Second,
		}), "tei"
	}
	return sparse.NewLocalEncoder(cfg.Embedding.Sparse.MaxTerms), "local"
}

// buildReasoner returns nil when reasoning is disabled.
func buildReasoner(cfg config.Config, logger *zap.Logger) (*llm.Reasoner, error) {
	const maxReplyTokens = 512

	var completer llm.Completer
	switch cfg.Reasoning.Provider {
	case "openai":
		completer = openaiTransport.NewChatCompleter(&openaiTransport.Config{
			APIKey:   cfg.Reasoning.APIKey,
			BaseURL:  cfg.Reasoning.BaseURL,
			Model:    cfg.Reasoning.Model,
			Provider: "openai",
			Logger:   logger,
		}, maxReplyTokens)
	case "ollama":
		c, err := langchain.NewOllama(langchain.Config{
			ServerURL: cfg.Reasoning.BaseURL,
			Model:     cfg.Reasoning.Model,
			MaxTokens: maxReplyTokens,
		})
		if err != nil {
			return nil, err
		}
		completer = c
	default:
		return nil, nil
	}
	return llm.NewReasoner(completer, 0, logger), nil
}
