// Command docintel is the composition root for the document intelligence
// platform's HTTP/SSE surface (spec §6): it loads configuration, wires the
// storage, embedding, retrieval, and chat collaborators, and starts the
// server. Job submission and the broader REST API (auth, document/template
// CRUD) live outside this module's scope; this binary serves the job
// progress stream, the chat message stream and the health endpoint that
// server/ exposes, plus a Prometheus /metrics endpoint.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/lookatitude/docintel/cache"
	_ "github.com/lookatitude/docintel/cache/providers/inmemory"
	_ "github.com/lookatitude/docintel/cache/providers/redis"
	"github.com/lookatitude/docintel/chat"
	"github.com/lookatitude/docintel/config"
	"github.com/lookatitude/docintel/docmatcher"
	"github.com/lookatitude/docintel/domain"
	"github.com/lookatitude/docintel/embed"
	_ "github.com/lookatitude/docintel/embed/providers/bedrock"
	_ "github.com/lookatitude/docintel/embed/providers/inmemory"
	"github.com/lookatitude/docintel/llmclient"
	_ "github.com/lookatitude/docintel/llmclient/providers/anthropic"
	_ "github.com/lookatitude/docintel/llmclient/providers/bedrock"
	"github.com/lookatitude/docintel/o11y"
	"github.com/lookatitude/docintel/pipeline"
	"github.com/lookatitude/docintel/retrieval"
	"github.com/lookatitude/docintel/server"
	"github.com/lookatitude/docintel/storage/postgres"
	"github.com/lookatitude/docintel/vectorstore/providers/pgvector"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := config.LoadConfig(); err != nil {
		return err
	}
	cfg := config.Cfg

	logger := o11y.NewLogger(o11y.WithJSON())
	ctx := o11y.WithLogger(context.Background(), logger)

	stopTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	store, err := postgres.Open(ctx, postgres.Config{
		DSN:          cfg.Storage.Postgres.DSN,
		MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	health := o11y.NewHealthRegistry()
	health.Register("postgres", o11y.HealthCheckerFunc(func(ctx context.Context) o11y.HealthResult {
		if err := store.HealthCheck(ctx); err != nil {
			return o11y.HealthResult{Status: o11y.Unhealthy, Message: err.Error()}
		}
		return o11y.HealthResult{Status: o11y.Healthy}
	}))

	backingCache, err := cache.New(cfg.Cache.Provider, cache.Config{
		Options: map[string]any{
			"addr":     cfg.Cache.Redis.Addr,
			"password": cfg.Cache.Redis.Password,
			"db":       cfg.Cache.Redis.DB,
		},
	})
	if err != nil {
		return err
	}

	if path := config.ConfigFileUsed(); path != "" {
		watcher := config.NewFileWatcher(path, 5*time.Second)
		go func() {
			err := watcher.Watch(ctx, func(_ any) {
				if err := config.LoadConfig(); err != nil {
					logger.Error(ctx, "config reload failed, keeping previous values", "error", err)
					return
				}
				logger.Info(ctx, "config reloaded", "path", path)
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn(ctx, "config watcher stopped", "error", err)
			}
		}()
		defer watcher.Close()
	}

	rawEmbedder, err := embed.New(cfg.Embeddings.Provider, config.ProviderConfig{
		Options: map[string]any{
			"region":   cfg.Embeddings.Bedrock.Region,
			"model_id": cfg.Embeddings.Bedrock.ModelID,
		},
	})
	if err != nil {
		return err
	}
	embedder := embed.NewCachingEmbedder(rawEmbedder, backingCache, 24*time.Hour)

	vs := pgvector.New(store.DB(), embedder.Dimensions())
	lexical := postgres.NewLexicalSearcher(store.DB())
	semanticCache := cache.NewSemanticCache(backingCache, 1.0)
	hybrid := retrieval.NewHybridRetriever(vs, embedder, lexical, retrieval.WithSemanticCache(semanticCache))

	primaryModel, err := llmclient.New(cfg.LLMs.Primary, config.ProviderConfig{
		APIKey:  cfg.LLMs.Anthropic.APIKey,
		Model:   cfg.LLMs.Anthropic.Model,
		BaseURL: cfg.LLMs.Anthropic.BaseURL,
		Options: map[string]any{"version": cfg.LLMs.Anthropic.Version},
	})
	if err != nil {
		return err
	}
	cheapModel := primaryModel
	if cfg.LLMs.Fallback != "" {
		if m, err := llmclient.New(cfg.LLMs.Fallback, config.ProviderConfig{
			Model:  cfg.LLMs.Bedrock.ModelID,
			APIKey: cfg.LLMs.Bedrock.AccessKey,
			Options: map[string]any{
				"region":     cfg.LLMs.Bedrock.Region,
				"secret_key": cfg.LLMs.Bedrock.SecretKey,
			},
		}); err == nil {
			cheapModel = m
		}
	}

	chatDeps := chat.Deps{
		Sessions:           store.Chat,
		Messages:           store.Chat,
		SummaryModel:       cheapModel,
		UnderstandingModel: cheapModel,
		ChatModel:          primaryModel,
		Retrieval:          chat.RetrievalDeps{Retriever: hybrid},
	}

	tracker := pipeline.NewTracker()

	srv := server.NewServer(server.DefaultConfig(), tracker, store.JobStates, chatDeps, sessionLoader{store: store}, health)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting docintel server", "addr", cfg.Server.Addr)
	return srv.Start(sigCtx)
}

// sessionLoader adapts storage/postgres to server.SessionLoader, keeping
// server/ free of a direct storage/postgres import.
type sessionLoader struct {
	store *postgres.Store
}

func (l sessionLoader) Load(ctx context.Context, sessionID string) (domain.ChatSession, []docmatcher.Document, map[string]string, error) {
	session, err := l.store.Chat.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ChatSession{}, nil, nil, err
	}

	docs := make([]docmatcher.Document, 0, len(session.DocumentIDs))
	filenames := make(map[string]string, len(session.DocumentIDs))
	for _, id := range session.DocumentIDs {
		d, err := l.store.Documents.Get(ctx, id)
		if err != nil {
			continue
		}
		docs = append(docs, docmatcher.Document{ID: d.ID, Filename: d.Filename, DisplayName: d.Filename})
		filenames[d.ID] = d.Filename
	}
	return session, docs, filenames, nil
}

// initTelemetry wires span export and Prometheus metrics collection, then
// starts a metrics HTTP server on cfg.Observability.MetricsAddr. The
// returned func flushes and tears everything down; callers should defer it.
func initTelemetry(ctx context.Context, cfg config.Config) (func(), error) {
	obs := cfg.Observability

	var exporter sdktrace.SpanExporter
	var err error
	switch obs.OTLPEndpoint {
	case "":
		// tracing disabled
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(obs.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
	}
	if err != nil {
		return nil, err
	}

	stopTracer := func() {}
	if exporter != nil {
		var tracerOpts []o11y.TracerOption
		tracerOpts = append(tracerOpts, o11y.WithSpanExporter(exporter))
		if obs.OTLPEndpoint == "stdout" {
			tracerOpts = append(tracerOpts, o11y.WithSyncExport())
		}
		stop, err := o11y.InitTracer(obs.ServiceName, tracerOpts...)
		if err != nil {
			return nil, err
		}
		stopTracer = stop
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter))
	otel.SetMeterProvider(meterProvider)
	if err := o11y.InitMeter(obs.ServiceName); err != nil {
		return nil, err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: obs.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	return func() {
		stopTracer()
		_ = meterProvider.Shutdown(context.Background())
		_ = metricsSrv.Shutdown(context.Background())
	}, nil
}
