// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/answering/confidence"
	"qa-autoresponder/internal/answering/pipeline"
	"qa-autoresponder/internal/answering/productcontext"
	"qa-autoresponder/internal/answering/reasoner"
	"qa-autoresponder/internal/answering/topic"
	"qa-autoresponder/internal/answering/validator"
	"qa-autoresponder/internal/answering/voter"
	"qa-autoresponder/internal/common/aws"
	"qa-autoresponder/internal/common/camunda"
	"qa-autoresponder/internal/common/catalog"
	"qa-autoresponder/internal/common/config"
	"qa-autoresponder/internal/common/database"
	"qa-autoresponder/internal/common/decisions"
	commonhttp "qa-autoresponder/internal/common/http"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/metrics"
	"qa-autoresponder/internal/common/observability"
	"qa-autoresponder/internal/common/oracle"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/pkg/registry"

	aq "qa-autoresponder/internal/workers/answering/answer-question"
	ne "qa-autoresponder/internal/workers/communication/notify-escalation"
	pa "qa-autoresponder/internal/workers/marketplace/post-answer"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})
	log.Info("starting worker manager", map[string]interface{}{"environment": cfg.App.Environment})

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("worker manager failed", zap.Error(err))
	}
	log.Info("worker manager stopped gracefully", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.Observability.ServiceName)
	defer obs.Shutdown()

	endpoint := ""
	if cfg.Observability.TracingEnabled {
		endpoint = cfg.Observability.JaegerEndpoint
	}
	tracing, err := observability.NewTracing(cfg.Observability.ServiceName, endpoint)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracing.Shutdown()

	// --- Stores ---
	deps := map[string]database.Pinger{}

	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	deps["postgres"] = pg

	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, log, "Elasticsearch connection")
	if err != nil {
		return err
	}
	deps["elasticsearch"] = esClient

	redisClient := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		return err
	}
	defer redisClient.Close()
	deps["redis"] = redisClient

	// --- Product context chain ---
	curated, err := catalog.NewPostgresSource(pg.DB, cfg.Catalog.CuratedTable)
	if err != nil {
		return err
	}
	sources := []catalog.Source{curated, catalog.NewElasticsearchSource(esClient.Client, cfg.Catalog.RawIndex)}

	marketplaceHTTP := commonhttp.NewClient(config.GetDuration(cfg.Marketplace.Timeout))
	if cfg.Marketplace.APIKey != "" {
		marketplaceHTTP = marketplaceHTTP.WithHeader("Authorization", "Bearer "+cfg.Marketplace.APIKey)
	}
	if cfg.Catalog.RefreshEnabled && cfg.Marketplace.BaseURL != "" {
		sources = append(sources, catalog.NewRefreshSource(cfg.Marketplace.BaseURL, marketplaceHTTP))
	}
	chain := catalog.NewChain(log, sources...)

	// --- Oracle ---
	inner, err := newOracle(ctx, cfg.Oracle)
	if err != nil {
		return err
	}
	o := oracle.NewResilient(inner, oracle.Options{
		Timeout:    config.GetDuration(cfg.Oracle.Timeout),
		MaxRetries: cfg.Oracle.MaxRetries,
		BaseDelay:  config.GetDuration(cfg.Oracle.BaseDelay),
		Observe:    metrics.ObserveOracleCall,
	}, log)

	// --- Pipeline ---
	settings := cfg.Answering.Settings(cfg.Oracle)
	engine, err := newEngine(cfg, settings, chain, o, redisClient, obs, tracing, log)
	if err != nil {
		return err
	}

	poster := pa.NewClient(cfg.Marketplace.BaseURL, marketplaceHTTP)

	awsCfg, err := aws.LoadConfig(ctx, cfg.Notifications.AWS.Region)
	if err != nil {
		return err
	}
	notifyCfg := &ne.Config{
		EmailEnabled: cfg.Notifications.Email.Enabled,
		FromEmail:    cfg.Notifications.Email.FromEmail,
		Recipients:   cfg.Notifications.Email.To,
		SNSEnabled:   cfg.Notifications.SNS.Enabled,
		TopicARN:     cfg.Notifications.SNS.TopicARN,
		Timeout:      workerTimeout(cfg, ne.TaskType, ne.LoadConfig().Timeout),
	}
	notifier := ne.NewNotifier(notifyCfg, aws.NewSESClient(awsCfg), aws.NewSNSClient(awsCfg), log)
	dispatcher := pipeline.NewDispatcher(poster, notifier, notifyCfg.Timeout, log)
	defer dispatcher.Wait()

	schema, err := validation.NewRegistryValidator(registry.Default())
	if err != nil {
		return err
	}

	// --- Zeebe workers ---
	zeebe, err := camunda.Connect(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, log)
	if err != nil {
		return err
	}
	defer zeebe.Close()
	deps["zeebe"] = zeebe

	answerCfg := config.GetWorkerConfig(cfg, aq.TaskType)
	workers := []*camunda.Worker{
		camunda.StartWorker(zeebe.Zeebe(), aq.TaskType, answerCfg,
			aq.NewHandler(&aq.Config{
				Timeout:        workerTimeout(cfg, aq.TaskType, aq.LoadConfig().Timeout),
				InlineDispatch: answerCfg.InlineDispatch,
			}, engine, dispatcher, schema, log).Handle, log),
		camunda.StartWorker(zeebe.Zeebe(), pa.TaskType, config.GetWorkerConfig(cfg, pa.TaskType),
			pa.NewHandler(&pa.Config{
				Timeout: workerTimeout(cfg, pa.TaskType, pa.LoadConfig().Timeout),
			}, poster, schema, log).Handle, log),
		camunda.StartWorker(zeebe.Zeebe(), ne.TaskType, config.GetWorkerConfig(cfg, ne.TaskType),
			ne.NewHandler(notifyCfg, notifier, schema, log).Handle, log),
	}

	// --- Health & Metrics Server ---
	server := newServer(cfg.App.HTTPPort, deps, log)
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"addr": server.Addr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, stopping workers", nil)

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("health/metrics server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func newOracle(ctx context.Context, cfg config.OracleConfig) (oracle.Oracle, error) {
	switch cfg.Provider {
	case "gemini":
		return oracle.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		return oracle.NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	}
}

func newEngine(
	cfg *config.Config,
	settings answering.Settings,
	chain *catalog.Chain,
	o oracle.Oracle,
	redisClient *database.RedisClient,
	obs *observability.Observability,
	tracing *observability.Tracing,
	log logger.Logger,
) (*pipeline.Engine, error) {
	builder := productcontext.NewBuilder(chain, o, settings, log).
		WithCache(redisClient.Client, time.Duration(cfg.Catalog.ContextTTL)*time.Second)

	r := reasoner.New(o, settings, log)

	var strategy voter.Strategy = voter.AgreementStrategy{}
	if settings.Voter.Strategy == answering.StrategyOracleJudge {
		strategy = voter.NewOracleJudgeStrategy(o, settings, log)
	}

	var store decisions.Store
	switch cfg.Decisions.Backend {
	case "memory":
		log.Warn("decisions are kept in memory; duplicates across instances are not detected", nil)
		store = decisions.NewMemoryStore()
	case "redis":
		store = decisions.NewRedisStore(redisClient.Client, cfg.Decisions.KeyPrefix, time.Duration(cfg.Decisions.TTL)*time.Second)
	default:
		return nil, fmt.Errorf("decisions.backend %q is not supported", cfg.Decisions.Backend)
	}

	return pipeline.NewEngine(store, pipeline.Components{
		Classifier: topic.NewDetector(o, settings, log),
		Builder:    builder,
		Reasoner:   r,
		Validator:  validator.New(o, settings, log),
		Aggregator: confidence.NewAggregator(settings),
		Voter:      voter.New(r, strategy, settings, log),
	}, settings, log,
		pipeline.WithTracer(tracing.Tracer()),
		pipeline.WithObservability(obs),
	), nil
}

func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
		return config.GetDuration(w.Timeout)
	}
	return fallback
}

func newServer(port int, deps map[string]database.Pinger, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		failures := database.CheckAll(r.Context(), 3*time.Second, deps)
		if len(failures) > 0 {
			names := database.Names(failures)
			log.Warn("readiness check failed", map[string]interface{}{"failing": names})
			writeStatus(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "not_ready",
				"failing": names,
			})
			return
		}
		writeStatus(w, http.StatusOK, map[string]interface{}{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func writeStatus(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
