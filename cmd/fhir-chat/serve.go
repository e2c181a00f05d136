package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/fhir-chat/internal/api"
	"github.com/drfirst/fhir-chat/internal/api/handlers"
	"github.com/drfirst/fhir-chat/internal/api/middleware"
	"github.com/drfirst/fhir-chat/internal/audit"
	"github.com/drfirst/fhir-chat/internal/chat"
	"github.com/drfirst/fhir-chat/internal/config"
	"github.com/drfirst/fhir-chat/internal/gateway"
	"github.com/drfirst/fhir-chat/internal/infrastructure/redpanda"
	"github.com/drfirst/fhir-chat/internal/llm"
	"github.com/drfirst/fhir-chat/internal/memory"
	"github.com/drfirst/fhir-chat/internal/observability/metrics"
	"github.com/drfirst/fhir-chat/internal/observability/tracing"
	"github.com/drfirst/fhir-chat/internal/search"
	"github.com/drfirst/fhir-chat/internal/tools"
	"github.com/drfirst/fhir-chat/pkg/circuitbreaker"
	"github.com/drfirst/fhir-chat/pkg/workerpool"
)

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat and search HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*envFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if err := cfg.ValidateServe(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServer(cfg, logger)
		},
	}
}

// breakers creates the FHIR and LLM breakers, or nils when disabled.
func breakers(cfg *config.Config, mgr *circuitbreaker.Manager) (fhir, model *circuitbreaker.CircuitBreaker, err error) {
	if !cfg.BreakerEnabled {
		return nil, nil, nil
	}

	fhirCfg := circuitbreaker.DefaultConfig(api.FHIRBreaker)
	fhirCfg.IsSuccessful = gateway.IsServerHealthy
	if fhir, err = mgr.GetOrCreate(fhirCfg.Name, fhirCfg); err != nil {
		return nil, nil, err
	}

	llmCfg := circuitbreaker.DefaultConfig("llm")
	llmCfg.IsSuccessful = llm.IsProviderHealthy
	if model, err = mgr.GetOrCreate(llmCfg.Name, llmCfg); err != nil {
		return nil, nil, err
	}
	return fhir, model, nil
}

// auditRecorder always logs entries and also publishes them when Kafka is configured.
func auditRecorder(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*audit.AsyncRecorder, *redpanda.Producer, error) {
	sinks := []audit.Sink{audit.NewLogSink(logger.Named("audit"))}

	var producer *redpanda.Producer
	if cfg.AuditToKafka() {
		var err error
		producer, err = redpanda.NewProducer(redpanda.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("audit producer: %w", err)
		}
		sink, err := audit.NewKafkaSink(producer, cfg.AuditTopic)
		if err != nil {
			producer.Close(context.Background())
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		logger.Info("publishing audit entries",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.AuditTopic))
	}

	rec, err := audit.NewAsyncRecorder(workerpool.DefaultConfig(), sinks, m, logger)
	if err != nil {
		if producer != nil {
			producer.Close(context.Background())
		}
		return nil, nil, err
	}
	return rec, producer, nil
}

func runServer(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	m := metrics.New()
	mgr := circuitbreaker.NewManager(logger, func(name string, _, to circuitbreaker.State) {
		m.SetBreakerState(name, to.Gauge())
	})
	fhirBreaker, llmBreaker, err := breakers(cfg, mgr)
	if err != nil {
		return fmt.Errorf("circuit breakers: %w", err)
	}

	fhirClient, err := gateway.NewClient(gateway.Config{
		BaseURL: cfg.FHIRBaseURL,
		Timeout: cfg.FHIRTimeout,
	}, fhirBreaker, m, logger)
	if err != nil {
		return fmt.Errorf("fhir client: %w", err)
	}

	azure, err := llm.NewAzureClient(cfg.Azure(), llmBreaker, m, logger)
	if err != nil {
		return fmt.Errorf("azure client: %w", err)
	}

	dispatcher, err := chat.NewHTTPDispatcher(chat.HTTPDispatcherConfig{
		BaseURL:       cfg.InternalBaseURL,
		BasicUser:     cfg.MCPBasicUser,
		BasicPassword: cfg.MCPBasicPassword,
		Timeout:       cfg.DispatchTimeout,
	})
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	recorder, producer, err := auditRecorder(cfg, m, logger)
	if err != nil {
		return err
	}

	registry := tools.Default()
	orchestrator, err := chat.NewOrchestrator(chat.Config{
		LLM:        azure,
		Registry:   registry,
		Dispatcher: dispatcher,
		Memory:     memory.NewInMemoryStore(),
		Audit:      recorder,
		Metrics:    m,
		MaxTokens:  cfg.LLMMaxTokens,
	}, logger)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}

	router := api.NewRouter(api.RouterConfig{
		ServiceName: serviceName,
		Version:     version,
		CORS: middleware.CORSConfig{
			Env:              cfg.Env,
			LocalOrigin:      cfg.FrontendURLLocal,
			ProductionOrigin: cfg.FrontendURLProduction,
		},
		APIKeys: middleware.APIKeys{
			Admin:  cfg.AdminAPIKey,
			Doctor: cfg.DoctorAPIKey,
		},
		BasicUser:     cfg.MCPBasicUser,
		BasicPassword: cfg.MCPBasicPassword,
	}, api.Handlers{
		MCP:      handlers.NewMCPHandler(search.NewService(registry, fhirClient, logger), registry, logger),
		Chat:     handlers.NewChatHandler(orchestrator, logger),
		Breakers: mgr,
		Metrics:  m,
	}, logger)

	// The chat hop waits on the search endpoint and the model, so writes get
	// more room than reads.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting fhir-chat service",
			zap.String("port", cfg.Port),
			zap.String("fhir_base_url", cfg.FHIRBaseURL),
			zap.String("version", version))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		logger.Warn("audit recorder did not drain", zap.Error(err))
	}
	if producer != nil {
		if err := producer.Close(shutdownCtx); err != nil {
			logger.Warn("audit producer close error", zap.Error(err))
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}
