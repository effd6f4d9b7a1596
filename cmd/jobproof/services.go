package main

import (
	"context"
	"os"

	"github.com/Mindburn-Labs/jobproof/pkg/analyzer"
	"github.com/Mindburn-Labs/jobproof/pkg/artifacts"
	"github.com/Mindburn-Labs/jobproof/pkg/config"
	"github.com/Mindburn-Labs/jobproof/pkg/dlq"
	"github.com/Mindburn-Labs/jobproof/pkg/interpreter"
	"github.com/Mindburn-Labs/jobproof/pkg/observability"
	"github.com/Mindburn-Labs/jobproof/pkg/ocr"
	"github.com/Mindburn-Labs/jobproof/pkg/pipeline"
	"github.com/Mindburn-Labs/jobproof/pkg/ratelimit"
	"github.com/Mindburn-Labs/jobproof/pkg/registry"
	"github.com/Mindburn-Labs/jobproof/pkg/resiliency"
	"github.com/Mindburn-Labs/jobproof/pkg/safelog"
	"github.com/Mindburn-Labs/jobproof/pkg/selector"

	_ "github.com/lib/pq" // Postgres driver for REGISTRY_STORE=postgres
)

const dlqCapacity = 256

// services is everything a CLI command may need, wired once from the
// environment. Close releases store handles.
type services struct {
	cfg      *config.Config
	log      *safelog.Logger
	registry *registry.Registry
	blobs    artifacts.BlobStore
	writer   *artifacts.Writer
	queue    *dlq.Queue
	limiter  *ratelimit.Limiter
	observer *observability.Provider

	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// buildServices wires the registry, artifact store, and observability from
// the environment. Provider adapters are wired separately by buildPipeline
// so registry-only commands work without API keys.
func buildServices(ctx context.Context) (*services, error) {
	cfg := config.Load()
	log := safelog.New("jobproof", safelog.WithLevel(safelog.LevelFromEnv()))

	store, err := registry.NewStoreFromEnv()
	if err != nil {
		return nil, err
	}

	regOpts := []registry.Option{
		registry.WithMode(registry.ResolveMode(ctx, cfg.Environment, cfg.SSOTMode, log)),
		registry.WithLogger(log),
	}
	if cfg.ActivationPolicyPath != "" {
		policy, err := registry.LoadActivationPolicy(cfg.ActivationPolicyPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		regOpts = append(regOpts, registry.WithPolicy(policy))
	}
	reg := registry.New(store, regOpts...)

	blobs, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	otelCfg := observability.DefaultConfig()
	otelCfg.ServiceVersion = Version
	otelCfg.Environment = cfg.Environment
	otelCfg.Insecure = cfg.Environment == "development"
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		otelCfg.OTLPEndpoint = ep
	} else {
		otelCfg.Enabled = false
	}
	observer, err := observability.New(ctx, otelCfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	s := &services{
		cfg:      cfg,
		log:      log,
		registry: reg,
		blobs:    blobs,
		writer:   artifacts.NewWriter(blobs, artifacts.WithWriterLogger(log)),
		queue:    dlq.New(dlqCapacity),
		limiter:  ratelimit.NewFromEnv(),
		observer: observer,
	}
	s.limiter.StartSweep(ctx)
	s.closers = append(s.closers, store.Close, func() error {
		s.limiter.Stop()
		return observer.Shutdown(ctx)
	})
	return s, nil
}

// buildPipeline wires the provider adapters on top of the shared services.
func buildPipeline(s *services, useDefault bool, pageLimit int) (*pipeline.Pipeline, error) {
	breakers := resiliency.NewBreakerSet(resiliency.DefaultBreakerConfig())

	ocrClient, err := ocr.NewClientFromEnv(breakers, s.queue, s.log)
	if err != nil {
		return nil, err
	}

	analyzerClient, err := analyzer.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	an := analyzer.New(
		analyzer.WithClient(analyzerClient),
		analyzer.WithBreaker(breakers.For(resiliency.UpstreamLLM)),
		analyzer.WithDLQ(s.queue),
		analyzer.WithStrictFallback(s.cfg.AnalyzerStrictFallback),
		analyzer.WithLogger(s.log),
	)

	interp, err := interpreter.NewFromEnv(breakers, s.log)
	if err != nil {
		return nil, err
	}

	level, overrides, err := config.ResolveCalibration(s.cfg)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.ServiceBundle{
		Registry:    s.registry,
		OCR:         ocrClient,
		Analyzer:    an,
		Interpreter: interp,
		Selector:    selector.New(),
		Limiter:     s.limiter,
		Artifacts:   s.writer,
		Observer:    s.observer,
		Timeline:    observability.NewPipelineTimeline(),
		Log:         s.log,
	}, pipeline.Options{
		CalibrationLevel:          level,
		CalibrationOverrides:      overrides,
		UseDefaultOnWeakSelection: useDefault,
		EnableInsights:            interp != nil,
		IncludeRawOcr:             s.cfg.EnableRawOCRInsights,
		PageLimit:                 pageLimit,
	}), nil
}
