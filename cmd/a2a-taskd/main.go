// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Command a2a-taskd serves the A2A task service: JSON-RPC over HTTP and
// WebSocket, server-sent event streams, agent card discovery and webhook
// push notifications.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/go-a2a/a2a-taskd/internal/config"
	"github.com/go-a2a/a2a-taskd/internal/telemetry"
	"github.com/go-a2a/a2a-taskd/server"
	"github.com/go-a2a/a2a-taskd/server/agentcard"
	"github.com/go-a2a/a2a-taskd/server/event"
	"github.com/go-a2a/a2a-taskd/server/flowstore"
	"github.com/go-a2a/a2a-taskd/server/handler"
	"github.com/go-a2a/a2a-taskd/server/push"
	"github.com/go-a2a/a2a-taskd/server/task"
)

const serviceName = "a2a-taskd"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// sweeper is the maintenance surface shared by the task services.
type sweeper interface {
	SweepLocks() int
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()
	metrics := telemetry.DefaultMetrics()

	store, err := flowstore.Open(ctx, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open flow store: %w", err)
	}
	defer store.Close()

	var (
		tasks  task.Service
		events event.Log
		sweep  sweeper
	)
	logOpts := []event.Option{event.WithCapacity(cfg.EventCapacity), event.WithLogger(logger), event.WithMetrics(metrics)}
	if _, inMemory := store.(*flowstore.MemoryStore); inMemory {
		l := event.NewInMemoryLog(logOpts...)
		svc := task.NewInMemoryService(taskOptions(l, logger, metrics)...)
		tasks, events, sweep = svc, l, svc
	} else {
		l := event.NewPersistentLog(store, logOpts...)
		svc, err := task.NewPersistentService(ctx, store, taskOptions(l, logger, metrics)...)
		if err != nil {
			return fmt.Errorf("restore tasks: %w", err)
		}
		tasks, events, sweep = svc, l, svc
	}

	configs := push.NewInMemoryConfigService(
		push.NewWebhookNotifier(cfg.WebhookTimeout),
		push.WithRetryCap(cfg.PushRetryCap),
		push.WithMaxBackoff(cfg.PushMaxBackoff),
		push.WithLogger(logger),
		push.WithObservers(push.NewLoggingObserver(logger), push.NewMetricsObserver(metrics)),
	)
	// Deliveries outlive the signal context so Drain can flush the queue.
	dispatcher := push.NewDispatcher(context.WithoutCancel(ctx), configs, cfg.PushWorkers, logger)
	events.AddListener(dispatcher.Listen)

	cards, err := newCatalog(cfg)
	if err != nil {
		return err
	}

	rpc := handler.NewJSONRPCHandler(tasks, events, configs, cards,
		handler.WithLogger(logger),
		handler.WithMetrics(metrics),
	)
	srv, err := server.NewServer(server.Config{
		Handler: rpc,
		Tasks:   tasks,
		Events:  events,
		Push:    configs,
		Cards:   cards,
	},
		server.WithLogger(logger),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithOriginPatterns(cfg.AllowedOrigins...),
	)
	if err != nil {
		return err
	}

	sched := cron.New(cron.WithLogger(cron.DiscardLogger))
	if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
		locks := sweep.SweepLocks()
		subs := events.CleanupTerminalSubscriptions()
		logger.Debug("maintenance sweep", "locks_removed", locks, "subscriptions_removed", subs)
	}); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule, err)
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr, "store", cfg.StoreDSN, "methods", len(rpc.Methods()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	if derr := dispatcher.Drain(); derr != nil {
		logger.Warn("push dispatcher drain", "error", derr)
	}
	return err
}

func taskOptions(p task.Publisher, logger *slog.Logger, metrics *telemetry.Metrics) []task.Option {
	return []task.Option{
		task.WithPublisher(p),
		task.WithLogger(logger),
		task.WithTracer(telemetry.Tracer()),
		task.WithMetrics(metrics),
	}
}

func newCatalog(cfg config.Config) (*agentcard.DefaultCatalog, error) {
	opts := []agentcard.Option{}
	if cfg.CardSigningKey != "" {
		signer, err := agentcard.NewJWSSigner([]byte(cfg.CardSigningKey))
		if err != nil {
			return nil, fmt.Errorf("card signer: %w", err)
		}
		opts = append(opts, agentcard.WithSigner(signer), agentcard.WithVerifier(signer))
	}
	if cfg.CardSchemaPolicy {
		policy, err := agentcard.NewSchemaPolicyChecker(nil)
		if err != nil {
			return nil, fmt.Errorf("card policy: %w", err)
		}
		opts = append(opts, agentcard.WithPolicyChecker(policy))
	}

	return agentcard.NewCatalog(agentcard.Identity{
		AgentID:     cfg.AgentID,
		Name:        cfg.AgentName,
		Description: cfg.AgentDescription,
		EndpointURL: cfg.PublicURL,
	}, opts...), nil
}
