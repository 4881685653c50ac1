package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/geocoder89/forumhub/internal/config"
	"github.com/geocoder89/forumhub/internal/db"
	"github.com/geocoder89/forumhub/internal/notifications"
	"github.com/geocoder89/forumhub/internal/observability"
	"github.com/geocoder89/forumhub/internal/queue/worker"
	"github.com/geocoder89/forumhub/internal/repo/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: cfg.ServiceName + "-worker",
		Endpoint:    cfg.OTelEndpoint,
		Env:         cfg.Env,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DBURL,
		MaxConns: cfg.DBMaxConns,
		AppName:  cfg.ServiceName + "-worker",
	})
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	var notifier notifications.Notifier = notifications.NewLogNotifier(log)
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notifications.DialAMQP(cfg.AMQPURL, cfg.AMQPNoticeQueue)
		if err != nil {
			log.Error("amqp connect failed", "err", err)
			os.Exit(1)
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	}
	notifier = notifications.NewProtectedNotifier(notifier, notifications.ProtectedNotifierConfig{
		OnStateChange: func(from, to string) {
			log.Warn("notifier_circuit_changed", "from", from, "to", to)
		},
	})

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		WorkerID:      workerID,
		Concurrency:   cfg.WorkerConcurrency,
		PollInterval:  cfg.WorkerPollInterval,
		LockTTL:       cfg.WorkerLockTTL,
		ShutdownGrace: 10 * time.Second,
	},
		postgres.NewJobsRepo(pool, prom),
		notifier,
		postgres.NewNoticeDeliveriesRepo(pool, prom),
		log,
		prom,
		observability.NewJobMetrics(),
	)

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(pool, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "port", cfg.WorkerHealthPort)
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("worker health server failed", "err", err)
		}
	}()

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	sctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(sctx)

	log.Info("worker shutdown complete")
}
