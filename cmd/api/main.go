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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/geocoder89/forumhub/internal/auth"
	"github.com/geocoder89/forumhub/internal/cache"
	"github.com/geocoder89/forumhub/internal/config"
	"github.com/geocoder89/forumhub/internal/db"
	httpx "github.com/geocoder89/forumhub/internal/http"
	"github.com/geocoder89/forumhub/internal/http/handlers"
	"github.com/geocoder89/forumhub/internal/observability"
	"github.com/geocoder89/forumhub/internal/queue/redisclient"
	"github.com/geocoder89/forumhub/internal/repo/postgres"
	"github.com/geocoder89/forumhub/internal/rpc"
	"github.com/geocoder89/forumhub/internal/security"
	"github.com/geocoder89/forumhub/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		ServiceName: cfg.ServiceName + "-api",
		Endpoint:    cfg.OTelEndpoint,
		Env:         cfg.Env,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(ctx)
	}()

	pool, err := db.NewPool(context.Background(), db.PoolConfig{
		URL:      cfg.DBURL,
		MaxConns: cfg.DBMaxConns,
		AppName:  cfg.ServiceName + "-api",
	})
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		ctx, cancel := config.WithTimeout(30 * time.Second)
		err := db.Migrate(ctx, cfg.DBURL)
		cancel()
		if err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	seedCtx, seedCancel := config.WithTimeout(10 * time.Second)
	err = db.EnsureDeveloperUser(seedCtx, pool, cfg)
	seedCancel()
	if err != nil {
		log.Error("developer seed failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	checks := map[string]handlers.Pinger{"postgres": pool}

	// without redis each instance keeps its own short-lived feed cache
	var feed cache.Store = cache.New(cfg.FeedCacheTTL)
	if cfg.RedisAddr != "" {
		rc, err := redisclient.Connect(context.Background(), redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn("redis unavailable, using in-process feed cache", "addr", cfg.RedisAddr, "err", err)
		} else {
			defer rc.Close()
			feed = cache.NewRedisStore(rc.Raw(), cfg.ServiceName)
			checks["redis"] = rc
		}
	}

	avatars, err := storage.NewAvatars(context.Background(), storage.S3Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
		URLTTL:        cfg.AvatarURLTTL,
	})
	if err != nil {
		log.Error("s3 init failed", "err", err)
		os.Exit(1)
	}
	if avatars == nil {
		log.Info("avatar uploads disabled, S3_BUCKET not set")
	}

	jobsRepo := postgres.NewJobsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool, prom)
	postsRepo := postgres.NewPostsRepo(pool, prom, jobsRepo)
	commentsRepo := postgres.NewCommentsRepo(pool, prom)
	groupsRepo := postgres.NewGroupsRepo(pool, prom, jobsRepo)

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	creds := auth.NewCredentialService(usersRepo, security.NewHasher(cfg.BcryptCost), cfg.DeveloperUsernames)

	dispatcher := rpc.NewDispatcher(tokens, rpc.WithObserver(prom), rpc.WithLogger(log))
	dispatcher.Register(handlers.NewUsersHandler(
		creds,
		tokens,
		usersRepo,
		postsRepo,
		avatars,
		handlers.UsersOptions{
			GenericLoginErrors: cfg.GenericLoginErrors,
			CookieSecure:       cfg.CookieSecure,
			Feed:               feed,
		},
		log,
	).Procedures()...)
	dispatcher.Register(handlers.NewPostsHandler(postsRepo, commentsRepo, groupsRepo, feed, cfg.FeedCacheTTL, log).Procedures()...)
	dispatcher.Register(handlers.NewCommentsHandler(commentsRepo, postsRepo, groupsRepo, log).Procedures()...)
	dispatcher.Register(handlers.NewGroupsHandler(groupsRepo, usersRepo, postsRepo, log).Procedures()...)
	dispatcher.Register(handlers.NewJobsHandler(jobsRepo, log).Procedures()...)

	health := handlers.NewHealthHandler(checks)

	router := httpx.NewRouter(httpx.RouterConfig{
		Env:                    cfg.Env,
		ServiceName:            cfg.ServiceName + "-api",
		AllowedOrigins:         cfg.AllowedOrigins,
		RateLimitAuthPerMinute: cfg.RateLimitAuthPerMinute,
	}, log, dispatcher, health, prom, reg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "procedures", len(dispatcher.Procedures()))
		err := srv.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	health.ShuttingDown()

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")
	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
