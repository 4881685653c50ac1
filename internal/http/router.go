package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/forumhub/internal/http/handlers"
	"github.com/geocoder89/forumhub/internal/http/middlewares"
	"github.com/geocoder89/forumhub/internal/observability"
	"github.com/geocoder89/forumhub/internal/rpc"
)

const maxBodyBytes = 1 << 20

type RouterConfig struct {
	Env                    string
	ServiceName            string
	AllowedOrigins         []string
	RateLimitAuthPerMinute int
}

// NewRouter mounts the procedure dispatcher on /rpc/:procedure next to the
// health and metrics endpoints.
func NewRouter(
	cfg RouterConfig,
	log *slog.Logger,
	dispatcher *rpc.Dispatcher,
	health *handlers.HealthHandler,
	prom *observability.Prom,
	gatherer prometheus.Gatherer,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.AllowedOrigins))
	if prom != nil {
		r.Use(prom.GinHandleMiddleware())
	}

	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	limit := cfg.RateLimitAuthPerMinute
	if limit <= 0 {
		limit = 10
	}
	authLimiter := middlewares.NewRateLimiter(limit, time.Minute)

	rpcGroup := r.Group("/rpc")
	rpcGroup.Use(authLimiter.ForProcedures("user.signIn", "user.signUp"))
	{
		rpcGroup.GET("/:procedure", dispatcher.ServeRPC)
		rpcGroup.POST("/:procedure",
			middlewares.MaxBodyBytes(maxBodyBytes),
			middlewares.RequireJSON(),
			dispatcher.ServeRPC,
		)
	}

	return r
}
