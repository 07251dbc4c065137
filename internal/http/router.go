package http

import (
	"log/slog"

	"github.com/geocoder89/fleethub/internal/config"
	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/http/handlers"
	"github.com/geocoder89/fleethub/internal/http/middlewares"
	"github.com/geocoder89/fleethub/internal/loginguard"
	"github.com/geocoder89/fleethub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type UserStore interface {
	handlers.UserReader
	handlers.UserWriter
	handlers.AdminUsersRepo
}

type TokenService interface {
	handlers.TokenIssuer
	middlewares.TokenVerifier
}

// Deps is everything the router needs. Guard, Prom, Gatherer and Checks are
// optional.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Users    UserStore
	Tokens   TokenService
	Guard    loginguard.Guard
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Checks   map[string]handlers.PingFunc
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(d.Config.OTELServiceName))
	r.Use(middlewares.RequestLogger(d.Log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(d.Config.IsProd()))
	r.Use(middlewares.CORSMiddleware(d.Config.CORSAllowedOrigins))

	// health
	h := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	var metrics handlers.AuthMetrics
	if d.Prom != nil {
		metrics = d.Prom
	}

	authHandler := handlers.NewAuthHandler(d.Users, d.Users, d.Tokens, d.Guard, d.Log, metrics)
	adminHandler := handlers.NewAdminHandler(d.Users, d.Log)
	authMW := middlewares.NewAuthMiddleware(d.Tokens)

	maxBody := d.Config.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// public auth routes, throttled per client IP
	rps, burst := d.Config.RateLimitRPS, d.Config.RateLimitBurst
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	limiter := middlewares.NewRateLimiter(rps, burst)
	authRoutes := r.Group("/auth",
		limiter.RateLimiterMiddleware(middlewares.KeyByIP),
		middlewares.MaxBodyBytes(maxBody),
		middlewares.RequireJSON(),
	)
	authRoutes.POST("/signup", authHandler.SignUp)
	authRoutes.POST("/login", authHandler.Login)

	// identity is checked before anything looks at the body, so a caller
	// without a valid token always sees 401/403
	userRPS, userBurst := d.Config.UserRateLimitRPS, d.Config.UserRateLimitBurst
	if userRPS <= 0 {
		userRPS = 10
	}
	if userBurst <= 0 {
		userBurst = 20
	}
	userLimiter := middlewares.NewRateLimiter(userRPS, userBurst)
	protected := r.Group("/",
		authMW.RequireAuth(),
		userLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP),
		middlewares.MaxBodyBytes(maxBody),
		middlewares.RequireJSON(),
	)
	protected.GET("/profile", authHandler.GetProfile)
	protected.PUT("/profile", authHandler.UpdateProfile)

	admin := protected.Group("/admin", middlewares.RequireRole(user.RoleAdmin))
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/users/:id", adminHandler.GetUser)

	return r
}
