package router

import (
	"time"

	"tarkostock/internal/config"
	"tarkostock/internal/handler"
	"tarkostock/internal/infra"
	"tarkostock/internal/middleware"
	"tarkostock/internal/repository"
	"tarkostock/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the collaborators built by the composition root.
// RDB, Breaker, Queue, Reports and DeadLetters are nil when redis is not configured.
type Deps struct {
	Store       repository.Store
	RDB         *redis.Client
	Breaker     *infra.CircuitBreaker
	Lifecycle   service.LifecycleService
	Ledger      service.LedgerService
	Catalog     service.CatalogService
	Checker     service.ConsistencyService
	Queue       handler.SweepQueue
	Reports     handler.ReportReader
	DeadLetters handler.DeadLetterReader
}

// New wires handlers and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← Store/Redis
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.ActorHeaders())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	if cfg.RateLimit > 0 {
		r.Use(middleware.RateLimiter(d.RDB, cfg.RateLimit, time.Minute))
	}

	lifecycleH := handler.NewLifecycleHandler(d.Lifecycle)
	ledgerH := handler.NewLedgerHandler(d.Ledger)
	catalogH := handler.NewCatalogHandler(d.Catalog)
	consistencyH := handler.NewConsistencyHandler(d.Checker, d.Queue, d.Reports, d.DeadLetters)

	r.GET("/health", handler.Health(d.Store, d.RDB, d.Breaker))

	// Each handler runs policy.Check for its own operation.
	v1 := r.Group("/v1")
	{
		v1.POST("/batches", lifecycleH.Produce)
		v1.GET("/batches/:id", ledgerH.GetBatch)

		stock := v1.Group("/stock")
		{
			stock.GET("", ledgerH.ListStock)
			stock.POST("/cut", lifecycleH.Cut)
			stock.POST("/split-bundle", lifecycleH.SplitBundle)
			stock.POST("/combine-spares", lifecycleH.CombineSpares)
		}

		v1.POST("/dispatches", lifecycleH.Dispatch)
		v1.POST("/scraps", lifecycleH.Scrap)

		txs := v1.Group("/transactions")
		{
			txs.GET("", ledgerH.ListTransactions)
			txs.GET("/:id", ledgerH.GetTransaction)
			txs.POST("/:id/revert", lifecycleH.Revert)
		}

		v1.GET("/pieces/:id/history", ledgerH.PieceHistory)
		v1.GET("/variants", catalogH.ListVariants)

		cons := v1.Group("/consistency")
		{
			cons.GET("", consistencyH.Validate)
			cons.POST("/sweep", consistencyH.Sweep)
			cons.GET("/sweeps/:job_id", consistencyH.Report)
			cons.GET("/dead-letters", consistencyH.DeadLetters)
		}
	}

	return r
}
