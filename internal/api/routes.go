package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rawblock/txflow-engine/internal/analysis"
	"github.com/rawblock/txflow-engine/internal/metrics"
	"github.com/rawblock/txflow-engine/internal/scanner"
	"github.com/rs/zerolog"
)

// Options configures the router's middleware and public endpoints
type Options struct {
	AuthToken      string
	CORSOrigins    []string // empty or "*" allows any origin
	RateLimit      float64  // requests per second per IP; 0 disables limiting
	Burst          int
	RequestTimeout time.Duration
	Metrics        *metrics.Recorder
	Gatherer       prometheus.Gatherer // serves /metrics when set
	// Ping reports ledger connectivity on /health
	Ping func(ctx context.Context) error
	// Background outlives requests. It bounds batch syncs and the rate
	// limiter's cleanup goroutine.
	Background context.Context
	Log        zerolog.Logger
}

type APIHandler struct {
	service *analysis.Service
	syncer  *scanner.WalletSyncer
	wsHub   *Hub
	opts    Options
	log     zerolog.Logger
}

func SetupRouter(service *analysis.Service, syncer *scanner.WalletSyncer, wsHub *Hub, opts Options) *gin.Engine {
	if opts.Background == nil {
		opts.Background = context.Background()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(opts.Log, opts.Metrics), corsMiddleware(opts.CORSOrigins))

	handler := &APIHandler{service: service, syncer: syncer, wsHub: wsHub, opts: opts, log: opts.Log}

	r.GET("/health", handler.handleHealth)
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	api.GET("/health", handler.handleHealth)
	if wsHub != nil {
		api.GET("/stream", wsHub.Subscribe)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(opts.AuthToken, opts.Log))
	if opts.RateLimit > 0 {
		protected.Use(NewRateLimiter(opts.Background, opts.RateLimit, max(opts.Burst, 1)).Middleware())
	}
	if opts.RequestTimeout > 0 {
		protected.Use(timeoutMiddleware(opts.RequestTimeout))
	}
	{
		protected.GET("/wallets/:address/clusters", handler.handleClusters)
		protected.GET("/wallets/:address/associations", handler.handleAssociations)
		protected.GET("/wallets/:address/origins", handler.handleOrigins)
		protected.GET("/wallets/:address/funding-sources", handler.handleFundingSources)
		protected.POST("/wallets/:address/funding-sources", handler.handleTrackFundingSources)
		protected.GET("/wallets/:address/patterns", handler.handlePatterns)
		protected.GET("/wallets/:address/report", handler.handleReport)
		protected.POST("/wallets/:address/sync", handler.handleSyncWallet)

		// Batch chain sync
		protected.POST("/sync", handler.handleStartSync)
		protected.GET("/sync/progress", handler.handleSyncProgress)
	}

	return r
}

// corsMiddleware allows the configured dashboard origins
func corsMiddleware(allowed []string) gin.HandlerFunc {
	anyOrigin := len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*")
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if anyOrigin {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, o := range allowed {
				if strings.TrimSpace(o) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// timeoutMiddleware bounds the request context
func timeoutMiddleware(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requestLogger logs and counts every served request by route template
func requestLogger(log zerolog.Logger, rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		rec.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status))

		evt := log.Debug()
		if status >= http.StatusInternalServerError {
			evt = log.Warn()
		}
		evt.Str("method", c.Request.Method).Str("route", route).Int("status", status).
			Dur("elapsed", time.Since(started)).Str("ip", c.ClientIP()).Msg("request")
	}
}
