package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/txflow-engine/internal/analysis"
	"github.com/rawblock/txflow-engine/internal/heuristics"
	"github.com/rawblock/txflow-engine/internal/scanner"
)

// respondError maps service errors onto HTTP statuses
func (h *APIHandler) respondError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, analysis.ErrInvalidInput), errors.Is(err, scanner.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, analysis.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scanner.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("route", c.FullPath()).Str("address", c.Param("address")).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return v, true
}

// queryFloat parses an optional float query parameter
func queryFloat(c *gin.Context, name string, fallback float64) (float64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name + " parameter"})
		return 0, false
	}
	return v, true
}

// handleClusters groups the wallet's recent history into classified clusters.
// GET /api/v1/wallets/:address/clusters?timeWindowHours=24&minTransactions=3&similarityThreshold=0.7
func (h *APIHandler) handleClusters(c *gin.Context) {
	var opts analysis.ClusterOptions
	var ok bool
	if opts.TimeWindowHours, ok = queryInt(c, "timeWindowHours", 0); !ok {
		return
	}
	if opts.MinTransactions, ok = queryInt(c, "minTransactions", 0); !ok {
		return
	}
	if opts.SimilarityThreshold, ok = queryFloat(c, "similarityThreshold", 0); !ok {
		return
	}

	clusters, err := h.service.ClusterTransactions(c.Request.Context(), c.Param("address"), opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": clusters, "count": len(clusters)})
}

// handleAssociations scores counterparties of the wallet.
// GET /api/v1/wallets/:address/associations?minScore=0.5
func (h *APIHandler) handleAssociations(c *gin.Context) {
	minScore, ok := queryFloat(c, "minScore", -1)
	if !ok {
		return
	}

	scores, err := h.service.GetAssociatedWallets(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if minScore >= 0 {
		scores = heuristics.FilterAssociations(scores, minScore)
	}
	c.JSON(http.StatusOK, gin.H{"data": scores, "count": len(scores)})
}

// handleOrigins traces where the wallet's funds came from.
// GET /api/v1/wallets/:address/origins?depth=3&userId=
func (h *APIHandler) handleOrigins(c *gin.Context) {
	depth, ok := queryInt(c, "depth", h.service.Config().Trace.DefaultDepth)
	if !ok {
		return
	}
	address := c.Param("address")

	sources, err := h.service.TraceFundOrigins(c.Request.Context(), address, c.Query("userId"), depth)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":    sources,
		"summary": heuristics.SummarizeProvenance(address, sources),
		"depth":   h.service.Config().Trace.ClampDepth(depth),
	})
}

// handleFundingSources returns the stored funding sources of a tracked wallet.
// GET /api/v1/wallets/:address/funding-sources
func (h *APIHandler) handleFundingSources(c *gin.Context) {
	sources, err := h.service.FundingSources(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sources, "count": len(sources)})
}

// handleTrackFundingSources aggregates and stores the wallet's direct funders.
// POST /api/v1/wallets/:address/funding-sources?userId=
func (h *APIHandler) handleTrackFundingSources(c *gin.Context) {
	sources, err := h.service.TrackFundingSources(c.Request.Context(), c.Param("address"), c.Query("userId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sources, "count": len(sources)})
}

// handlePatterns detects behavioral tags for the wallet.
// GET /api/v1/wallets/:address/patterns
func (h *APIHandler) handlePatterns(c *gin.Context) {
	patterns, err := h.service.AnalyzeActivityPatterns(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": patterns, "count": len(patterns)})
}

// handleReport runs every analysis for the wallet.
// GET /api/v1/wallets/:address/report?depth=3
func (h *APIHandler) handleReport(c *gin.Context) {
	depth, ok := queryInt(c, "depth", h.service.Config().Trace.DefaultDepth)
	if !ok {
		return
	}
	report, err := h.service.Report(c.Request.Context(), c.Param("address"), c.Query("userId"), depth)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleSyncWallet pulls the wallet's recent transactions from the chain.
// POST /api/v1/wallets/:address/sync?limit=100
func (h *APIHandler) handleSyncWallet(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chain sync not configured"})
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	res, err := h.syncer.Sync(c.Request.Context(), c.Param("address"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleStartSync launches a batch sync in the background.
// POST /api/v1/sync { "addresses": ["..."] }
func (h *APIHandler) handleStartSync(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chain sync not configured"})
		return
	}

	var req struct {
		Addresses []string `json:"addresses" binding:"required,min=1,max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. Expected: {addresses: [...]}"})
		return
	}

	if err := h.syncer.SyncAll(h.opts.Background, req.Addresses); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"status":       "sync_started",
		"totalWallets": len(req.Addresses),
	})
}

// handleSyncProgress returns the progress of the batch sync.
func (h *APIHandler) handleSyncProgress(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Chain sync not configured"})
		return
	}
	c.JSON(http.StatusOK, h.syncer.GetProgress())
}

// handleHealth reports ledger connectivity and stream subscribers.
func (h *APIHandler) handleHealth(c *gin.Context) {
	status, ledgerStatus, code := "ok", "ok", http.StatusOK
	if h.opts.Ping != nil {
		if err := h.opts.Ping(c.Request.Context()); err != nil {
			status, ledgerStatus, code = "degraded", err.Error(), http.StatusServiceUnavailable
		}
	}
	clients := 0
	if h.wsHub != nil {
		clients = h.wsHub.ClientCount()
	}
	c.JSON(code, gin.H{
		"status":        status,
		"ledger":        ledgerStatus,
		"streamClients": clients,
		"chainSync":     h.syncer != nil,
	})
}
