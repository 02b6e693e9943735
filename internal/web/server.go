/*

Package web serves the dashboard API: the reconciled position with its
computed P&L analytics, rebalance and decision history, manual operation
triggers, and agent control.

*/

package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/Div1912/Ageis/internal/agent"
	"github.com/Div1912/Ageis/internal/config"
	"github.com/Div1912/Ageis/internal/finance"
	"github.com/Div1912/Ageis/internal/logger"
	"github.com/Div1912/Ageis/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

const decisionLogCap = 50

// SnapshotSource is the reconciler surface the server reads from.
type SnapshotSource interface {
	Current() types.Snapshot
	Refresh(ctx context.Context) types.Snapshot
}

// PriceSource is the oracle surface.
type PriceSource interface {
	Price(ctx context.Context) float64
	LastFetch() time.Time
}

// HistorySource supplies confirmed rebalance transactions.
type HistorySource interface {
	RebalanceHistory(ctx context.Context) []types.RebalanceEvent
}

// Executor is the orchestrator surface for the manual trigger endpoints.
type Executor interface {
	Rebalance(ctx context.Context, newLower, newUpper float64, sender string) (types.RebalanceEvent, error)
	Deposit(ctx context.Context, baseAmount, quoteAmount float64, sender string) (string, error)
	Withdraw(ctx context.Context, baseAmount, quoteAmount float64, sender string) (string, error)
	ClosePosition(ctx context.Context, sender string) (string, error)
}

// DecisionSource reads the persisted decision log.
type DecisionSource interface {
	RecentDecisions(ctx context.Context, limit int) ([]types.DecisionRecord, error)
	Depositors(ctx context.Context) ([]types.Depositor, error)
	Ping(ctx context.Context) error
}

// AgentControl drives the in-process agent runner.
type AgentControl interface {
	Start(ctx context.Context) bool
	Stop() bool
	Status(ctx context.Context) agent.Status
}

// WebServer handles HTTP requests for position monitoring.
type WebServer struct {
	router    *mux.Router
	cfg       *config.Config
	snapshots SnapshotSource
	oracle    PriceSource
	history   HistorySource
	executor  Executor
	decisions DecisionSource
	agent     AgentControl
	owner     string
	startedAt time.Time
}

// NewWebServer creates a new web server instance.
func NewWebServer(cfg *config.Config, snapshots SnapshotSource, oracle PriceSource, history HistorySource, executor Executor, decisions DecisionSource, agentCtl AgentControl, owner string) *WebServer {
	server := &WebServer{
		router:    mux.NewRouter(),
		cfg:       cfg,
		snapshots: snapshots,
		oracle:    oracle,
		history:   history,
		executor:  executor,
		decisions: decisions,
		agent:     agentCtl,
		owner:     owner,
		startedAt: time.Now(),
	}
	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes.
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/position", ws.handleGetPosition).Methods("GET")
	api.HandleFunc("/rebalance-history", ws.handleGetRebalanceHistory).Methods("GET")
	api.HandleFunc("/decision-log", ws.handleGetDecisionLog).Methods("GET")
	api.HandleFunc("/depositors", ws.handleGetDepositors).Methods("GET")
	api.HandleFunc("/trigger-rebalance", ws.handleTriggerRebalance).Methods("POST")
	api.HandleFunc("/deposit", ws.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", ws.handleWithdraw).Methods("POST")
	api.HandleFunc("/close-position", ws.handleClosePosition).Methods("POST")
	api.HandleFunc("/agent/status", ws.handleAgentStatus).Methods("GET")
	api.HandleFunc("/agent/start", ws.handleAgentStart).Methods("POST")
	api.HandleFunc("/agent/stop", ws.handleAgentStop).Methods("POST")

	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Router exposes the handler for tests and embedding.
func (ws *WebServer) Router() http.Handler {
	return ws.router
}

// Start starts the web server.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.cfg.WebPort).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.cfg.WebPort,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// positionAnalytics is the computed financial summary attached to the
// position payload.
type positionAnalytics struct {
	CurrentPrice        float64 `json:"current_price"`
	InRange             bool    `json:"in_range"`
	DaysOpen            float64 `json:"days_open"`
	PositionValue       float64 `json:"position_value"`
	HodlValue           float64 `json:"hodl_value"`
	ImpermanentLossPct  float64 `json:"impermanent_loss_pct"`
	ImpermanentLossUSD  float64 `json:"impermanent_loss_usd"`
	FeesEarned          float64 `json:"fees_earned"`
	SwapLosses          float64 `json:"swap_losses"`
	NetPnL              float64 `json:"net_pnl"`
	NetPnLFormatted     string  `json:"net_pnl_formatted"`
	PositionValueText   string  `json:"position_value_formatted"`
	ImpermanentLossText string  `json:"impermanent_loss_pct_formatted"`
}

// handleGetPosition returns the reconciled snapshot with its analytics.
func (ws *WebServer) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	snap := ws.snapshots.Current()
	price := ws.oracle.Price(r.Context())

	response := map[string]interface{}{
		"position":     snap,
		"has_position": snap.HasPosition(),
		"analytics":    ws.analytics(snap, price),
		"timestamp":    time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) analytics(snap types.Snapshot, price float64) positionAnalytics {
	daysOpen := 0.0
	if snap.OpenTimestamp > 0 {
		daysOpen = time.Since(time.Unix(snap.OpenTimestamp, 0)).Hours() / 24
	}

	positionValue := finance.PositionValue(snap.Capital, snap.EntryPrice, price)
	hodlValue := finance.HodlValue(snap.Capital, snap.EntryPrice, price)
	ilFraction := finance.ImpermanentLossFraction(snap.EntryPrice, price)
	swapLosses := finance.SwapLosses(snap.TotalRebalances, ws.cfg.SwapCostEstimate)
	netPnL := finance.NetPnL(positionValue, hodlValue, swapLosses)

	return positionAnalytics{
		CurrentPrice:        price,
		InRange:             snap.InRange(price),
		DaysOpen:            daysOpen,
		PositionValue:       positionValue,
		HodlValue:           hodlValue,
		ImpermanentLossPct:  ilFraction * 100,
		ImpermanentLossUSD:  finance.ILDollar(snap.Capital, snap.EntryPrice, price),
		FeesEarned:          finance.FeesEarned(snap.Capital, ws.cfg.AnnualFeeRate, daysOpen),
		SwapLosses:          swapLosses,
		NetPnL:              netPnL,
		NetPnLFormatted:     finance.FormatCurrency(netPnL),
		PositionValueText:   finance.FormatCurrency(positionValue),
		ImpermanentLossText: finance.FormatPercent(ilFraction),
	}
}

// handleGetRebalanceHistory returns confirmed rebalances, newest first.
func (ws *WebServer) handleGetRebalanceHistory(w http.ResponseWriter, r *http.Request) {
	events := ws.history.RebalanceHistory(r.Context())
	if events == nil {
		events = []types.RebalanceEvent{}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleGetDecisionLog merges the persisted decision log with the single
// decision the chain retains, deduplicated by timestamp, newest first.
func (ws *WebServer) handleGetDecisionLog(w http.ResponseWriter, r *http.Request) {
	records, err := ws.decisions.RecentDecisions(r.Context(), decisionLogCap)
	if err != nil {
		webLogger.Warn().Err(err).Msg("Decision log read failed")
		records = []types.DecisionRecord{}
	}

	snap := ws.snapshots.Current()
	if snap.LastDecisionTimestamp > 0 {
		seen := false
		for _, rec := range records {
			if rec.Timestamp == snap.LastDecisionTimestamp {
				seen = true
				break
			}
		}
		if !seen {
			records = append(records, types.DecisionRecord{
				Timestamp: snap.LastDecisionTimestamp,
				Action:    types.ActionFromCode(snap.LastDecisionAction),
				Reason:    "recorded on-chain",
			})
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp > records[j].Timestamp })
	if len(records) > decisionLogCap {
		records = records[:decisionLogCap]
	}
	if records == nil {
		records = []types.DecisionRecord{}
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"decisions": records,
		"count":     len(records),
	})
}

func (ws *WebServer) handleGetDepositors(w http.ResponseWriter, r *http.Request) {
	depositors, err := ws.decisions.Depositors(r.Context())
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve depositors")
		return
	}
	if depositors == nil {
		depositors = []types.Depositor{}
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"depositors": depositors,
		"count":      len(depositors),
	})
}

type rebalanceRequest struct {
	NewLower float64 `json:"new_lower"`
	NewUpper float64 `json:"new_upper"`
}

// handleTriggerRebalance manually moves the range. Empty bounds default to a
// fresh range centered on the current price.
func (ws *WebServer) handleTriggerRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	// An empty body is fine; bounds then default below.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.NewLower == 0 && req.NewUpper == 0 {
		price := ws.oracle.Price(r.Context())
		req.NewLower = price * (1 - ws.cfg.RangeWidthLower)
		req.NewUpper = price * (1 + ws.cfg.RangeWidthUpper)
	}

	event, err := ws.executor.Rebalance(r.Context(), req.NewLower, req.NewUpper, ws.owner)
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, event)
}

type transferRequest struct {
	BaseAmount  float64 `json:"base_amount"`
	QuoteAmount float64 `json:"quote_amount"`
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	txID, err := ws.executor.Deposit(r.Context(), req.BaseAmount, req.QuoteAmount, ws.owner)
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]string{"tx_id": txID})
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	txID, err := ws.executor.Withdraw(r.Context(), req.BaseAmount, req.QuoteAmount, ws.owner)
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]string{"tx_id": txID})
}

func (ws *WebServer) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	txID, err := ws.executor.ClosePosition(r.Context(), ws.owner)
	if err != nil {
		ws.writeOperationError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]string{"tx_id": txID})
}

func (ws *WebServer) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSONResponse(w, http.StatusOK, ws.agent.Status(r.Context()))
}

func (ws *WebServer) handleAgentStart(w http.ResponseWriter, r *http.Request) {
	// The loop must outlive this request.
	if !ws.agent.Start(context.Background()) {
		ws.writeErrorResponse(w, http.StatusConflict, "Agent already running")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"started": true})
}

func (ws *WebServer) handleAgentStop(w http.ResponseWriter, r *http.Request) {
	if !ws.agent.Stop() {
		ws.writeErrorResponse(w, http.StatusConflict, "Agent not running")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"stopped": true})
}

// handleHealth returns server health status.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeHealthy := ws.decisions.Ping(r.Context()) == nil
	lastFetch := ws.oracle.LastFetch()

	status := "healthy"
	statusCode := http.StatusOK
	if !storeHealthy {
		status = "degraded"
	}

	response := map[string]interface{}{
		"status":            status,
		"mode":              ws.cfg.Mode,
		"app_id":            ws.cfg.AppID,
		"uptime_seconds":    int64(time.Since(ws.startedAt).Seconds()),
		"store_healthy":     storeHealthy,
		"oracle_last_fetch": lastFetch,
		"timestamp":         time.Now().UTC(),
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// writeOperationError maps operation failures onto HTTP status codes.
func (ws *WebServer) writeOperationError(w http.ResponseWriter, err error) {
	webLogger.Warn().Err(err).Msg("Operation request failed")
	ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
}

func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}
	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware allows the dashboard frontend to call the API from another
// origin.
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriterWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
