package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
)

var webLogger = logger.GetForComponent("web_server")

//go:embed static/*
var staticFiles embed.FS

//go:embed static/index.html
var dashboardHTML []byte

// WebServer serves the vault API and dashboard
type WebServer struct {
	router  *mux.Router
	port    string
	vault   *vault.Vault
	metrics http.Handler
	started time.Time
	server  *http.Server
}

// NewWebServer creates a web server for v. metricsHandler is mounted on /metrics when not nil.
func NewWebServer(port string, v *vault.Vault, metricsHandler http.Handler) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		vault:   v,
		metrics: metricsHandler,
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Static files
	staticHandler := http.FileServer(http.FS(staticFiles))
	ws.router.PathPrefix("/static/").Handler(http.StripPrefix("/", staticHandler))

	// Dashboard routes
	ws.router.HandleFunc("/", ws.handleDashboard).Methods("GET")
	ws.router.HandleFunc("/dashboard", ws.handleDashboard).Methods("GET")

	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics).Methods("GET")
	}

	// Queries
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/status", ws.handleStatus).Methods("GET")
	api.HandleFunc("/assets", ws.handleAssets).Methods("GET")
	api.HandleFunc("/pending/mint", ws.handlePendingMints).Methods("GET")
	api.HandleFunc("/pending/burn", ws.handlePendingBurns).Methods("GET")
	api.HandleFunc("/whitelist", ws.handleGetWhitelist).Methods("GET")
	api.HandleFunc("/settlements", ws.handleSettlements).Methods("GET")
	api.HandleFunc("/settlements/summary", ws.handleSettlementSummary).Methods("GET")
	api.HandleFunc("/config/versions", ws.handleConfigVersions).Methods("GET")

	// Deposits and redemptions
	api.HandleFunc("/deposit/mint", ws.handleDepositForMint).Methods("POST")
	api.HandleFunc("/deposit/burn", ws.handleDepositForBurn).Methods("POST")
	api.HandleFunc("/unlock", ws.handleUnlock).Methods("POST")

	// Vault management, the fixed paths must be registered before {action}
	api.HandleFunc("/vault/config", ws.handleModifyConfig).Methods("POST")
	api.HandleFunc("/vault/operator", ws.handleModifyOperator).Methods("POST")
	api.HandleFunc("/vault/force-burn", ws.handleForceBurn).Methods("POST")
	api.HandleFunc("/vault/{action}", ws.handleVaultAction).Methods("POST")
	api.HandleFunc("/whitelist", ws.handleUpdateWhitelist).Methods("POST")

	// Position management
	api.HandleFunc("/position/create", ws.handleCreatePosition).Methods("POST")
	api.HandleFunc("/position/add", ws.handleAddToPosition).Methods("POST")
	api.HandleFunc("/position/withdraw", ws.handleWithdrawPosition).Methods("POST")
	api.HandleFunc("/swap", ws.handleSwap).Methods("POST")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the root handler, mostly for tests.
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start starts the web server and blocks until it is shut down
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	err := ws.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth returns comprehensive server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Get runtime memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	var problems []string

	invariantsOK := true
	if err := ws.vault.CheckInvariants(); err != nil {
		invariantsOK = false
		problems = append(problems, err.Error())
	}

	// Persistence is optional, a missing database is not a failure
	dbStatus := "disabled"
	if state.DB != nil {
		dbStatus = "healthy"
		if err := state.TestDBConnection(r.Context()); err != nil {
			dbStatus = "unhealthy"
			problems = append(problems, err.Error())
		}
	}

	snap := ws.vault.Snapshot()
	overallStatus := "OK"
	statusCode := http.StatusOK
	if len(problems) > 0 {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":            runtime.Version(),
			"goroutines_count":   runtime.NumGoroutine(),
			"total_alloc_bytes":  memStats.TotalAlloc,
			"heap_objects_count": memStats.HeapObjects,
			"alloc_bytes":        memStats.Alloc,
			"sys_bytes":          memStats.Sys,
			"gc_cycles":          memStats.NumGC,
			"uptime_seconds":     int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "clvault",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"address":       snap.VaultAddress,
			"phase":         ws.vault.Phase(),
			"invariants_ok": invariantsOK,
			"database":      dbStatus,
			"pending_mints": len(snap.PendingMints),
			"pending_burns": len(snap.PendingBurns),
			"last_update":   snap.LastUpdate,
			"problems":      problems,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleDashboard serves the main dashboard HTML
func (ws *WebServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(dashboardHTML)
}

// pageRequest reads start_after and limit from the query string.
func pageRequest(r *http.Request) (types.PageRequest, error) {
	page := types.PageRequest{StartAfter: r.URL.Query().Get("start_after")}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.ParseUint(limitStr, 10, 32)
		if err != nil {
			return page, errors.New("limit must be a non-negative integer")
		}
		page.Limit = uint32(limit)
	}
	return page, nil
}

// errorStatus maps a vault error to the HTTP status it is reported with.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrUnauthorized), errors.Is(err, types.ErrCannotForceExit):
		return http.StatusForbidden
	case errors.Is(err, types.ErrVaultHalted), errors.Is(err, types.ErrVaultClosed),
		errors.Is(err, types.ErrCapReached), errors.Is(err, types.ErrCantUnlockYet),
		errors.Is(err, types.ErrPositionOpen), errors.Is(err, types.ErrNoPositionsOpen),
		errors.Is(err, types.ErrAccountPendingBurn), errors.Is(err, types.ErrMinUptime),
		errors.Is(err, types.ErrCantProcessBurn):
		return http.StatusConflict
	case errors.Is(err, types.ErrStalePrice), errors.Is(err, types.ErrUnknownFeed), errors.Is(err, types.ErrInvalidPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, state.ErrDatabaseNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// writeVaultError reports a rejected vault operation.
func (ws *WebServer) writeVaultError(w http.ResponseWriter, err error) {
	ws.writeErrorResponse(w, errorStatus(err), err.Error())
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
