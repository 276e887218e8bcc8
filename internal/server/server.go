// Package server exposes the engine over HTTP: JSON operation endpoints,
// journal queries, a websocket event stream, and health, status and
// Prometheus metrics endpoints.
//
// The API carries amounts as decimal strings in base units. Capabilities
// are granted per request from the X-Admin-Key and X-Ledger-Key headers;
// the engine itself enforces them, the server only translates headers into
// a caller.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fundex/internal/account"
	"fundex/internal/amm"
	"fundex/internal/assets"
	"fundex/internal/auth"
	"fundex/internal/engine"
	"fundex/internal/observability"
	"fundex/internal/storage"
)

// Options configures a Server.
type Options struct {
	Addr        string
	Engine      *engine.Engine
	Bank        *assets.Bank
	Journal     storage.EventJournal // nil disables /v1/events
	Broadcaster *Broadcaster         // nil disables /ws

	// AdminKey and LedgerKey gate the admin and ledger capabilities. An
	// empty key leaves its capability ungrantable over HTTP.
	AdminKey  string
	LedgerKey string

	Logger *zap.Logger
}

// Server serves the engine API.
type Server struct {
	engine      *engine.Engine
	bank        *assets.Bank
	journal     storage.EventJournal
	broadcaster *Broadcaster
	adminKey    string
	ledgerKey   string
	log         *zap.Logger
	started     time.Time

	mux    *http.ServeMux
	server *http.Server
}

// NewServer builds a server with all routes registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("server: engine is required")
	}
	if opts.Bank == nil {
		return nil, fmt.Errorf("server: bank is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		engine:      opts.Engine,
		bank:        opts.Bank,
		journal:     opts.Journal,
		broadcaster: opts.Broadcaster,
		adminKey:    opts.AdminKey,
		ledgerKey:   opts.LedgerKey,
		log:         log,
		started:     time.Now(),
		mux:         http.NewServeMux(),
	}
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /v1/liquidity/add", s.handleAddLiquidity)
	s.mux.HandleFunc("POST /v1/liquidity/remove", s.handleRemoveLiquidity)
	s.mux.HandleFunc("POST /v1/swap/a-for-b", s.handleSwapAForB)
	s.mux.HandleFunc("POST /v1/swap/b-for-a", s.handleSwapBForA)
	s.mux.HandleFunc("POST /v1/farm/stake", s.handleStake)
	s.mux.HandleFunc("POST /v1/farm/unstake", s.handleUnstake)
	s.mux.HandleFunc("POST /v1/farm/claim", s.handleClaim)

	s.mux.HandleFunc("GET /v1/quote", s.handleQuote)
	s.mux.HandleFunc("GET /v1/rate", s.handleRate)
	s.mux.HandleFunc("GET /v1/pool", s.handlePool)
	s.mux.HandleFunc("GET /v1/shares", s.handleShares)
	s.mux.HandleFunc("GET /v1/tiers", s.handleTiers)
	s.mux.HandleFunc("GET /v1/tier", s.handleTierOf)
	s.mux.HandleFunc("GET /v1/farm/pools", s.handleFarmPools)
	s.mux.HandleFunc("GET /v1/farm/pending", s.handlePendingRewards)
	s.mux.HandleFunc("GET /v1/balance", s.handleBalance)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)

	s.mux.HandleFunc("POST /v1/admin/tiers", s.handleConfigureTier)
	s.mux.HandleFunc("POST /v1/admin/tier-override", s.handleTierOverride)
	s.mux.HandleFunc("POST /v1/admin/slippage", s.handleSetSlippage)
	s.mux.HandleFunc("POST /v1/admin/farm-pools", s.handleCreateFarmPool)
	s.mux.HandleFunc("POST /v1/admin/farm-pools/active", s.handleSetFarmPoolActive)
	s.mux.HandleFunc("POST /v1/admin/pause", s.handlePause)
	s.mux.HandleFunc("POST /v1/admin/unpause", s.handleUnpause)
	s.mux.HandleFunc("POST /v1/admin/emergency-withdraw", s.handleEmergencyWithdraw)
	s.mux.HandleFunc("POST /v1/admin/mint", s.handleMint)

	s.mux.HandleFunc("POST /v1/ledger/approve", s.handleApprove)
	s.mux.HandleFunc("POST /v1/ledger/update-tier", s.handleUpdateTier)

	if s.broadcaster != nil {
		s.mux.HandleFunc("GET /ws", s.broadcaster.Handler())
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.Handle("GET /metrics", observability.Handler())
}

// Handler returns the route mux, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and disconnects subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.broadcaster != nil {
		s.broadcaster.Close()
	}
	return s.server.Shutdown(ctx)
}

// callerFromRequest builds the operation caller: the account the request
// acts as, plus any capabilities its keys grant.
func (s *Server) callerFromRequest(r *http.Request, acct string) auth.Caller {
	var caps []auth.Capability
	if s.adminKey != "" && r.Header.Get("X-Admin-Key") == s.adminKey {
		caps = append(caps, auth.CapAdmin)
	}
	if s.ledgerKey != "" && r.Header.Get("X-Ledger-Key") == s.ledgerKey {
		caps = append(caps, auth.CapLedger)
	}
	return auth.NewCaller(acct, caps...)
}

// do runs one engine call, records its operation metric and, on failure,
// writes the mapped error response. Returns whether the call succeeded.
func (s *Server) do(w http.ResponseWriter, op string, fn func() error) bool {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordOperation(op, status, time.Since(start).Seconds())
	if err != nil {
		s.writeError(w, err)
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrReentrant) {
		observability.RecordReentrancyRejection()
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// statusFor maps engine and collaborator errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrInvalidTier),
		errors.Is(err, engine.ErrInsufficientTokenAmount),
		errors.Is(err, engine.ErrUnbalancedLiquidityRatios),
		errors.Is(err, engine.ErrSlippageExceeded),
		errors.Is(err, engine.ErrInsufficientStake),
		errors.Is(err, engine.ErrInsufficientRewardBalance),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, amm.ErrInsufficientInputAmount),
		errors.Is(err, amm.ErrInsufficientOutputAmount),
		errors.Is(err, amm.ErrInsufficientLiquidity),
		errors.Is(err, assets.ErrInvalidAmount),
		errors.Is(err, assets.ErrInsufficientFunds),
		errors.Is(err, assets.ErrInsufficientAllowance),
		errors.Is(err, account.ErrInvalidAddress),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, account.ErrNotWallet),
		errors.Is(err, engine.ErrUnauthorizedFlashLoan):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrFarmPoolNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrFarmPoolExists),
		errors.Is(err, engine.ErrFarmPoolInactive),
		errors.Is(err, engine.ErrFarmPoolLimit),
		errors.Is(err, engine.ErrFlashLoanActive),
		errors.Is(err, engine.ErrNotPaused):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEnginePaused):
		return http.StatusLocked
	case errors.Is(err, engine.ErrReentrant):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parseAmount parses a required decimal-string amount in base units.
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: %q is not a decimal integer", field, s)
	}
	return v, nil
}

// parseOptionalAmount parses an amount that may be omitted.
func parseOptionalAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return parseAmount(field, s)
}

func (s *Server) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statusResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Paused        bool   `json:"paused"`
	ReserveA      string `json:"reserve_a"`
	ReserveB      string `json:"reserve_b"`
	TotalShares   string `json:"total_shares"`
	FarmPools     int    `json:"farm_pools"`
	Subscribers   int    `json:"ws_subscribers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.PoolState()
	if err != nil {
		s.writeError(w, err)
		return
	}
	farms, err := s.engine.FarmPools()
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := statusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Paused:        pool.Paused,
		ReserveA:      pool.ReserveA.String(),
		ReserveB:      pool.ReserveB.String(),
		TotalShares:   pool.TotalShares.String(),
		FarmPools:     len(farms),
	}
	if s.broadcaster != nil {
		resp.Subscribers = s.broadcaster.Subscribers()
	}
	s.writeJSON(w, http.StatusOK, resp)
}
