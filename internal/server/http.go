package server

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/th3noryx/riskengine/internal/ingestion"
	"github.com/th3noryx/riskengine/internal/observability"
	"github.com/th3noryx/riskengine/internal/persistence"
	"github.com/th3noryx/riskengine/internal/projection"
	"github.com/th3noryx/riskengine/internal/query"
	"github.com/th3noryx/riskengine/internal/riskengine"
)

// APIServer is the JSON/HTTP surface over the query service, the gRPC-style
// manual event ingest path, and the risk engine's read/dispatch operations.
// Balance and journal queries are read-only and hit the projection tables;
// instruction submission and the account/market lookups call straight
// into internal/riskengine, the same way the crank runner does.
type APIServer struct {
	httpServer    *http.Server
	addr          string
	healthChecker *observability.HealthChecker
}

// ServerDeps holds all dependencies needed by the API handlers.
type ServerDeps struct {
	DB            *sql.DB
	QueryService  *query.QueryService
	IngestService *ingestion.GRPCIngestService
	SnapshotMgr   *persistence.SnapshotManager
	StartTime     time.Time
	HealthChecker *observability.HealthChecker

	// RiskEngine answers account/market lookups and accepts decoded
	// instructions submitted over HTTP, in addition to the instr.>
	// NATS subject the main ingestion loop feeds it from.
	RiskEngine *riskengine.Service
}

// NewAPIServer builds the HTTP mux and wires every handler against deps.
func NewAPIServer(addr string, deps *ServerDeps) *APIServer {
	mux := http.NewServeMux()

	q := &queryHandlers{qs: deps.QueryService}
	mux.HandleFunc("GET /v1/balances", q.getBalance)
	mux.HandleFunc("GET /v1/journals", q.getJournalHistory)
	mux.HandleFunc("POST /v1/admin/verify-integrity", q.verifyIntegrity)

	ing := &ingestHandlers{svc: deps.IngestService}
	mux.HandleFunc("POST /v1/ingest/deposit", ing.injectDeposit)
	mux.HandleFunc("POST /v1/ingest/withdrawal", ing.injectWithdrawal)

	adm := &adminHandlers{db: deps.DB, snapMgr: deps.SnapshotMgr}
	mux.HandleFunc("GET /v1/admin/event-log-info", adm.getEventLogInfo)
	mux.HandleFunc("POST /v1/admin/rebuild-projections", adm.rebuildProjections)

	risk := &riskHandlers{svc: deps.RiskEngine}
	mux.HandleFunc("GET /v1/risk/markets", risk.listMarkets)
	mux.HandleFunc("GET /v1/risk/accounts", risk.getAccount)
	mux.HandleFunc("POST /v1/risk/instructions", risk.submitInstruction)

	if deps.HealthChecker != nil {
		mux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		mux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}

	return &APIServer{
		httpServer:    &http.Server{Addr: addr, Handler: mux},
		addr:          addr,
		healthChecker: deps.HealthChecker,
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *APIServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		log.Println("INFO: API server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: API server listening on %s", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.UUID{}, fmt.Errorf("%s is required", name)
	}
	return uuid.Parse(raw)
}

// ============================================================================
// Query handlers
// ============================================================================

type queryHandlers struct {
	qs *query.QueryService
}

func (h *queryHandlers) getBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		asset = "USDT"
	}

	bal, err := h.qs.GetBalance(r.Context(), userID, asset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *queryHandlers) getJournalHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var after *int64
	if raw := r.URL.Query().Get("after_sequence"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			after = &n
		}
	}

	entries, err := h.qs.GetJournalHistory(r.Context(), userID, limit, after)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *queryHandlers) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.qs.VerifyIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ============================================================================
// Manual ingest handlers — admin/testing injection, bypassing NATS.
// ============================================================================

type ingestHandlers struct {
	svc *ingestion.GRPCIngestService
}

type ingestRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Asset  string    `json:"asset"`
	Amount int64     `json:"amount"`
}

func (h *ingestHandlers) injectDeposit(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.InjectDeposit(r.Context(), req.UserID, req.Asset, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *ingestHandlers) injectWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.InjectWithdrawal(r.Context(), req.UserID, req.Asset, req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

// ============================================================================
// Admin handlers
// ============================================================================

type adminHandlers struct {
	db      *sql.DB
	snapMgr *persistence.SnapshotManager
}

func (h *adminHandlers) getEventLogInfo(w http.ResponseWriter, r *http.Request) {
	seq, err := h.snapMgr.GetLatestSequence(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"last_sequence": seq})
}

func (h *adminHandlers) rebuildProjections(w http.ResponseWriter, r *http.Request) {
	if err := projection.RebuildProjections(r.Context(), h.db); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": true})
}

// ============================================================================
// Risk engine handlers — account/market reads and instruction submission.
// ============================================================================

type riskHandlers struct {
	svc *riskengine.Service
}

func (h *riskHandlers) listMarkets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"markets": h.svc.MarketIDs()})
}

func (h *riskHandlers) getAccount(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("market_id")
	if marketID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("market_id is required"))
		return
	}
	accountID, err := parseUUIDParam(r, "account_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	account, err := h.svc.Account(marketID, accountID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// instructionRequest mirrors the instr.> NATS headers: the message body is
// the same Tag-plus-LE-args wire format ingestion.DecodeInstruction reads
// off a JetStream message, base64-encoded for JSON transport.
type instructionRequest struct {
	MarketID      string    `json:"market_id"`
	Signer        uuid.UUID `json:"signer"`
	DataBase64    string    `json:"data_base64"`
	OraclePriceE6 int64     `json:"oracle_price_e6"`
	NowSlot       int64     `json:"now_slot"`
}

func (h *riskHandlers) submitInstruction(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.DataBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("data_base64: %w", err))
		return
	}

	instr, err := ingestion.DecodeInstruction(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := riskengine.Dispatch(r.Context(), h.svc.Registry(), req.MarketID, instr, req.Signer, nil, req.OraclePriceE6, req.NowSlot); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}
