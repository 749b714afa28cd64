// Package trade provides the HTTP handlers and business logic for
// recording and reversing ledger trades and for querying positions,
// realized history, marks, settings and reconciliation.
//
// All monetary values use shopspring/decimal, never float64 for money.
package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/contract"
	"github.com/atmx/pnl-engine/internal/engine"
	"github.com/atmx/pnl-engine/internal/exposure"
	"github.com/atmx/pnl-engine/internal/metrics"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/portfolio"
	"github.com/atmx/pnl-engine/internal/store"
)

// DefaultListLimit caps trade and history listings when no limit is given.
const DefaultListLimit = 500

var (
	ErrMissingField  = errors.New("trade: trader, product and contract are required")
	ErrZeroQuantity  = errors.New("trade: quantity must be non-zero")
	ErrNegativePrice = errors.New("trade: price must be non-negative")
	ErrInvalidKind   = errors.New("trade: kind must be regular or adjustment")
	ErrInvalidSince  = errors.New("trade: since must be RFC 3339 or YYYY-MM-DD")
)

// Service handles ledger operations. Uses a mutex for serialized trade
// recording so the limit check and the insert see the same ledger
// (single-instance). For horizontal scaling, replace with distributed
// locking or database-level serialization.
type Service struct {
	store   store.Store
	limiter *exposure.Limiter
	mu      sync.Mutex
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
	now     func() time.Time
}

// NewService creates a new trade service.
// Pass nil for limiter to disable lot limits and nil for hub if WebSocket
// broadcasting is not needed.
func NewService(st store.Store, limiter *exposure.Limiter, hub *WSHub) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		wsHub:   hub,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// --- Request/Response types ---

// TradeRequest is the JSON body for POST /trades. ID and Timestamp are
// assigned by the server when omitted.
type TradeRequest struct {
	ID        string          `json:"id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Trader    string          `json:"trader"`
	Product   string          `json:"product"`
	Contract  string          `json:"contract"`
	Quantity  decimal.Decimal `json:"quantity"` // positive = buy, negative = sell
	Price     decimal.Decimal `json:"price"`
	Kind      model.TradeKind `json:"kind,omitempty"` // "regular" (default) or "adjustment"
}

// BatchRequest is the JSON body for POST /trades/batch. Both a bare array
// and {"trades": [...]} are accepted.
type BatchRequest struct {
	Trades []TradeRequest `json:"trades"`
}

func (b *BatchRequest) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &b.Trades)
	}
	type wrapped BatchRequest
	return json.Unmarshal(data, (*wrapped)(b))
}

// BatchResponse is the JSON body returned from POST /trades/batch.
type BatchResponse struct {
	Trades []model.Trade `json:"trades"`
	Count  int           `json:"count"`
}

// TradeListResponse is the JSON body returned from GET /trades.
type TradeListResponse struct {
	Trades []model.Trade `json:"trades"`
	Count  int           `json:"count"`
}

// toTrade validates a request and builds the ledger entry it describes.
func (s *Service) toTrade(req TradeRequest) (model.Trade, error) {
	if req.Trader == "" || req.Product == "" || req.Contract == "" {
		return model.Trade{}, ErrMissingField
	}
	if err := contract.ValidateContract(req.Contract); err != nil {
		return model.Trade{}, err
	}
	if req.Quantity.IsZero() {
		return model.Trade{}, ErrZeroQuantity
	}
	if req.Price.IsNegative() {
		return model.Trade{}, ErrNegativePrice
	}

	kind := req.Kind
	switch kind {
	case "":
		kind = model.KindRegular
	case model.KindRegular, model.KindAdjustment:
	default:
		return model.Trade{}, ErrInvalidKind
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}

	return model.Trade{
		ID:        id,
		Timestamp: ts.UTC(),
		Trader:    req.Trader,
		Product:   req.Product,
		Contract:  req.Contract,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    model.StatusActive,
		Kind:      kind,
	}, nil
}

// --- HTTP Handlers ---

// CreateTrade handles POST /api/v1/trades
func (s *Service) CreateTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := s.toTrade(req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Serialize recording.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLimits(ctx, []model.Trade{t}); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.InsertTrade(ctx, &t); err != nil {
		writeStoreError(w, err)
		return
	}
	s.recorded(t)

	writeJSON(w, http.StatusCreated, t)
}

// CreateTrades handles POST /api/v1/trades/batch
// The batch is recorded atomically: one invalid trade rejects all of them.
func (s *Service) CreateTrades(w http.ResponseWriter, r *http.Request) {
	var batch BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	reqs := batch.Trades
	if len(reqs) == 0 {
		writeError(w, "batch is empty", http.StatusBadRequest)
		return
	}

	trades := make([]model.Trade, 0, len(reqs))
	for i, req := range reqs {
		t, err := s.toTrade(req)
		if err != nil {
			writeError(w, fmt.Sprintf("trade %d: %s", i, err), http.StatusBadRequest)
			return
		}
		trades = append(trades, t)
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLimits(ctx, trades); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.store.InsertTrades(ctx, trades); err != nil {
		writeStoreError(w, err)
		return
	}
	for _, t := range trades {
		s.recorded(t)
	}

	writeJSON(w, http.StatusCreated, BatchResponse{Trades: trades, Count: len(trades)})
}

// ListTrades handles GET /api/v1/trades
// Optional query parameters: status, since, limit. Newest first.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	since, err := parseSince(q.Get("since"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := model.TradeStatus(q.Get("status"))
	switch status {
	case "", model.StatusActive, model.StatusReversed:
	default:
		writeError(w, "status must be active or reversed", http.StatusBadRequest)
		return
	}

	trades, err := s.store.ListTrades(r.Context(), store.TradeFilter{
		Status:      status,
		Since:       since,
		Limit:       limit,
		NewestFirst: true,
	})
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	writeJSON(w, http.StatusOK, TradeListResponse{Trades: trades, Count: len(trades)})
}

// ReverseTrade handles DELETE /api/v1/trades/{tradeID}
// The trade stays in the ledger with status reversed and no longer counts.
func (s *Service) ReverseTrade(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "tradeID")

	s.mu.Lock()
	t, err := s.store.ReverseTrade(r.Context(), tradeID)
	s.mu.Unlock()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.TradesReversed.Inc()
	slog.Info("trade reversed",
		"trade_id", t.ID,
		"trader", t.Trader,
		"product", t.Product,
		"contract", t.Contract,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     MsgTradeReversed,
			TradeID:  t.ID,
			Trader:   t.Trader,
			Product:  t.Product,
			Contract: t.Contract,
			Quantity: t.Quantity.String(),
			Price:    t.Price.String(),
		})
	}

	writeJSON(w, http.StatusOK, t)
}

// checkLimits replays the active ledger and applies trades in order against
// the limiter. Must be called with s.mu held.
func (s *Service) checkLimits(ctx context.Context, trades []model.Trade) error {
	if !s.limiter.Enabled() {
		return nil
	}

	active, err := s.store.ListTrades(ctx, store.TradeFilter{Status: model.StatusActive})
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	exposures := exposure.Exposures(engine.Replay(active, settings).Positions)
	for _, t := range trades {
		key := t.Key()
		if err := s.limiter.CheckLimit(key, t.Quantity, exposures); err != nil {
			scope := "product"
			if errors.Is(err, exposure.ErrPositionLimitExceeded) {
				scope = "position"
			}
			metrics.LimitRejections.WithLabelValues(scope).Inc()
			slog.Warn("trade rejected by lot limit",
				"trader", t.Trader,
				"product", t.Product,
				"contract", t.Contract,
				"qty", t.Quantity.String(),
				"err", err,
			)
			return err
		}
		exposures[key] = exposures[key].Add(t.Quantity)
	}
	return nil
}

// recorded logs, counts and broadcasts a newly recorded trade.
func (s *Service) recorded(t model.Trade) {
	metrics.TradesTotal.WithLabelValues(string(t.Kind)).Inc()
	slog.Info("trade recorded",
		"trade_id", t.ID,
		"trader", t.Trader,
		"product", t.Product,
		"contract", t.Contract,
		"qty", t.Quantity.String(),
		"price", t.Price.String(),
		"kind", t.Kind,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     MsgTradeRecorded,
			TradeID:  t.ID,
			Trader:   t.Trader,
			Product:  t.Product,
			Contract: t.Contract,
			Quantity: t.Quantity.String(),
			Price:    t.Price.String(),
		})
	}
}

// snapshot loads the ledger, marks and settings and recomputes the book.
// A non-zero since drops earlier trades before replay.
func (s *Service) snapshot(ctx context.Context, since time.Time) (portfolio.Snapshot, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	trades, err := s.store.ListTrades(ctx, store.TradeFilter{Status: model.StatusActive, Since: since})
	if err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("load ledger: %w", err)
	}
	marks, err := s.store.ListMarkPrices(ctx)
	if err != nil {
		return portfolio.Snapshot{}, fmt.Errorf("load marks: %w", err)
	}

	start := time.Now()
	snap := portfolio.Compute(portfolio.Input{
		Trades:   trades,
		Marks:    marks,
		Settings: settings,
		Since:    since,
	})
	metrics.RecomputeLatency.Observe(time.Since(start).Seconds())
	return snap, nil
}

// RefreshMetrics recomputes the full book, publishes the PnL gauges and
// broadcasts a snapshot message. Called periodically by the scheduler.
func (s *Service) RefreshMetrics(ctx context.Context) (portfolio.Snapshot, error) {
	snap, err := s.snapshot(ctx, time.Time{})
	if err != nil {
		return portfolio.Snapshot{}, err
	}

	rec := snap.Reconciliation
	metrics.OpenPositions.Set(float64(snap.Portfolio.Count))
	metrics.RealizedPnL.Set(rec.RealizedTotal.InexactFloat64())
	metrics.FloatingPnL.Set(rec.FloatingTotal.InexactFloat64())
	metrics.NetValue.Set(rec.NetValue.InexactFloat64())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          MsgSnapshot,
			OpenPositions: snap.Portfolio.Count,
			RealizedTotal: rec.RealizedTotal.String(),
			FloatingTotal: rec.FloatingTotal.String(),
			NetValue:      rec.NetValue.String(),
		})
	}
	return snap, nil
}

// --- Helpers ---

// parseSince accepts an RFC 3339 timestamp or a calendar date (UTC
// midnight). Empty means no cutoff.
func parseSince(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, ErrInvalidSince
}

// parseLimit returns DefaultListLimit for an empty value.
func parseLimit(v string) (int, error) {
	if v == "" {
		return DefaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

// writeStoreError maps store and limiter errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrTradeNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrDuplicateTrade),
		errors.Is(err, store.ErrAlreadyReversed),
		errors.Is(err, exposure.ErrPositionLimitExceeded),
		errors.Is(err, exposure.ErrProductLimitExceeded):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("store operation failed", "err", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
