package trade

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/contract"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/pnl"
	"github.com/atmx/pnl-engine/internal/portfolio"
	"github.com/atmx/pnl-engine/internal/reconcile"
)

// maxImportBytes bounds a bulk mark import body.
const maxImportBytes = 1 << 20

// HistoryResponse is the JSON body returned from GET /history.
type HistoryResponse struct {
	History       []model.ClosureEntry       `json:"history"` // newest first
	TotalRealized decimal.Decimal            `json:"total_realized"`
	DailyPnL      []pnl.DayTotal             `json:"daily_pnl"`
	TraderPnL     map[string]decimal.Decimal `json:"trader_pnl"`
	ProductPnL    map[string]decimal.Decimal `json:"product_pnl"`
	Count         int                        `json:"count"` // closures before limit
}

// MarkRequest is the JSON body for PUT /marks. Either Key
// ("Product::Contract" or a bare contract) or Product and Contract are set;
// an empty Product makes a generic mark.
type MarkRequest struct {
	Key      string          `json:"key,omitempty"`
	Product  string          `json:"product,omitempty"`
	Contract string          `json:"contract,omitempty"`
	Price    decimal.Decimal `json:"price"`
}

// ImportResponse is the JSON body returned from POST /marks/import.
type ImportResponse struct {
	Imported int               `json:"imported"`
	Marks    []model.MarkPrice `json:"marks"`
}

// ReconciliationResponse is the JSON body returned from GET /reconciliation.
type ReconciliationResponse struct {
	reconcile.Summary
	Positions []portfolio.PositionView `json:"positions"`
}

// CheckRequest is the JSON body for POST /reconciliation/check. Since may
// also be given as a query parameter; the body wins when both are set.
type CheckRequest struct {
	StatementValue *decimal.Decimal `json:"statement_value"`
	Since          string           `json:"since,omitempty"`
}

// GetPositions handles GET /api/v1/positions
// Optional since drops earlier trades before the replay.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.snapshot(r.Context(), since)
	if err != nil {
		slog.Error("positions failed", "err", err)
		writeError(w, "failed to compute positions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, snap.Portfolio)
}

// GetHistory handles GET /api/v1/history
// Optional query parameters: since, limit.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
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

	snap, err := s.snapshot(r.Context(), since)
	if err != nil {
		slog.Error("history failed", "err", err)
		writeError(w, "failed to compute history", http.StatusInternalServerError)
		return
	}

	newest := make([]model.ClosureEntry, len(snap.History))
	for i, h := range snap.History {
		newest[len(snap.History)-1-i] = h
	}
	if len(newest) > limit {
		newest = newest[:limit]
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		History:       newest,
		TotalRealized: snap.RealizedTotal,
		DailyPnL:      pnl.DailyTotals(snap.History, pnl.DefaultDailyDays),
		TraderPnL:     pnl.ByTrader(snap.History),
		ProductPnL:    pnl.ByProduct(snap.History),
		Count:         len(snap.History),
	})
}

// ListMarks handles GET /api/v1/marks
// Optional query parameters: product, contract (exact match).
func (s *Service) ListMarks(w http.ResponseWriter, r *http.Request) {
	marks, err := s.store.ListMarkPrices(r.Context())
	if err != nil {
		writeError(w, "failed to list marks", http.StatusInternalServerError)
		return
	}

	q := r.URL.Query()
	product, code := q.Get("product"), q.Get("contract")
	filtered := make([]model.MarkPrice, 0, len(marks))
	for _, m := range marks {
		if product != "" && m.Product != product {
			continue
		}
		if code != "" && m.Contract != code {
			continue
		}
		filtered = append(filtered, m)
	}
	writeJSON(w, http.StatusOK, filtered)
}

// PutMark handles PUT /api/v1/marks
func (s *Service) PutMark(w http.ResponseWriter, r *http.Request) {
	var req MarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	product, code := req.Product, req.Contract
	if req.Key != "" {
		var err error
		if product, code, err = contract.ParseMarkKey(req.Key); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if product == "" {
		product = model.GenericProduct
	}
	if code == "" {
		writeError(w, "contract is required", http.StatusBadRequest)
		return
	}
	if req.Price.IsNegative() {
		writeError(w, contract.ErrInvalidPrice.Error(), http.StatusBadRequest)
		return
	}

	mark := model.MarkPrice{
		Product:   product,
		Contract:  code,
		Price:     req.Price,
		UpdatedAt: s.now(),
	}
	if err := s.store.UpsertMarkPrices(r.Context(), []model.MarkPrice{mark}); err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("mark updated", "key", mark.Key(), "price", mark.Price.String())
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      MsgMarkUpdated,
			Product:   mark.Product,
			Contract:  mark.Contract,
			Price:     mark.Price.String(),
			MarkCount: 1,
		})
	}

	writeJSON(w, http.StatusOK, mark)
}

// ImportMarks handles POST /api/v1/marks/import
// Accepts nested {"Product": {"Contract": price}}, scoped
// {"Product::Contract": price} and generic {"Contract": price} entries.
func (s *Service) ImportMarks(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	marks, err := contract.ParseMarkImport(data, s.now())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(marks) == 0 {
		writeError(w, "no marks in import", http.StatusBadRequest)
		return
	}
	if err := s.store.UpsertMarkPrices(r.Context(), marks); err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("marks imported", "count", len(marks))
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MsgMarkUpdated, MarkCount: len(marks)})
	}

	writeJSON(w, http.StatusOK, ImportResponse{Imported: len(marks), Marks: marks})
}

// GetSettings handles GET /api/v1/settings
func (s *Service) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		writeError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// PutSettings handles PUT /api/v1/settings
// Fields absent from the body keep their saved values.
func (s *Service) PutSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		writeError(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateSettings(settings); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("settings updated",
		"brent_fee_rate", settings.BrentFeeRate.String(),
		"shared_fee_rate", settings.SharedFeeRate.String(),
		"ttf_multiplier", settings.TTFMultiplier.String(),
		"fx_rate", settings.FXRate.String(),
	)
	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MsgSettings})
	}

	writeJSON(w, http.StatusOK, settings)
}

// validateSettings rejects negative rates, multipliers and FX.
func validateSettings(st model.Settings) error {
	switch {
	case st.BrentFeeRate.IsNegative(), st.SharedFeeRate.IsNegative():
		return errors.New("fee rates must be non-negative")
	case st.TTFMultiplier.IsNegative():
		return errors.New("ttf_multiplier must be non-negative")
	case st.FXRate.IsNegative():
		return errors.New("fx_rate must be non-negative")
	}
	return nil
}

// GetReconciliation handles GET /api/v1/reconciliation
// Optional since replays later trades only and drops the initial carry.
func (s *Service) GetReconciliation(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.snapshot(r.Context(), since)
	if err != nil {
		slog.Error("reconciliation failed", "err", err)
		writeError(w, "failed to compute reconciliation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ReconciliationResponse{
		Summary:   snap.Reconciliation,
		Positions: snap.Portfolio.Positions,
	})
}

// CheckReconciliation handles POST /api/v1/reconciliation/check
func (s *Service) CheckReconciliation(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StatementValue == nil {
		writeError(w, "statement_value is required", http.StatusBadRequest)
		return
	}
	raw := req.Since
	if raw == "" {
		raw = r.URL.Query().Get("since")
	}
	since, err := parseSince(raw)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.snapshot(r.Context(), since)
	if err != nil {
		slog.Error("reconciliation failed", "err", err)
		writeError(w, "failed to compute reconciliation", http.StatusInternalServerError)
		return
	}

	result := reconcile.Check(snap.Reconciliation, *req.StatementValue)
	slog.Info("reconciliation checked",
		"statement", result.StatementValue.String(),
		"net_value", result.NetValue.String(),
		"diff", result.Diff.String(),
		"match", result.IsMatch,
	)

	writeJSON(w, http.StatusOK, result)
}
