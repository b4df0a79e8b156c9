// Package handlers provides HTTP handlers for trade validation, execution
// recording, profit targets and account compliance status.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/modules/profit_taking"
	"github.com/aristath/tradeguard/internal/modules/risk"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Handler handles risk engine HTTP requests
type Handler struct {
	manager *risk.Manager
	log     zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(manager *risk.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "risk").Logger(),
	}
}

type validateRequest struct {
	AccountID        string          `json:"account_id"`
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Confidence       float64         `json:"confidence"`
	Price            decimal.Decimal `json:"price"`
	StrategyOverride *float64        `json:"strategy_override,omitempty"`
}

type executionRequest struct {
	TradeID    string    `json:"trade_id"`
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

type depositRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	At        time.Time       `json:"at"`
}

type exitPlanRequest struct {
	Quantity float64               `json:"quantity"`
	Levels   []profit_taking.Level `json:"levels,omitempty"`
}

type checkRequest struct {
	UnrealizedPct *float64 `json:"unrealized_pct"`
}

type evaluateRequest struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
	Price    float64 `json:"price"`
}

// HandleValidateTrade handles POST /api/risk/validate
func (h *Handler) HandleValidateTrade(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !h.decode(w, r, &req) {
		return
	}

	side, err := domain.TradeSideFromString(req.Side)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.manager.ValidateTrade(r.Context(), risk.TradeRequest{
		AccountID:        req.AccountID,
		Symbol:           req.Symbol,
		Side:             side,
		Confidence:       req.Confidence,
		Price:            req.Price,
		StrategyOverride: req.StrategyOverride,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, result)
}

// HandleRecordExecution handles POST /api/risk/executions
func (h *Handler) HandleRecordExecution(w http.ResponseWriter, r *http.Request) {
	var req executionRequest
	if !h.decode(w, r, &req) {
		return
	}

	side, err := domain.TradeSideFromString(req.Side)
	if err != nil {
		h.writeError(w, err)
		return
	}

	outcome, err := h.manager.RecordTradeExecution(r.Context(), domain.Trade{
		TradeID:    req.TradeID,
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		ExecutedAt: req.ExecutedAt,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.Duplicate {
		status = http.StatusOK
	}
	h.writeData(w, status, outcome)
}

// HandleRecordDeposit handles POST /api/risk/deposits
func (h *Handler) HandleRecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !h.decode(w, r, &req) {
		return
	}

	record, err := h.manager.RecordCashDeposit(r.Context(), req.AccountID, req.Amount, req.At)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, record)
}

// HandleCreateExitPlan handles POST /api/risk/positions/{positionID}/exit-plan
func (h *Handler) HandleCreateExitPlan(w http.ResponseWriter, r *http.Request) {
	var req exitPlanRequest
	if !h.decode(w, r, &req) {
		return
	}

	plan, err := h.manager.CreateExitPlan(r.Context(), chi.URLParam(r, "positionID"), req.Quantity, req.Levels)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusCreated, plan)
}

// HandleGetExitPlan handles GET /api/risk/positions/{positionID}/exit-plan
func (h *Handler) HandleGetExitPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.GetExitPlan(r.Context(), chi.URLParam(r, "positionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, plan)
}

// HandleCloseExitPlan handles DELETE /api/risk/positions/{positionID}/exit-plan
func (h *Handler) HandleCloseExitPlan(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.CloseExitPlan(r.Context(), chi.URLParam(r, "positionID")); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCheckProfitTargets handles POST /api/risk/positions/{positionID}/check
func (h *Handler) HandleCheckProfitTargets(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.UnrealizedPct == nil {
		h.writeError(w, domain.NewValidationError("unrealized_pct", "unrealized_pct is required"))
		return
	}

	instructions, err := h.manager.CheckProfitTargets(r.Context(), chi.URLParam(r, "positionID"), *req.UnrealizedPct)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"instructions": instructions,
	})
}

// HandleEvaluateExit handles POST /api/risk/positions/{positionID}/evaluate
func (h *Handler) HandleEvaluateExit(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.AvgPrice <= 0 || req.Price <= 0 {
		h.writeError(w, domain.NewValidationError("price", "avg_price and price must be positive"))
		return
	}

	position := domain.BrokerPosition{
		Symbol:   domain.NormalizeSymbol(req.Symbol),
		Quantity: req.Quantity,
		AvgPrice: req.AvgPrice,
	}
	market := domain.MarketData{Symbol: position.Symbol, Price: req.Price, Timestamp: time.Now()}

	outcome, err := h.manager.EvaluateExit(r.Context(), chi.URLParam(r, "positionID"), position, market)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, outcome)
}

// HandleGetAccountMode handles GET /api/risk/accounts/{accountID}/mode
func (h *Handler) HandleGetAccountMode(w http.ResponseWriter, r *http.Request) {
	state, err := h.manager.GetAccountMode(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"account": state,
		"mode":    state.Mode(),
	})
}

// HandleGetComplianceStatus handles GET /api/risk/accounts/{accountID}/compliance
func (h *Handler) HandleGetComplianceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.GetComplianceStatus(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, status)
}

// HandleListSettlements handles GET /api/risk/accounts/{accountID}/settlements
func (h *Handler) HandleListSettlements(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.ListSettlements(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, records)
}

// HandleListDayTrades handles GET /api/risk/accounts/{accountID}/day-trades
func (h *Handler) HandleListDayTrades(w http.ResponseWriter, r *http.Request) {
	records, err := h.manager.ListDayTrades(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeData(w, http.StatusOK, records)
}

// decode reads a JSON body, writing a 400 on failure
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Invalid request body")
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps the error taxonomy onto status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, profit_taking.ErrPlanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		message = "internal error"
	} else if status == http.StatusServiceUnavailable {
		h.log.Warn().Err(err).Msg("Upstream unavailable")
		message = strings.SplitN(message, ":", 2)[0]
	}

	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeData wraps a payload in the data/metadata envelope
func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
