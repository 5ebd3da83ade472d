package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"AcctLedger/internal/projection"
)

func accountIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "accountID"))
	return id, err == nil
}

func (s *Server) handleGetValuation(w http.ResponseWriter, r *http.Request) {
	const endpoint = "valuation"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	resp, err := s.queries.GetAccountValuation(r.Context(), accountID)
	if err != nil {
		s.writeError(w, endpoint, http.StatusNotFound, err.Error())
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
	s.observe(endpoint, start, true)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "positions"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	positions, err := s.queries.GetPositions(r.Context(), accountID)
	if err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "query positions failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
	s.observe(endpoint, start, true)
}

func (s *Server) handleGetRebuiltPositions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "positions_rebuilt"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	positions, err := s.queries.GetRebuiltPositions(r.Context(), accountID)
	if err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "rebuild positions failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions": positions,
		"count":     len(positions),
	})
	s.observe(endpoint, start, true)
}

func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	const endpoint = "transactions"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var symbol *string
	if v := r.URL.Query().Get("symbol"); v != "" {
		symbol = &v
	}

	var beforeSeq *int64
	if v := r.URL.Query().Get("before_sequence"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, endpoint, http.StatusBadRequest, "invalid before_sequence")
			s.observe(endpoint, start, false)
			return
		}
		beforeSeq = &n
	}

	txs, err := s.queries.GetTransactions(r.Context(), accountID, symbol, limit, beforeSeq)
	if err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "query transactions failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
	s.observe(endpoint, start, true)
}

func (s *Server) handleGetCashMovements(w http.ResponseWriter, r *http.Request) {
	const endpoint = "cash_movements"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	movements, err := s.queries.GetCashMovements(r.Context(), accountID, limit)
	if err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "query cash movements failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"movements": movements,
		"count":     len(movements),
	})
	s.observe(endpoint, start, true)
}

func (s *Server) handleGetRealizedPnL(w http.ResponseWriter, r *http.Request) {
	const endpoint = "realized_pnl"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	report, err := s.queries.GetRealizedPnL(r.Context(), accountID)
	if err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "realized pnl derivation failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
	s.observe(endpoint, start, true)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	const endpoint = "reconcile"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	repair := r.URL.Query().Get("repair") == "true"

	report, err := s.queries.Reconcile(r.Context(), accountID, repair)
	if err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "reconcile failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
	s.observe(endpoint, start, true)
}

// --- admin handlers ---

type cashRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleInjectDeposit(w http.ResponseWriter, r *http.Request) {
	s.injectCash(w, r, true)
}

func (s *Server) handleInjectWithdrawal(w http.ResponseWriter, r *http.Request) {
	s.injectCash(w, r, false)
}

func (s *Server) injectCash(w http.ResponseWriter, r *http.Request, deposit bool) {
	const endpoint = "admin_cash"
	start := time.Now()

	accountID, ok := accountIDParam(r)
	if !ok {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid account id")
		s.observe(endpoint, start, false)
		return
	}

	var req cashRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid body")
		s.observe(endpoint, start, false)
		return
	}

	var err error
	if deposit {
		err = s.admin.InjectDeposit(r.Context(), accountID, req.Amount)
	} else {
		err = s.admin.InjectWithdrawal(r.Context(), accountID, req.Amount)
	}
	if err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err.Error())
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	s.observe(endpoint, start, true)
}

type priceRequest struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	FX            decimal.Decimal `json:"fx"`
	PriceSequence int64           `json:"price_sequence"`
}

func (s *Server) handleInjectPrice(w http.ResponseWriter, r *http.Request) {
	const endpoint = "admin_price"
	start := time.Now()

	var req priceRequest
	if err := decodeJSON(r, &req); err != nil || req.Symbol == "" {
		s.writeError(w, endpoint, http.StatusBadRequest, "invalid body")
		s.observe(endpoint, start, false)
		return
	}

	if err := s.admin.InjectPrice(r.Context(), req.Symbol, req.Price, req.FX, req.PriceSequence); err != nil {
		s.writeError(w, endpoint, http.StatusBadRequest, err.Error())
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	s.observe(endpoint, start, true)
}

func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	const endpoint = "admin_rebuild"
	start := time.Now()

	if err := projection.RebuildProjections(r.Context(), s.db); err != nil {
		s.writeError(w, endpoint, http.StatusInternalServerError, "rebuild failed")
		s.observe(endpoint, start, false)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"rebuilt": true})
	s.observe(endpoint, start, true)
}
