package handler

import (
	"net/http"

	"tarkostock/internal/dto"
	"tarkostock/internal/policy"
	"tarkostock/internal/service"

	"github.com/gin-gonic/gin"
)

// LedgerHandler serves read-only queries over the ledger and stock.
type LedgerHandler struct{ svc service.LedgerService }

func NewLedgerHandler(svc service.LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	if _, ok := authorize(c, policy.OpReadLedger); !ok {
		return
	}
	var f dto.TransactionFilter
	if !bindQuery(c, &f) {
		return
	}
	resp, err := h.svc.ListTransactions(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LedgerHandler) GetTransaction(c *gin.Context) {
	if _, ok := authorize(c, policy.OpReadLedger); !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LedgerHandler) PieceHistory(c *gin.Context) {
	if _, ok := authorize(c, policy.OpReadLedger); !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.PieceHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LedgerHandler) ListStock(c *gin.Context) {
	if _, ok := authorize(c, policy.OpReadStock); !ok {
		return
	}
	var f dto.StockFilter
	if !bindQuery(c, &f) {
		return
	}
	resp, err := h.svc.ListStock(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LedgerHandler) GetBatch(c *gin.Context) {
	if _, ok := authorize(c, policy.OpReadStock); !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
