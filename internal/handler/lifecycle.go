package handler

import (
	"net/http"

	"tarkostock/internal/dto"
	"tarkostock/internal/policy"
	"tarkostock/internal/service"

	"github.com/gin-gonic/gin"
)

// LifecycleHandler exposes one entry point per lifecycle operation.
// Every handler checks policy before binding the body.
type LifecycleHandler struct{ svc service.LifecycleService }

func NewLifecycleHandler(svc service.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{svc: svc}
}

// Produce handles POST /v1/batches.
func (h *LifecycleHandler) Produce(c *gin.Context) {
	actor, ok := authorize(c, policy.OpProduce)
	if !ok {
		return
	}
	var req dto.ProduceRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Produce(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Cut handles POST /v1/stock/cut.
func (h *LifecycleHandler) Cut(c *gin.Context) {
	actor, ok := authorize(c, policy.OpCut)
	if !ok {
		return
	}
	var req dto.CutRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Cut(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// SplitBundle handles POST /v1/stock/split-bundle.
func (h *LifecycleHandler) SplitBundle(c *gin.Context) {
	actor, ok := authorize(c, policy.OpSplitBundle)
	if !ok {
		return
	}
	var req dto.SplitBundleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.SplitBundle(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CombineSpares handles POST /v1/stock/combine-spares.
func (h *LifecycleHandler) CombineSpares(c *gin.Context) {
	actor, ok := authorize(c, policy.OpCombineSpares)
	if !ok {
		return
	}
	var req dto.CombineSparesRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CombineSpares(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Dispatch handles POST /v1/dispatches.
func (h *LifecycleHandler) Dispatch(c *gin.Context) {
	actor, ok := authorize(c, policy.OpDispatch)
	if !ok {
		return
	}
	var req dto.DispatchRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Dispatch(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Scrap handles POST /v1/scraps.
func (h *LifecycleHandler) Scrap(c *gin.Context) {
	actor, ok := authorize(c, policy.OpScrap)
	if !ok {
		return
	}
	var req dto.ScrapRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Scrap(c.Request.Context(), actor.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Revert handles POST /v1/transactions/:id/revert. The body is optional.
func (h *LifecycleHandler) Revert(c *gin.Context) {
	actor, ok := authorize(c, policy.OpRevert)
	if !ok {
		return
	}
	txID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req dto.RevertRequest
	if c.Request.ContentLength > 0 && !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Revert(c.Request.Context(), actor.ID, txID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
