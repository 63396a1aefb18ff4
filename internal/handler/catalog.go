package handler

import (
	"net/http"

	"tarkostock/internal/policy"
	"tarkostock/internal/service"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves the read-only variant catalog.
type CatalogHandler struct{ svc service.CatalogService }

func NewCatalogHandler(svc service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

func (h *CatalogHandler) ListVariants(c *gin.Context) {
	if _, ok := authorize(c, policy.OpReadStock); !ok {
		return
	}
	resp, err := h.svc.ListVariants(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
