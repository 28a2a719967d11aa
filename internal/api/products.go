package api

import (
	"net/http"
	"strings"

	"exchange-service/internal/models"
	"exchange-service/internal/negotiation"
	"exchange-service/internal/service"

	"github.com/gin-gonic/gin"
)

// productFilter reads q, status and category, rejecting unknown values
func productFilter(c *gin.Context) (negotiation.ProductFilter, bool) {
	filter := negotiation.ProductFilter{Name: strings.TrimSpace(c.Query("q"))}

	if raw := c.Query("status"); raw != "" {
		filter.Status = negotiation.ParseDisplayStatus(strings.ToUpper(raw))
		if filter.Status == "" {
			badRequest(c, "unknown status filter", nil)
			return filter, false
		}
	}
	if raw := c.Query("category"); raw != "" {
		filter.Category = models.ParseCategory(raw)
		if filter.Category == "" {
			badRequest(c, "unknown category filter", nil)
			return filter, false
		}
	}
	return filter, true
}

func (h *Handler) listCatalog(c *gin.Context) {
	filter, ok := productFilter(c)
	if !ok {
		return
	}

	products, err := h.products.Catalog(c.Request.Context(), currentSession(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) listMine(c *gin.Context) {
	filter, ok := productFilter(c)
	if !ok {
		return
	}

	products, err := h.products.Mine(c.Request.Context(), currentSession(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) createProduct(c *gin.Context) {
	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), currentSession(c), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	product, err := h.products.GetProduct(c.Request.Context(), currentSession(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var in service.ProductInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	product, err := h.products.UpdateProduct(c.Request.Context(), currentSession(c), id, in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.products.DeleteProduct(c.Request.Context(), currentSession(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
