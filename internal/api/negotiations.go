package api

import (
	"net/http"
	"strings"

	"exchange-service/internal/models"
	"exchange-service/internal/negotiation"
	"exchange-service/internal/service"

	"github.com/gin-gonic/gin"
)

type offersRequest struct {
	OfferedProductIDs []int64 `json:"offered_product_ids"`
}

type decisionRequest struct {
	Status models.RequestStatus `json:"status" binding:"required"`
}

func (h *Handler) listNegotiations(c *gin.Context) {
	var filter negotiation.RequestFilter

	if raw := c.Query("status"); raw != "" {
		filter.Status = models.RequestStatus(strings.ToUpper(raw))
		if !filter.Status.Valid() {
			badRequest(c, "unknown status filter", nil)
			return
		}
	}
	if raw := c.Query("category"); raw != "" {
		if filter.Category = models.ParseCategory(raw); filter.Category == "" {
			badRequest(c, "unknown category filter", nil)
			return
		}
	}
	if raw := c.Query("role"); raw != "" {
		if filter.Role = negotiation.ParseRole(raw); filter.Role == "" {
			badRequest(c, "role must be REQUESTER or OWNER", nil)
			return
		}
	}

	list, err := h.negotiations.ListNegotiations(c.Request.Context(), currentSession(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"negotiations": list})
}

func (h *Handler) createNegotiation(c *gin.Context) {
	var req service.CreateNegotiationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	r, err := h.negotiations.CreateNegotiation(c.Request.Context(), currentSession(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *Handler) getNegotiation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	detail, err := h.negotiations.GetNegotiation(c.Request.Context(), currentSession(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) setOffers(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req offersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	r, err := h.negotiations.SetOffers(c.Request.Context(), currentSession(c), id, req.OfferedProductIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) submitNegotiation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	r, err := h.negotiations.Submit(c.Request.Context(), currentSession(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) respondNegotiation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	decision := models.RequestStatus(strings.ToUpper(string(req.Status)))
	r, err := h.negotiations.Respond(c.Request.Context(), currentSession(c), id, decision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) cancelNegotiation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	r, err := h.negotiations.Cancel(c.Request.Context(), currentSession(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *Handler) discardDraft(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.negotiations.DiscardDraft(c.Request.Context(), currentSession(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) sendMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), currentSession(c), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}
