package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
)

type OfferHandler struct {
	service lifecycle.UseCase
}

func NewOfferHandler(service lifecycle.UseCase) *OfferHandler {
	return &OfferHandler{service: service}
}

func (h *OfferHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id", h.get)
	router.POST("/:id/acknowledge", h.transition(h.service.AcknowledgeOffer))
	router.POST("/:id/reject", h.transition(h.service.RejectOffer))
	router.POST("/:id/accept", h.accept)
}

func (h *OfferHandler) get(c *gin.Context) {
	offer, err := h.service.GetOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offer)
}

func (h *OfferHandler) transition(fn func(context.Context, string) (*domain.Offer, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		offer, err := fn(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, offer)
	}
}

func (h *OfferHandler) accept(c *gin.Context) {
	booking, err := h.service.AcceptOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
