package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
)

type QuoteRequestHandler struct {
	service lifecycle.UseCase
}

type createQuoteRequest struct {
	ClientID string `json:"clientId"`
	lifecycle.RoutingInput
}

type submitOfferRequest struct {
	OperatorID string `json:"operatorId"`
	lifecycle.PriceInput
}

func NewQuoteRequestHandler(service lifecycle.UseCase) *QuoteRequestHandler {
	return &QuoteRequestHandler{service: service}
}

func (h *QuoteRequestHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/viewed", h.viewed)
	router.GET("/:id/offers", h.listOffers)
	router.POST("/:id/offers", h.submitOffer)
}

func (h *QuoteRequestHandler) create(c *gin.Context) {
	var req createQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	qr, err := h.service.SubmitQuoteRequest(c.Request.Context(), req.ClientID, req.RoutingInput)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, qr)
}

func (h *QuoteRequestHandler) get(c *gin.Context) {
	qr, err := h.service.GetQuoteRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, qr)
}

func (h *QuoteRequestHandler) viewed(c *gin.Context) {
	qr, err := h.service.MarkOffersViewed(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, qr)
}

func (h *QuoteRequestHandler) listOffers(c *gin.Context) {
	offers, err := h.service.ListOffers(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, offers)
}

func (h *QuoteRequestHandler) submitOffer(c *gin.Context) {
	var req submitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	offer, err := h.service.SubmitOffer(c.Request.Context(), c.Param("id"), req.OperatorID, req.PriceInput)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}
