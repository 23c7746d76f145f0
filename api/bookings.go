package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
	"github.com/Domenick1991/charterbooking/internal/status"
)

type BookingHandler struct {
	service lifecycle.UseCase
}

type passengersRequest struct {
	Passengers []lifecycle.PassengerInput `json:"passengers"`
}

type eventRequest struct {
	Event string `json:"event" binding:"required"`
}

func NewBookingHandler(service lifecycle.UseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id", h.get)
	router.PUT("/:id/passengers", h.setPassengers)
	router.PUT("/:id/checklist", h.updateChecklist)
	router.POST("/:id/events", h.advance)
}

func (h *BookingHandler) get(c *gin.Context) {
	booking, err := h.service.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) setPassengers(c *gin.Context) {
	var req passengersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.service.SetPassengers(c.Request.Context(), c.Param("id"), req.Passengers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) updateChecklist(c *gin.Context) {
	var req lifecycle.ChecklistInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.service.UpdateChecklist(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) advance(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	booking, err := h.service.AdvanceBooking(c.Request.Context(), c.Param("id"), status.Event(req.Event))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}
