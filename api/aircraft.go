package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
)

type AircraftHandler struct {
	service lifecycle.UseCase
}

type registerAircraftRequest struct {
	OperatorCode string `json:"operatorCode" binding:"required"`
	lifecycle.AircraftInput
}

func NewAircraftHandler(service lifecycle.UseCase) *AircraftHandler {
	return &AircraftHandler{service: service}
}

func (h *AircraftHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.register)
}

func (h *AircraftHandler) register(c *gin.Context) {
	var req registerAircraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	aircraft, err := h.service.RegisterAircraft(c.Request.Context(), req.OperatorCode, req.AircraftInput)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, aircraft)
}
