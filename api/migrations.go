package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/charterbooking/internal/domain"
	"github.com/Domenick1991/charterbooking/internal/service/migration"
)

type MigrationUseCase interface {
	MigrateAll(ctx context.Context, kind migration.Kind) (migration.RunReport, error)
	Report(ctx context.Context, kind migration.Kind) (domain.MigrationProgress, error)
}

type MigrationHandler struct {
	engine MigrationUseCase
}

func NewMigrationHandler(engine MigrationUseCase) *MigrationHandler {
	return &MigrationHandler{engine: engine}
}

func (h *MigrationHandler) Register(router *gin.RouterGroup) {
	router.GET("/:kind", h.report)
	router.POST("/:kind/run", h.run)
}

func (h *MigrationHandler) report(c *gin.Context) {
	kind, err := migration.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	progress, err := h.engine.Report(c.Request.Context(), kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *MigrationHandler) run(c *gin.Context) {
	kind, err := migration.ParseKind(c.Param("kind"))
	if err != nil {
		writeError(c, err)
		return
	}
	report, err := h.engine.MigrateAll(c.Request.Context(), kind)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
