package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_artsale/internal/sales"
)

// beneficiaryHandler serves the CRUD endpoints of one beneficiary kind.
type beneficiaryHandler struct {
	service  *sales.Service
	kind     sales.Kind
	notFound string
	logger   *zap.Logger
}

func newBeneficiaryHandler(service *sales.Service, kind sales.Kind, logger *zap.Logger) *beneficiaryHandler {
	return &beneficiaryHandler{
		service:  service,
		kind:     kind,
		notFound: string(kind) + " not found",
		logger:   logger.With(zap.String("kind", string(kind))),
	}
}

func (h *beneficiaryHandler) handleCreate(ctx *gin.Context) {
	var in sales.BeneficiaryInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		writeBindError(ctx, h.logger, err)
		return
	}

	b, err := h.service.CreateBeneficiary(ctx.Request.Context(), h.kind, in)
	if err != nil {
		writeError(ctx, h.logger, err, h.notFound)
		return
	}
	ctx.JSON(http.StatusCreated, b)
}

func (h *beneficiaryHandler) handleList(ctx *gin.Context) {
	all, err := h.service.ListBeneficiaries(ctx.Request.Context(), h.kind)
	if err != nil {
		writeError(ctx, h.logger, err, h.notFound)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"results": all})
}

func (h *beneficiaryHandler) handleGet(ctx *gin.Context) {
	b, err := h.service.GetBeneficiary(ctx.Request.Context(), h.kind, ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.logger, err, h.notFound)
		return
	}
	ctx.JSON(http.StatusOK, b)
}

func (h *beneficiaryHandler) handlePatch(ctx *gin.Context) {
	var upd sales.ProfileUpdate
	if err := ctx.ShouldBindJSON(&upd); err != nil {
		writeBindError(ctx, h.logger, err)
		return
	}

	b, err := h.service.UpdateProfile(ctx.Request.Context(), h.kind, ctx.Param("id"), upd)
	if err != nil {
		writeError(ctx, h.logger, err, h.notFound)
		return
	}
	ctx.JSON(http.StatusOK, b)
}

func (h *beneficiaryHandler) handleDelete(ctx *gin.Context) {
	if err := h.service.DeleteBeneficiary(ctx.Request.Context(), h.kind, ctx.Param("id")); err != nil {
		writeError(ctx, h.logger, err, h.notFound)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *beneficiaryHandler) handleResetOwed(ctx *gin.Context) {
	b, err := h.service.ResetOwed(ctx.Request.Context(), h.kind, ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.logger, err, h.notFound)
		return
	}
	ctx.JSON(http.StatusOK, b)
}
