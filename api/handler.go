package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_artsale/internal/sales"
)

const saleNotFound = "sale not found"

// salesHandler holds the sales service and implements HTTP handlers for sales operations.
type salesHandler struct {
	salesService *sales.Service
	logger       *zap.Logger
}

// NewSalesHandler creates a new sales handler.
func NewSalesHandler(salesService *sales.Service, logger *zap.Logger) *salesHandler {
	return &salesHandler{
		salesService: salesService,
		logger:       logger,
	}
}

// createSaleRequest accepts the price either as a JSON number or as a
// numeric string; both keep their literal digits. Anything else is passed
// through as written and rejected by price validation.
type createSaleRequest struct {
	Article          string              `json:"article"`
	Comment          string              `json:"comment"`
	PaymentMethod    sales.PaymentMethod `json:"payment_method"`
	PickUp           bool                `json:"pick_up"`
	Price            json.RawMessage     `json:"price"`
	ArtistID         string              `json:"artist_id"`
	VolunteerID      string              `json:"volunteer_id"`
	CompletedPayment bool                `json:"completed_payment"`
}

// handleCreateSale handles the POST /sales endpoint.
func (h *salesHandler) handleCreateSale(ctx *gin.Context) {
	var req createSaleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		writeBindError(ctx, h.logger, err)
		return
	}

	sale, err := h.salesService.RecordSale(ctx.Request.Context(), sales.SaleInput{
		Article:          req.Article,
		Comment:          req.Comment,
		PaymentMethod:    req.PaymentMethod,
		PickUp:           req.PickUp,
		Price:            priceLiteral(req.Price),
		ArtistID:         req.ArtistID,
		VolunteerID:      req.VolunteerID,
		CompletedPayment: req.CompletedPayment,
	})
	if err != nil {
		writeError(ctx, h.logger, err, saleNotFound)
		return
	}

	ctx.JSON(http.StatusCreated, sale)
}

// priceLiteral returns the text of a JSON price: the contents of a string,
// the digits of a number, "" when absent or null.
func priceLiteral(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (h *salesHandler) handleListSales(ctx *gin.Context) {
	results, err := h.salesService.ListSales(ctx.Request.Context())
	if err != nil {
		h.logger.Error("error listing sales", zap.Error(err))
		writeError(ctx, h.logger, err, saleNotFound)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"results": results, "metadata": sales.Summarize(results)})
}

func (h *salesHandler) handleGetSale(ctx *gin.Context) {
	sale, err := h.salesService.GetSale(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.logger, err, saleNotFound)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

func (h *salesHandler) handlePatchSale(ctx *gin.Context) {
	var upd sales.SaleUpdate
	if err := ctx.ShouldBindJSON(&upd); err != nil {
		writeBindError(ctx, h.logger, err)
		return
	}

	updated, err := h.salesService.UpdateSale(ctx.Request.Context(), ctx.Param("id"), upd)
	if err != nil {
		writeError(ctx, h.logger, err, saleNotFound)
		return
	}
	ctx.JSON(http.StatusOK, updated)
}

func (h *salesHandler) handleDeleteSale(ctx *gin.Context) {
	if err := h.salesService.DeleteSale(ctx.Request.Context(), ctx.Param("id")); err != nil {
		writeError(ctx, h.logger, err, saleNotFound)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (h *salesHandler) handleSettleSale(ctx *gin.Context) {
	sale, err := h.salesService.SettleSale(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, h.logger, err, saleNotFound)
		return
	}
	ctx.JSON(http.StatusOK, sale)
}

func (h *salesHandler) handleListOwed(ctx *gin.Context) {
	owed, err := h.salesService.ListBeneficiariesWithOwedBalance(ctx.Request.Context())
	if err != nil {
		writeError(ctx, h.logger, err, "beneficiary not found")
		return
	}
	if owed == nil {
		owed = []*sales.Beneficiary{}
	}
	ctx.JSON(http.StatusOK, gin.H{"results": owed})
}

func (h *salesHandler) handleDashboard(ctx *gin.Context) {
	limit := 0
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation failed",
				"details": []sales.FieldError{{Field: "limit", Message: "must be a positive integer"}},
			})
			return
		}
		limit = n
	}

	dash, err := h.salesService.Dashboard(ctx.Request.Context(), sales.RankMetric(ctx.Query("metric")), limit)
	if err != nil {
		writeError(ctx, h.logger, err, "not found")
		return
	}
	ctx.JSON(http.StatusOK, dash)
}
