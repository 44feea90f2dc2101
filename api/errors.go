package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_artsale/internal/sales"
)

type ledgerFailureResponse struct {
	Beneficiary sales.Kind `json:"beneficiary"`
	ID          string     `json:"id"`
	Error       string     `json:"error"`
}

// writeError maps a service error onto a status code and JSON body.
// notFound is the message used for sales.ErrNotFound.
func writeError(c *gin.Context, logger *zap.Logger, err error, notFound string) {
	var (
		verr *sales.ValidationError
		perr *sales.PersistenceError
		lerr *sales.LedgerUpdateError
		serr *sales.SettlementStateError
	)

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": verr.Fields})
	case errors.As(err, &serr):
		logger.Error("settlement state not persisted", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "settlement state not persisted",
			"details": serr.Err.Error(),
			"applied": serr.Applied,
			"sale":    serr.Sale,
		})
	case errors.As(err, &lerr):
		details := make([]ledgerFailureResponse, 0, len(lerr.Failures))
		for _, f := range lerr.Failures {
			details = append(details, ledgerFailureResponse{Beneficiary: f.Kind, ID: f.BeneficiaryID, Error: f.Err.Error()})
		}
		logger.Error("ledger update failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger update failed", "details": details, "sale": lerr.Sale})
	case errors.As(err, &perr):
		logger.Error("persistence failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to " + perr.Op, "details": perr.Err.Error()})
	case errors.Is(err, sales.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}

func writeBindError(c *gin.Context, logger *zap.Logger, err error) {
	logger.Warn("failed to bind JSON request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "details": err.Error()})
}
