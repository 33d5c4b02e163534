package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fatflowers/entitlement/internal/app/service/catalog"
	"github.com/fatflowers/entitlement/internal/app/service/purchase"
	"github.com/fatflowers/entitlement/internal/app/service/receipt"
	"github.com/fatflowers/entitlement/internal/app/service/statistics"
	"github.com/fatflowers/entitlement/internal/platform/iap"
	"github.com/fatflowers/entitlement/pkg/response"
	"github.com/fatflowers/entitlement/pkg/types"
)

// errorCode maps service errors onto envelope codes. Anything unrecognised
// is an internal error.
func errorCode(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, purchase.ErrUnauthenticated):
		return response.APIResponseCodeUnauthorized
	case errors.Is(err, catalog.ErrPlanNotFound),
		errors.Is(err, purchase.ErrProductMapping),
		errors.Is(err, receipt.ErrReceiptRejected),
		errors.Is(err, iap.ErrNoPurchase),
		errors.Is(err, types.ErrInvalidFilter),
		errors.Is(err, statistics.ErrUnknownStatistic):
		return response.APIResponseCodeBadRequest
	default:
		return response.APIResponseCodeError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, response.ErrorT[any](errorCode(err), err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, msg))
}
