package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/Dhoini/subscription-reconciler/pkg/res"
	"github.com/gin-gonic/gin"
)

// writeError переводит ошибку сервиса в HTTP-ответ
func writeError(c *gin.Context, log *logger.Logger, err error) {
	_ = c.Error(err)

	var rejected *domain.ChargeRejectedError
	var external *domain.ExternalServiceError
	switch {
	case errors.As(err, &rejected):
		res.JsonResponse(c.Writer, res.ErrorResponse{
			Error:     rejected.UserMessage(),
			ErrorCode: http.StatusPaymentRequired,
			Details:   gin.H{"code": rejected.Code},
		}, http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrNotFound):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: err.Error(), ErrorCode: http.StatusNotFound}, http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidInput):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: err.Error(), ErrorCode: http.StatusBadRequest}, http.StatusBadRequest)
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrReplayNotAllowed):
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: err.Error(), ErrorCode: http.StatusConflict}, http.StatusConflict)
	case errors.As(err, &external):
		res.JsonErrorResponse(c.Writer, res.ErrorResponse{
			Error:     "Payment processor is unavailable",
			ErrorCode: http.StatusBadGateway,
			Details:   gin.H{"service": external.Service},
		}, http.StatusBadGateway, log)
	default:
		log.Errorw("Unhandled request error", "error", err, "path", c.FullPath())
		res.JsonResponse(c.Writer, res.ErrorResponse{Error: "Internal server error", ErrorCode: http.StatusInternalServerError}, http.StatusInternalServerError)
	}
	c.Abort()
}
