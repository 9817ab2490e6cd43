package httpx

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/growsome/trafficlens/internal/domain"
)

const (
	CodeInvalidInput        = "INVALID_INPUT"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeDomainNotFound      = "DOMAIN_NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeCampaignAlreadySent = "CAMPAIGN_ALREADY_SENT"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

func mapErr(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDomainNotFound):
		return http.StatusNotFound, CodeDomainNotFound
	case errors.Is(err, domain.ErrCampaignAlreadySent):
		return http.StatusConflict, CodeCampaignAlreadySent
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// WriteError translates err into the error envelope. Internal errors are
// logged and their text is not exposed.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, code := mapErr(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		Logger(r.Context(), log).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	Fail(w, status, code, msg)
}
