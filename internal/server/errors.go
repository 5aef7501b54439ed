package server

import (
	stderrors "errors"
	"net/http"

	"taskboard/internal/domain/errors"
	"taskboard/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps a domain error onto an HTTP status and the message shown
// to the client. Anything unrecognised is a 500 with a generic message.
func statusFor(err error) (int, string) {
	switch {
	case stderrors.Is(err, errors.ErrUnknownUser), stderrors.Is(err, errors.ErrInvalidCredentials):
		return http.StatusBadRequest, errors.ErrInvalidCredentials.Error()
	case stderrors.Is(err, errors.ErrValidation),
		stderrors.Is(err, errors.ErrDuplicateEmail),
		stderrors.Is(err, errors.ErrBadRequest),
		stderrors.Is(err, errors.ErrInvalidGzipRequest):
		return http.StatusBadRequest, err.Error()
	case stderrors.Is(err, errors.ErrMissingToken), stderrors.Is(err, errors.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case stderrors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden, errors.ErrForbidden.Error()
	case stderrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound, errors.ErrNotFound.Error()
	case stderrors.Is(err, errors.ErrConflict):
		return http.StatusConflict, errors.ErrConflict.Error()
	default:
		return http.StatusInternalServerError, errors.ErrInternalServer.Error()
	}
}

func respondError(ctx *gin.Context, log *logrus.Entry, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", ctx.Request.URL.Path).Error("request failed")
	}
	if status == http.StatusUnauthorized {
		ctx.Header("WWW-Authenticate", `Bearer realm="taskboard"`)
	}
	_ = ctx.Error(err)
	ctx.JSON(status, models.MessageResponse{Message: msg})
}
