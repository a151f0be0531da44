package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
)

// statusFor maps a source core error to the HTTP status reported for it.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConfiguration:
		if errors.Is(err, domain.ErrSourceExists) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case domain.KindResolution:
		if errors.Is(err, domain.ErrNotReady) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case domain.KindParse:
		return http.StatusBadGateway
	case domain.KindNetwork:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case domain.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) RespondWithError(c *gin.Context, err error) {
	l := logger.FromContext(c.Request.Context())

	code := statusFor(err)
	if code == http.StatusInternalServerError {
		l.Error("request failed", "path", c.Request.URL.Path, "error", err)
		h.RespondWithInternalServerError(c)
		return
	}

	l.Warn("request failed", "path", c.Request.URL.Path, "status", code, "error", err)
	_ = c.Error(err)
	h.RespondWithJSON(c, code, err.Error(), nil)
}
