package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/infrastructure/http/v1/dto"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
)

func (h *Handler) CreateSource(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())

	var req dto.CreateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn("invalid create source body", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		l.Warn("create source validation failed", "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	d, err := h.sourceUseCase.CreateSource(req.ID, req.Origin(), req.Options())
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusCreated, "source created", dto.NewSourceResponse(d))
}

func (h *Handler) ListSources(c *gin.Context) {
	descs := h.sourceUseCase.Sources()

	out := make([]dto.SourceResponse, 0, len(descs))
	for _, d := range descs {
		out = append(out, dto.NewSourceResponse(d))
	}

	h.RespondWithJSON(c, http.StatusOK, "got sources", out)
}

func (h *Handler) GetSource(c *gin.Context) {
	d, err := h.sourceUseCase.Source(c.Param("id"))
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "got source", dto.NewSourceResponse(d))
}

func (h *Handler) ResolveSource(c *gin.Context) {
	d, err := h.sourceUseCase.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "source resolved", dto.NewSourceResponse(d))
}

func (h *Handler) DeleteSource(c *gin.Context) {
	if err := h.sourceUseCase.RemoveSource(c.Request.Context(), c.Param("id")); err != nil {
		h.RespondWithError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "source removed", nil)
}

func (h *Handler) SourceAttribution(c *gin.Context) {
	infos, err := h.sourceUseCase.SourceAttribution(c.Param("id"))
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	h.RespondWithJSON(c, http.StatusOK, "got attribution", dto.AttributionResponse{Attribution: infos})
}

func (h *Handler) Attribution(c *gin.Context) {
	dedupe, _ := strconv.ParseBool(c.DefaultQuery("dedupe", "false"))

	h.RespondWithJSON(c, http.StatusOK, "got attribution", dto.AttributionResponse{
		Attribution: h.sourceUseCase.Attribution(dedupe),
	})
}
