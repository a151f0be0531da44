package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/domain"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	headerOverscaleFactor = "X-Overscale-Factor"
	headerTileCoordinate  = "X-Tile-Coordinate"
	headerTileSize        = "X-Tile-Size"
	headerTileStale       = "X-Tile-Stale"
)

func (h *Handler) Tile(c *gin.Context) {
	l := logger.FromContext(c.Request.Context())

	strZ := c.Param("z")
	strX := c.Param("x")
	// Allow a trailing image extension, e.g. /3/1/2.png.
	strY, _, _ := strings.Cut(c.Param("y"), ".")

	z, err := strconv.Atoi(strZ)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "z should be integer", nil)
		return
	}

	x, err := strconv.Atoi(strX)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "x should be integer", nil)
		return
	}

	y, err := strconv.Atoi(strY)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		h.RespondWithJSON(c, http.StatusBadRequest, "y should be integer", nil)
		return
	}

	res, err := h.sourceUseCase.GetTile(c.Request.Context(), c.Param("id"), domain.NewTileCoordinate(z, x, y))
	if err != nil {
		h.RespondWithError(c, err)
		return
	}

	telemetry.SpanFromContext(c).SetAttributes(
		attribute.String("tile.source", res.SourceID),
		attribute.String("tile.coordinate", res.Coordinate.String()),
		attribute.Int("tile.overscale_factor", res.OverscaleFactor),
		attribute.Bool("tile.stale", res.Stale),
	)

	c.Header(headerOverscaleFactor, strconv.Itoa(res.OverscaleFactor))
	c.Header(headerTileCoordinate, res.Coordinate.String())
	c.Header(headerTileSize, strconv.FormatFloat(res.TileSize, 'f', -1, 64))
	c.Header(headerTileStale, strconv.FormatBool(res.Stale))
	if !res.ExpiresAt.IsZero() {
		c.Header("Expires", res.ExpiresAt.UTC().Format(http.TimeFormat))
	}

	c.Data(http.StatusOK, http.DetectContentType(res.Data), res.Data)
}
