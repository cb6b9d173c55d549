package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/realtime"
)

// ConnectionManager is the realtime surface the handler calls.
type ConnectionManager interface {
	Connect(ctx context.Context, channelID string) error
	Disconnect(ctx context.Context, channelID string) error
	IsConnected(channelID string) bool
	ListConnections() []realtime.ConnectionRecord
}

type ConnectionHandler struct {
	manager ConnectionManager
	logger  *slog.Logger
}

func NewConnectionHandler(log *slog.Logger, manager ConnectionManager) *ConnectionHandler {
	return &ConnectionHandler{
		manager: manager,
		logger:  log.With(slog.String("handler", "connections")),
	}
}

func (h *ConnectionHandler) Register(e *echo.Echo) {
	e.GET("/connections", h.ListConnections)

	group := e.Group("/channels/:channelId/connection")
	group.GET("", h.ConnectionStatus)
	group.POST("", h.Connect)
	group.DELETE("", h.Disconnect)
}

func (h *ConnectionHandler) ListConnections(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.ListConnections())
}

func (h *ConnectionHandler) ConnectionStatus(c echo.Context) error {
	channelID := c.Param("channelId")
	return c.JSON(http.StatusOK, map[string]any{
		"channel_id": channelID,
		"connected":  h.manager.IsConnected(channelID),
	})
}

func (h *ConnectionHandler) Connect(c echo.Context) error {
	channelID := c.Param("channelId")
	if err := h.manager.Connect(c.Request().Context(), channelID); err != nil {
		h.logger.Warn("connect failed",
			slog.String("channel_id", channelID),
			slog.String("error", gateway.Redact(err.Error())),
		)
		if errors.Is(err, instance.ErrChannelNotMapped) {
			return echo.NewHTTPError(http.StatusNotFound, "channel has no active mapping")
		}
		return echo.NewHTTPError(http.StatusBadGateway, "could not open the realtime connection")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"channel_id": channelID,
		"connected":  true,
	})
}

func (h *ConnectionHandler) Disconnect(c echo.Context) error {
	channelID := c.Param("channelId")
	if err := h.manager.Disconnect(c.Request().Context(), channelID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
