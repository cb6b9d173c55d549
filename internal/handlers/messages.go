package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdeskhq/zapdesk/internal/delivery"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/media"
	"github.com/zapdeskhq/zapdesk/internal/message"
)

// MessageSender is the delivery surface the handler calls.
type MessageSender interface {
	SendText(ctx context.Context, channelID, to, text string) (message.Record, error)
	SendMedia(ctx context.Context, channelID string, req delivery.MediaRequest) (message.Record, error)
}

// SessionReader queries persisted session history.
type SessionReader interface {
	QueryBySession(ctx context.Context, sessionID string) ([]message.Record, error)
}

type MessageHandler struct {
	sender  MessageSender
	history SessionReader
	logger  *slog.Logger
}

func NewMessageHandler(log *slog.Logger, sender MessageSender, history SessionReader) *MessageHandler {
	return &MessageHandler{
		sender:  sender,
		history: history,
		logger:  log.With(slog.String("handler", "messages")),
	}
}

func (h *MessageHandler) Register(e *echo.Echo) {
	group := e.Group("/channels/:channelId/messages")
	group.POST("/text", h.SendText)
	group.POST("/media", h.SendMedia)

	e.GET("/sessions/:sessionId/messages", h.SessionHistory)
}

type sendTextRequest struct {
	To   string `json:"to" validate:"required"`
	Text string `json:"text" validate:"required"`
}

func (h *MessageHandler) SendText(c echo.Context) error {
	var req sendTextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	record, err := h.sender.SendText(c.Request().Context(), c.Param("channelId"), req.To, req.Text)
	if err != nil {
		h.logger.Warn("text send rejected",
			slog.String("channel_id", c.Param("channelId")),
			slog.String("error", gateway.Redact(err.Error())),
		)
		return deliveryHTTPError(err)
	}
	return c.JSON(http.StatusCreated, record)
}

type sendMediaRequest struct {
	To        string `json:"to" validate:"required"`
	MediaType string `json:"media_type" validate:"required,oneof=image audio video document sticker"`
	Payload   string `json:"payload" validate:"required"`
	Caption   string `json:"caption"`
	FileName  string `json:"file_name"`
}

func (h *MessageHandler) SendMedia(c echo.Context) error {
	var req sendMediaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	record, err := h.sender.SendMedia(c.Request().Context(), c.Param("channelId"), delivery.MediaRequest{
		To:       req.To,
		Payload:  req.Payload,
		Caption:  req.Caption,
		Kind:     media.Kind(req.MediaType),
		FileName: req.FileName,
	})
	if err != nil {
		h.logger.Warn("media send rejected",
			slog.String("channel_id", c.Param("channelId")),
			slog.String("media_type", req.MediaType),
			slog.String("error", gateway.Redact(err.Error())),
		)
		return deliveryHTTPError(err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (h *MessageHandler) SessionHistory(c echo.Context) error {
	records, err := h.history.QueryBySession(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, records)
}
