package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
)

// InstanceAdmin is the gateway surface for instance administration.
type InstanceAdmin interface {
	CreateInstance(ctx context.Context, baseURL, apiKey string, req gateway.CreateInstanceRequest) (gateway.InstanceInfo, error)
	DeleteInstance(ctx context.Context, inst gateway.Instance) error
	Logout(ctx context.Context, inst gateway.Instance) error
	FetchInstances(ctx context.Context, baseURL, apiKey string) ([]gateway.InstanceInfo, error)
}

type InstanceHandler struct {
	registry *instance.Registry
	admin    InstanceAdmin
	defaults config.GatewayConfig
	logger   *slog.Logger
}

func NewInstanceHandler(log *slog.Logger, registry *instance.Registry, admin InstanceAdmin, defaults config.GatewayConfig) *InstanceHandler {
	return &InstanceHandler{
		registry: registry,
		admin:    admin,
		defaults: defaults,
		logger:   log.With(slog.String("handler", "instances")),
	}
}

func (h *InstanceHandler) Register(e *echo.Echo) {
	e.GET("/instances", h.ListGatewayInstances)
	e.POST("/instances", h.CreateGatewayInstance)

	group := e.Group("/channels/:channelId/mapping")
	group.GET("", h.GetMapping)
	group.PUT("", h.UpsertMapping)
	group.DELETE("", h.RemoveMapping)
}

func (h *InstanceHandler) ListGatewayInstances(c echo.Context) error {
	items, err := h.admin.FetchInstances(c.Request().Context(), h.defaults.BaseURL, h.defaults.APIKey)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, gateway.Redact(err.Error()))
	}
	return c.JSON(http.StatusOK, items)
}

type createInstanceRequest struct {
	InstanceName string `json:"instance_name" validate:"required"`
	Token        string `json:"token"`
}

func (h *InstanceHandler) CreateGatewayInstance(c echo.Context) error {
	var req createInstanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	exists, err := h.registry.CheckInstanceExists(c.Request().Context(), h.defaults.BaseURL, h.defaults.APIKey, req.InstanceName)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, gateway.Redact(err.Error()))
	}
	if exists {
		return echo.NewHTTPError(http.StatusConflict, "instance already exists on the gateway")
	}
	info, err := h.admin.CreateInstance(c.Request().Context(), h.defaults.BaseURL, h.defaults.APIKey, gateway.CreateInstanceRequest{
		InstanceName: req.InstanceName,
		Integration:  "WHATSAPP-BAILEYS",
		Token:        req.Token,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, gateway.Redact(err.Error()))
	}
	h.logger.Info("gateway instance created", slog.String("instance", info.InstanceName))
	return c.JSON(http.StatusCreated, info)
}

func (h *InstanceHandler) GetMapping(c echo.Context) error {
	mapping, ok, err := h.registry.GetActiveMapping(c.Request().Context(), c.Param("channelId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "channel has no active mapping")
	}
	return c.JSON(http.StatusOK, mapping)
}

type upsertMappingRequest struct {
	ChannelName  string `json:"channel_name"`
	InstanceID   string `json:"instance_id"`
	InstanceName string `json:"instance_name" validate:"required"`
	BaseURL      string `json:"base_url" validate:"required,url"`
	APIKey       string `json:"api_key" validate:"required"`
}

func (h *InstanceHandler) UpsertMapping(c echo.Context) error {
	var req upsertMappingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	mapping, err := h.registry.CreateMapping(c.Request().Context(), instance.Mapping{
		ChannelID:    c.Param("channelId"),
		ChannelName:  req.ChannelName,
		InstanceID:   req.InstanceID,
		InstanceName: req.InstanceName,
		BaseURL:      req.BaseURL,
		APIKey:       req.APIKey,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, mapping)
}

func (h *InstanceHandler) RemoveMapping(c echo.Context) error {
	if err := h.registry.DeactivateMapping(c.Request().Context(), c.Param("channelId")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
