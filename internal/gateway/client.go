package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client calls the Evolution gateway REST API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client with an explicit request timeout.
func NewClient(log *slog.Logger, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("component", "gateway")),
	}
}

// SendText delivers a plain text message through the instance.
func (c *Client) SendText(ctx context.Context, inst Instance, req SendTextRequest) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, http.MethodPost, inst.BaseURL, "/message/sendText/"+inst.Name, inst.APIKey, req, &resp)
	return resp, err
}

// SendMedia delivers a base64 media message through the instance.
func (c *Client) SendMedia(ctx context.Context, inst Instance, req SendMediaRequest) (SendResponse, error) {
	var resp SendResponse
	err := c.do(ctx, http.MethodPost, inst.BaseURL, "/message/sendMedia/"+inst.Name, inst.APIKey, req, &resp)
	return resp, err
}

// ConnectionState returns the instance's gateway connection state
// (e.g. "open", "connecting", "close").
func (c *Client) ConnectionState(ctx context.Context, inst Instance) (string, error) {
	var resp connectionStateResponse
	if err := c.do(ctx, http.MethodGet, inst.BaseURL, "/instance/connectionState/"+inst.Name, inst.APIKey, nil, &resp); err != nil {
		return "", err
	}
	return resp.Instance.State, nil
}

// Restart asks the gateway to restart the instance session.
func (c *Client) Restart(ctx context.Context, inst Instance) error {
	return c.do(ctx, http.MethodPut, inst.BaseURL, "/instance/restart/"+inst.Name, inst.APIKey, nil, nil)
}

// Logout disconnects the instance's WhatsApp session on the gateway.
func (c *Client) Logout(ctx context.Context, inst Instance) error {
	return c.do(ctx, http.MethodDelete, inst.BaseURL, "/instance/logout/"+inst.Name, inst.APIKey, nil, nil)
}

// CreateInstance registers a new instance on the gateway.
func (c *Client) CreateInstance(ctx context.Context, baseURL, apiKey string, req CreateInstanceRequest) (InstanceInfo, error) {
	var resp struct {
		Instance InstanceInfo `json:"instance"`
	}
	if err := c.do(ctx, http.MethodPost, baseURL, "/instance/create", apiKey, req, &resp); err != nil {
		return InstanceInfo{}, err
	}
	return resp.Instance, nil
}

// DeleteInstance removes the instance from the gateway.
func (c *Client) DeleteInstance(ctx context.Context, inst Instance) error {
	return c.do(ctx, http.MethodDelete, inst.BaseURL, "/instance/delete/"+inst.Name, inst.APIKey, nil, nil)
}

// FetchInstances lists all instances known to the gateway.
func (c *Client) FetchInstances(ctx context.Context, baseURL, apiKey string) ([]InstanceInfo, error) {
	var entries []fetchInstancesEntry
	if err := c.do(ctx, http.MethodGet, baseURL, "/instance/fetchInstances", apiKey, nil, &entries); err != nil {
		return nil, err
	}
	items := make([]InstanceInfo, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entry.Instance)
	}
	return items, nil
}

// SetWebsocket enables the realtime socket and configures its event set.
func (c *Client) SetWebsocket(ctx context.Context, inst Instance, cfg WebsocketConfig) error {
	return c.do(ctx, http.MethodPost, inst.BaseURL, "/websocket/set/"+inst.Name, inst.APIKey, websocketConfigEnvelope{Websocket: cfg}, nil)
}

// FindWebsocket reads the current realtime socket configuration.
func (c *Client) FindWebsocket(ctx context.Context, inst Instance) (WebsocketConfig, error) {
	var resp websocketConfigEnvelope
	if err := c.do(ctx, http.MethodGet, inst.BaseURL, "/websocket/find/"+inst.Name, inst.APIKey, nil, &resp); err != nil {
		return WebsocketConfig{}, err
	}
	return resp.Websocket, nil
}

// SetWebhook configures the HTTP webhook fallback for an instance.
func (c *Client) SetWebhook(ctx context.Context, inst Instance, cfg WebhookConfig) error {
	return c.do(ctx, http.MethodPost, inst.BaseURL, "/webhook/set/"+inst.Name, inst.APIKey, webhookConfigEnvelope{Webhook: cfg}, nil)
}

// FindWebhook reads the current webhook configuration for an instance.
func (c *Client) FindWebhook(ctx context.Context, inst Instance) (WebhookConfig, error) {
	var resp webhookConfigEnvelope
	if err := c.do(ctx, http.MethodGet, inst.BaseURL, "/webhook/find/"+inst.Name, inst.APIKey, nil, &resp); err != nil {
		return WebhookConfig{}, err
	}
	return resp.Webhook, nil
}

func (c *Client) do(ctx context.Context, method, baseURL, path, apiKey string, body any, out any) error {
	endpoint := strings.TrimRight(baseURL, "/") + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("apikey", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, RedactURL(endpoint), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("gateway error response",
			slog.String("method", method),
			slog.String("url", RedactURL(endpoint)),
			slog.Int("status", resp.StatusCode),
		)
		return &APIError{Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
