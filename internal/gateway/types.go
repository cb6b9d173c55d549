// Package gateway implements the REST client for the Evolution messaging
// gateway. Each channel is bound to one gateway instance (base URL, API key,
// instance name); all calls here operate on a single instance.
package gateway

// Instance identifies one gateway-side WhatsApp session.
type Instance struct {
	BaseURL string
	APIKey  string
	Name    string
}

// ConnectionStateOpen is the gateway state for a live, usable instance.
const ConnectionStateOpen = "open"

// SendTextRequest is the payload for POST /message/sendText/{instance}.
type SendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendMediaRequest is the payload for POST /message/sendMedia/{instance}.
type SendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName,omitempty"`
}

// MessageKey identifies a message on the gateway side.
type MessageKey struct {
	ID        string `json:"id"`
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
}

// SendResponse is the gateway acknowledgment for a delivered message.
type SendResponse struct {
	Key    MessageKey `json:"key"`
	Status string     `json:"status"`
}

type connectionStateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// InstanceInfo describes one instance in the gateway's listing endpoint.
type InstanceInfo struct {
	InstanceName string `json:"instanceName"`
	InstanceID   string `json:"instanceId"`
	Status       string `json:"status"`
}

type fetchInstancesEntry struct {
	Instance InstanceInfo `json:"instance"`
}

// CreateInstanceRequest is the payload for POST /instance/create.
type CreateInstanceRequest struct {
	InstanceName string `json:"instanceName"`
	Integration  string `json:"integration"`
	Token        string `json:"token,omitempty"`
}

// WebsocketConfig enables the realtime socket and selects the delivered
// event set for an instance.
type WebsocketConfig struct {
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events"`
}

type websocketConfigEnvelope struct {
	Websocket WebsocketConfig `json:"websocket"`
}

// WebhookConfig is the payload for POST /webhook/set/{instance}.
type WebhookConfig struct {
	URL     string   `json:"url"`
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events,omitempty"`
}

type webhookConfigEnvelope struct {
	Webhook WebhookConfig `json:"webhook"`
}
