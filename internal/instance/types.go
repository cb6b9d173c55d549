// Package instance maintains the channel-to-gateway-instance mapping: which
// Evolution instance (base URL, API key, instance name) serves each dashboard
// channel, and whether that binding is currently active.
package instance

import (
	"errors"
	"time"

	"github.com/zapdeskhq/zapdesk/internal/gateway"
)

// ErrChannelNotMapped indicates the channel has no active instance mapping.
// It is terminal: delivery must not retry it.
var ErrChannelNotMapped = errors.New("channel has no active instance mapping")

// Mapping binds a dashboard channel to one gateway instance. At most one
// mapping per channel is active; creating a new one deactivates the rest.
type Mapping struct {
	ID           string    `json:"id"`
	ChannelID    string    `json:"channel_id"`
	ChannelName  string    `json:"channel_name"`
	InstanceID   string    `json:"instance_id"`
	InstanceName string    `json:"instance_name"`
	BaseURL      string    `json:"base_url"`
	APIKey       string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Instance returns the gateway coordinates of this mapping.
func (m Mapping) Instance() gateway.Instance {
	return gateway.Instance{
		BaseURL: m.BaseURL,
		APIKey:  m.APIKey,
		Name:    m.InstanceName,
	}
}
