package instance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zapdeskhq/zapdesk/internal/gateway"
)

// MappingStore is the persistence interface the registry depends on.
type MappingStore interface {
	GetActiveMapping(ctx context.Context, channelID string) (Mapping, bool, error)
	CreateMapping(ctx context.Context, mapping Mapping) (Mapping, error)
	DeactivateMapping(ctx context.Context, channelID string) error
	ListActiveMappings(ctx context.Context) ([]Mapping, error)
}

// InstanceLister queries the gateway's instance listing endpoint.
type InstanceLister interface {
	FetchInstances(ctx context.Context, baseURL, apiKey string) ([]gateway.InstanceInfo, error)
}

// Registry resolves dashboard channels to gateway instances.
type Registry struct {
	store  MappingStore
	client InstanceLister
	logger *slog.Logger
}

// NewRegistry creates a Registry over the mapping store and gateway client.
func NewRegistry(log *slog.Logger, store MappingStore, client InstanceLister) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		store:  store,
		client: client,
		logger: log.With(slog.String("component", "instance")),
	}
}

// GetInstanceForChannel returns the gateway coordinates of the channel's
// active mapping, or false if the channel is unmapped.
func (r *Registry) GetInstanceForChannel(ctx context.Context, channelID string) (gateway.Instance, bool, error) {
	mapping, ok, err := r.store.GetActiveMapping(ctx, channelID)
	if err != nil {
		return gateway.Instance{}, false, err
	}
	if !ok {
		return gateway.Instance{}, false, nil
	}
	return mapping.Instance(), true, nil
}

// GetActiveMapping returns the channel's full active mapping record.
func (r *Registry) GetActiveMapping(ctx context.Context, channelID string) (Mapping, bool, error) {
	return r.store.GetActiveMapping(ctx, channelID)
}

// CreateMapping validates and persists a new active mapping, deactivating any
// previous mapping for the channel.
func (r *Registry) CreateMapping(ctx context.Context, mapping Mapping) (Mapping, error) {
	mapping.InstanceName = strings.TrimSpace(mapping.InstanceName)
	mapping.BaseURL = strings.TrimRight(strings.TrimSpace(mapping.BaseURL), "/")
	if mapping.ChannelID == "" {
		return Mapping{}, fmt.Errorf("channel id is required")
	}
	if mapping.InstanceName == "" {
		return Mapping{}, fmt.Errorf("instance name is required")
	}
	if mapping.BaseURL == "" {
		return Mapping{}, fmt.Errorf("base url is required")
	}
	if mapping.APIKey == "" {
		return Mapping{}, fmt.Errorf("api key is required")
	}
	created, err := r.store.CreateMapping(ctx, mapping)
	if err != nil {
		return Mapping{}, err
	}
	r.logger.Info("mapping created",
		slog.String("channel_id", created.ChannelID),
		slog.String("instance", created.InstanceName),
	)
	return created, nil
}

// DeactivateMapping marks the channel's active mapping inactive.
func (r *Registry) DeactivateMapping(ctx context.Context, channelID string) error {
	return r.store.DeactivateMapping(ctx, channelID)
}

// ListActiveMappings returns all active mappings.
func (r *Registry) ListActiveMappings(ctx context.Context) ([]Mapping, error) {
	return r.store.ListActiveMappings(ctx)
}

// CheckInstanceExists queries the gateway's instance listing and matches by
// name. Used before importing an externally created instance.
func (r *Registry) CheckInstanceExists(ctx context.Context, baseURL, apiKey, name string) (bool, error) {
	items, err := r.client.FetchInstances(ctx, baseURL, apiKey)
	if err != nil {
		return false, fmt.Errorf("fetch instances: %w", err)
	}
	name = strings.TrimSpace(name)
	for _, item := range items {
		if item.InstanceName == name {
			return true, nil
		}
	}
	return false, nil
}
