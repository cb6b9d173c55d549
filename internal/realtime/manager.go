package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
)

// MappingRegistry is the slice of the instance registry the manager uses.
type MappingRegistry interface {
	GetInstanceForChannel(ctx context.Context, channelID string) (gateway.Instance, bool, error)
	ListActiveMappings(ctx context.Context) ([]instance.Mapping, error)
	DeactivateMapping(ctx context.Context, channelID string) error
}

// SocketConfigurer enables the gateway's realtime socket for an instance.
type SocketConfigurer interface {
	SetWebsocket(ctx context.Context, inst gateway.Instance, cfg gateway.WebsocketConfig) error
}

// ConnectionRecord describes one managed connection for listing endpoints.
type ConnectionRecord struct {
	ChannelID    string `json:"channel_id"`
	InstanceName string `json:"instance_name"`
	State        string `json:"state"`
	IsActive     bool   `json:"is_active"`
}

// Manager owns one realtime connection per channel. All state lives on the
// manager instance; the composition root constructs exactly one.
type Manager struct {
	logger        *slog.Logger
	registry      MappingRegistry
	configurer    SocketConfigurer
	wsBaseURL     string
	reconnectBase time.Duration
	reconcileSpec string

	mu          sync.Mutex
	conns       map[string]*connection
	pending     map[string]struct{}
	subscribers []Subscriber
	cron        *cron.Cron
}

// NewManager creates the realtime connection manager.
func NewManager(log *slog.Logger, cfg config.Config, registry MappingRegistry, configurer SocketConfigurer) *Manager {
	if log == nil {
		log = slog.Default()
	}
	interval := cfg.Delivery.ReconcileInterval
	if interval == "" {
		interval = config.DefaultReconcileInterval
	}
	return &Manager{
		logger:        log.With(slog.String("service", "realtime")),
		registry:      registry,
		configurer:    configurer,
		wsBaseURL:     cfg.Gateway.WSBaseURL,
		reconnectBase: defaultReconnectBase,
		reconcileSpec: "@every " + interval,
		conns:         map[string]*connection{},
		pending:       map[string]struct{}{},
	}
}

// Subscribe registers a subscriber for all normalized events.
func (m *Manager) Subscribe(sub Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, sub)
}

func (m *Manager) publish(event Event) {
	m.mu.Lock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	if event.Kind == EventConnectionLost {
		m.dropConnection(event.ChannelID)
	}
	for _, sub := range subs {
		sub.HandleRealtimeEvent(event)
	}
}

// Connect opens the channel's realtime connection. An already-active or
// in-flight connection is a no-op success, so concurrent callers (the
// reconcile sweep racing an HTTP connect) never open a second socket for the
// same channel. The gateway's socket is (re)configured with the needed event
// set before dialing.
func (m *Manager) Connect(ctx context.Context, channelID string) error {
	m.mu.Lock()
	if existing, ok := m.conns[channelID]; ok && existing.isActive() {
		m.mu.Unlock()
		return nil
	}
	if _, inFlight := m.pending[channelID]; inFlight {
		m.mu.Unlock()
		return nil
	}
	m.pending[channelID] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.pending, channelID)
		m.mu.Unlock()
	}()

	inst, ok, err := m.registry.GetInstanceForChannel(ctx, channelID)
	if err != nil {
		return fmt.Errorf("resolve channel %s: %w", channelID, err)
	}
	if !ok {
		return fmt.Errorf("channel %s: %w", channelID, instance.ErrChannelNotMapped)
	}

	if err := m.configurer.SetWebsocket(ctx, inst, gateway.WebsocketConfig{
		Enabled: true,
		Events:  EnabledEvents,
	}); err != nil {
		return fmt.Errorf("configure socket for %s: %w", inst.Name, err)
	}

	conn := newConnection(m.logger, channelID, inst, m.wsBaseURL, m.reconnectBase, m.publish)
	if err := conn.start(ctx); err != nil {
		return fmt.Errorf("open socket for %s: %w", inst.Name, err)
	}

	m.mu.Lock()
	m.conns[channelID] = conn
	m.mu.Unlock()
	m.logger.Info("channel connected", slog.String("channel_id", channelID), slog.String("instance", inst.Name))
	return nil
}

// Disconnect closes the channel's connection and deactivates its mapping.
func (m *Manager) Disconnect(ctx context.Context, channelID string) error {
	m.mu.Lock()
	conn, ok := m.conns[channelID]
	delete(m.conns, channelID)
	m.mu.Unlock()

	if ok {
		conn.close()
	}
	if err := m.registry.DeactivateMapping(ctx, channelID); err != nil {
		return fmt.Errorf("deactivate mapping for %s: %w", channelID, err)
	}
	m.logger.Info("channel disconnected", slog.String("channel_id", channelID))
	return nil
}

// IsConnected reports whether the channel has a live connection.
func (m *Manager) IsConnected(channelID string) bool {
	m.mu.Lock()
	conn, ok := m.conns[channelID]
	m.mu.Unlock()
	return ok && conn.currentState() == stateConnected
}

// ListConnections returns a snapshot of all managed connections.
func (m *Manager) ListConnections() []ConnectionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := make([]ConnectionRecord, 0, len(m.conns))
	for channelID, conn := range m.conns {
		records = append(records, ConnectionRecord{
			ChannelID:    channelID,
			InstanceName: conn.inst.Name,
			State:        string(conn.currentState()),
			IsActive:     conn.isActive(),
		})
	}
	return records
}

// RestoreConnections re-connects every persisted active mapping, typically at
// process startup. Individual failures are logged and do not abort the rest.
func (m *Manager) RestoreConnections(ctx context.Context) error {
	mappings, err := m.registry.ListActiveMappings(ctx)
	if err != nil {
		return fmt.Errorf("list active mappings: %w", err)
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, mapping := range mappings {
		group.Go(func() error {
			if err := m.Connect(groupCtx, mapping.ChannelID); err != nil {
				m.logger.Warn("restore failed",
					slog.String("channel_id", mapping.ChannelID),
					slog.String("instance", mapping.InstanceName),
					slog.String("error", gateway.Redact(err.Error())),
				)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	m.logger.Info("active mappings restored", slog.Int("count", len(mappings)))
	return nil
}

// StartReconciler runs a periodic sweep re-connecting any active mapping
// whose connection has dropped.
func (m *Manager) StartReconciler(ctx context.Context) error {
	runner := cron.New()
	_, err := runner.AddFunc(m.reconcileSpec, func() {
		m.reconcile(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule reconciler: %w", err)
	}
	runner.Start()

	m.mu.Lock()
	m.cron = runner
	m.mu.Unlock()
	m.logger.Info("reconciler started", slog.String("schedule", m.reconcileSpec))
	return nil
}

func (m *Manager) reconcile(ctx context.Context) {
	mappings, err := m.registry.ListActiveMappings(ctx)
	if err != nil {
		m.logger.Warn("reconcile sweep failed", slog.String("error", err.Error()))
		return
	}
	for _, mapping := range mappings {
		if m.IsConnected(mapping.ChannelID) {
			continue
		}
		if err := m.Connect(ctx, mapping.ChannelID); err != nil {
			m.logger.Warn("reconcile connect failed",
				slog.String("channel_id", mapping.ChannelID),
				slog.String("error", gateway.Redact(err.Error())),
			)
		}
	}
}

// Shutdown stops the reconciler and closes every connection.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	runner := m.cron
	m.cron = nil
	conns := make([]*connection, 0, len(m.conns))
	for channelID, conn := range m.conns {
		conns = append(conns, conn)
		delete(m.conns, channelID)
	}
	m.mu.Unlock()

	if runner != nil {
		runner.Stop()
	}
	for _, conn := range conns {
		conn.close()
	}
	m.logger.Info("realtime manager stopped")
}

func (m *Manager) dropConnection(channelID string) {
	m.mu.Lock()
	delete(m.conns, channelID)
	m.mu.Unlock()
}
