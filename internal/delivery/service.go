package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/media"
	"github.com/zapdeskhq/zapdesk/internal/message"
	"github.com/zapdeskhq/zapdesk/internal/resilience"
)

// InstanceResolver maps a dashboard channel to its gateway instance.
type InstanceResolver interface {
	GetInstanceForChannel(ctx context.Context, channelID string) (gateway.Instance, bool, error)
}

// GatewayClient is the slice of the gateway API the send path uses.
type GatewayClient interface {
	SendText(ctx context.Context, inst gateway.Instance, req gateway.SendTextRequest) (gateway.SendResponse, error)
	SendMedia(ctx context.Context, inst gateway.Instance, req gateway.SendMediaRequest) (gateway.SendResponse, error)
	ConnectionState(ctx context.Context, inst gateway.Instance) (string, error)
	Restart(ctx context.Context, inst gateway.Instance) error
}

// MediaPipeline normalizes and compresses media payloads before dispatch.
type MediaPipeline interface {
	Normalize(ctx context.Context, content string, hint media.Kind) (media.Asset, error)
	CompressAudio(ctx context.Context, asset media.Asset) (media.Asset, error)
	CompressVideo(ctx context.Context, asset media.Asset, progress func(percent int)) (media.Asset, error)
}

// MessageStore persists the delivered message for the dashboard history.
type MessageStore interface {
	Insert(ctx context.Context, record message.Record) (message.Record, error)
}

// MediaRequest is one outbound media message.
type MediaRequest struct {
	To       string
	Payload  string
	Caption  string
	Kind     media.Kind
	FileName string
}

// Service drives the outbound send path: resolve the channel's instance,
// verify it is live (restarting once if not), normalize the payload, dispatch
// through the retry executor and per-instance circuit breaker, and persist
// the delivered message.
type Service struct {
	logger           *slog.Logger
	resolver         InstanceResolver
	client           GatewayClient
	pipeline         MediaPipeline
	store            MessageStore
	breakers         *resilience.Breakers
	countryCode      string
	restartPollDelay time.Duration
}

// NewService creates the delivery service.
func NewService(
	log *slog.Logger,
	cfg config.DeliveryConfig,
	resolver InstanceResolver,
	client GatewayClient,
	pipeline MediaPipeline,
	store MessageStore,
	breakers *resilience.Breakers,
) *Service {
	if log == nil {
		log = slog.Default()
	}
	countryCode := cfg.DefaultCountryCode
	if countryCode == "" {
		countryCode = config.DefaultCountryCode
	}
	return &Service{
		logger:           log.With(slog.String("service", "delivery")),
		resolver:         resolver,
		client:           client,
		pipeline:         pipeline,
		store:            store,
		breakers:         breakers,
		countryCode:      countryCode,
		restartPollDelay: cfg.RestartPollDelay(),
	}
}

// SendText delivers a plain text message on behalf of the channel and
// persists the resulting record.
func (s *Service) SendText(ctx context.Context, channelID, to, text string) (message.Record, error) {
	inst, err := s.resolveLiveInstance(ctx, channelID)
	if err != nil {
		return message.Record{}, err
	}
	number := FormatPhoneNumber(to, s.countryCode)

	result := resilience.ExecuteWithBreaker(ctx, s.breakers, inst.Name,
		func(ctx context.Context) (gateway.SendResponse, error) {
			return s.client.SendText(ctx, inst, gateway.SendTextRequest{Number: number, Text: text})
		},
		s.dispatchPolicy(inst.Name),
	)
	if !result.OK() {
		s.logger.Error("text delivery failed",
			slog.String("channel_id", channelID),
			slog.String("instance", inst.Name),
			slog.Int("attempts", result.Attempts),
			slog.String("error", gateway.Redact(result.Err.Error())),
		)
		return message.Record{}, fmt.Errorf("send text: %w", result.Err)
	}

	record := message.Record{
		SessionID:   number,
		ChannelID:   channelID,
		SenderType:  message.SenderAgent,
		MessageType: message.TypeText,
		Content:     text,
		RemoteID:    result.Value.Key.ID,
		SentAt:      localTimestamp(),
	}
	return s.persist(ctx, record, result.Attempts)
}

// SendMedia normalizes the payload, compresses audio and video toward the
// configured targets, delivers the message, and persists the record.
func (s *Service) SendMedia(ctx context.Context, channelID string, req MediaRequest) (message.Record, error) {
	inst, err := s.resolveLiveInstance(ctx, channelID)
	if err != nil {
		return message.Record{}, err
	}

	asset, err := s.pipeline.Normalize(ctx, req.Payload, req.Kind)
	if err != nil {
		return message.Record{}, fmt.Errorf("normalize media: %w", err)
	}
	switch req.Kind {
	case media.KindAudio:
		asset, err = s.pipeline.CompressAudio(ctx, asset)
	case media.KindVideo:
		asset, err = s.pipeline.CompressVideo(ctx, asset, func(percent int) {
			s.logger.Debug("video compression progress",
				slog.String("channel_id", channelID),
				slog.Int("percent", percent),
			)
		})
	}
	if err != nil {
		return message.Record{}, fmt.Errorf("compress media: %w", err)
	}

	number := FormatPhoneNumber(req.To, s.countryCode)
	payload := gateway.SendMediaRequest{
		Number:    number,
		MediaType: string(req.Kind),
		MimeType:  asset.Mime,
		Caption:   req.Caption,
		Media:     asset.Base64,
		FileName:  fileNameFor(req, asset),
	}
	result := resilience.ExecuteWithBreaker(ctx, s.breakers, inst.Name,
		func(ctx context.Context) (gateway.SendResponse, error) {
			return s.client.SendMedia(ctx, inst, payload)
		},
		s.dispatchPolicy(inst.Name),
	)
	if !result.OK() {
		s.logger.Error("media delivery failed",
			slog.String("channel_id", channelID),
			slog.String("instance", inst.Name),
			slog.String("media_type", string(req.Kind)),
			slog.String("size", asset.SizeLabel),
			slog.Int("attempts", result.Attempts),
			slog.String("error", gateway.Redact(result.Err.Error())),
		)
		return message.Record{}, fmt.Errorf("send media: %w", result.Err)
	}

	record := message.Record{
		SessionID:   number,
		ChannelID:   channelID,
		SenderType:  message.SenderAgent,
		MessageType: messageTypeFor(req.Kind),
		Content:     req.Caption,
		MediaMime:   asset.Mime,
		Caption:     req.Caption,
		RemoteID:    result.Value.Key.ID,
		SentAt:      localTimestamp(),
	}
	return s.persist(ctx, record, result.Attempts)
}

// resolveLiveInstance looks up the channel's instance and verifies the
// gateway session is open, restarting it once and re-polling if not.
func (s *Service) resolveLiveInstance(ctx context.Context, channelID string) (gateway.Instance, error) {
	inst, ok, err := s.resolver.GetInstanceForChannel(ctx, channelID)
	if err != nil {
		return gateway.Instance{}, fmt.Errorf("resolve channel %s: %w", channelID, err)
	}
	if !ok {
		return gateway.Instance{}, fmt.Errorf("channel %s: %w", channelID, instance.ErrChannelNotMapped)
	}

	state, err := s.client.ConnectionState(ctx, inst)
	if err != nil {
		return gateway.Instance{}, fmt.Errorf("connection state for %s: %w", inst.Name, err)
	}
	if state == gateway.ConnectionStateOpen {
		return inst, nil
	}

	s.logger.Warn("instance not connected, restarting",
		slog.String("instance", inst.Name),
		slog.String("state", state),
	)
	if err := s.client.Restart(ctx, inst); err != nil {
		return gateway.Instance{}, fmt.Errorf("restart %s: %w", inst.Name, err)
	}
	if err := sleepCtx(ctx, s.restartPollDelay); err != nil {
		return gateway.Instance{}, err
	}
	state, err = s.client.ConnectionState(ctx, inst)
	if err != nil {
		return gateway.Instance{}, fmt.Errorf("connection state for %s: %w", inst.Name, err)
	}
	if state != gateway.ConnectionStateOpen {
		return gateway.Instance{}, &ConnectionError{Instance: inst.Name, State: state}
	}
	return inst, nil
}

func (s *Service) dispatchPolicy(instanceName string) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.OnRetry = func(attempt int, err error) {
		s.logger.Warn("retrying gateway dispatch",
			slog.String("instance", instanceName),
			slog.Int("attempt", attempt),
			slog.String("error", gateway.Redact(err.Error())),
		)
	}
	return policy
}

func (s *Service) persist(ctx context.Context, record message.Record, attempts int) (message.Record, error) {
	created, err := s.store.Insert(ctx, record)
	if err != nil {
		return message.Record{}, fmt.Errorf("persist message: %w", err)
	}
	s.logger.Info("message delivered",
		slog.String("channel_id", record.ChannelID),
		slog.String("session_id", record.SessionID),
		slog.String("message_type", string(record.MessageType)),
		slog.Int("attempts", attempts),
	)
	return created, nil
}

func messageTypeFor(kind media.Kind) message.Type {
	switch kind {
	case media.KindImage:
		return message.TypeImage
	case media.KindAudio:
		return message.TypeAudio
	case media.KindVideo:
		return message.TypeVideo
	case media.KindSticker:
		return message.TypeSticker
	default:
		return message.TypeDocument
	}
}

func fileNameFor(req MediaRequest, asset media.Asset) string {
	if req.FileName != "" {
		return req.FileName
	}
	if req.Kind == media.KindDocument {
		if asset.Mime == "application/pdf" {
			return "document.pdf"
		}
		return "document"
	}
	return ""
}

// localTimestamp is the wall-clock send time in the dashboard's local zone,
// without offset, matching the history view's display format.
func localTimestamp() string {
	return time.Now().Format("2006-01-02T15:04:05")
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
