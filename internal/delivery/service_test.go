package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapdeskhq/zapdesk/internal/config"
	"github.com/zapdeskhq/zapdesk/internal/gateway"
	"github.com/zapdeskhq/zapdesk/internal/instance"
	"github.com/zapdeskhq/zapdesk/internal/media"
	"github.com/zapdeskhq/zapdesk/internal/message"
	"github.com/zapdeskhq/zapdesk/internal/resilience"
)

type stubResolver struct {
	inst gateway.Instance
	ok   bool
	err  error
}

func (s *stubResolver) GetInstanceForChannel(context.Context, string) (gateway.Instance, bool, error) {
	return s.inst, s.ok, s.err
}

type stubClient struct {
	states     []string
	stateCalls int
	restarts   int

	textCalls int
	textErr   error
	lastText  gateway.SendTextRequest

	mediaCalls int
	mediaErr   error
	lastMedia  gateway.SendMediaRequest
}

func (c *stubClient) ConnectionState(context.Context, gateway.Instance) (string, error) {
	state := "open"
	if c.stateCalls < len(c.states) {
		state = c.states[c.stateCalls]
	}
	c.stateCalls++
	return state, nil
}

func (c *stubClient) Restart(context.Context, gateway.Instance) error {
	c.restarts++
	return nil
}

func (c *stubClient) SendText(_ context.Context, _ gateway.Instance, req gateway.SendTextRequest) (gateway.SendResponse, error) {
	c.textCalls++
	c.lastText = req
	if c.textErr != nil {
		return gateway.SendResponse{}, c.textErr
	}
	return gateway.SendResponse{Key: gateway.MessageKey{ID: "MSG1"}, Status: "PENDING"}, nil
}

func (c *stubClient) SendMedia(_ context.Context, _ gateway.Instance, req gateway.SendMediaRequest) (gateway.SendResponse, error) {
	c.mediaCalls++
	c.lastMedia = req
	if c.mediaErr != nil {
		return gateway.SendResponse{}, c.mediaErr
	}
	return gateway.SendResponse{Key: gateway.MessageKey{ID: "MSG2"}, Status: "PENDING"}, nil
}

type stubPipeline struct {
	asset          media.Asset
	normalizeErr   error
	audioCalls     int
	videoCalls     int
	normalizeCalls int
}

func (p *stubPipeline) Normalize(_ context.Context, _ string, _ media.Kind) (media.Asset, error) {
	p.normalizeCalls++
	if p.normalizeErr != nil {
		return media.Asset{}, p.normalizeErr
	}
	return p.asset, nil
}

func (p *stubPipeline) CompressAudio(_ context.Context, asset media.Asset) (media.Asset, error) {
	p.audioCalls++
	return asset, nil
}

func (p *stubPipeline) CompressVideo(_ context.Context, asset media.Asset, progress func(int)) (media.Asset, error) {
	p.videoCalls++
	if progress != nil {
		progress(100)
	}
	return asset, nil
}

type stubStore struct {
	inserted  []message.Record
	insertErr error
}

func (s *stubStore) Insert(_ context.Context, record message.Record) (message.Record, error) {
	if s.insertErr != nil {
		return message.Record{}, s.insertErr
	}
	record.ID = "a3c8b7aa-0000-0000-0000-000000000001"
	record.CreatedAt = time.Now()
	s.inserted = append(s.inserted, record)
	return record, nil
}

func newTestService(t *testing.T, client *stubClient, pipeline *stubPipeline, store *stubStore) *Service {
	t.Helper()
	resolver := &stubResolver{
		inst: gateway.Instance{BaseURL: "http://gw.local", APIKey: "secret", Name: "store-01"},
		ok:   true,
	}
	svc := NewService(nil, config.DeliveryConfig{}, resolver, client, pipeline, store, resilience.NewBreakers())
	svc.restartPollDelay = time.Millisecond
	return svc
}

func TestSendTextDeliversAndPersists(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	store := &stubStore{}
	svc := newTestService(t, client, &stubPipeline{}, store)

	record, err := svc.SendText(context.Background(), "chan-1", "+55 11 91234-5678", "hello")
	require.NoError(t, err)

	assert.Equal(t, "5511912345678", client.lastText.Number)
	assert.Equal(t, "hello", client.lastText.Text)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, "5511912345678", record.SessionID)
	assert.Equal(t, message.SenderAgent, record.SenderType)
	assert.Equal(t, message.TypeText, record.MessageType)
	assert.Equal(t, "MSG1", record.RemoteID)
	assert.NotEmpty(t, record.SentAt)
}

func TestSendTextUnmappedChannel(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	svc := newTestService(t, client, &stubPipeline{}, &stubStore{})
	svc.resolver = &stubResolver{ok: false}

	_, err := svc.SendText(context.Background(), "chan-9", "11912345678", "hello")
	require.ErrorIs(t, err, instance.ErrChannelNotMapped)
	assert.Zero(t, client.textCalls)
}

func TestSendTextRestartsDisconnectedInstance(t *testing.T) {
	t.Parallel()
	client := &stubClient{states: []string{"close", "open"}}
	store := &stubStore{}
	svc := newTestService(t, client, &stubPipeline{}, store)

	_, err := svc.SendText(context.Background(), "chan-1", "11912345678", "hello")
	require.NoError(t, err)
	assert.Equal(t, 1, client.restarts)
	assert.Equal(t, 2, client.stateCalls)
	assert.Equal(t, 1, client.textCalls)
}

func TestSendTextConnectionStaysDown(t *testing.T) {
	t.Parallel()
	client := &stubClient{states: []string{"close", "connecting"}}
	svc := newTestService(t, client, &stubPipeline{}, &stubStore{})

	_, err := svc.SendText(context.Background(), "chan-1", "11912345678", "hello")
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "store-01", connErr.Instance)
	assert.Equal(t, "connecting", connErr.State)
	assert.Zero(t, client.textCalls)
}

func TestSendTextClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	client := &stubClient{textErr: &gateway.APIError{Status: 400, Body: "bad number"}}
	store := &stubStore{}
	svc := newTestService(t, client, &stubPipeline{}, store)

	_, err := svc.SendText(context.Background(), "chan-1", "11912345678", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, client.textCalls)
	assert.Empty(t, store.inserted)
}

func TestSendTextRejectedByOpenCircuit(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	svc := newTestService(t, client, &stubPipeline{}, &stubStore{})
	for range 5 {
		svc.breakers.Record("store-01", false)
	}

	_, err := svc.SendText(context.Background(), "chan-1", "11912345678", "hello")
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Zero(t, client.textCalls)
}

func TestSendMediaAudioGoesThroughCompression(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	store := &stubStore{}
	pipeline := &stubPipeline{asset: media.Asset{
		Mime:      "audio/ogg",
		Base64:    "b2dnLWJ5dGVz",
		SizeBytes: 9,
		SizeLabel: "9 B",
	}}
	svc := newTestService(t, client, pipeline, store)

	record, err := svc.SendMedia(context.Background(), "chan-1", MediaRequest{
		To:      "11912345678",
		Payload: "b2dnLWJ5dGVz",
		Kind:    media.KindAudio,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, pipeline.normalizeCalls)
	assert.Equal(t, 1, pipeline.audioCalls)
	assert.Zero(t, pipeline.videoCalls)
	assert.Equal(t, "audio", client.lastMedia.MediaType)
	assert.Equal(t, "audio/ogg", client.lastMedia.MimeType)
	assert.Equal(t, "b2dnLWJ5dGVz", client.lastMedia.Media)
	assert.Equal(t, message.TypeAudio, record.MessageType)
	assert.Equal(t, "audio/ogg", record.MediaMime)
}

func TestSendMediaDocumentGetsFileName(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	pipeline := &stubPipeline{asset: media.Asset{Mime: "application/pdf", Base64: "JVBERi0x", SizeBytes: 6}}
	svc := newTestService(t, client, pipeline, &stubStore{})

	_, err := svc.SendMedia(context.Background(), "chan-1", MediaRequest{
		To:      "11912345678",
		Payload: "JVBERi0x",
		Caption: "contract",
		Kind:    media.KindDocument,
	})
	require.NoError(t, err)
	assert.Equal(t, "document.pdf", client.lastMedia.FileName)
	assert.Equal(t, "contract", client.lastMedia.Caption)
	assert.Zero(t, pipeline.audioCalls)
}

func TestSendMediaNormalizeFailureSkipsDispatch(t *testing.T) {
	t.Parallel()
	client := &stubClient{}
	pipeline := &stubPipeline{normalizeErr: media.ErrInvalidBase64}
	svc := newTestService(t, client, pipeline, &stubStore{})

	_, err := svc.SendMedia(context.Background(), "chan-1", MediaRequest{
		To:      "11912345678",
		Payload: "not base64!!",
		Kind:    media.KindImage,
	})
	require.ErrorIs(t, err, media.ErrInvalidBase64)
	assert.Zero(t, client.mediaCalls)
}

func TestUserMessageTaxonomy(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "unmapped channel",
			err:  instance.ErrChannelNotMapped,
			want: "This channel has no WhatsApp instance configured.",
		},
		{
			name: "circuit open",
			err:  resilience.ErrCircuitOpen,
			want: "The WhatsApp gateway is temporarily unavailable. Please wait a minute and try again.",
		},
		{
			name: "disconnected instance",
			err:  &ConnectionError{Instance: "store-01", State: "close"},
			want: "The WhatsApp instance is disconnected. Reconnect it and try again.",
		},
		{
			name: "oversized payload",
			err:  media.ErrOversizedPayload,
			want: "The attached file is too large to send.",
		},
		{
			name: "gateway 4xx",
			err:  &gateway.APIError{Status: 400, Body: "bad request"},
			want: "The gateway rejected this message. Check the recipient number.",
		},
		{
			name: "unknown error",
			err:  errors.New("boom"),
			want: "The message could not be delivered. Please try again.",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, UserMessage(tc.err))
		})
	}
}
