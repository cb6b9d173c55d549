package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownVariant reports an inbound message whose payload matches none of
// the known WhatsApp message variants.
var ErrUnknownVariant = errors.New("unknown message variant")

// MessageKind identifies which variant of the message union was present.
type MessageKind string

const (
	MessageText     MessageKind = "text"
	MessageImage    MessageKind = "image"
	MessageAudio    MessageKind = "audio"
	MessageVideo    MessageKind = "video"
	MessageDocument MessageKind = "document"
	MessageSticker  MessageKind = "sticker"
	MessageLocation MessageKind = "location"
	MessageContact  MessageKind = "contact"
)

// Location is the decoded content of a location message.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Contact is the decoded content of a shared contact message.
type Contact struct {
	DisplayName string `json:"display_name"`
	VCard       string `json:"vcard"`
}

// InboundMessage is the uniform decoded shape of one inbound message. Text
// carries the body for text kinds and the caption for media kinds; media
// kinds additionally carry MimeType and a URL or inline base64 payload.
type InboundMessage struct {
	ID        string      `json:"id"`
	RemoteJID string      `json:"remote_jid"`
	FromMe    bool        `json:"from_me"`
	PushName  string      `json:"push_name,omitempty"`
	Kind      MessageKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	MimeType  string      `json:"mime_type,omitempty"`
	MediaURL  string      `json:"media_url,omitempty"`
	Base64    string      `json:"base64,omitempty"`
	Location  *Location   `json:"location,omitempty"`
	Contact   *Contact    `json:"contact,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`
}

type mediaVariant struct {
	Caption  string `json:"caption"`
	MimeType string `json:"mimetype"`
	URL      string `json:"url"`
	Base64   string `json:"base64"`
}

type upsertPayload struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJID string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
	} `json:"key"`
	PushName         string `json:"pushName"`
	MessageTimestamp int64  `json:"messageTimestamp"`
	Message          struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage    *mediaVariant `json:"imageMessage"`
		AudioMessage    *mediaVariant `json:"audioMessage"`
		VideoMessage    *mediaVariant `json:"videoMessage"`
		DocumentMessage *mediaVariant `json:"documentMessage"`
		StickerMessage  *mediaVariant `json:"stickerMessage"`
		LocationMessage *struct {
			Latitude  float64 `json:"degreesLatitude"`
			Longitude float64 `json:"degreesLongitude"`
			Name      string  `json:"name"`
			Address   string  `json:"address"`
		} `json:"locationMessage"`
		ContactMessage *struct {
			DisplayName string `json:"displayName"`
			VCard       string `json:"vcard"`
		} `json:"contactMessage"`
	} `json:"message"`
}

// DecodeInboundMessage classifies the variant present in a MESSAGES_UPSERT
// payload and extracts the uniform message shape.
func DecodeInboundMessage(data json.RawMessage) (InboundMessage, error) {
	var payload upsertPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return InboundMessage{}, fmt.Errorf("parse message payload: %w", err)
	}
	msg := InboundMessage{
		ID:        payload.Key.ID,
		RemoteJID: payload.Key.RemoteJID,
		FromMe:    payload.Key.FromMe,
		PushName:  payload.PushName,
		Timestamp: payload.MessageTimestamp,
	}

	body := payload.Message
	switch {
	case body.Conversation != "":
		msg.Kind = MessageText
		msg.Text = body.Conversation
	case body.ExtendedTextMessage != nil:
		msg.Kind = MessageText
		msg.Text = body.ExtendedTextMessage.Text
	case body.ImageMessage != nil:
		fillMedia(&msg, MessageImage, body.ImageMessage)
	case body.AudioMessage != nil:
		fillMedia(&msg, MessageAudio, body.AudioMessage)
	case body.VideoMessage != nil:
		fillMedia(&msg, MessageVideo, body.VideoMessage)
	case body.DocumentMessage != nil:
		fillMedia(&msg, MessageDocument, body.DocumentMessage)
	case body.StickerMessage != nil:
		fillMedia(&msg, MessageSticker, body.StickerMessage)
	case body.LocationMessage != nil:
		msg.Kind = MessageLocation
		msg.Location = &Location{
			Latitude:  body.LocationMessage.Latitude,
			Longitude: body.LocationMessage.Longitude,
			Name:      body.LocationMessage.Name,
			Address:   body.LocationMessage.Address,
		}
	case body.ContactMessage != nil:
		msg.Kind = MessageContact
		msg.Contact = &Contact{
			DisplayName: body.ContactMessage.DisplayName,
			VCard:       body.ContactMessage.VCard,
		}
	default:
		return InboundMessage{}, ErrUnknownVariant
	}
	return msg, nil
}

func fillMedia(msg *InboundMessage, kind MessageKind, variant *mediaVariant) {
	msg.Kind = kind
	msg.Text = variant.Caption
	msg.MimeType = variant.MimeType
	msg.MediaURL = variant.URL
	msg.Base64 = variant.Base64
}

type connectionUpdatePayload struct {
	State string `json:"state"`
}

// decodeConnectionState extracts the session state from a CONNECTION_UPDATE
// payload.
func decodeConnectionState(data json.RawMessage) string {
	var payload connectionUpdatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.State
}
