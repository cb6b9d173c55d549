// Package message persists delivered and received chat messages for the
// dashboard. It is a thin collaborator of the delivery pipeline; session
// history queries are keyed by the normalized recipient number.
package message

import "time"

// SenderType tags who produced the message within a session.
type SenderType string

const (
	SenderAgent    SenderType = "agent"
	SenderCustomer SenderType = "customer"
)

// Type tags the kind of message content.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeAudio    Type = "audio"
	TypeVideo    Type = "video"
	TypeDocument Type = "document"
	TypeSticker  Type = "sticker"
)

// Record is one persisted chat message.
type Record struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	ChannelID   string     `json:"channel_id"`
	SenderType  SenderType `json:"sender_type"`
	MessageType Type       `json:"message_type"`
	Content     string     `json:"content"`
	MediaMime   string     `json:"media_mime,omitempty"`
	Caption     string     `json:"caption,omitempty"`
	RemoteID    string     `json:"remote_id,omitempty"`
	SentAt      string     `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
}
