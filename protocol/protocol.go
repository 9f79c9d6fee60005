package protocol

import (
	"encoding/json"
	"time"
)

// Channel event names shared with the backend.
const (
	EventReceiveMessage = "receive_message"
	EventSendMessage    = "send_message"
	EventSendReply      = "send_reply"
	EventDeleteMessage  = "delete_message"
)

// Kind distinguishes plain text from media-reference messages.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// Envelope is the framing for every websocket exchange: an event name plus
// an opaque payload the subscriber decodes.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// ReplyRef is the quoted preview carried by a reply message.
type ReplyRef struct {
	Sender string `json:"sender"`
	Body   string `json:"message"`
	Type   Kind   `json:"type"`
}

// Message is the wire shape for chat messages, both directions.
// Body holds either the text or, for KindFile, the media URL.
type Message struct {
	ID        string    `json:"id,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Sender    string    `json:"sender"`
	Body      string    `json:"message"`
	Type      Kind      `json:"type"`
	Timestamp string    `json:"timestamp,omitempty"`
	ReplyTo   *ReplyRef `json:"reply_to,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// Key returns the identity used for reconciling a server echo against a
// locally pending message. Client IDs win; server IDs are the fallback.
func (m Message) Key() string {
	if m.ClientID != "" {
		return m.ClientID
	}
	return m.ID
}

// Time parses the RFC3339 timestamp. ok is false for absent or unparsable
// values; callers keep the raw string for display in that case.
func (m Message) Time() (time.Time, bool) {
	if m.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

const replyPreviewLimit = 80

// Reply builds the quoted preview for replying to m, truncating long bodies.
func (m Message) Reply() *ReplyRef {
	body := m.Body
	if runes := []rune(body); len(runes) > replyPreviewLimit {
		body = string(runes[:replyPreviewLimit])
	}
	return &ReplyRef{Sender: m.Sender, Body: body, Type: m.Type}
}
