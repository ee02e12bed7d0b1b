package messenger

import "time"

// WebhookEvent is the body Facebook POSTs for page subscriptions.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string           `json:"id"` // page ID
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type MessagingEvent struct {
	Sender    Party    `json:"sender"`
	Recipient Party    `json:"recipient"`
	Timestamp int64    `json:"timestamp"` // unix millis
	Message   *Message `json:"message,omitempty"`
}

type Party struct {
	ID string `json:"id"`
}

type Message struct {
	MID         string       `json:"mid"`
	Text        string       `json:"text,omitempty"`
	IsEcho      bool         `json:"is_echo,omitempty"`
	QuickReply  *QuickReply  `json:"quick_reply,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type QuickReply struct {
	Payload string `json:"payload"`
}

type Attachment struct {
	Type    string            `json:"type"`
	Payload AttachmentPayload `json:"payload"`
}

type AttachmentPayload struct {
	URL string `json:"url,omitempty"`
}

// ReceivedAt converts the event timestamp, falling back to now when absent.
func (e MessagingEvent) ReceivedAt() time.Time {
	if e.Timestamp <= 0 {
		return time.Now()
	}
	return time.UnixMilli(e.Timestamp)
}

// IsCustomerMessage is true for inbound messages sent by a customer, as
// opposed to echoes of the page's own replies or delivery/read receipts.
func (e MessagingEvent) IsCustomerMessage() bool {
	return e.Message != nil && !e.Message.IsEcho && e.Message.MID != ""
}
