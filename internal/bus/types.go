// Package bus defines the message types exchanged between the webhook
// listener, the round engine, and the outbound WhatsApp gateway.
package bus

import "context"

// InboundMessage is a normalized text message received from the gateway
// webhook. Any non-text payload is dropped before it reaches this type.
type InboundMessage struct {
	// SenderID is the sender's phone number in E.164 digit form, no "+".
	SenderID string `json:"sender_id"`
	// Text is the raw UTF-8 message body as received.
	Text string `json:"text"`
	// MessageID is the gateway's message id when present, otherwise a
	// locally generated uuid used for log correlation.
	MessageID string `json:"message_id,omitempty"`
}

// OutboundMessage is a text message to deliver through the gateway.
type OutboundMessage struct {
	// Destination is the recipient's phone number in E.164 digit form.
	Destination string `json:"destination"`
	Text        string `json:"text"`
}

// Sender delivers outbound messages. Implementations must be safe for
// concurrent use; delivery failures are surfaced as errors and never
// retried by callers.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) error
}

// Handler consumes normalized inbound messages. The webhook server calls
// it once per text message.
type Handler interface {
	Handle(ctx context.Context, msg InboundMessage)
}
