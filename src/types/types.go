package types

import (
	"encoding/json"
	"time"
)

// ClientEvent is an inbound frame from a client.
type ClientEvent struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ServerEvent is an outbound frame to a client.
type ServerEvent struct {
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewServerEvent builds an outbound event stamped with the current time.
func NewServerEvent(kind string, data map[string]any) ServerEvent {
	return ServerEvent{Kind: kind, Data: data, Timestamp: time.Now().UTC()}
}

// Inbound event kinds.
const (
	KindAuthenticate     = "authenticate"
	KindTypingStart      = "typing_start"
	KindTypingStop       = "typing_stop"
	KindSendMessage      = "send_message"
	KindMarkRead         = "mark_read"
	KindChatOpened       = "chat_opened"
	KindVisitRequest     = "visit_request"
	KindVisitResponse    = "visit_response"
	KindSendNotification = "send_notification"
)

// Outbound event kinds.
const (
	KindUserOnline       = "user_online"
	KindUserOffline      = "user_offline"
	KindUserTyping       = "user_typing"
	KindMessageSent      = "message_sent"
	KindNewMessage       = "new_message"
	KindMessageDelivered = "message_delivered"
	KindMessagesRead     = "messages_read"
	KindMessageError     = "message_error"
	KindNewVisitRequest  = "new_visit_request"
	KindNotification     = "notification"
	KindError            = "error"
)

// DeliveryState is the lifecycle stage of a message as observed by the sender.
type DeliveryState string

const (
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateRead      DeliveryState = "read"
)

var stateRank = map[DeliveryState]int{
	StateSent:      1,
	StateDelivered: 2,
	StateRead:      3,
}

// Before reports whether s precedes other in the sent -> delivered -> read
// progression. Unknown states never precede anything.
func (s DeliveryState) Before(other DeliveryState) bool {
	return stateRank[s] != 0 && stateRank[s] < stateRank[other]
}

// Envelope is one chat message relayed live. Its durable twin lives in the
// message store; the realtime layer is authoritative only for delivery state
// during the session.
type Envelope struct {
	ID          string        `json:"id"`
	ChatID      string        `json:"chatId"`
	FromUserID  string        `json:"fromUserId"`
	ToUserID    string        `json:"toUserId"`
	Body        string        `json:"body"`
	Attachments []string      `json:"attachments"`
	State       DeliveryState `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// Data returns the envelope as event data for an outbound frame.
func (e Envelope) Data() map[string]any {
	return map[string]any{
		"id":          e.ID,
		"chatId":      e.ChatID,
		"fromUserId":  e.FromUserID,
		"toUserId":    e.ToUserID,
		"body":        e.Body,
		"attachments": e.Attachments,
		"status":      string(e.State),
		"createdAt":   e.CreatedAt,
	}
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
