package router

import (
	"encoding/json"
	"fmt"

	"github.com/roomlink/realtime/src/types"
)

// event is the closed set of inbound event variants. Decoding produces
// exactly one of the concrete types below, so dispatch is an exhaustive
// type switch and a new event kind is a compile-visible change.
type event interface{ isEvent() }

type authenticateEvent struct {
	Token string `json:"token"`
}

type typingEvent struct {
	ChatID   string `json:"chatId"`
	ToUserID string `json:"toUserId"`
	Typing   bool   `json:"-"`
}

type sendMessageEvent struct {
	ChatID      string   `json:"chatId"`
	ToUserID    string   `json:"toUserId"`
	Body        string   `json:"body"`
	Attachments []string `json:"attachments"`
}

type markReadEvent struct {
	ChatID     string   `json:"chatId"`
	MessageIDs []string `json:"messageIds"`
}

type chatOpenedEvent struct {
	ChatID      string `json:"chatId"`
	OtherUserID string `json:"otherUserId"`
}

type visitRequestEvent struct {
	ListingID     string   `json:"listingId"`
	OwnerID       string   `json:"ownerId"`
	ProposedTimes []string `json:"proposedTimes"`
}

type visitResponseEvent struct {
	RequestID   string `json:"requestId"`
	RequesterID string `json:"requesterId"`
	Status      string `json:"status"`
}

type notificationEvent struct {
	ToUserID string         `json:"toUserId"`
	Type     string         `json:"type"`
	Data     map[string]any `json:"data"`
}

func (authenticateEvent) isEvent()  {}
func (typingEvent) isEvent()        {}
func (sendMessageEvent) isEvent()   {}
func (markReadEvent) isEvent()      {}
func (chatOpenedEvent) isEvent()    {}
func (visitRequestEvent) isEvent()  {}
func (visitResponseEvent) isEvent() {}
func (notificationEvent) isEvent()  {}

// decodeEvent turns a raw inbound frame into a typed variant, validating
// required fields. Unknown kinds and malformed payloads are per-event
// failures; the connection stays open.
func decodeEvent(raw types.ClientEvent) (event, error) {
	switch raw.Kind {
	case types.KindAuthenticate:
		var e authenticateEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.Token == "" {
			return nil, fmt.Errorf("%w: token is required", ErrValidation)
		}
		return e, nil

	case types.KindTypingStart, types.KindTypingStop:
		var e typingEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.ToUserID == "" {
			return nil, fmt.Errorf("%w: toUserId is required", ErrValidation)
		}
		e.Typing = raw.Kind == types.KindTypingStart
		return e, nil

	case types.KindSendMessage:
		var e sendMessageEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.ChatID == "" || e.ToUserID == "" || e.Body == "" {
			return nil, fmt.Errorf("%w: chatId, toUserId and body are required", ErrValidation)
		}
		return e, nil

	case types.KindMarkRead:
		var e markReadEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.ChatID == "" || len(e.MessageIDs) == 0 {
			return nil, fmt.Errorf("%w: chatId and messageIds are required", ErrValidation)
		}
		return e, nil

	case types.KindChatOpened:
		var e chatOpenedEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.ChatID == "" || e.OtherUserID == "" {
			return nil, fmt.Errorf("%w: chatId and otherUserId are required", ErrValidation)
		}
		return e, nil

	case types.KindVisitRequest:
		var e visitRequestEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.OwnerID == "" {
			return nil, fmt.Errorf("%w: ownerId is required", ErrValidation)
		}
		return e, nil

	case types.KindVisitResponse:
		var e visitResponseEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.RequesterID == "" {
			return nil, fmt.Errorf("%w: requesterId is required", ErrValidation)
		}
		return e, nil

	case types.KindSendNotification:
		var e notificationEvent
		if err := unmarshalPayload(raw.Payload, &e); err != nil {
			return nil, err
		}
		if e.ToUserID == "" {
			return nil, fmt.Errorf("%w: toUserId is required", ErrValidation)
		}
		return e, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
