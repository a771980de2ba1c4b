package message

import (
	"encoding/json"
	"fmt"
)

type NotificationType string

const (
	NotificationEventInvoked NotificationType = "eventInvoked"
)

type EventNotification struct {
	NotificationType NotificationType `json:"notificationType"`
	ObjectID         string           `json:"objectId"`
	EventID          string           `json:"eventId"`
	EventArgs        json.RawMessage  `json:"eventArgs"`
}

func NewEventNotification(objectID string, eventID string, args json.RawMessage) *EventNotification {
	return &EventNotification{
		NotificationType: NotificationEventInvoked,
		ObjectID:         objectID,
		EventID:          eventID,
		EventArgs:        args,
	}
}

func EncodeNotification(n *EventNotification) ([]byte, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil notification", ErrMalformed)
	}
	n.NotificationType = NotificationEventInvoked
	return json.Marshal(n)
}

func DecodeNotification(data []byte) (*EventNotification, error) {
	kind, err := discriminator(data, "notificationType")
	if err != nil {
		return nil, err
	}
	if NotificationType(kind) != NotificationEventInvoked {
		return nil, fmt.Errorf("%w: %q", ErrInvalidNotification, kind)
	}
	n := &EventNotification{}
	if err := json.Unmarshal(data, n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	return n, nil
}
