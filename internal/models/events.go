package models

import "time"

// Event types
const (
	EventTypeNegotiationSubmitted = "NEGOTIATION_SUBMITTED"
	EventTypeNegotiationApproved  = "NEGOTIATION_APPROVED"
	EventTypeNegotiationRejected  = "NEGOTIATION_REJECTED"
	EventTypeNegotiationCancelled = "NEGOTIATION_CANCELLED"
	EventTypeMessageSent          = "MESSAGE_SENT"
)

// EventTypeForStatus returns the event emitted when a request enters status
func EventTypeForStatus(status RequestStatus) string {
	switch status {
	case RequestStatusPending:
		return EventTypeNegotiationSubmitted
	case RequestStatusApproved:
		return EventTypeNegotiationApproved
	case RequestStatusRejected:
		return EventTypeNegotiationRejected
	case RequestStatusCancelled:
		return EventTypeNegotiationCancelled
	}
	return ""
}

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NegotiationEvent is published on every request status transition
type NegotiationEvent struct {
	BaseEvent
	RequestID         int64         `json:"request_id"`
	ProductID         int64         `json:"product_id"`
	RequesterID       int64         `json:"requester_id"`
	OwnerID           int64         `json:"owner_id"`
	Category          Category      `json:"category"`
	Status            RequestStatus `json:"status"`
	OfferedProductIDs []int64       `json:"offered_product_ids,omitempty"`
	Reason            string        `json:"reason,omitempty"`
}

// MessageSentEvent published when a chat message is stored
type MessageSentEvent struct {
	BaseEvent
	RequestID int64 `json:"request_id"`
	MessageID int64 `json:"message_id"`
	SenderID  int64 `json:"sender_id"`
}
