package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category tells whether a product is given away or traded
type Category string

const (
	CategoryDonation Category = "DONATION"
	CategoryTrade    Category = "TRADE"
)

// ParseCategory normalises the spellings clients send. Unknown input yields "".
func ParseCategory(raw string) Category {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DONATION", "DOAÇÃO", "DOACAO":
		return CategoryDonation
	case "TRADE", "TROCA":
		return CategoryTrade
	}
	return ""
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	return c == CategoryDonation || c == CategoryTrade
}

// UnmarshalJSON never fails: anything that is not a recognised string becomes "".
func (c *Category) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*c = ""
		return nil
	}
	*c = ParseCategory(raw)
	return nil
}

// Condition of a physical product
type Condition string

const (
	ConditionNew  Condition = "NEW"
	ConditionUsed Condition = "USED"
)

// Product represents an item offered for donation or trade
type Product struct {
	ID          int64               `db:"id" json:"id"`
	OwnerID     int64               `db:"owner_id" json:"owner_id"`
	OwnerName   string              `db:"owner_name" json:"owner_name"`
	Name        string              `db:"name" json:"name"`
	Description string              `db:"description" json:"description"`
	Category    Category            `db:"category" json:"category"`
	Condition   Condition           `db:"item_condition" json:"condition"`
	Quantity    int                 `db:"quantity" json:"quantity"`
	Value       decimal.NullDecimal `db:"value" json:"value"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`

	Requests []NegotiationRequest `db:"-" json:"requests,omitempty"`
}

// RequestStatus is the lifecycle state of a negotiation request
type RequestStatus string

const (
	RequestStatusProcessing RequestStatus = "PROCESSING"
	RequestStatusPending    RequestStatus = "PENDING"
	RequestStatusApproved   RequestStatus = "APPROVED"
	RequestStatusRejected   RequestStatus = "REJECTED"
	RequestStatusCancelled  RequestStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusProcessing, RequestStatusPending, RequestStatusApproved,
		RequestStatusRejected, RequestStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether s holds the product (PENDING or APPROVED)
func (s RequestStatus) IsActive() bool {
	return s == RequestStatusPending || s == RequestStatusApproved
}

// IsTerminal reports whether no further transition is possible
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected || s == RequestStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch s {
	case RequestStatusProcessing:
		return next == RequestStatusPending
	case RequestStatusPending:
		return next == RequestStatusApproved || next == RequestStatusRejected || next == RequestStatusCancelled
	}
	return false
}

// NegotiationRequest is a proposal to receive or trade for a product
type NegotiationRequest struct {
	ID             int64         `db:"id" json:"id"`
	ProductID      int64         `db:"product_id" json:"product_id"`
	RequesterID    int64         `db:"requester_id" json:"requester_id"`
	RequesterName  string        `db:"requester_name" json:"requester_name"`
	Status         RequestStatus `db:"status" json:"status"`
	IdempotencyKey string        `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`

	OfferedProductIDs []int64 `db:"-" json:"offered_product_ids,omitempty"`
}

// OfferedProduct links a trade request to a product offered in exchange
type OfferedProduct struct {
	RequestID int64 `db:"request_id"`
	ProductID int64 `db:"product_id"`
}

// Message is a chat line inside a negotiation
type Message struct {
	ID         int64     `db:"id" json:"id"`
	RequestID  int64     `db:"request_id" json:"request_id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	SenderName string    `db:"sender_name" json:"sender_name"`
	Content    string    `db:"content" json:"content"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
