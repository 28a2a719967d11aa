package servicetest

import (
	"context"
	"errors"
	"sync"

	"exchange-service/internal/models"
)

// ErrUnavailable is returned by a MemoryClaims set to fail
var ErrUnavailable = errors.New("claim store unavailable")

// MemoryClaims mirrors the Redis claim scripts
type MemoryClaims struct {
	mu     sync.Mutex
	holder map[int64]int64
	fail   bool
}

func NewMemoryClaims() *MemoryClaims {
	return &MemoryClaims{holder: make(map[int64]int64)}
}

// SetFailing makes every call return ErrUnavailable
func (c *MemoryClaims) SetFailing(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *MemoryClaims) ClaimProduct(_ context.Context, productID, requestID int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return false, ErrUnavailable
	}
	if holder, ok := c.holder[productID]; ok && holder != requestID {
		return false, nil
	}
	c.holder[productID] = requestID
	return true, nil
}

func (c *MemoryClaims) ReleaseProduct(_ context.Context, productID, requestID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return ErrUnavailable
	}
	if c.holder[productID] == requestID {
		delete(c.holder, productID)
	}
	return nil
}

func (c *MemoryClaims) InitClaim(_ context.Context, productID, requestID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return ErrUnavailable
	}
	c.holder[productID] = requestID
	return nil
}

func (c *MemoryClaims) ClaimedBy(_ context.Context, productID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail {
		return 0, ErrUnavailable
	}
	return c.holder[productID], nil
}

// Holder returns the request holding productID, 0 when free
func (c *MemoryClaims) Holder(productID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder[productID]
}

// RecordingPublisher keeps every published event
type RecordingPublisher struct {
	mu          sync.Mutex
	Negotiation []models.NegotiationEvent
	Messages    []models.MessageSentEvent
}

func (p *RecordingPublisher) PublishNegotiationEvent(_ context.Context, event *models.NegotiationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Negotiation = append(p.Negotiation, *event)
	return nil
}

func (p *RecordingPublisher) PublishMessageSent(_ context.Context, _ int64, event *models.MessageSentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, *event)
	return nil
}

// EventTypes lists the negotiation event types in publication order
func (p *RecordingPublisher) EventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, len(p.Negotiation))
	for i, e := range p.Negotiation {
		out[i] = e.EventType
	}
	return out
}

// Last returns the most recent negotiation event
func (p *RecordingPublisher) Last() (models.NegotiationEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.Negotiation) == 0 {
		return models.NegotiationEvent{}, false
	}
	return p.Negotiation[len(p.Negotiation)-1], true
}
