// Package servicetest provides in-memory doubles for the service layer's
// Repository, ClaimStore and Publisher.
package servicetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"exchange-service/internal/models"
	"exchange-service/internal/store"
)

// MemoryRepository mimics the postgres store, including the rule that a
// product has at most one PENDING or APPROVED request.
type MemoryRepository struct {
	mu        sync.Mutex
	now       time.Time
	nextID    int64
	products  map[int64]models.Product
	requests  map[int64]models.NegotiationRequest
	offers    map[int64][]int64
	messages  []models.Message
	processed map[string]string
}

// NewMemoryRepository returns an empty repository whose clock advances one
// second per write.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		products:  make(map[int64]models.Product),
		requests:  make(map[int64]models.NegotiationRequest),
		offers:    make(map[int64][]int64),
		processed: make(map[string]string),
	}
}

func (m *MemoryRepository) tick() (int64, time.Time) {
	m.nextID++
	m.now = m.now.Add(time.Second)
	return m.nextID, m.now
}

func (m *MemoryRepository) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID, p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	stored := *p
	stored.Requests = nil
	m.products[p.ID] = stored
	return nil
}

func (m *MemoryRepository) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) GetProductsByIDs(_ context.Context, ids []int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out, nil
}

func (m *MemoryRepository) ListProducts(_ context.Context) ([]models.Product, error) {
	return m.listProducts(func(models.Product) bool { return true }), nil
}

func (m *MemoryRepository) ListProductsByOwner(_ context.Context, ownerID int64) ([]models.Product, error) {
	return m.listProducts(func(p models.Product) bool { return p.OwnerID == ownerID }), nil
}

func (m *MemoryRepository) listProducts(keep func(models.Product) bool) []models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Product{}
	for _, p := range m.products {
		if keep(p) {
			out = append(out, p)
		}
	}
	sortProducts(out)
	return out
}

func (m *MemoryRepository) UpdateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[p.ID]; !ok {
		return store.ErrNotFound
	}
	_, p.UpdatedAt = m.tick()
	stored := *p
	stored.Requests = nil
	m.products[p.ID] = stored
	return nil
}

func (m *MemoryRepository) DeleteProduct(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.products, id)
	for rid, r := range m.requests {
		if r.ProductID == id {
			delete(m.requests, rid)
			delete(m.offers, rid)
		}
	}
	return nil
}

func (m *MemoryRepository) CreateRequest(_ context.Context, r *models.NegotiationRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.products[r.ProductID]; !ok {
		return fmt.Errorf("product %d does not exist", r.ProductID)
	}
	for _, existing := range m.requests {
		if existing.IdempotencyKey == r.IdempotencyKey {
			return fmt.Errorf("%w: idempotency_key", store.ErrConflict)
		}
	}
	if r.Status.IsActive() && m.activeFor(r.ProductID, 0) {
		return fmt.Errorf("%w: uq_requests_active_product", store.ErrConflict)
	}

	r.ID, r.CreatedAt = m.tick()
	r.UpdatedAt = r.CreatedAt
	stored := *r
	stored.OfferedProductIDs = nil
	m.requests[r.ID] = stored
	return nil
}

func (m *MemoryRepository) GetRequestByID(_ context.Context, id int64) (*models.NegotiationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.withOffers(r), nil
}

func (m *MemoryRepository) GetRequestByIdempotencyKey(_ context.Context, key string) (*models.NegotiationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.requests {
		if r.IdempotencyKey == key {
			return m.withOffers(r), nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) GetDraftRequest(_ context.Context, productID, requesterID int64) (*models.NegotiationRequest, error) {
	drafts := m.selectRequests(func(r models.NegotiationRequest) bool {
		return r.ProductID == productID && r.RequesterID == requesterID &&
			r.Status == models.RequestStatusProcessing
	})
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[len(drafts)-1], nil
}

func (m *MemoryRepository) GetRequestsByProductIDs(_ context.Context, productIDs []int64) ([]models.NegotiationRequest, error) {
	wanted := toSet(productIDs)
	return m.selectRequests(func(r models.NegotiationRequest) bool { return wanted[r.ProductID] }), nil
}

func (m *MemoryRepository) GetRequestsByRequester(_ context.Context, requesterID int64) ([]models.NegotiationRequest, error) {
	return m.selectRequests(func(r models.NegotiationRequest) bool { return r.RequesterID == requesterID }), nil
}

func (m *MemoryRepository) GetActiveRequests(_ context.Context) ([]models.NegotiationRequest, error) {
	return m.selectRequests(func(r models.NegotiationRequest) bool { return r.Status.IsActive() }), nil
}

func (m *MemoryRepository) GetPendingRequestsInvolving(_ context.Context, productIDs []int64, excludeID int64) ([]models.NegotiationRequest, error) {
	wanted := toSet(productIDs)
	m.mu.Lock()
	offers := make(map[int64][]int64, len(m.offers))
	for k, v := range m.offers {
		offers[k] = v
	}
	m.mu.Unlock()

	return m.selectRequests(func(r models.NegotiationRequest) bool {
		if r.Status != models.RequestStatusPending || r.ID == excludeID {
			return false
		}
		if wanted[r.ProductID] {
			return true
		}
		for _, id := range offers[r.ID] {
			if wanted[id] {
				return true
			}
		}
		return false
	}), nil
}

func (m *MemoryRepository) TransitionRequest(_ context.Context, id int64, from []models.RequestStatus, to models.RequestStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[id]
	if !ok {
		return false, nil
	}

	matches := false
	for _, s := range from {
		if r.Status == s {
			matches = true
		}
	}
	if !matches {
		return false, nil
	}
	if to.IsActive() && !r.Status.IsActive() && m.activeFor(r.ProductID, id) {
		return false, fmt.Errorf("%w: uq_requests_active_product", store.ErrConflict)
	}

	r.Status = to
	_, r.UpdatedAt = m.tick()
	m.requests[id] = r
	return true, nil
}

func (m *MemoryRepository) SetOfferedProducts(_ context.Context, requestID int64, productIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[requestID]; !ok {
		return store.ErrNotFound
	}
	ids := append([]int64(nil), productIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	m.offers[requestID] = ids
	return nil
}

func (m *MemoryRepository) SetIdempotencyKey(_ context.Context, requestID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok {
		return store.ErrNotFound
	}
	for id, existing := range m.requests {
		if id != requestID && existing.IdempotencyKey == key {
			return fmt.Errorf("%w: idempotency_key", store.ErrConflict)
		}
	}
	r.IdempotencyKey = key
	_, r.UpdatedAt = m.tick()
	m.requests[requestID] = r
	return nil
}

func (m *MemoryRepository) DeleteDraft(_ context.Context, requestID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.requests[requestID]
	if !ok || r.Status != models.RequestStatusProcessing {
		return false, nil
	}
	delete(m.requests, requestID)
	delete(m.offers, requestID)
	return true, nil
}

func (m *MemoryRepository) CreateMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.requests[msg.RequestID]; !ok {
		return errors.New("request does not exist")
	}
	msg.ID, msg.SentAt = m.tick()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryRepository) GetMessagesByRequestID(_ context.Context, requestID int64) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Message
	for _, msg := range m.messages {
		if msg.RequestID == requestID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *MemoryRepository) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *MemoryRepository) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed[eventID] = eventType
	return nil
}

// Exists reports whether a request row is stored
func (m *MemoryRepository) Exists(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.requests[id]
	return ok
}

// Status returns the stored status of a request, "" when it does not exist
func (m *MemoryRepository) Status(id int64) models.RequestStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id].Status
}

// activeFor reports another active request for productID. Callers hold mu.
func (m *MemoryRepository) activeFor(productID, exceptID int64) bool {
	for _, r := range m.requests {
		if r.ProductID == productID && r.ID != exceptID && r.Status.IsActive() {
			return true
		}
	}
	return false
}

// withOffers copies r with its offers attached. Callers hold mu.
func (m *MemoryRepository) withOffers(r models.NegotiationRequest) *models.NegotiationRequest {
	if ids := m.offers[r.ID]; len(ids) > 0 {
		r.OfferedProductIDs = append([]int64(nil), ids...)
	}
	return &r
}

func (m *MemoryRepository) selectRequests(keep func(models.NegotiationRequest) bool) []models.NegotiationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.NegotiationRequest{}
	for _, r := range m.requests {
		if keep(r) {
			out = append(out, *m.withOffers(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortProducts(products []models.Product) {
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
