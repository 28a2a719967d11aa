package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exchange-service/internal/apperror"
	"exchange-service/internal/models"
	"exchange-service/internal/negotiation"
	"exchange-service/internal/session"
	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NegotiationService drives negotiation requests through their lifecycle
type NegotiationService struct {
	repo      Repository
	claims    *ClaimManager
	publisher Publisher
	logger    *zap.Logger
}

// NewNegotiationService creates a new negotiation service
func NewNegotiationService(repo Repository, claims *ClaimManager, publisher Publisher) *NegotiationService {
	return &NegotiationService{
		repo:      repo,
		claims:    claims,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// CreateNegotiationRequest represents a request to open a negotiation
type CreateNegotiationRequest struct {
	ProductID         int64   `json:"product_id" binding:"required"`
	OfferedProductIDs []int64 `json:"offered_product_ids,omitempty"`
	IdempotencyKey    string  `json:"idempotency_key,omitempty"`
	Submit            bool    `json:"submit"`
}

// NegotiationDetail is everything a participant sees of one negotiation
type NegotiationDetail struct {
	Request         models.NegotiationRequest `json:"request"`
	Label           negotiation.DisplayStatus `json:"display_status"`
	Role            negotiation.Role          `json:"role"`
	Product         ProductView               `json:"product"`
	OfferedProducts []models.Product          `json:"offered_products"`
	Messages        []models.Message          `json:"messages"`
}

// NegotiationSummary is one row of a negotiation list
type NegotiationSummary struct {
	Request models.NegotiationRequest `json:"request"`
	Label   negotiation.DisplayStatus `json:"display_status"`
	Role    negotiation.Role          `json:"role"`
	Product models.Product            `json:"product"`
}

// CreateNegotiation opens a draft for the session user, reusing the user's
// existing draft for the same product
func (s *NegotiationService) CreateNegotiation(ctx context.Context, sess session.Session, req *CreateNegotiationRequest) (*models.NegotiationRequest, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.CreateNegotiation")
	defer span.End()

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetRequestByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			if existing.RequesterID != sess.UserID {
				return nil, apperror.New(apperror.ErrCodeConflict, "idempotency key already used")
			}
			s.logger.Info("Duplicate negotiation request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("request_id", existing.ID))
			return existing, nil
		}
	}

	product, err := s.product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.OwnerID == sess.UserID {
		util.NegotiationsFailedTotal.WithLabelValues("own_product").Inc()
		return nil, apperror.New(apperror.ErrCodeValidation, "you cannot negotiate your own product")
	}

	existing, err := s.repo.GetRequestsByProductIDs(ctx, []int64{product.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load requests: %w", err)
	}
	for _, r := range existing {
		if r.RequesterID == sess.UserID && r.Status.IsActive() {
			util.NegotiationsFailedTotal.WithLabelValues("duplicate").Inc()
			return nil, apperror.New(apperror.ErrCodeConflict, "you already have an active negotiation for this product")
		}
	}

	r, err := s.repo.GetDraftRequest(ctx, product.ID, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up draft: %w", err)
	}

	if r == nil {
		if req.IdempotencyKey == "" {
			req.IdempotencyKey = uuid.New().String()
		}
		r = &models.NegotiationRequest{
			ProductID:      product.ID,
			RequesterID:    sess.UserID,
			RequesterName:  sess.UserName,
			Status:         models.RequestStatusProcessing,
			IdempotencyKey: req.IdempotencyKey,
		}
		if err := s.repo.CreateRequest(ctx, r); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// lost a race on the same key
				return s.CreateNegotiation(ctx, sess, req)
			}
			util.NegotiationsFailedTotal.WithLabelValues("db_error").Inc()
			return nil, fmt.Errorf("failed to create negotiation: %w", err)
		}

		util.NegotiationsCreatedTotal.Inc()
		s.logger.Info("Negotiation created",
			zap.Int64("request_id", r.ID),
			zap.Int64("product_id", product.ID),
			zap.Int64("requester_id", sess.UserID))
	}

	if req.IdempotencyKey != "" && r.IdempotencyKey != req.IdempotencyKey {
		// a reused draft takes the caller's key so a retry finds it
		if err := s.repo.SetIdempotencyKey(ctx, r.ID, req.IdempotencyKey); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return s.CreateNegotiation(ctx, sess, req)
			}
			return nil, fmt.Errorf("failed to store idempotency key: %w", err)
		}
		r.IdempotencyKey = req.IdempotencyKey
	}

	if len(req.OfferedProductIDs) > 0 {
		if err := s.setOffers(ctx, sess, r, product, req.OfferedProductIDs); err != nil {
			return nil, err
		}
	}

	if req.Submit {
		return s.submit(ctx, sess, r, product)
	}
	return r, nil
}

// SetOffers replaces the products a trade draft offers in exchange
func (s *NegotiationService) SetOffers(ctx context.Context, sess session.Session, requestID int64, productIDs []int64) (*models.NegotiationRequest, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.SetOffers")
	defer span.End()

	r, product, err := s.participantRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}
	if r.RequesterID != sess.UserID {
		return nil, apperror.ErrNotRequester
	}

	if err := s.setOffers(ctx, sess, r, product, productIDs); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *NegotiationService) setOffers(ctx context.Context, sess session.Session, r *models.NegotiationRequest, product *models.Product, productIDs []int64) error {
	if r.Status != models.RequestStatusProcessing {
		return apperror.New(apperror.ErrCodeConflict, "offers can only change while the negotiation is a draft")
	}
	if product.Category != models.CategoryTrade {
		return apperror.New(apperror.ErrCodeValidation, "donations do not take offers")
	}

	ids := uniqueIDs(productIDs)
	if len(ids) > 0 {
		offered, err := s.repo.GetProductsByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to load offered products: %w", err)
		}
		if len(offered) != len(ids) {
			return apperror.New(apperror.ErrCodeValidation, "offered product not found")
		}
		for _, o := range offered {
			if o.ID == product.ID {
				return apperror.New(apperror.ErrCodeValidation, "the requested product cannot be offered")
			}
			if o.OwnerID != sess.UserID {
				return apperror.Newf(apperror.ErrCodeValidation, "product %d is not yours to offer", o.ID)
			}
		}
	}

	if err := s.repo.SetOfferedProducts(ctx, r.ID, ids); err != nil {
		return fmt.Errorf("failed to set offers: %w", err)
	}
	r.OfferedProductIDs = ids
	return nil
}

// Submit sends a draft to the product owner, locking the product
func (s *NegotiationService) Submit(ctx context.Context, sess session.Session, requestID int64) (*models.NegotiationRequest, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.Submit")
	defer span.End()

	r, product, err := s.participantRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}
	if r.RequesterID != sess.UserID {
		return nil, apperror.ErrNotRequester
	}
	return s.submit(ctx, sess, r, product)
}

func (s *NegotiationService) submit(ctx context.Context, sess session.Session, r *models.NegotiationRequest, product *models.Product) (*models.NegotiationRequest, error) {
	switch r.Status {
	case models.RequestStatusPending:
		return r, nil
	case models.RequestStatusProcessing:
	default:
		return nil, apperror.Newf(apperror.ErrCodeConflict, "negotiation is already %s", r.Status)
	}

	if product.Category == models.CategoryTrade && len(r.OfferedProductIDs) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "a trade needs at least one offered product")
	}

	claimed, err := s.claims.Claim(ctx, product.ID, r.ID)
	if err != nil {
		util.NegotiationsFailedTotal.WithLabelValues("claim_error").Inc()
		return nil, fmt.Errorf("failed to claim product: %w", err)
	}
	if !claimed {
		util.NegotiationsFailedTotal.WithLabelValues("product_locked").Inc()
		return nil, apperror.ErrProductLocked
	}

	ok, err := s.repo.TransitionRequest(ctx, r.ID,
		[]models.RequestStatus{models.RequestStatusProcessing}, models.RequestStatusPending)
	if err != nil || !ok {
		s.claims.Release(ctx, product.ID, r.ID)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			util.NegotiationsFailedTotal.WithLabelValues("product_locked").Inc()
			return nil, apperror.ErrProductLocked
		}
		return nil, fmt.Errorf("failed to submit negotiation: %w", err)
	}
	if !ok {
		return nil, apperror.New(apperror.ErrCodeConflict, "negotiation changed state, reload and try again")
	}

	r.Status = models.RequestStatusPending
	s.transitioned(ctx, r, product)
	return r, nil
}

// Respond lets the product owner approve or reject a pending negotiation
func (s *NegotiationService) Respond(ctx context.Context, sess session.Session, requestID int64, decision models.RequestStatus) (*models.NegotiationRequest, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.Respond")
	defer span.End()

	if decision != models.RequestStatusApproved && decision != models.RequestStatusRejected {
		return nil, apperror.New(apperror.ErrCodeValidation, "decision must be APPROVED or REJECTED")
	}

	r, product, err := s.participantRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}
	if product.OwnerID != sess.UserID {
		return nil, apperror.ErrNotOwner
	}

	ok, err := s.repo.TransitionRequest(ctx, r.ID,
		[]models.RequestStatus{models.RequestStatusPending}, decision)
	if err != nil {
		return nil, fmt.Errorf("failed to answer negotiation: %w", err)
	}
	if !ok {
		return nil, apperror.New(apperror.ErrCodeConflict, "only pending negotiations can be answered")
	}

	r.Status = decision
	if decision == models.RequestStatusRejected {
		s.claims.Release(ctx, product.ID, r.ID)
	}
	s.transitioned(ctx, r, product)
	return r, nil
}

// Cancel withdraws the requester's pending negotiation
func (s *NegotiationService) Cancel(ctx context.Context, sess session.Session, requestID int64) (*models.NegotiationRequest, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.Cancel")
	defer span.End()

	r, product, err := s.participantRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}
	if r.RequesterID != sess.UserID {
		return nil, apperror.ErrNotRequester
	}
	if r.Status == models.RequestStatusProcessing {
		return nil, apperror.New(apperror.ErrCodeConflict, "a draft is discarded, not cancelled")
	}

	ok, err := s.repo.TransitionRequest(ctx, r.ID,
		[]models.RequestStatus{models.RequestStatusPending}, models.RequestStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel negotiation: %w", err)
	}
	if !ok {
		return nil, apperror.Newf(apperror.ErrCodeConflict, "a %s negotiation cannot be cancelled", r.Status)
	}

	r.Status = models.RequestStatusCancelled
	s.claims.Release(ctx, product.ID, r.ID)
	s.transitioned(ctx, r, product)
	return r, nil
}

// DiscardDraft deletes a draft the requester no longer wants. Nothing is
// published since nobody else ever saw it.
func (s *NegotiationService) DiscardDraft(ctx context.Context, sess session.Session, requestID int64) error {
	ctx, span := util.StartSpan(ctx, "NegotiationService.DiscardDraft")
	defer span.End()

	r, _, err := s.participantRequest(ctx, sess, requestID)
	if err != nil {
		return err
	}
	if r.RequesterID != sess.UserID {
		return apperror.ErrNotRequester
	}
	if r.Status != models.RequestStatusProcessing {
		return apperror.Newf(apperror.ErrCodeConflict, "a %s negotiation is no longer a draft", r.Status)
	}

	deleted, err := s.repo.DeleteDraft(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to discard draft: %w", err)
	}
	if !deleted {
		return apperror.New(apperror.ErrCodeConflict, "negotiation changed state, reload and try again")
	}

	s.logger.Info("Draft discarded",
		zap.Int64("request_id", r.ID),
		zap.Int64("product_id", r.ProductID))
	return nil
}

// GetNegotiation returns the full negotiation to one of its participants
func (s *NegotiationService) GetNegotiation(ctx context.Context, sess session.Session, requestID int64) (*NegotiationDetail, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.GetNegotiation")
	defer span.End()

	r, product, err := s.participantRequest(ctx, sess, requestID)
	if err != nil {
		return nil, err
	}

	products := []models.Product{*product}
	if err := attachRequests(ctx, s.repo, products, sess.UserID); err != nil {
		return nil, err
	}

	offered := []models.Product{}
	if len(r.OfferedProductIDs) > 0 {
		offered, err = s.repo.GetProductsByIDs(ctx, r.OfferedProductIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load offered products: %w", err)
		}
	}

	messages, err := s.repo.GetMessagesByRequestID(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	return &NegotiationDetail{
		Request:         *r,
		Label:           negotiation.LabelFor(r.Status),
		Role:            negotiation.RoleOf(r, product, sess.UserID),
		Product:         *viewOf(&products[0], sess.UserID),
		OfferedProducts: offered,
		Messages:        messages,
	}, nil
}

// ListNegotiations lists the negotiations the viewer requested or receives
func (s *NegotiationService) ListNegotiations(ctx context.Context, sess session.Session, filter negotiation.RequestFilter) ([]NegotiationSummary, error) {
	ctx, span := util.StartSpan(ctx, "NegotiationService.ListNegotiations")
	defer span.End()

	sent, err := s.repo.GetRequestsByRequester(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sent negotiations: %w", err)
	}

	owned, err := s.repo.ListProductsByOwner(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	ownedIDs := make([]int64, len(owned))
	for i, p := range owned {
		ownedIDs[i] = p.ID
	}
	received, err := s.repo.GetRequestsByProductIDs(ctx, ownedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list received negotiations: %w", err)
	}

	seen := make(map[int64]bool)
	var requests []models.NegotiationRequest
	for _, r := range append(sent, negotiation.VisibleTo(received, sess.UserID)...) {
		if !seen[r.ID] {
			seen[r.ID] = true
			requests = append(requests, r)
		}
	}

	productIDs := make([]int64, 0, len(requests))
	for _, r := range requests {
		productIDs = append(productIDs, r.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, uniqueIDs(productIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	matched := requests[:0]
	for _, r := range requests {
		p, ok := byID[r.ProductID]
		if ok && filter.Match(&r, &p, sess.UserID) {
			matched = append(matched, r)
		}
	}
	negotiation.SortRequests(matched)

	out := make([]NegotiationSummary, 0, len(matched))
	for i := range matched {
		p := byID[matched[i].ProductID]
		out = append(out, NegotiationSummary{
			Request: matched[i],
			Label:   negotiation.LabelFor(matched[i].Status),
			Role:    negotiation.RoleOf(&matched[i], &p, sess.UserID),
			Product: p,
		})
	}
	return out, nil
}

// participantRequest loads a request and its product, hiding it from anyone
// outside the negotiation and hiding drafts from the owner
func (s *NegotiationService) participantRequest(ctx context.Context, sess session.Session, requestID int64) (*models.NegotiationRequest, *models.Product, error) {
	r, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperror.ErrRequestNotFound
		}
		return nil, nil, fmt.Errorf("failed to get negotiation: %w", err)
	}

	product, err := s.product(ctx, r.ProductID)
	if err != nil {
		return nil, nil, err
	}

	switch negotiation.RoleOf(r, product, sess.UserID) {
	case negotiation.RoleRequester:
	case negotiation.RoleOwner:
		if r.Status == models.RequestStatusProcessing {
			return nil, nil, apperror.ErrRequestNotFound
		}
	default:
		return nil, nil, apperror.ErrNotParticipant
	}
	return r, product, nil
}

func (s *NegotiationService) product(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

// transitioned records and publishes a status change that already happened
func (s *NegotiationService) transitioned(ctx context.Context, r *models.NegotiationRequest, product *models.Product) {
	util.NegotiationTransitionsTotal.WithLabelValues(string(r.Status)).Inc()
	s.logger.Info("Negotiation status changed",
		zap.Int64("request_id", r.ID),
		zap.Int64("product_id", product.ID),
		zap.String("status", string(r.Status)))

	publishTransition(ctx, s.publisher, s.logger, r, product, "")
}

func publishTransition(ctx context.Context, publisher Publisher, logger *zap.Logger, r *models.NegotiationRequest, product *models.Product, reason string) {
	event := &models.NegotiationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeForStatus(r.Status),
			Timestamp: time.Now(),
		},
		RequestID:         r.ID,
		ProductID:         product.ID,
		RequesterID:       r.RequesterID,
		OwnerID:           product.OwnerID,
		Category:          product.Category,
		Status:            r.Status,
		OfferedProductIDs: r.OfferedProductIDs,
		Reason:            reason,
	}

	if err := publisher.PublishNegotiationEvent(ctx, event); err != nil {
		logger.Error("Failed to publish negotiation event",
			zap.String("event_type", event.EventType),
			zap.Int64("request_id", r.ID),
			zap.Error(err))
	}
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
