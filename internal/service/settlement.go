package service

import (
	"context"
	"errors"
	"fmt"

	"exchange-service/internal/models"
	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"go.uber.org/zap"
)

// ReasonProductTaken is recorded on requests rejected because an involved
// product went to another negotiation
const ReasonProductTaken = "product is no longer available"

// Settlement reacts to finished negotiations
type Settlement struct {
	repo      Repository
	claims    *ClaimManager
	publisher Publisher
	logger    *zap.Logger
}

// NewSettlement creates a new settlement handler
func NewSettlement(repo Repository, claims *ClaimManager, publisher Publisher) *Settlement {
	return &Settlement{
		repo:      repo,
		claims:    claims,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// HandleApproved rejects every other pending request that asks for or
// offers a product involved in the approved negotiation
func (st *Settlement) HandleApproved(ctx context.Context, event *models.NegotiationEvent) error {
	ctx, span := util.StartSpan(ctx, "Settlement.HandleApproved")
	defer span.End()

	processed, err := st.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		st.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	involved := []int64{event.ProductID}
	approved, err := st.repo.GetRequestByID(ctx, event.RequestID)
	switch {
	case err == nil:
		involved = append(involved, approved.OfferedProductIDs...)
	case errors.Is(err, store.ErrNotFound):
		involved = append(involved, event.OfferedProductIDs...)
	default:
		return fmt.Errorf("failed to get approved request: %w", err)
	}

	st.logger.Info("Settling approved negotiation",
		zap.Int64("request_id", event.RequestID),
		zap.Int64s("products", involved))

	competing, err := st.repo.GetPendingRequestsInvolving(ctx, uniqueIDs(involved), event.RequestID)
	if err != nil {
		return fmt.Errorf("failed to get competing requests: %w", err)
	}

	for i := range competing {
		if err := st.reject(ctx, &competing[i]); err != nil {
			return err
		}
	}

	if err := st.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		st.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (st *Settlement) reject(ctx context.Context, r *models.NegotiationRequest) error {
	ok, err := st.repo.TransitionRequest(ctx, r.ID,
		[]models.RequestStatus{models.RequestStatusPending}, models.RequestStatusRejected)
	if err != nil {
		return fmt.Errorf("failed to reject request %d: %w", r.ID, err)
	}
	if !ok {
		// answered or cancelled meanwhile
		return nil
	}

	r.Status = models.RequestStatusRejected
	st.claims.Release(ctx, r.ProductID, r.ID)
	util.SettlementRejectionsTotal.Inc()
	util.NegotiationTransitionsTotal.WithLabelValues(string(r.Status)).Inc()

	product, err := st.repo.GetProductByID(ctx, r.ProductID)
	if err != nil {
		st.logger.Error("Failed to load product for rejection event",
			zap.Int64("request_id", r.ID),
			zap.Error(err))
		product = &models.Product{ID: r.ProductID}
	}

	st.logger.Info("Pending request rejected by settlement",
		zap.Int64("request_id", r.ID),
		zap.Int64("product_id", r.ProductID))
	publishTransition(ctx, st.publisher, st.logger, r, product, ReasonProductTaken)
	return nil
}

// HandleClosed makes sure a rejected or cancelled request no longer holds its product
func (st *Settlement) HandleClosed(ctx context.Context, event *models.NegotiationEvent) error {
	ctx, span := util.StartSpan(ctx, "Settlement.HandleClosed")
	defer span.End()

	processed, err := st.repo.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		return nil
	}

	st.claims.Release(ctx, event.ProductID, event.RequestID)

	if err := st.repo.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		st.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}
