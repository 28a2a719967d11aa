package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"go.uber.org/zap"
)

// ClaimManager keeps each product locked to at most one active request
type ClaimManager struct {
	repo   Repository
	claims ClaimStore
	logger *zap.Logger
}

// NewClaimManager creates a new claim manager
func NewClaimManager(repo Repository, claims ClaimStore) *ClaimManager {
	return &ClaimManager{
		repo:   repo,
		claims: claims,
		logger: util.GetLogger(),
	}
}

// Claim locks productID for requestID (fast path via Redis).
// Returns false when another active request holds the product.
func (cm *ClaimManager) Claim(ctx context.Context, productID, requestID int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "ClaimManager.Claim")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ClaimLatency.Observe(time.Since(start).Seconds())
	}()

	ok, err := cm.claims.ClaimProduct(ctx, productID, requestID)
	if err != nil {
		cm.logger.Warn("Redis claim failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
		util.ClaimsFailedTotal.WithLabelValues("redis_error").Inc()
		return cm.claimDB(ctx, productID, requestID)
	}
	if ok {
		return true, nil
	}

	// Redis may still hold a claim whose request already ended.
	held, err := cm.heldByActive(ctx, productID, requestID)
	if err != nil {
		return false, err
	}
	if held {
		util.ClaimsFailedTotal.WithLabelValues("held").Inc()
		return false, nil
	}

	cm.logger.Info("Replacing stale claim",
		zap.Int64("product_id", productID),
		zap.Int64("request_id", requestID))
	if err := cm.claims.InitClaim(ctx, productID, requestID); err != nil {
		cm.logger.Error("Failed to overwrite stale claim",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	return true, nil
}

// heldByActive reports whether the request recorded as holding productID is
// still PENDING or APPROVED. When the holder cannot be read it falls back to
// scanning the product's requests.
func (cm *ClaimManager) heldByActive(ctx context.Context, productID, requestID int64) (bool, error) {
	holder, err := cm.claims.ClaimedBy(ctx, productID)
	if err != nil {
		cm.logger.Warn("Failed to read claim holder, checking DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
		free, err := cm.claimDB(ctx, productID, requestID)
		return !free, err
	}
	if holder == 0 || holder == requestID {
		return false, nil
	}

	r, err := cm.repo.GetRequestByID(ctx, holder)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load claim holder %d: %w", holder, err)
	}
	return r.ProductID == productID && r.Status.IsActive(), nil
}

// claimDB reports whether no other active request exists for the product
func (cm *ClaimManager) claimDB(ctx context.Context, productID, requestID int64) (bool, error) {
	requests, err := cm.repo.GetRequestsByProductIDs(ctx, []int64{productID})
	if err != nil {
		return false, fmt.Errorf("failed to load requests for product %d: %w", productID, err)
	}
	for _, r := range requests {
		if r.ID != requestID && r.Status.IsActive() {
			return false, nil
		}
	}
	return true, nil
}

// Release drops requestID's claim on productID. Failures are only logged,
// Claim replaces stale entries later.
func (cm *ClaimManager) Release(ctx context.Context, productID, requestID int64) {
	ctx, span := util.StartSpan(ctx, "ClaimManager.Release")
	defer span.End()

	if err := cm.claims.ReleaseProduct(ctx, productID, requestID); err != nil {
		cm.logger.Error("Failed to release claim in Redis",
			zap.Int64("product_id", productID),
			zap.Int64("request_id", requestID),
			zap.Error(err))
	}
}

// SyncClaimsToRedis rebuilds claims from the active requests in the database
func (cm *ClaimManager) SyncClaimsToRedis(ctx context.Context) error {
	cm.logger.Info("Starting claim sync to Redis")

	requests, err := cm.repo.GetActiveRequests(ctx)
	if err != nil {
		return fmt.Errorf("failed to get active requests: %w", err)
	}

	for _, r := range requests {
		if err := cm.claims.InitClaim(ctx, r.ProductID, r.ID); err != nil {
			cm.logger.Error("Failed to init Redis claim",
				zap.Int64("product_id", r.ProductID),
				zap.Int64("request_id", r.ID),
				zap.Error(err))
		}
	}

	cm.logger.Info("Claim sync completed", zap.Int("count", len(requests)))
	return nil
}
