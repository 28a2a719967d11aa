package store

import (
	"context"
	"fmt"

	"exchange-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const requestColumns = `id, product_id, requester_id, requester_name, status, idempotency_key,
	created_at, updated_at`

// CreateRequest inserts a negotiation request
func (s *Store) CreateRequest(ctx context.Context, r *models.NegotiationRequest) error {
	query := `
		INSERT INTO negotiation_requests (product_id, requester_id, requester_name, status, idempotency_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		r.ProductID, r.RequesterID, r.RequesterName, r.Status, r.IdempotencyKey)
	return translate(row.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt))
}

// GetRequestByID retrieves a request with its offered products
func (s *Store) GetRequestByID(ctx context.Context, id int64) (*models.NegotiationRequest, error) {
	var r models.NegotiationRequest
	err := s.db.GetContext(ctx, &r,
		"SELECT "+requestColumns+" FROM negotiation_requests WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}

	requests := []models.NegotiationRequest{r}
	if err := s.attachOffers(ctx, requests); err != nil {
		return nil, err
	}
	return &requests[0], nil
}

// GetRequestByIdempotencyKey returns nil when no request uses key
func (s *Store) GetRequestByIdempotencyKey(ctx context.Context, key string) (*models.NegotiationRequest, error) {
	var r models.NegotiationRequest
	err := s.db.GetContext(ctx, &r,
		"SELECT "+requestColumns+" FROM negotiation_requests WHERE idempotency_key = $1", key)
	if err = translate(err); err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetRequestByID(ctx, r.ID)
}

// GetDraftRequest returns the requester's PROCESSING request for a product, or nil
func (s *Store) GetDraftRequest(ctx context.Context, productID, requesterID int64) (*models.NegotiationRequest, error) {
	var r models.NegotiationRequest
	err := s.db.GetContext(ctx, &r,
		"SELECT "+requestColumns+` FROM negotiation_requests
		WHERE product_id = $1 AND requester_id = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		productID, requesterID, models.RequestStatusProcessing)
	if err = translate(err); err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.GetRequestByID(ctx, r.ID)
}

// GetRequestsByProductIDs retrieves every request made for the given products
func (s *Store) GetRequestsByProductIDs(ctx context.Context, productIDs []int64) ([]models.NegotiationRequest, error) {
	if len(productIDs) == 0 {
		return []models.NegotiationRequest{}, nil
	}

	query, args, err := sqlx.In("SELECT "+requestColumns+
		" FROM negotiation_requests WHERE product_id IN (?) ORDER BY created_at, id", productIDs)
	if err != nil {
		return nil, err
	}
	return s.selectRequests(ctx, s.db.Rebind(query), args...)
}

// GetRequestsByRequester retrieves the requests a user made
func (s *Store) GetRequestsByRequester(ctx context.Context, requesterID int64) ([]models.NegotiationRequest, error) {
	return s.selectRequests(ctx,
		"SELECT "+requestColumns+" FROM negotiation_requests WHERE requester_id = $1 ORDER BY created_at, id",
		requesterID)
}

// GetActiveRequests retrieves every PENDING or APPROVED request
func (s *Store) GetActiveRequests(ctx context.Context) ([]models.NegotiationRequest, error) {
	return s.selectRequests(ctx,
		"SELECT "+requestColumns+" FROM negotiation_requests WHERE status IN ($1, $2) ORDER BY id",
		models.RequestStatusPending, models.RequestStatusApproved)
}

// GetPendingRequestsInvolving retrieves PENDING requests, other than excludeID,
// that ask for or offer any of productIDs
func (s *Store) GetPendingRequestsInvolving(ctx context.Context, productIDs []int64, excludeID int64) ([]models.NegotiationRequest, error) {
	if len(productIDs) == 0 {
		return []models.NegotiationRequest{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+requestColumns+` FROM negotiation_requests r
		WHERE r.status = ? AND r.id <> ?
		  AND (r.product_id IN (?) OR EXISTS (
			SELECT 1 FROM negotiation_offered_products o
			WHERE o.request_id = r.id AND o.product_id IN (?)))
		ORDER BY r.id`,
		models.RequestStatusPending, excludeID, productIDs, productIDs)
	if err != nil {
		return nil, err
	}
	return s.selectRequests(ctx, s.db.Rebind(query), args...)
}

// TransitionRequest moves a request to status `to` if it is currently in one
// of `from`. It reports false when the request was not in an expected state.
func (s *Store) TransitionRequest(ctx context.Context, id int64, from []models.RequestStatus, to models.RequestStatus) (bool, error) {
	query, args, err := sqlx.In(
		"UPDATE negotiation_requests SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?)",
		to, id, from)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetOfferedProducts replaces the products offered by a trade request
func (s *Store) SetOfferedProducts(ctx context.Context, requestID int64, productIDs []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM negotiation_offered_products WHERE request_id = $1", requestID); err != nil {
		return fmt.Errorf("failed to clear offers: %w", err)
	}

	for _, productID := range productIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO negotiation_offered_products (request_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			requestID, productID); err != nil {
			return fmt.Errorf("failed to add offer %d: %w", productID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE negotiation_requests SET updated_at = NOW() WHERE id = $1", requestID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SetIdempotencyKey attaches key to an existing request. Returns ErrConflict
// when another request already uses it.
func (s *Store) SetIdempotencyKey(ctx context.Context, requestID int64, key string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE negotiation_requests SET idempotency_key = $1, updated_at = NOW() WHERE id = $2",
		key, requestID)
	if err != nil {
		return translate(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDraft removes a request that was never submitted, together with its
// offers. It reports false when the request is gone or no longer a draft.
func (s *Store) DeleteDraft(ctx context.Context, requestID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM negotiation_requests WHERE id = $1 AND status = $2",
		requestID, models.RequestStatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) selectRequests(ctx context.Context, query string, args ...interface{}) ([]models.NegotiationRequest, error) {
	var requests []models.NegotiationRequest
	if err := s.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, err
	}
	if err := s.attachOffers(ctx, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// attachOffers fills OfferedProductIDs in place
func (s *Store) attachOffers(ctx context.Context, requests []models.NegotiationRequest) error {
	if len(requests) == 0 {
		return nil
	}

	ids := make([]int64, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
	}

	query, args, err := sqlx.In(
		"SELECT request_id, product_id FROM negotiation_offered_products WHERE request_id IN (?) ORDER BY product_id", ids)
	if err != nil {
		return err
	}

	var offers []models.OfferedProduct
	if err := s.db.SelectContext(ctx, &offers, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load offers: %w", err)
	}

	byRequest := make(map[int64][]int64, len(requests))
	for _, o := range offers {
		byRequest[o.RequestID] = append(byRequest[o.RequestID], o.ProductID)
	}
	for i := range requests {
		requests[i].OfferedProductIDs = byRequest[requests[i].ID]
	}
	return nil
}
