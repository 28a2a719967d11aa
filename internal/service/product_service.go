package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"exchange-service/internal/apperror"
	"exchange-service/internal/models"
	"exchange-service/internal/negotiation"
	"exchange-service/internal/session"
	"exchange-service/internal/store"
	"exchange-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductService handles product listing and visibility
type ProductService struct {
	repo   Repository
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repo Repository) *ProductService {
	return &ProductService{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

const (
	maxNameLength        = 80
	maxDescriptionLength = 200
)

// ProductInput is the writable part of a product
type ProductInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Category    models.Category     `json:"category"`
	Condition   models.Condition    `json:"condition"`
	Quantity    int                 `json:"quantity"`
	Value       decimal.NullDecimal `json:"value"`
}

// ProductView is a product together with what the viewer sees of it
type ProductView struct {
	models.Product
	View negotiation.View `json:"view"`
}

func (in *ProductInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if in.Name == "" {
		return apperror.New(apperror.ErrCodeValidation, "name is required")
	}
	if utf8.RuneCountInString(in.Name) > maxNameLength {
		return apperror.Newf(apperror.ErrCodeValidation, "name is limited to %d characters", maxNameLength)
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return apperror.Newf(apperror.ErrCodeValidation, "description is limited to %d characters", maxDescriptionLength)
	}
	if !in.Category.Valid() {
		return apperror.New(apperror.ErrCodeValidation, "category must be DONATION or TRADE")
	}
	switch models.Condition(strings.ToUpper(string(in.Condition))) {
	case "":
		in.Condition = models.ConditionUsed
	case models.ConditionNew, models.ConditionUsed:
		in.Condition = models.Condition(strings.ToUpper(string(in.Condition)))
	default:
		return apperror.New(apperror.ErrCodeValidation, "condition must be NEW or USED")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity < 0 {
		return apperror.New(apperror.ErrCodeValidation, "quantity must be positive")
	}
	if in.Value.Valid && in.Value.Decimal.IsNegative() {
		return apperror.New(apperror.ErrCodeValidation, "value cannot be negative")
	}
	return nil
}

func (in *ProductInput) applyTo(p *models.Product) {
	p.Name = in.Name
	p.Description = in.Description
	p.Category = in.Category
	p.Condition = in.Condition
	p.Quantity = in.Quantity
	p.Value = in.Value
}

// CreateProduct lists a new product owned by the session user
func (s *ProductService) CreateProduct(ctx context.Context, sess session.Session, in ProductInput) (*ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if err := in.normalize(); err != nil {
		return nil, err
	}

	p := &models.Product{OwnerID: sess.UserID, OwnerName: sess.UserName}
	in.applyTo(p)

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created",
		zap.Int64("product_id", p.ID),
		zap.Int64("owner_id", p.OwnerID))

	return viewOf(p, sess.UserID), nil
}

// GetProduct returns one product resolved for the viewer
func (s *ProductService) GetProduct(ctx context.Context, sess session.Session, id int64) (*ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.GetProduct")
	defer span.End()

	p, err := s.load(ctx, id, sess.UserID)
	if err != nil {
		return nil, err
	}
	return viewOf(p, sess.UserID), nil
}

// UpdateProduct changes a product while nothing holds it
func (s *ProductService) UpdateProduct(ctx context.Context, sess session.Session, id int64, in ProductInput) (*ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateProduct")
	defer span.End()

	if err := in.normalize(); err != nil {
		return nil, err
	}

	p, err := s.editable(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	in.applyTo(p)
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	s.logger.Info("Product updated", zap.Int64("product_id", p.ID))
	return viewOf(p, sess.UserID), nil
}

// DeleteProduct removes a product while nothing holds it
func (s *ProductService) DeleteProduct(ctx context.Context, sess session.Session, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.DeleteProduct")
	defer span.End()

	if _, err := s.editable(ctx, sess, id); err != nil {
		return err
	}

	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperror.ErrProductNotFound
		}
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

// Catalog lists other users' products the viewer can still ask for or is
// already negotiating. Products offered in an open trade are left out.
func (s *ProductService) Catalog(ctx context.Context, sess session.Session, filter negotiation.ProductFilter) ([]ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Catalog")
	defer span.End()

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	traded, err := s.offeredInActiveTrades(ctx)
	if err != nil {
		return nil, err
	}

	others := products[:0]
	for _, p := range products {
		if p.OwnerID != sess.UserID && !traded[p.ID] {
			others = append(others, p)
		}
	}

	views, err := s.resolveAll(ctx, others, sess.UserID, filter)
	if err != nil {
		return nil, err
	}

	out := views[:0]
	for _, v := range views {
		if heldByOthers(v.View) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Mine lists the viewer's own products
func (s *ProductService) Mine(ctx context.Context, sess session.Session, filter negotiation.ProductFilter) ([]ProductView, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Mine")
	defer span.End()

	products, err := s.repo.ListProductsByOwner(ctx, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return s.resolveAll(ctx, products, sess.UserID, filter)
}

// offeredInActiveTrades collects the products offered by PENDING or APPROVED trades
func (s *ProductService) offeredInActiveTrades(ctx context.Context) (map[int64]bool, error) {
	active, err := s.repo.GetActiveRequests(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load active negotiations: %w", err)
	}

	offered := make(map[int64]bool)
	for _, r := range active {
		for _, id := range r.OfferedProductIDs {
			offered[id] = true
		}
	}
	return offered, nil
}

// heldByOthers reports an active negotiation the viewer takes no part in
func heldByOthers(v negotiation.View) bool {
	active := v.DisplayStatus == negotiation.StatusPending || v.DisplayStatus == negotiation.StatusApproved
	return active && v.PrimaryAction != negotiation.ActionViewNegotiation && v.PrimaryAction != negotiation.ActionAcceptReject
}

func (s *ProductService) editable(ctx context.Context, sess session.Session, id int64) (*models.Product, error) {
	p, err := s.load(ctx, id, sess.UserID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != sess.UserID {
		return nil, apperror.ErrNotOwner
	}
	if !negotiation.Resolve(p, sess.UserID).Editable {
		return nil, apperror.ErrProductLocked
	}

	// offered inside someone else's pending trade
	offers, err := s.repo.GetPendingRequestsInvolving(ctx, []int64{id}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to check offers: %w", err)
	}
	if len(offers) > 0 {
		return nil, apperror.ErrProductLocked
	}
	return p, nil
}

// load fetches a product with the requests viewerID may see
func (s *ProductService) load(ctx context.Context, id, viewerID int64) (*models.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperror.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	products := []models.Product{*p}
	if err := attachRequests(ctx, s.repo, products, viewerID); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (s *ProductService) resolveAll(ctx context.Context, products []models.Product, viewerID int64, filter negotiation.ProductFilter) ([]ProductView, error) {
	if err := attachRequests(ctx, s.repo, products, viewerID); err != nil {
		return nil, err
	}

	views := make([]ProductView, 0, len(products))
	for i := range products {
		v := viewOf(&products[i], viewerID)
		if filter.Match(&v.Product, v.View) {
			views = append(views, *v)
		}
	}
	return views, nil
}

// viewOf resolves p for viewerID. Only the owner gets every request back,
// anybody else sees their own.
func viewOf(p *models.Product, viewerID int64) *ProductView {
	v := negotiation.Resolve(p, viewerID)
	util.ProductViewsResolved.WithLabelValues(string(v.DisplayStatus)).Inc()

	out := &ProductView{Product: *p, View: v}
	if p.OwnerID != viewerID {
		out.Requests = nil
		for _, r := range p.Requests {
			if r.RequesterID == viewerID {
				out.Requests = append(out.Requests, r)
			}
		}
	}
	return out
}

// attachRequests fills each product's Requests with those viewerID may see
func attachRequests(ctx context.Context, repo Repository, products []models.Product, viewerID int64) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	requests, err := repo.GetRequestsByProductIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load requests: %w", err)
	}

	byProduct := make(map[int64][]models.NegotiationRequest, len(products))
	for _, r := range negotiation.VisibleTo(requests, viewerID) {
		byProduct[r.ProductID] = append(byProduct[r.ProductID], r)
	}
	for i := range products {
		products[i].Requests = byProduct[products[i].ID]
	}
	return nil
}
