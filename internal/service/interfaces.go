package service

import (
	"context"

	"exchange-service/internal/models"
)

// Repository is the persistence the services need. *store.Store implements it.
type Repository interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	ListProductsByOwner(ctx context.Context, ownerID int64) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateRequest(ctx context.Context, r *models.NegotiationRequest) error
	GetRequestByID(ctx context.Context, id int64) (*models.NegotiationRequest, error)
	GetRequestByIdempotencyKey(ctx context.Context, key string) (*models.NegotiationRequest, error)
	GetDraftRequest(ctx context.Context, productID, requesterID int64) (*models.NegotiationRequest, error)
	GetRequestsByProductIDs(ctx context.Context, productIDs []int64) ([]models.NegotiationRequest, error)
	GetRequestsByRequester(ctx context.Context, requesterID int64) ([]models.NegotiationRequest, error)
	GetActiveRequests(ctx context.Context) ([]models.NegotiationRequest, error)
	GetPendingRequestsInvolving(ctx context.Context, productIDs []int64, excludeID int64) ([]models.NegotiationRequest, error)
	TransitionRequest(ctx context.Context, id int64, from []models.RequestStatus, to models.RequestStatus) (bool, error)
	SetOfferedProducts(ctx context.Context, requestID int64, productIDs []int64) error
	SetIdempotencyKey(ctx context.Context, requestID int64, key string) error
	DeleteDraft(ctx context.Context, requestID int64) (bool, error)

	CreateMessage(ctx context.Context, m *models.Message) error
	GetMessagesByRequestID(ctx context.Context, requestID int64) ([]models.Message, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ClaimStore holds fast product claims. *redisclient.Client implements it.
type ClaimStore interface {
	ClaimProduct(ctx context.Context, productID, requestID int64) (bool, error)
	ReleaseProduct(ctx context.Context, productID, requestID int64) error
	InitClaim(ctx context.Context, productID, requestID int64) error
	ClaimedBy(ctx context.Context, productID int64) (int64, error)
}

// Publisher emits domain events. *broker.EventPublisher implements it.
type Publisher interface {
	PublishNegotiationEvent(ctx context.Context, event *models.NegotiationEvent) error
	PublishMessageSent(ctx context.Context, productID int64, event *models.MessageSentEvent) error
}
