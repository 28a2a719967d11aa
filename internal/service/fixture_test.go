package service

import (
	"context"
	"testing"

	"exchange-service/internal/models"
	"exchange-service/internal/service/servicetest"
	"exchange-service/internal/session"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	owner     = session.Session{UserID: 1, UserName: "Ana"}
	requester = session.Session{UserID: 2, UserName: "Bruno"}
	stranger  = session.Session{UserID: 3, UserName: "Carla"}
)

type fixture struct {
	repo      *servicetest.MemoryRepository
	claims    *servicetest.MemoryClaims
	publisher *servicetest.RecordingPublisher

	products     *ProductService
	negotiations *NegotiationService
	messages     *MessageService
	settlement   *Settlement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      servicetest.NewMemoryRepository(),
		claims:    servicetest.NewMemoryClaims(),
		publisher: &servicetest.RecordingPublisher{},
	}
	manager := NewClaimManager(f.repo, f.claims)
	f.products = NewProductService(f.repo)
	f.negotiations = NewNegotiationService(f.repo, manager, f.publisher)
	f.messages = NewMessageService(f.negotiations, 20)
	f.settlement = NewSettlement(f.repo, manager, f.publisher)
	return f
}

func (f *fixture) product(t *testing.T, sess session.Session, name string, category models.Category) int64 {
	t.Helper()

	p, err := f.products.CreateProduct(context.Background(), sess, ProductInput{
		Name:     name,
		Category: category,
		Value:    decimal.NewNullDecimal(decimal.RequireFromString("10.50")),
	})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) pending(t *testing.T, sess session.Session, productID int64, offers ...int64) *models.NegotiationRequest {
	t.Helper()

	r, err := f.negotiations.CreateNegotiation(context.Background(), sess, &CreateNegotiationRequest{
		ProductID:         productID,
		OfferedProductIDs: offers,
		Submit:            true,
	})
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusPending, r.Status)
	return r
}
