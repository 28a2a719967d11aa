package worker

import (
	"context"
	"encoding/json"
	"testing"

	"exchange-service/internal/models"
	"exchange-service/internal/service"
	"exchange-service/internal/service/servicetest"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHandlerReleasesClaimOnCancel(t *testing.T) {
	repo := servicetest.NewMemoryRepository()
	claims := servicetest.NewMemoryClaims()
	settlement := service.NewSettlement(repo, service.NewClaimManager(repo, claims), &servicetest.RecordingPublisher{})
	ctx := context.Background()

	require.NoError(t, claims.InitClaim(ctx, 5, 50))

	event := models.NegotiationEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-cancel", EventType: models.EventTypeNegotiationCancelled},
		RequestID: 50,
		ProductID: 5,
		Status:    models.RequestStatusCancelled,
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, NewEventHandler(settlement).HandleMessage(ctx, kafka.Message{Value: raw}))
	assert.Zero(t, claims.Holder(5))

	processed, err := repo.IsEventProcessed(ctx, "evt-cancel")
	require.NoError(t, err)
	assert.True(t, processed)
}
