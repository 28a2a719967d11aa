package service

import (
	"context"
	"strings"
	"testing"

	"exchange-service/internal/apperror"
	"exchange-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	r := f.pending(t, requester, id)

	msg, err := f.messages.SendMessage(ctx, requester, r.ID, &SendMessageRequest{Content: "  Olá!  "})
	require.NoError(t, err)
	assert.Equal(t, "Olá!", msg.Content)
	assert.Equal(t, requester.UserID, msg.SenderID)
	assert.Equal(t, "Bruno", msg.SenderName)

	_, err = f.messages.SendMessage(ctx, owner, r.ID, &SendMessageRequest{Content: "Pode buscar amanhã"})
	require.NoError(t, err)

	detail, err := f.negotiations.GetNegotiation(ctx, owner, r.ID)
	require.NoError(t, err)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, "Olá!", detail.Messages[0].Content)

	require.Len(t, f.publisher.Messages, 2)
	assert.Equal(t, models.EventTypeMessageSent, f.publisher.Messages[0].EventType)
	assert.Equal(t, msg.ID, f.publisher.Messages[0].MessageID)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	r := f.pending(t, requester, id)

	_, err := f.messages.SendMessage(ctx, requester, r.ID, &SendMessageRequest{Content: " \n\t "})
	assert.True(t, apperror.IsValidation(err))

	// the fixture caps messages at 20 characters, counted in runes
	_, err = f.messages.SendMessage(ctx, requester, r.ID, &SendMessageRequest{Content: strings.Repeat("ã", 20)})
	assert.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, requester, r.ID, &SendMessageRequest{Content: strings.Repeat("a", 21)})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.messages.SendMessage(ctx, stranger, r.ID, &SendMessageRequest{Content: "oi"})
	assert.ErrorIs(t, err, apperror.ErrNotParticipant)
}

func TestSendMessageRequiresOpenNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	draft, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: id})
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, requester, draft.ID, &SendMessageRequest{Content: "oi"})
	assert.True(t, apperror.IsConflict(err))
	_, err = f.messages.SendMessage(ctx, owner, draft.ID, &SendMessageRequest{Content: "oi"})
	assert.ErrorIs(t, err, apperror.ErrRequestNotFound)

	_, err = f.negotiations.Submit(ctx, requester, draft.ID)
	require.NoError(t, err)
	_, err = f.negotiations.Respond(ctx, owner, draft.ID, models.RequestStatusApproved)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, requester, draft.ID, &SendMessageRequest{Content: "combinado"})
	assert.NoError(t, err, "approved negotiations keep their chat open")

	other := f.product(t, owner, "Livro", models.CategoryDonation)
	r := f.pending(t, requester, other)
	_, err = f.negotiations.Cancel(ctx, requester, r.ID)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, owner, r.ID, &SendMessageRequest{Content: "oi"})
	assert.True(t, apperror.IsConflict(err))
}

func TestNewMessageServiceDefaultLimit(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DefaultMessageMaxLength, NewMessageService(f.negotiations, 0).maxLength)
}
