package service

import (
	"context"
	"testing"

	"exchange-service/internal/apperror"
	"exchange-service/internal/models"
	"exchange-service/internal/negotiation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNegotiationReusesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	first, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: id})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusProcessing, first.Status)

	second, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: id})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// drafts are not announced
	assert.Empty(t, f.publisher.EventTypes())
}

func TestCreateNegotiationIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	req := &CreateNegotiationRequest{ProductID: id, IdempotencyKey: "key-1", Submit: true}
	first, err := f.negotiations.CreateNegotiation(ctx, requester, req)
	require.NoError(t, err)

	again, err := f.negotiations.CreateNegotiation(ctx, requester,
		&CreateNegotiationRequest{ProductID: id, IdempotencyKey: "key-1", Submit: true})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, []string{models.EventTypeNegotiationSubmitted}, f.publisher.EventTypes())

	_, err = f.negotiations.CreateNegotiation(ctx, stranger,
		&CreateNegotiationRequest{ProductID: id, IdempotencyKey: "key-1"})
	assert.True(t, apperror.IsConflict(err))
}

func TestCreateNegotiationKeyOnReusedDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	draft, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: id})
	require.NoError(t, err)

	submitted, err := f.negotiations.CreateNegotiation(ctx, requester,
		&CreateNegotiationRequest{ProductID: id, IdempotencyKey: "retry-1", Submit: true})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, submitted.ID)
	assert.Equal(t, models.RequestStatusPending, submitted.Status)

	retried, err := f.negotiations.CreateNegotiation(ctx, requester,
		&CreateNegotiationRequest{ProductID: id, IdempotencyKey: "retry-1", Submit: true})
	require.NoError(t, err)
	assert.Equal(t, draft.ID, retried.ID)
	assert.Equal(t, models.RequestStatusPending, retried.Status)
	assert.Equal(t, []string{models.EventTypeNegotiationSubmitted}, f.publisher.EventTypes())
}

func TestCreateNegotiationRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	_, err := f.negotiations.CreateNegotiation(ctx, owner, &CreateNegotiationRequest{ProductID: id})
	assert.True(t, apperror.IsValidation(err))

	_, err = f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: 404})
	assert.ErrorIs(t, err, apperror.ErrProductNotFound)

	f.pending(t, requester, id)
	_, err = f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: id})
	assert.True(t, apperror.IsConflict(err))
}

func TestSubmitClaimsProductAndPublishes(t *testing.T) {
	f := newFixture(t)
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	r := f.pending(t, requester, id)

	assert.Equal(t, r.ID, f.claims.Holder(id))
	event, ok := f.publisher.Last()
	require.True(t, ok)
	assert.Equal(t, models.EventTypeNegotiationSubmitted, event.EventType)
	assert.Equal(t, r.ID, event.RequestID)
	assert.Equal(t, owner.UserID, event.OwnerID)
	assert.Equal(t, models.CategoryDonation, event.Category)
	assert.NotEmpty(t, event.EventID)
}

func TestSubmitRefusedWhileProductHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	f.pending(t, requester, id)

	_, err := f.negotiations.CreateNegotiation(ctx, stranger, &CreateNegotiationRequest{ProductID: id, Submit: true})
	assert.ErrorIs(t, err, apperror.ErrProductLocked)
}

func TestSubmitFallsBackToDatabaseWhenClaimsFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	f.claims.SetFailing(true)

	r := f.pending(t, requester, id)
	assert.Equal(t, models.RequestStatusPending, f.repo.Status(r.ID))

	_, err := f.negotiations.CreateNegotiation(ctx, stranger, &CreateNegotiationRequest{ProductID: id, Submit: true})
	assert.ErrorIs(t, err, apperror.ErrProductLocked)
}

func TestSubmitReplacesStaleClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	require.NoError(t, f.claims.InitClaim(ctx, id, 999))

	r := f.pending(t, requester, id)
	assert.Equal(t, r.ID, f.claims.Holder(id))
}

func TestSubmitReplacesClaimOfEndedRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	first := f.pending(t, requester, id)

	_, err := f.negotiations.Cancel(ctx, requester, first.ID)
	require.NoError(t, err)
	// release lost, the cancelled request still holds the key
	require.NoError(t, f.claims.InitClaim(ctx, id, first.ID))

	second := f.pending(t, stranger, id)
	assert.Equal(t, second.ID, f.claims.Holder(id))
}

func TestTradeOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wanted := f.product(t, owner, "Violão", models.CategoryTrade)
	mine := f.product(t, requester, "Teclado", models.CategoryTrade)
	notMine := f.product(t, stranger, "Flauta", models.CategoryTrade)
	donation := f.product(t, owner, "Livro", models.CategoryDonation)

	draft, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: wanted})
	require.NoError(t, err)

	_, err = f.negotiations.Submit(ctx, requester, draft.ID)
	assert.True(t, apperror.IsValidation(err), "a trade without offers cannot be submitted")

	_, err = f.negotiations.SetOffers(ctx, requester, draft.ID, []int64{notMine})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.negotiations.SetOffers(ctx, requester, draft.ID, []int64{wanted})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.negotiations.SetOffers(ctx, requester, draft.ID, []int64{404})
	assert.True(t, apperror.IsValidation(err))
	_, err = f.negotiations.SetOffers(ctx, owner, draft.ID, []int64{mine})
	assert.ErrorIs(t, err, apperror.ErrRequestNotFound)

	updated, err := f.negotiations.SetOffers(ctx, requester, draft.ID, []int64{mine, mine})
	require.NoError(t, err)
	assert.Equal(t, []int64{mine}, updated.OfferedProductIDs)

	submitted, err := f.negotiations.Submit(ctx, requester, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, submitted.Status)

	_, err = f.negotiations.SetOffers(ctx, requester, draft.ID, []int64{mine})
	assert.True(t, apperror.IsConflict(err), "offers are frozen once submitted")

	gift, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: donation})
	require.NoError(t, err)
	_, err = f.negotiations.SetOffers(ctx, requester, gift.ID, []int64{mine})
	assert.True(t, apperror.IsValidation(err), "donations take no offers")
}

func TestRespond(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	r := f.pending(t, requester, id)

	_, err := f.negotiations.Respond(ctx, owner, r.ID, models.RequestStatusCancelled)
	assert.True(t, apperror.IsValidation(err))

	_, err = f.negotiations.Respond(ctx, requester, r.ID, models.RequestStatusApproved)
	assert.ErrorIs(t, err, apperror.ErrNotOwner)

	_, err = f.negotiations.Respond(ctx, stranger, r.ID, models.RequestStatusApproved)
	assert.ErrorIs(t, err, apperror.ErrNotParticipant)

	approved, err := f.negotiations.Respond(ctx, owner, r.ID, models.RequestStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	assert.Equal(t, r.ID, f.claims.Holder(id), "an approved negotiation keeps the product")

	_, err = f.negotiations.Respond(ctx, owner, r.ID, models.RequestStatusRejected)
	assert.True(t, apperror.IsConflict(err))

	view, err := f.products.GetProduct(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusApproved, view.View.DisplayStatus)
	assert.False(t, view.View.Editable)
}

func TestRejectReleasesProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	r := f.pending(t, requester, id)

	_, err := f.negotiations.Respond(ctx, owner, r.ID, models.RequestStatusRejected)
	require.NoError(t, err)
	assert.Zero(t, f.claims.Holder(id))

	// somebody else may ask now
	f.pending(t, stranger, id)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	r := f.pending(t, requester, id)

	_, err := f.negotiations.Cancel(ctx, owner, r.ID)
	assert.ErrorIs(t, err, apperror.ErrNotRequester)

	cancelled, err := f.negotiations.Cancel(ctx, requester, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)
	assert.Zero(t, f.claims.Holder(id))
	assert.Equal(t, []string{
		models.EventTypeNegotiationSubmitted,
		models.EventTypeNegotiationCancelled,
	}, f.publisher.EventTypes())

	_, err = f.negotiations.Cancel(ctx, requester, r.ID)
	assert.True(t, apperror.IsConflict(err))

	asRequester, err := f.products.GetProduct(ctx, requester, id)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusCancelled, asRequester.View.DisplayStatus)
	assert.Equal(t, negotiation.ActionNone, asRequester.View.PrimaryAction)

	asOwner, err := f.products.GetProduct(ctx, owner, id)
	require.NoError(t, err)
	assert.Equal(t, negotiation.StatusAvailable, asOwner.View.DisplayStatus)
	assert.True(t, asOwner.View.Editable)
}

func TestCancelRefusesDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)

	draft, err := f.negotiations.CreateNegotiation(ctx, requester, &CreateNegotiationRequest{ProductID: id})
	require.NoError(t, err)

	_, err = f.negotiations.Cancel(ctx, requester, draft.ID)
	assert.True(t, apperror.IsConflict(err))
	assert.Equal(t, models.RequestStatusProcessing, f.repo.Status(draft.ID))
	assert.Empty(t, f.publisher.EventTypes())
}

func TestDiscardDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wanted := f.product(t, owner, "Violão", models.CategoryTrade)
	offered := f.product(t, requester, "Teclado", models.CategoryTrade)

	ownerListBefore, err := f.negotiations.ListNegotiations(ctx, owner, negotiation.RequestFilter{})
	require.NoError(t, err)
	viewBefore, err := f.products.GetProduct(ctx, requester, wanted)
	require.NoError(t, err)

	draft, err := f.negotiations.CreateNegotiation(ctx, requester,
		&CreateNegotiationRequest{ProductID: wanted, OfferedProductIDs: []int64{offered}})
	require.NoError(t, err)

	assert.ErrorIs(t, f.negotiations.DiscardDraft(ctx, owner, draft.ID), apperror.ErrRequestNotFound)
	assert.ErrorIs(t, f.negotiations.DiscardDraft(ctx, stranger, draft.ID), apperror.ErrNotParticipant)

	require.NoError(t, f.negotiations.DiscardDraft(ctx, requester, draft.ID))
	assert.False(t, f.repo.Exists(draft.ID))
	assert.Empty(t, f.publisher.EventTypes())

	ownerListAfter, err := f.negotiations.ListNegotiations(ctx, owner, negotiation.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, ownerListBefore, ownerListAfter)

	viewAfter, err := f.products.GetProduct(ctx, requester, wanted)
	require.NoError(t, err)
	assert.Equal(t, viewBefore.View, viewAfter.View)
	assert.Equal(t, negotiation.StatusAvailable, viewAfter.View.DisplayStatus)
	assert.Equal(t, negotiation.ActionRequest, viewAfter.View.PrimaryAction)

	assert.ErrorIs(t, f.negotiations.DiscardDraft(ctx, requester, draft.ID), apperror.ErrRequestNotFound)

	pending := f.pending(t, requester, wanted, offered)
	assert.True(t, apperror.IsConflict(f.negotiations.DiscardDraft(ctx, requester, pending.ID)))
}

func TestGetNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wanted := f.product(t, owner, "Violão", models.CategoryTrade)
	offered := f.product(t, requester, "Teclado", models.CategoryTrade)

	draft, err := f.negotiations.CreateNegotiation(ctx, requester,
		&CreateNegotiationRequest{ProductID: wanted, OfferedProductIDs: []int64{offered}})
	require.NoError(t, err)

	_, err = f.negotiations.GetNegotiation(ctx, owner, draft.ID)
	assert.ErrorIs(t, err, apperror.ErrRequestNotFound, "owners never see drafts")

	_, err = f.negotiations.Submit(ctx, requester, draft.ID)
	require.NoError(t, err)

	_, err = f.negotiations.GetNegotiation(ctx, stranger, draft.ID)
	assert.ErrorIs(t, err, apperror.ErrNotParticipant)

	_, err = f.negotiations.GetNegotiation(ctx, owner, 404)
	assert.ErrorIs(t, err, apperror.ErrRequestNotFound)

	detail, err := f.negotiations.GetNegotiation(ctx, owner, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, negotiation.RoleOwner, detail.Role)
	assert.Equal(t, negotiation.StatusPending, detail.Label)
	assert.Equal(t, negotiation.ActionAcceptReject, detail.Product.View.PrimaryAction)
	require.Len(t, detail.OfferedProducts, 1)
	assert.Equal(t, offered, detail.OfferedProducts[0].ID)
	assert.NotNil(t, detail.Messages)
}

func TestListNegotiations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mesa := f.product(t, owner, "Mesa", models.CategoryDonation)
	livro := f.product(t, owner, "Livro", models.CategoryDonation)
	bola := f.product(t, requester, "Bola", models.CategoryDonation)

	rejected := f.pending(t, requester, mesa)
	_, err := f.negotiations.Respond(ctx, owner, rejected.ID, models.RequestStatusRejected)
	require.NoError(t, err)
	pending := f.pending(t, requester, livro)
	received := f.pending(t, owner, bola)
	draft, err := f.negotiations.CreateNegotiation(ctx, stranger, &CreateNegotiationRequest{ProductID: bola})
	require.NoError(t, err)

	ids := func(list []NegotiationSummary) []int64 {
		out := []int64{}
		for _, s := range list {
			out = append(out, s.Request.ID)
		}
		return out
	}

	all, err := f.negotiations.ListNegotiations(ctx, requester, negotiation.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{received.ID, pending.ID, rejected.ID}, ids(all))
	assert.NotContains(t, ids(all), draft.ID)
	assert.Equal(t, negotiation.RoleOwner, all[0].Role)
	assert.Equal(t, negotiation.StatusRejected, all[2].Label)

	sent, err := f.negotiations.ListNegotiations(ctx, requester, negotiation.RequestFilter{Role: negotiation.RoleRequester})
	require.NoError(t, err)
	assert.Equal(t, []int64{pending.ID, rejected.ID}, ids(sent))

	onlyRejected, err := f.negotiations.ListNegotiations(ctx, requester,
		negotiation.RequestFilter{Status: models.RequestStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, []int64{rejected.ID}, ids(onlyRejected))

	mineAsStranger, err := f.negotiations.ListNegotiations(ctx, stranger, negotiation.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, []int64{draft.ID}, ids(mineAsStranger))
}

func TestSyncClaimsToRedis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.product(t, owner, "Mesa", models.CategoryDonation)
	r := f.pending(t, requester, id)

	require.NoError(t, f.claims.ReleaseProduct(ctx, id, r.ID))
	require.Zero(t, f.claims.Holder(id))

	require.NoError(t, NewClaimManager(f.repo, f.claims).SyncClaimsToRedis(ctx))
	assert.Equal(t, r.ID, f.claims.Holder(id))
}
