package bids

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

func (h *harness) offer(t *testing.T, listingID, bidder uuid.UUID, amount int64, message string) *OfferResult {
	t.Helper()
	res, err := h.svc.SubmitOffer(context.Background(), SubmitOfferInput{
		ListingID: listingID,
		BidderID:  bidder,
		Amount:    decimal.NewFromInt(amount),
		Message:   message,
		SourceID:  "pm_card",
	})
	require.NoError(t, err)
	return res
}

func TestSubmitOfferCreatesAndRevises(t *testing.T) {
	h := newHarness(t)
	listing := h.listing(t, enums.ListingTypeFixed)
	bidder := uuid.New()
	ctx := context.Background()

	first := h.offer(t, listing.ID, bidder, 900, "would you take 900?")
	assert.Equal(t, enums.OfferStatusActive, first.Offer.Status)
	assert.Equal(t, "hold_1", first.Hold.HoldID)

	edited := h.offer(t, listing.ID, bidder, 900, "final answer")
	assert.Equal(t, first.Offer.ID, edited.Offer.ID)
	assert.Nil(t, edited.Hold)
	assert.Len(t, h.broker.authorized, 1)

	raised := h.offer(t, listing.ID, bidder, 950, "ok, 950")
	assert.Equal(t, first.Offer.ID, raised.Offer.ID)
	assert.Equal(t, "hold_2", raised.Hold.HoldID)

	stored, err := h.repo.FindOffer(ctx, first.Offer.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(950)))
	assert.Equal(t, "ok, 950", stored.Message)
	assert.Equal(t, "hold_2", *stored.PaymentReferenceID)

	var count int64
	require.NoError(t, h.conn.Model(&models.Offer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, int64(3), h.eventCount(t, enums.EventOfferSubmitted))

	h.runTask(t, scheduledtasks.ReleaseHoldKey(enums.PaymentReferenceOffer, first.Offer.ID, "hold_1"), h.svc.HandleReleaseHold)
	assert.Equal(t, []string{"hold_1"}, h.broker.released)
	stored, err = h.repo.FindOffer(ctx, first.Offer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusActive, stored.Status)
	assert.Equal(t, enums.PaymentStatusAuthorized, stored.PaymentStatus)
}

func TestSubmitOfferRejections(t *testing.T) {
	h := newHarness(t)
	fixed := h.listing(t, enums.ListingTypeFixed)
	dutch := h.dutch(t)
	long := make([]byte, maxOfferMessage+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name    string
		in      SubmitOfferInput
		message string
	}{
		{"own listing", SubmitOfferInput{ListingID: fixed.ID, BidderID: h.seller, Amount: decimal.NewFromInt(900)}, "sellers cannot make offers on their own listing"},
		{"dutch auction", SubmitOfferInput{ListingID: dutch.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(900)}, "listing does not accept offers"},
		{"message too long", SubmitOfferInput{ListingID: fixed.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(900), Message: string(long)}, "offer message is too long"},
		{"zero amount", SubmitOfferInput{ListingID: fixed.ID, BidderID: uuid.New(), Amount: decimal.Zero}, "amount must be positive"},
		{"sub-cent amount", SubmitOfferInput{ListingID: fixed.ID, BidderID: uuid.New(), Amount: decimal.RequireFromString("900.005")}, "amount has too many decimal places"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.SubmitOffer(context.Background(), tc.in)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
			assert.Equal(t, tc.message, typed.Message())
		})
	}
}

func TestSubmitOfferBelowAskingIsAllowed(t *testing.T) {
	h := newHarness(t)
	listing := h.listing(t, enums.ListingTypeFixed)

	res := h.offer(t, listing.ID, uuid.New(), 1, "lowball")
	assert.True(t, res.Offer.Amount.Equal(decimal.NewFromInt(1)))
}

func TestAcceptOfferOpensEscrowAndClosesCompetitors(t *testing.T) {
	h := newHarness(t)
	listing := h.listing(t, enums.ListingTypeAscendingBid)
	ctx := context.Background()

	bid, _ := h.bid(t, listing.ID, 1000)
	buyer := uuid.New()
	winning := h.offer(t, listing.ID, buyer, 1500, "buy it now?")
	losing := h.offer(t, listing.ID, uuid.New(), 1200, "")

	res, err := h.svc.AcceptOffer(ctx, winning.Offer.ID, h.seller)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusAccepted, res.Offer.Status)
	require.NotNil(t, res.Escrow)
	assert.Equal(t, enums.EscrowStatusDepositPending, res.Escrow.Status)
	assert.Equal(t, buyer, res.Escrow.BuyerID)
	assert.Equal(t, winning.Offer.ID, *res.Escrow.OfferID)
	assert.True(t, res.Escrow.Amount.Equal(decimal.NewFromInt(1500)))

	stored := h.reload(t, listing.ID)
	assert.Equal(t, enums.ListingStatusSold, stored.Status)
	require.NotNil(t, stored.EndedAt)
	assert.Equal(t, buyer, *stored.HighestBidderID)

	other, err := h.repo.FindOffer(ctx, losing.Offer.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusCancelled, other.Status)
	cancelledBid, err := h.repo.FindBid(ctx, bid.Bid.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.BidStatusCancelled, cancelledBid.Status)

	for _, key := range []string{
		scheduledtasks.ReleaseHoldKey(enums.PaymentReferenceOffer, losing.Offer.ID, losing.Hold.HoldID),
		scheduledtasks.ReleaseHoldKey(enums.PaymentReferenceBid, bid.Bid.ID, ""),
	} {
		task, err := h.tasks.FindByDedupeKey(ctx, key)
		require.NoError(t, err)
		assert.NotNil(t, task, key)
	}
	assert.Equal(t, int64(1), h.eventCount(t, enums.EventOfferAccepted))
	assert.Equal(t, int64(1), h.eventCount(t, enums.EventEscrowCreated))

	_, err = h.svc.PlaceBid(ctx, PlaceBidInput{ListingID: listing.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(5000)})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestAcceptOfferGuards(t *testing.T) {
	h := newHarness(t)
	listing := h.listing(t, enums.ListingTypeFixed)
	ctx := context.Background()
	res := h.offer(t, listing.ID, uuid.New(), 900, "")

	_, err := h.svc.AcceptOffer(ctx, res.Offer.ID, uuid.New())
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	h.broker.authorizeFn = func(ctx context.Context, in payments.AuthorizeInput) (*payments.Hold, error) {
		return nil, pkgerrors.New(pkgerrors.CodePayment, "card declined")
	}
	_, err = h.svc.SubmitOffer(ctx, SubmitOfferInput{ListingID: listing.ID, BidderID: uuid.New(), Amount: decimal.NewFromInt(800)})
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	pendingID := uuid.MustParse(details["offerId"].(string))

	_, err = h.svc.AcceptOffer(ctx, pendingID, h.seller)
	require.Error(t, err)
	assert.Equal(t, "offer is pending and cannot be accepted", pkgerrors.As(err).Message())

	_, err = h.svc.AcceptOffer(ctx, uuid.New(), h.seller)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestCancelOfferReleasesHold(t *testing.T) {
	h := newHarness(t)
	listing := h.listing(t, enums.ListingTypeFixed)
	bidder := uuid.New()
	res := h.offer(t, listing.ID, bidder, 900, "")
	ctx := context.Background()

	_, err := h.svc.CancelOffer(ctx, res.Offer.ID, uuid.New())
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.CodeOf(err))

	cancelled, err := h.svc.CancelOffer(ctx, res.Offer.ID, bidder)
	require.NoError(t, err)
	assert.Equal(t, enums.OfferStatusCancelled, cancelled.Status)
	assert.Equal(t, enums.PaymentStatusCancelled, cancelled.PaymentStatus)
	assert.Equal(t, []string{"hold_1"}, h.broker.released)

	again := h.offer(t, listing.ID, bidder, 950, "second try")
	assert.NotEqual(t, res.Offer.ID, again.Offer.ID)
}
