package notifications

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
)

func envelope(t *testing.T, eventID uuid.UUID, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func testRegistry(t *testing.T) *registry.EventRegistry {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{AuctionTopic: "auction-events", EscrowTopic: "escrow-events"})
	require.NoError(t, err)
	return reg
}

func resolve(t *testing.T, eventType enums.OutboxEventType, data any) *registry.ResolvedEvent {
	t.Helper()
	event, err := testRegistry(t).Decode(eventType, envelope(t, uuid.New(), data))
	require.NoError(t, err)
	return event
}

func byRecipient(rows []models.Notification) map[uuid.UUID][]models.Notification {
	out := map[uuid.UUID][]models.Notification{}
	for _, row := range rows {
		out[row.RecipientUserID] = append(out[row.RecipientUserID], row)
	}
	return out
}

func TestPlanBidPlacedNotifiesOutbidBidderAndSeller(t *testing.T) {
	seller, bidder, previous := uuid.New(), uuid.New(), uuid.New()
	prevAmount := decimal.NewFromInt(900)
	event := resolve(t, enums.EventBidPlaced, payloads.BidPlacedEvent{
		ListingID:        uuid.New(),
		ListingTitle:     "Camera",
		ListingType:      enums.ListingTypeAscendingBid,
		SellerID:         seller,
		BidID:            uuid.New(),
		BidderID:         bidder,
		Amount:           decimal.NewFromInt(1000),
		Currency:         "USD",
		PreviousBidderID: &previous,
		PreviousAmount:   &prevAmount,
	})

	rows, err := Plan(event)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got := byRecipient(rows)
	require.Len(t, got[previous], 1)
	assert.Equal(t, enums.NotificationTypeOutbid, got[previous][0].Type)
	assert.Contains(t, got[previous][0].Message, "$1000.00")
	require.Len(t, got[seller], 1)
	assert.Equal(t, enums.NotificationTypeBidReceived, got[seller][0].Type)
	assert.Empty(t, got[bidder])

	for _, row := range rows {
		assert.Equal(t, event.Envelope.EventID, row.EventID.String())
		require.NotNil(t, row.ListingID)
		require.NotNil(t, row.BidID)
		assert.NotEmpty(t, row.Payload)
	}
}

func TestPlanBidPlacedSkipsSelfOutbid(t *testing.T) {
	seller, bidder := uuid.New(), uuid.New()
	event := resolve(t, enums.EventBidPlaced, payloads.BidPlacedEvent{
		ListingID:        uuid.New(),
		ListingTitle:     "Camera",
		SellerID:         seller,
		BidID:            uuid.New(),
		BidderID:         bidder,
		Amount:           decimal.NewFromInt(1200),
		Currency:         "USD",
		PreviousBidderID: &bidder,
	})

	rows, err := Plan(event)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, seller, rows[0].RecipientUserID)
}

func TestPlanPriceDropAndEndingSoonDeduplicateRecipients(t *testing.T) {
	watcher := uuid.New()
	drop := resolve(t, enums.EventListingPriceDropped, payloads.ListingPriceDroppedEvent{
		ListingID:    uuid.New(),
		ListingTitle: "Lamp",
		Price:        decimal.NewFromInt(85),
		Currency:     "USD",
		WatcherIDs:   []uuid.UUID{watcher, watcher, uuid.New()},
	})
	rows, err := Plan(drop)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, enums.NotificationTypePriceDecrease, rows[0].Type)
	assert.Equal(t, `"Lamp" is now $85.00.`, rows[0].Message)

	soon := resolve(t, enums.EventAuctionEndingSoon, payloads.AuctionEndingSoonEvent{
		ListingID:      uuid.New(),
		ListingTitle:   "Lamp",
		AuctionEndTime: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		RecipientIDs:   []uuid.UUID{watcher},
	})
	rows, err = Plan(soon)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeAuctionEndingSoon, rows[0].Type)
	assert.Contains(t, rows[0].Message, "2026-03-02 09:30 UTC")
}

func TestPlanAuctionEnded(t *testing.T) {
	seller, winner, loser := uuid.New(), uuid.New(), uuid.New()
	escrowID := uuid.New()
	winning := decimal.NewFromInt(1500)

	t.Run("sold", func(t *testing.T) {
		rows, err := Plan(resolve(t, enums.EventAuctionEnded, payloads.AuctionEndedEvent{
			ListingID:    uuid.New(),
			ListingTitle: "Bike",
			SellerID:     seller,
			Outcome:      enums.ListingStatusSold,
			WinnerID:     &winner,
			WinningBid:   &winning,
			Currency:     "USD",
			BidderIDs:    []uuid.UUID{winner, loser},
			EscrowID:     &escrowID,
			ReserveMet:   true,
		}))
		require.NoError(t, err)
		got := byRecipient(rows)
		require.Len(t, rows, 3)
		assert.Equal(t, `"Bike" sold for $1500.00.`, got[seller][0].Message)
		assert.Equal(t, "You won", got[winner][0].Title)
		assert.Equal(t, `"Bike" has ended.`, got[loser][0].Message)
		require.NotNil(t, got[winner][0].EscrowID)
		assert.Equal(t, escrowID, *got[winner][0].EscrowID)
	})

	t.Run("reserve not met", func(t *testing.T) {
		rows, err := Plan(resolve(t, enums.EventAuctionEnded, payloads.AuctionEndedEvent{
			ListingID:    uuid.New(),
			ListingTitle: "Bike",
			SellerID:     seller,
			Outcome:      enums.ListingStatusEnded,
			Currency:     "USD",
			BidderIDs:    []uuid.UUID{loser},
		}))
		require.NoError(t, err)
		got := byRecipient(rows)
		require.Len(t, rows, 2)
		assert.Contains(t, got[seller][0].Message, "reserve")
		assert.Nil(t, got[seller][0].EscrowID)
	})

	t.Run("no bids", func(t *testing.T) {
		rows, err := Plan(resolve(t, enums.EventAuctionEnded, payloads.AuctionEndedEvent{
			ListingID:    uuid.New(),
			ListingTitle: "Bike",
			SellerID:     seller,
			Outcome:      enums.ListingStatusEnded,
			Currency:     "USD",
			ReserveMet:   true,
		}))
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, `"Bike" ended without a sale.`, rows[0].Message)
	})
}

func TestPlanEscrowTransitions(t *testing.T) {
	buyer, seller := uuid.New(), uuid.New()
	base := payloads.EscrowTransitionedEvent{
		EscrowID:  uuid.New(),
		ListingID: uuid.New(),
		BuyerID:   buyer,
		SellerID:  seller,
	}

	cases := []struct {
		name       string
		action     enums.EscrowAction
		to         enums.EscrowStatus
		actor      enums.EscrowRole
		wantType   enums.NotificationType
		recipients []uuid.UUID
	}{
		{"buyer step notifies seller", enums.EscrowActionAgree, enums.EscrowStatusAgreementReached, enums.EscrowRoleBuyer, enums.NotificationTypeEscrowUpdated, []uuid.UUID{seller}},
		{"seller step notifies buyer", enums.EscrowActionRecordDelivery, enums.EscrowStatusDeliveryInProgress, enums.EscrowRoleSeller, enums.NotificationTypeEscrowUpdated, []uuid.UUID{buyer}},
		{"system step notifies both", enums.EscrowActionSecurePayment, enums.EscrowStatusPaymentSecured, enums.EscrowRoleSystem, enums.NotificationTypeEscrowUpdated, []uuid.UUID{buyer, seller}},
		{"completion notifies both", enums.EscrowActionReleaseFunds, enums.EscrowStatusCompleted, enums.EscrowRoleBuyer, enums.NotificationTypeEscrowCompleted, []uuid.UUID{buyer, seller}},
		{"dispute notifies both", enums.EscrowActionDispute, enums.EscrowStatusDisputed, enums.EscrowRoleBuyer, enums.NotificationTypeEscrowDisputed, []uuid.UUID{buyer, seller}},
		{"cancel notifies both", enums.EscrowActionCancel, enums.EscrowStatusCancelled, enums.EscrowRoleSystem, enums.NotificationTypeEscrowCancelled, []uuid.UUID{buyer, seller}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := base
			data.Action, data.To, data.ActorRole = tc.action, tc.to, tc.actor
			rows, err := Plan(resolve(t, enums.EventEscrowTransitioned, data))
			require.NoError(t, err)
			require.Len(t, rows, len(tc.recipients))
			for i, row := range rows {
				assert.Equal(t, tc.recipients[i], row.RecipientUserID)
				assert.Equal(t, tc.wantType, row.Type)
			}
		})
	}
}

func TestPlanEscrowReminder(t *testing.T) {
	buyer := uuid.New()
	rows, err := Plan(resolve(t, enums.EventEscrowReminder, payloads.EscrowReminderEvent{
		EscrowID:       uuid.New(),
		ListingID:      uuid.New(),
		Status:         enums.EscrowStatusDepositPending,
		RecipientID:    buyer,
		AwaitedRole:    enums.EscrowRoleBuyer,
		HoursRemaining: 12,
		DeadlineAt:     time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, buyer, rows[0].RecipientUserID)
	assert.Equal(t, "Escrow is waiting in deposit pending; 12 hours remain before the deadline.", rows[0].Message)
}

func TestPlanRejectsUnknownPayload(t *testing.T) {
	_, err := Plan(&registry.ResolvedEvent{
		Envelope: outbox.PayloadEnvelope{EventID: uuid.NewString()},
		Payload:  struct{}{},
	})
	require.Error(t, err)
	assert.True(t, registry.IsNonRetryable(err))
}
