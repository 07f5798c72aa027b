package notifications

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/registry"
)

// Plan expands one decoded event into the notifications it produces, one per
// (recipient, type). Duplicate recipients collapse; ids and timestamps are
// assigned on insert.
func Plan(event *registry.ResolvedEvent) ([]models.Notification, error) {
	if event == nil {
		return nil, registry.NewNonRetryableError(fmt.Errorf("event required"))
	}
	eventID, err := uuid.Parse(event.Envelope.EventID)
	if err != nil {
		return nil, registry.NewNonRetryableError(fmt.Errorf("invalid event id: %w", err))
	}

	p := &plan{eventID: eventID, payload: event.Envelope.Data, seen: map[string]struct{}{}}
	switch payload := event.Payload.(type) {
	case *payloads.BidPlacedEvent:
		p.bidPlaced(payload)
	case *payloads.OfferSubmittedEvent:
		p.offerSubmitted(payload)
	case *payloads.OfferAcceptedEvent:
		p.offerAccepted(payload)
	case *payloads.ListingPriceDroppedEvent:
		p.priceDropped(payload)
	case *payloads.AuctionEndingSoonEvent:
		p.endingSoon(payload)
	case *payloads.AuctionEndedEvent:
		p.auctionEnded(payload)
	case *payloads.EscrowCreatedEvent:
		p.escrowCreated(payload)
	case *payloads.EscrowTransitionedEvent:
		p.escrowTransitioned(payload)
	case *payloads.EscrowReminderEvent:
		p.escrowReminder(payload)
	default:
		return nil, registry.NewNonRetryableError(fmt.Errorf("no notification plan for %s", event.Descriptor.EventType))
	}
	return p.out, nil
}

type plan struct {
	eventID uuid.UUID
	payload json.RawMessage
	seen    map[string]struct{}
	out     []models.Notification
}

type refs struct {
	listing *uuid.UUID
	bid     *uuid.UUID
	escrow  *uuid.UUID
}

func (p *plan) add(recipient uuid.UUID, typ enums.NotificationType, title, message string, r refs) {
	if recipient == uuid.Nil {
		return
	}
	key := recipient.String() + "|" + string(typ)
	if _, ok := p.seen[key]; ok {
		return
	}
	p.seen[key] = struct{}{}
	p.out = append(p.out, models.Notification{
		EventID:         p.eventID,
		RecipientUserID: recipient,
		Type:            typ,
		Title:           title,
		Message:         message,
		ListingID:       r.listing,
		BidID:           r.bid,
		EscrowID:        r.escrow,
		Payload:         p.payload,
	})
}

func (p *plan) bidPlaced(e *payloads.BidPlacedEvent) {
	r := refs{listing: uuidPtr(e.ListingID), bid: uuidPtr(e.BidID)}
	amount := bids.FormatAmount(e.Amount, e.Currency)

	if e.PreviousBidderID != nil && *e.PreviousBidderID != e.BidderID {
		p.add(*e.PreviousBidderID, enums.NotificationTypeOutbid,
			"You have been outbid",
			fmt.Sprintf("Someone bid %s on %q.", amount, e.ListingTitle), r)
	}

	message := fmt.Sprintf("New bid of %s on %q.", amount, e.ListingTitle)
	if e.Won {
		message = fmt.Sprintf("%q was won at %s.", e.ListingTitle, amount)
	}
	p.add(e.SellerID, enums.NotificationTypeBidReceived, "New bid received", message, r)
}

func (p *plan) offerSubmitted(e *payloads.OfferSubmittedEvent) {
	title := "New offer received"
	if e.Updated {
		title = "Offer updated"
	}
	p.add(e.SellerID, enums.NotificationTypeOfferReceived, title,
		fmt.Sprintf("Offer of %s on %q.", bids.FormatAmount(e.Amount, e.Currency), e.ListingTitle),
		refs{listing: uuidPtr(e.ListingID)})
}

func (p *plan) offerAccepted(e *payloads.OfferAcceptedEvent) {
	p.add(e.BuyerID, enums.NotificationTypeOfferAccepted, "Offer accepted",
		fmt.Sprintf("Your offer of %s on %q was accepted.", bids.FormatAmount(e.Amount, e.Currency), e.ListingTitle),
		refs{listing: uuidPtr(e.ListingID), escrow: uuidPtr(e.EscrowID)})
}

func (p *plan) priceDropped(e *payloads.ListingPriceDroppedEvent) {
	message := fmt.Sprintf("%q is now %s.", e.ListingTitle, bids.FormatAmount(e.Price, e.Currency))
	for _, id := range e.WatcherIDs {
		p.add(id, enums.NotificationTypePriceDecrease, "Price dropped", message, refs{listing: uuidPtr(e.ListingID)})
	}
}

func (p *plan) endingSoon(e *payloads.AuctionEndingSoonEvent) {
	message := fmt.Sprintf("%q ends at %s.", e.ListingTitle, e.AuctionEndTime.UTC().Format("2006-01-02 15:04 MST"))
	for _, id := range e.RecipientIDs {
		p.add(id, enums.NotificationTypeAuctionEndingSoon, "Auction ending soon", message, refs{listing: uuidPtr(e.ListingID)})
	}
}

func (p *plan) auctionEnded(e *payloads.AuctionEndedEvent) {
	r := refs{listing: uuidPtr(e.ListingID), escrow: e.EscrowID}
	sold := e.Outcome == enums.ListingStatusSold && e.WinnerID != nil && e.WinningBid != nil

	switch {
	case sold:
		p.add(e.SellerID, enums.NotificationTypeAuctionEnded, "Auction ended",
			fmt.Sprintf("%q sold for %s.", e.ListingTitle, bids.FormatAmount(*e.WinningBid, e.Currency)), r)
		p.add(*e.WinnerID, enums.NotificationTypeAuctionEnded, "You won",
			fmt.Sprintf("You won %q at %s.", e.ListingTitle, bids.FormatAmount(*e.WinningBid, e.Currency)), r)
	case len(e.BidderIDs) > 0 && !e.ReserveMet:
		p.add(e.SellerID, enums.NotificationTypeAuctionEnded, "Auction ended",
			fmt.Sprintf("%q ended without meeting the reserve.", e.ListingTitle), r)
	default:
		p.add(e.SellerID, enums.NotificationTypeAuctionEnded, "Auction ended",
			fmt.Sprintf("%q ended without a sale.", e.ListingTitle), r)
	}

	for _, id := range e.BidderIDs {
		p.add(id, enums.NotificationTypeAuctionEnded, "Auction ended",
			fmt.Sprintf("%q has ended.", e.ListingTitle), r)
	}
}

func (p *plan) escrowCreated(e *payloads.EscrowCreatedEvent) {
	r := refs{listing: uuidPtr(e.ListingID), escrow: uuidPtr(e.EscrowID)}
	amount := bids.FormatAmount(e.Amount, e.Currency)
	p.add(e.BuyerID, enums.NotificationTypeEscrowCreated, "Escrow opened",
		fmt.Sprintf("Escrow for %q opened at %s. Authorize your deposit to continue.", e.ListingTitle, amount), r)
	p.add(e.SellerID, enums.NotificationTypeEscrowCreated, "Escrow opened",
		fmt.Sprintf("Escrow for %q opened at %s.", e.ListingTitle, amount), r)
}

func (p *plan) escrowTransitioned(e *payloads.EscrowTransitionedEvent) {
	r := refs{listing: uuidPtr(e.ListingID), escrow: uuidPtr(e.EscrowID)}
	status := humanize(string(e.To))

	var (
		typ   enums.NotificationType
		title string
	)
	switch e.To {
	case enums.EscrowStatusCompleted:
		typ, title = enums.NotificationTypeEscrowCompleted, "Escrow completed"
	case enums.EscrowStatusDisputed:
		typ, title = enums.NotificationTypeEscrowDisputed, "Escrow disputed"
	case enums.EscrowStatusCancelled:
		typ, title = enums.NotificationTypeEscrowCancelled, "Escrow cancelled"
	default:
		typ, title = enums.NotificationTypeEscrowUpdated, "Escrow updated"
	}

	message := fmt.Sprintf("Escrow moved to %s.", status)
	if e.Reason != "" {
		message = fmt.Sprintf("Escrow moved to %s: %s", status, e.Reason)
	}

	if typ != enums.NotificationTypeEscrowUpdated {
		p.add(e.BuyerID, typ, title, message, r)
		p.add(e.SellerID, typ, title, message, r)
		return
	}
	// Routine steps go to the counterparty of whoever acted.
	switch e.ActorRole {
	case enums.EscrowRoleBuyer:
		p.add(e.SellerID, typ, title, message, r)
	case enums.EscrowRoleSeller:
		p.add(e.BuyerID, typ, title, message, r)
	default:
		p.add(e.BuyerID, typ, title, message, r)
		p.add(e.SellerID, typ, title, message, r)
	}
}

func (p *plan) escrowReminder(e *payloads.EscrowReminderEvent) {
	p.add(e.RecipientID, enums.NotificationTypeEscrowReminder, "Escrow action needed",
		fmt.Sprintf("Escrow is waiting in %s; %d hours remain before the deadline.", humanize(string(e.Status)), e.HoursRemaining),
		refs{listing: uuidPtr(e.ListingID), escrow: uuidPtr(e.EscrowID)})
}

func humanize(value string) string {
	return strings.ReplaceAll(value, "_", " ")
}

func uuidPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
