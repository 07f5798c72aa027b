package enums

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateListing OutboxAggregateType = "listing"
	AggregateBid     OutboxAggregateType = "bid"
	AggregateOffer   OutboxAggregateType = "offer"
	AggregateEscrow  OutboxAggregateType = "escrow"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateListing,
	AggregateBid,
	AggregateOffer,
	AggregateEscrow,
}

func (a OutboxAggregateType) IsValid() bool { return contains(validAggregateTypes, a) }

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventBidPlaced           OutboxEventType = "bid_placed"
	EventOfferSubmitted      OutboxEventType = "offer_submitted"
	EventOfferAccepted       OutboxEventType = "offer_accepted"
	EventListingPriceDropped OutboxEventType = "listing_price_dropped"
	EventAuctionEndingSoon   OutboxEventType = "auction_ending_soon"
	EventAuctionEnded        OutboxEventType = "auction_ended"
	EventEscrowCreated       OutboxEventType = "escrow_created"
	EventEscrowTransitioned  OutboxEventType = "escrow_transitioned"
	EventEscrowReminder      OutboxEventType = "escrow_reminder"
)

var validOutboxEventTypes = []OutboxEventType{
	EventBidPlaced,
	EventOfferSubmitted,
	EventOfferAccepted,
	EventListingPriceDropped,
	EventAuctionEndingSoon,
	EventAuctionEnded,
	EventEscrowCreated,
	EventEscrowTransitioned,
	EventEscrowReminder,
}

func (e OutboxEventType) IsValid() bool { return contains(validOutboxEventTypes, e) }

// OutboxDLQErrorReason explains why an event left the publish loop.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return contains([]OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}, r)
}
