package enums

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeOutbid            NotificationType = "outbid"
	NotificationTypeBidReceived       NotificationType = "bid_received"
	NotificationTypePriceDecrease     NotificationType = "price_decrease"
	NotificationTypeAuctionEndingSoon NotificationType = "auction_ending_soon"
	NotificationTypeAuctionEnded      NotificationType = "auction_ended"
	NotificationTypeOfferReceived     NotificationType = "offer_received"
	NotificationTypeOfferAccepted     NotificationType = "offer_accepted"
	NotificationTypeEscrowCreated     NotificationType = "escrow_created"
	NotificationTypeEscrowUpdated     NotificationType = "escrow_updated"
	NotificationTypeEscrowReminder    NotificationType = "escrow_reminder"
	NotificationTypeEscrowCompleted   NotificationType = "escrow_completed"
	NotificationTypeEscrowDisputed    NotificationType = "escrow_disputed"
	NotificationTypeEscrowCancelled   NotificationType = "escrow_cancelled"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOutbid,
	NotificationTypeBidReceived,
	NotificationTypePriceDecrease,
	NotificationTypeAuctionEndingSoon,
	NotificationTypeAuctionEnded,
	NotificationTypeOfferReceived,
	NotificationTypeOfferAccepted,
	NotificationTypeEscrowCreated,
	NotificationTypeEscrowUpdated,
	NotificationTypeEscrowReminder,
	NotificationTypeEscrowCompleted,
	NotificationTypeEscrowDisputed,
	NotificationTypeEscrowCancelled,
}

func (n NotificationType) IsValid() bool { return contains(validNotificationTypes, n) }
