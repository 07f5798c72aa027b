package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/auctionhouse-backend/internal/notifications"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

type Notification struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	ListingID *uuid.UUID             `json:"listingId,omitempty"`
	BidID     *uuid.UUID             `json:"bidId,omitempty"`
	EscrowID  *uuid.UUID             `json:"escrowId,omitempty"`
	Payload   json.RawMessage        `json:"payload,omitempty"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type NotificationPage struct {
	Items       []Notification `json:"items"`
	Cursor      string         `json:"cursor,omitempty"`
	UnreadCount int64          `json:"unreadCount"`
}

func FromNotification(n models.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		ListingID: n.ListingID,
		BidID:     n.BidID,
		EscrowID:  n.EscrowID,
		Payload:   n.Payload,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

func FromNotificationPage(result *notifications.ListResult) NotificationPage {
	page := NotificationPage{
		Items:       make([]Notification, 0, len(result.Items)),
		Cursor:      result.Cursor,
		UnreadCount: result.UnreadCount,
	}
	for _, n := range result.Items {
		page.Items = append(page.Items, FromNotification(n))
	}
	return page
}
