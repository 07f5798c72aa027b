package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/dbtest"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
)

func seedNotification(recipient uuid.UUID, typ enums.NotificationType, at time.Time) models.Notification {
	return models.Notification{
		EventID:         uuid.New(),
		RecipientUserID: recipient,
		Type:            typ,
		Title:           "t",
		Message:         "m",
		CreatedAt:       at,
	}
}

func TestRepositoryInsertSkipsDuplicates(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	recipient := uuid.New()
	row := seedNotification(recipient, enums.NotificationTypeOutbid, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	inserted, err := repo.Insert(ctx, []models.Notification{row})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	// Redelivery of the same event plans the same (event, recipient, type).
	dup := row
	dup.ID = uuid.Nil
	other := row
	other.ID = uuid.Nil
	other.Type = enums.NotificationTypeBidReceived
	inserted, err = repo.Insert(ctx, []models.Notification{dup, other})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)

	count, err := repo.UnreadCount(ctx, recipient)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRepositoryListPagesNewestFirst(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	recipient := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var rows []models.Notification
	for i := 0; i < 5; i++ {
		rows = append(rows, seedNotification(recipient, enums.NotificationTypePriceDecrease, base.Add(time.Duration(i)*time.Minute)))
	}
	rows = append(rows, seedNotification(uuid.New(), enums.NotificationTypePriceDecrease, base))
	_, err := repo.Insert(ctx, rows)
	require.NoError(t, err)

	page, next, err := repo.List(ctx, listNotificationsParams{RecipientID: recipient, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.True(t, page[0].CreatedAt.Equal(base.Add(4*time.Minute)))
	assert.True(t, page[1].CreatedAt.Equal(base.Add(3*time.Minute)))

	var seen []time.Time
	cursor := next
	for cursor != nil {
		var batch []models.Notification
		batch, cursor, err = repo.List(ctx, listNotificationsParams{RecipientID: recipient, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, row := range batch {
			seen = append(seen, row.CreatedAt)
		}
	}
	require.Len(t, seen, 3)
	assert.True(t, seen[2].Equal(base))
}

func TestRepositoryMarkReadAndCleanup(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	recipient := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []models.Notification{
		seedNotification(recipient, enums.NotificationTypeOutbid, now),
		seedNotification(recipient, enums.NotificationTypeOutbid, now),
		seedNotification(recipient, enums.NotificationTypeOutbid, now),
	}
	_, err := repo.Insert(ctx, rows)
	require.NoError(t, err)

	mark, err := repo.MarkRead(ctx, uuid.New(), rows[0].ID, now)
	require.NoError(t, err)
	assert.False(t, mark.Found, "other users cannot see the row")

	mark, err = repo.MarkRead(ctx, recipient, rows[0].ID, now.Add(-100*24*time.Hour))
	require.NoError(t, err)
	assert.True(t, mark.Updated)

	mark, err = repo.MarkRead(ctx, recipient, rows[0].ID, now)
	require.NoError(t, err)
	assert.True(t, mark.Found)
	assert.False(t, mark.Updated)

	unread, _, err := repo.List(ctx, listNotificationsParams{RecipientID: recipient, UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	updated, err := repo.MarkAllRead(ctx, recipient, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	deleted, err := repo.DeleteReadBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, _, err := repo.List(ctx, listNotificationsParams{RecipientID: recipient})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}
