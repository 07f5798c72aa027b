package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db/dbtest"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)
	listingID := uuid.New()
	actor := &outbox.ActorRef{UserID: uuid.New(), Role: "buyer"}

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionEnded,
			AggregateType: enums.AggregateListing,
			AggregateID:   listingID,
			Actor:         actor,
			Data:          map[string]string{"listingId": listingID.String()},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, listingID, rows[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.Equal(t, 1, envelope.Version)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "buyer", envelope.Actor.Role)
	assert.JSONEq(t, `{"listingId":"`+listingID.String()+`"}`, string(envelope.Data))
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	conn := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(conn), nil)

	err := svc.Emit(context.Background(), nil, outbox.DomainEvent{EventType: enums.EventBidPlaced, AggregateType: enums.AggregateBid})
	assert.Error(t, err)

	err = svc.Emit(context.Background(), conn, outbox.DomainEvent{EventType: "order_created", AggregateType: enums.AggregateBid})
	assert.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := outbox.NewRepository(conn)

	fresh := insertEvent(t, conn, repo, 0)
	exhausted := insertEvent(t, conn, repo, 5)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh, rows[0].ID)

	require.NoError(t, repo.MarkFailedTx(conn, fresh, errors.New("publish timeout")))
	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", fresh).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "publish timeout", *failed.LastError)
	assert.Nil(t, failed.PublishedAt)

	require.NoError(t, repo.MarkTerminalTx(conn, exhausted, errors.New("gave up")))
	require.NoError(t, repo.MarkPublishedTx(conn, fresh))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	deleted, err := repo.DeletePublishedBefore(context.Background(), time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)
}

func TestDLQRepositoryRoundTrip(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(conn)
	eventID := uuid.New()
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)

	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventBidPlaced,
		AggregateType: enums.AggregateBid,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, 1024)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func insertEvent(t *testing.T, conn *gorm.DB, repo *outbox.Repository, attempts int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventBidPlaced,
		AggregateType: enums.AggregateBid,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  attempts,
	}))
	return id
}
