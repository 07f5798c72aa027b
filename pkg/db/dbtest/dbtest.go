// Package dbtest opens isolated in-memory SQLite databases carrying the
// tables the repositories use.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/auctionhouse-backend/pkg/db"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE listings (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		listing_type TEXT NOT NULL,
		status TEXT NOT NULL,
		currency TEXT NOT NULL,
		starting_price NUMERIC NOT NULL,
		reserve_price NUMERIC,
		price_decrement NUMERIC NOT NULL,
		decrement_interval_seconds INTEGER,
		auction_end_time DATETIME,
		current_price NUMERIC NOT NULL,
		highest_bid NUMERIC,
		highest_bidder_id TEXT,
		highest_bid_id TEXT,
		version INTEGER NOT NULL DEFAULT 0,
		ended_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE listing_watches (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		price_threshold NUMERIC,
		last_notified_price NUMERIC,
		created_at DATETIME,
		UNIQUE (listing_id, user_id)
	)`,
	`CREATE TABLE bids (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		bidder_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_reference_id TEXT,
		created_at DATETIME,
		updated_at DATETIME,
		cancelled_at DATETIME
	)`,
	`CREATE TABLE offers (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		bidder_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		payment_reference_id TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX offers_open_per_bidder ON offers (listing_id, bidder_id) WHERE status IN ('pending', 'active')`,
	`CREATE TABLE escrow_transactions (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		bid_id TEXT,
		offer_id TEXT,
		amount NUMERIC NOT NULL,
		platform_fee NUMERIC NOT NULL,
		escrow_fee NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		payment_reference_id TEXT,
		payment_client_token TEXT,
		delivery_details TEXT,
		dispute_reason TEXT,
		state_entered_at DATETIME NOT NULL,
		deadline_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX escrow_open_per_listing ON escrow_transactions (listing_id) WHERE status NOT IN ('completed', 'disputed', 'cancelled')`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		recipient_user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		listing_id TEXT,
		bid_id TEXT,
		escrow_id TEXT,
		payload TEXT,
		read_at DATETIME,
		created_at DATETIME,
		UNIQUE (event_id, recipient_user_id, type)
	)`,
	`CREATE TABLE scheduled_tasks (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		dedupe_key TEXT NOT NULL UNIQUE,
		due_at DATETIME NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		locked_until DATETIME,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE payment_ledger_events (
		id TEXT PRIMARY KEY,
		reference_type TEXT NOT NULL,
		reference_id TEXT NOT NULL,
		hold_id TEXT,
		provider TEXT NOT NULL,
		type TEXT NOT NULL,
		amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		metadata TEXT,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME
	)`,
}

// Open returns a fresh database with every table created. Connections are
// capped at one so transactions serialize.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// Client wraps Open in a db.Client for services that need WithTx.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.FromGorm(Open(t))
}
