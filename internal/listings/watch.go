package listings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/pricing"
	"github.com/angelmondragon/auctionhouse-backend/internal/scheduledtasks"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox"
	"github.com/angelmondragon/auctionhouse-backend/pkg/outbox/payloads"
)

// PriceWatchResult counts one pass over decaying listings.
type PriceWatchResult struct {
	Repriced int
	Notified int
}

// EmitPriceDrops recomputes every decaying Dutch price, caches it on the
// listing and emits one price-drop event per listing for the watchers it
// newly crosses. Failures on one listing do not stop the others.
func (s *Service) EmitPriceDrops(ctx context.Context, now time.Time) (PriceWatchResult, error) {
	var result PriceWatchResult
	rows, err := s.repo.ListDecaying(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list decaying listings")
	}

	var errs error
	for _, listing := range rows {
		repriced, notified, err := s.repriceListing(ctx, listing, now)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "listing_id", listing.ID.String()), "price watch failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if repriced {
			result.Repriced++
		}
		result.Notified += notified
	}
	return result, errs
}

func (s *Service) repriceListing(ctx context.Context, listing models.Listing, now time.Time) (bool, int, error) {
	price := pricing.CurrentPrice(listing, now)
	if !price.LessThan(listing.CurrentPrice) {
		return false, 0, nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"listing_id": listing.ID.String(),
		"price":      price.String(),
	})

	watches, err := s.repo.ListWatches(ctx, listing.ID)
	if err != nil {
		return false, 0, err
	}
	var (
		ids      []uuid.UUID
		watchers []uuid.UUID
	)
	for _, w := range watches {
		if w.UserID == listing.SellerID || !crossed(w, listing, price) {
			continue
		}
		ids = append(ids, w.ID)
		watchers = append(watchers, w.UserID)
	}

	cached := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.CachePrice(ctx, listing.ID, listing.Version, price, now)
		if err != nil || !ok {
			return err
		}
		cached = true
		if len(watchers) == 0 {
			return nil
		}
		if err := repo.MarkWatchesNotified(ctx, ids, price); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingPriceDropped,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			OccurredAt:    now,
			Data: payloads.ListingPriceDroppedEvent{
				ListingID:    listing.ID,
				ListingTitle: listing.Title,
				Price:        price,
				Currency:     listing.Currency,
				WatcherIDs:   watchers,
			},
		})
	})
	if err != nil {
		return false, 0, err
	}
	if !cached {
		s.logg.Debug(ctx, "listing changed during price watch")
		return false, 0, nil
	}
	if len(watchers) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "watchers", len(watchers)), "price drop fanned out")
		return true, len(watchers), nil
	}
	return true, 0, nil
}

// crossed decides whether a watcher hears about price. A threshold watcher
// is told once when the price first reaches the threshold; re-watching
// re-arms it. Without a threshold every further drop is reported.
func crossed(w models.ListingWatch, listing models.Listing, price decimal.Decimal) bool {
	if w.PriceThreshold != nil {
		return w.LastNotifiedPrice == nil && price.LessThanOrEqual(*w.PriceThreshold)
	}
	last := listing.StartingPrice
	if w.LastNotifiedPrice != nil {
		last = *w.LastNotifiedPrice
	}
	return price.LessThan(last)
}

type taskRegistry interface {
	Register(kind enums.ScheduledTaskKind, handler scheduledtasks.Handler)
}

func (s *Service) RegisterHandlers(tasks taskRegistry) {
	tasks.Register(enums.TaskAuctionEndingSoon, s.HandleEndingSoon)
}

// HandleEndingSoon tells watchers and bidders that an ascending auction is
// about to close. It does nothing once the listing has left the active
// state.
func (s *Service) HandleEndingSoon(ctx context.Context, task models.ScheduledTask) error {
	payload, err := scheduledtasks.DecodePayload[scheduledtasks.ListingPayload](task)
	if err != nil {
		return err
	}
	listing, err := s.load(ctx, payload.ListingID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if listing.AuctionEndTime == nil || bids.EffectiveStatus(*listing, now) != enums.ListingStatusActive {
		return nil
	}
	ctx = s.logg.WithField(ctx, "listing_id", listing.ID.String())

	watches, err := s.repo.ListWatches(ctx, listing.ID)
	if err != nil {
		return err
	}
	bidders, err := s.repo.ListBidderIDs(ctx, listing.ID)
	if err != nil {
		return err
	}
	seen := map[uuid.UUID]struct{}{listing.SellerID: {}}
	var recipients []uuid.UUID
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}
	for _, w := range watches {
		add(w.UserID)
	}
	for _, id := range bidders {
		add(id)
	}
	if len(recipients) == 0 {
		return nil
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAuctionEndingSoon,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			OccurredAt:    now,
			Data: payloads.AuctionEndingSoonEvent{
				ListingID:      listing.ID,
				ListingTitle:   listing.Title,
				AuctionEndTime: *listing.AuctionEndTime,
				RecipientIDs:   recipients,
			},
		})
	})
}
