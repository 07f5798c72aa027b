package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/internal/listings"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/auctionhouse-backend/pkg/errors"
)

func auctionView(sellerID uuid.UUID) *listings.View {
	reserve := decimal.NewFromInt(500)
	high := decimal.NewFromInt(450)
	end := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	return &listings.View{
		Listing: models.Listing{
			ID:             uuid.New(),
			SellerID:       sellerID,
			Title:          "Camera",
			Type:           enums.ListingTypeAscendingBid,
			Status:         enums.ListingStatusActive,
			Currency:       "USD",
			StartingPrice:  decimal.NewFromInt(100),
			ReservePrice:   &reserve,
			HighestBid:     &high,
			AuctionEndTime: &end,
		},
		CurrentPrice:    high,
		EffectiveStatus: enums.ListingStatusActive,
	}
}

func TestCreateListingMapsRequest(t *testing.T) {
	sellerID := uuid.New()
	svc := &fakeListingService{
		createFn: func(ctx context.Context, in listings.CreateInput) (*listings.View, error) {
			if in.SellerID != sellerID {
				t.Fatalf("unexpected seller %s", in.SellerID)
			}
			if in.Type != enums.ListingTypeDutchAuction || in.Title != "Lamp" {
				t.Fatalf("unexpected input %+v", in)
			}
			if in.DecrementInterval != time.Hour || !in.PriceDecrement.Equal(decimal.NewFromInt(5)) {
				t.Fatalf("unexpected decay %v %s", in.DecrementInterval, in.PriceDecrement)
			}
			if in.ReservePrice != nil {
				t.Fatalf("expected no reserve")
			}
			return &listings.View{
				Listing:         models.Listing{ID: uuid.New(), SellerID: sellerID, Title: in.Title, Type: in.Type, PriceDecrement: in.PriceDecrement},
				CurrentPrice:    in.StartingPrice,
				EffectiveStatus: enums.ListingStatusActive,
			}, nil
		},
	}

	body := `{"title":"  Lamp ","listingType":"dutch-auction","startingPrice":"100.00","reservePrice":null,"priceDecrement":"5","decrementIntervalSeconds":3600}`
	resp := serve(CreateListing(svc, testLogger()), newRequest(http.MethodPost, "/api/v1/listings", body, sellerID, nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var data struct {
		Title          string `json:"title"`
		CurrentPrice   string `json:"currentPrice"`
		PriceDecrement string `json:"priceDecrement"`
		HasReserve     bool   `json:"hasReserve"`
		ReserveMet     bool   `json:"reserveMet"`
	}
	decodeData(t, resp, &data)
	if data.CurrentPrice != "100" || data.PriceDecrement != "5" || data.HasReserve || !data.ReserveMet {
		t.Fatalf("unexpected listing %+v", data)
	}
}

func TestCreateListingValidatesType(t *testing.T) {
	svc := &fakeListingService{
		createFn: func(context.Context, listings.CreateInput) (*listings.View, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	body := `{"title":"Lamp","listingType":"raffle","startingPrice":"10"}`
	resp := serve(CreateListing(svc, testLogger()), newRequest(http.MethodPost, "/api/v1/listings", body, uuid.New(), nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateListingRejectsUnknownFields(t *testing.T) {
	svc := &fakeListingService{}
	body := `{"title":"Lamp","listingType":"fixed","startingPrice":"10","hasReserve":true}`
	resp := serve(CreateListing(svc, testLogger()), newRequest(http.MethodPost, "/api/v1/listings", body, uuid.New(), nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetListingHidesReserveFromBuyers(t *testing.T) {
	sellerID := uuid.New()
	view := auctionView(sellerID)
	svc := &fakeListingService{
		getFn: func(ctx context.Context, id uuid.UUID) (*listings.View, error) {
			if id != view.Listing.ID {
				t.Fatalf("unexpected id %s", id)
			}
			return view, nil
		},
	}
	params := map[string]string{"listingId": view.Listing.ID.String()}

	type listingBody struct {
		ReservePrice *string `json:"reservePrice"`
		HasReserve   bool    `json:"hasReserve"`
		ReserveMet   bool    `json:"reserveMet"`
	}

	resp := serve(GetListing(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/listings/x", "", uuid.New(), params))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var buyer listingBody
	decodeData(t, resp, &buyer)
	if buyer.ReservePrice != nil || !buyer.HasReserve || buyer.ReserveMet {
		t.Fatalf("unexpected buyer view %+v", buyer)
	}

	resp = serve(GetListing(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/listings/x", "", sellerID, params))
	var seller listingBody
	decodeData(t, resp, &seller)
	if seller.ReservePrice == nil || *seller.ReservePrice != "500" {
		t.Fatalf("seller should see reserve, got %+v", seller)
	}
}

func TestGetListingNotFound(t *testing.T) {
	svc := &fakeListingService{
		getFn: func(context.Context, uuid.UUID) (*listings.View, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		},
	}
	id := uuid.NewString()
	resp := serve(GetListing(svc, testLogger()), newRequest(http.MethodGet, "/api/v1/listings/"+id, "", uuid.New(), map[string]string{"listingId": id}))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestWatchListingAcceptsEmptyBody(t *testing.T) {
	userID := uuid.New()
	listingID := uuid.New()
	svc := &fakeListingService{
		watchFn: func(ctx context.Context, lid, uid uuid.UUID, threshold *decimal.Decimal) (*models.ListingWatch, error) {
			if lid != listingID || uid != userID || threshold != nil {
				t.Fatalf("unexpected watch args %s %s %v", lid, uid, threshold)
			}
			return &models.ListingWatch{ListingID: lid, UserID: uid}, nil
		},
	}
	resp := serve(WatchListing(svc, testLogger()), newRequest(http.MethodPost, "/api/v1/listings/x/watch", "", userID, map[string]string{"listingId": listingID.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestWatchListingPassesThreshold(t *testing.T) {
	svc := &fakeListingService{
		watchFn: func(ctx context.Context, lid, uid uuid.UUID, threshold *decimal.Decimal) (*models.ListingWatch, error) {
			if threshold == nil || !threshold.Equal(decimal.NewFromInt(80)) {
				t.Fatalf("unexpected threshold %v", threshold)
			}
			return &models.ListingWatch{ListingID: lid, UserID: uid, PriceThreshold: threshold}, nil
		},
	}
	resp := serve(WatchListing(svc, testLogger()), newRequest(http.MethodPost, "/api/v1/listings/x/watch", `{"priceThreshold":"80.00"}`, uuid.New(), map[string]string{"listingId": uuid.NewString()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUnwatchListing(t *testing.T) {
	called := false
	svc := &fakeListingService{
		unwatchFn: func(context.Context, uuid.UUID, uuid.UUID) error {
			called = true
			return nil
		},
	}
	resp := serve(UnwatchListing(svc, testLogger()), newRequest(http.MethodDelete, "/api/v1/listings/x/watch", "", uuid.New(), map[string]string{"listingId": uuid.NewString()}))
	if resp.Code != http.StatusNoContent || !called {
		t.Fatalf("expected 204 and a service call, got %d", resp.Code)
	}
}
