package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers"
	"github.com/angelmondragon/auctionhouse-backend/internal/bids"
	"github.com/angelmondragon/auctionhouse-backend/internal/escrow"
	"github.com/angelmondragon/auctionhouse-backend/internal/listings"
	"github.com/angelmondragon/auctionhouse-backend/internal/notifications"
	"github.com/angelmondragon/auctionhouse-backend/internal/payments"
	pkgAuth "github.com/angelmondragon/auctionhouse-backend/pkg/auth"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/db/models"
	"github.com/angelmondragon/auctionhouse-backend/pkg/enums"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

var errNotStubbed = errors.New("not stubbed")

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubListings struct{ getCalls int }

func (s *stubListings) Create(context.Context, listings.CreateInput) (*listings.View, error) {
	return nil, errNotStubbed
}

func (s *stubListings) Get(ctx context.Context, id uuid.UUID) (*listings.View, error) {
	s.getCalls++
	return &listings.View{
		Listing:         models.Listing{ID: id, Type: enums.ListingTypeFixed, Status: enums.ListingStatusActive, StartingPrice: decimal.NewFromInt(10), CurrentPrice: decimal.NewFromInt(10), Currency: "USD"},
		CurrentPrice:    decimal.NewFromInt(10),
		EffectiveStatus: enums.ListingStatusActive,
	}, nil
}

func (s *stubListings) Watch(context.Context, uuid.UUID, uuid.UUID, *decimal.Decimal) (*models.ListingWatch, error) {
	return nil, errNotStubbed
}

func (s *stubListings) Unwatch(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type stubBids struct{ cancelled []uuid.UUID }

func (s *stubBids) PlaceBid(context.Context, bids.PlaceBidInput) (*bids.BidResult, error) {
	return nil, errNotStubbed
}

func (s *stubBids) AuthorizeBid(context.Context, uuid.UUID, uuid.UUID, string) (*bids.BidResult, error) {
	return nil, errNotStubbed
}

func (s *stubBids) CancelBid(ctx context.Context, bidID, userID uuid.UUID) (*models.Bid, error) {
	s.cancelled = append(s.cancelled, bidID)
	return &models.Bid{ID: bidID, BidderID: userID, Status: enums.BidStatusCancelled}, nil
}

func (s *stubBids) SubmitOffer(context.Context, bids.SubmitOfferInput) (*bids.OfferResult, error) {
	return nil, errNotStubbed
}

func (s *stubBids) CancelOffer(context.Context, uuid.UUID, uuid.UUID) (*models.Offer, error) {
	return nil, errNotStubbed
}

func (s *stubBids) AcceptOffer(context.Context, uuid.UUID, uuid.UUID) (*bids.AcceptOfferResult, error) {
	return nil, errNotStubbed
}

type stubEscrows struct{}

func (stubEscrows) Get(context.Context, uuid.UUID, uuid.UUID) (*models.EscrowTransaction, error) {
	return nil, errNotStubbed
}

func (stubEscrows) Transition(context.Context, escrow.TransitionInput) (*models.EscrowTransaction, error) {
	return nil, errNotStubbed
}

func (stubEscrows) AuthorizeDeposit(context.Context, uuid.UUID, *uuid.UUID, string) (*payments.Hold, *models.EscrowTransaction, error) {
	return nil, nil, errNotStubbed
}

type stubNotifications struct{}

func (stubNotifications) List(context.Context, notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotifications) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (stubNotifications) MarkAllRead(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func testConfig() *config.Config {
	return &config.Config{
		App:  config.AppConfig{Env: "dev"},
		HTTP: config.HTTPConfig{AllowedOrigins: []string{"*"}},
		JWT:  config.JWTConfig{Secret: "secret", Issuer: "auctionhouse", ExpirationMinutes: 60},
	}
}

type routerFixture struct {
	handler  http.Handler
	listings *stubListings
	bids     *stubBids
}

func newRouterFixture(pingers map[string]controllers.Pinger) routerFixture {
	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ls := &stubListings{}
	bs := &stubBids{}
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := NewRouter(cfg, logg, pingers, nil, nil, metricsHandler, ls, bs, stubEscrows{}, stubNotifications{})
	return routerFixture{handler: h, listings: ls, bids: bs}
}

func bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{UserID: userID})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func TestHealthRoutesArePublic(t *testing.T) {
	f := newRouterFixture(map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}})

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestReadinessFailsWhenDependencyDown(t *testing.T) {
	f := newRouterFixture(map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("down")}})
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newRouterFixture(nil)
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/listings/"+uuid.NewString(), nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if f.listings.getCalls != 0 {
		t.Fatal("service must not be reached without a token")
	}
}

func TestAuthenticatedRoutesReachControllers(t *testing.T) {
	f := newRouterFixture(nil)
	userID := uuid.New()
	auth := bearer(t, userID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", auth)
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || f.listings.getCalls != 1 {
		t.Fatalf("get listing: status %d calls %d", resp.Code, f.listings.getCalls)
	}

	bidID := uuid.New()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/bids/"+bidID.String()+"/cancel", strings.NewReader(""))
	req.Header.Set("Authorization", auth)
	resp = httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("cancel bid: status %d: %s", resp.Code, resp.Body.String())
	}
	if len(f.bids.cancelled) != 1 || f.bids.cancelled[0] != bidID {
		t.Fatalf("expected bid %s cancelled, got %v", bidID, f.bids.cancelled)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	f := newRouterFixture(nil)
	auth := bearer(t, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", auth)
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/bids/"+uuid.NewString()+"/cancel", nil)
	req.Header.Set("Authorization", auth)
	resp = httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
