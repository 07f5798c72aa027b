package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/auctionhouse-backend/api/controllers"
	"github.com/angelmondragon/auctionhouse-backend/api/middleware"
	"github.com/angelmondragon/auctionhouse-backend/internal/notifications"
	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
	"github.com/angelmondragon/auctionhouse-backend/pkg/metrics"
	"github.com/angelmondragon/auctionhouse-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	pingers map[string]controllers.Pinger,
	redisClient *redis.Client,
	httpMetrics *metrics.HTTPMetrics,
	metricsHandler http.Handler,
	listingService controllers.ListingService,
	bidService controllers.BidService,
	escrowService controllers.EscrowService,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
	)

	bidPolicy := middleware.NewRateLimitPolicy("bids", cfg.HTTP.BidRateWindow, cfg.HTTP.BidRateLimit)
	throttle := func(next http.Handler) http.Handler { return next }
	if redisClient != nil {
		throttle = middleware.RateLimit(bidPolicy, redisClient, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, pingers))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, logg))
		}

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", controllers.CreateListing(listingService, logg))
			r.Route("/{listingId}", func(r chi.Router) {
				r.Get("/", controllers.GetListing(listingService, logg))
				r.With(throttle).Post("/bids", controllers.PlaceBid(bidService, logg))
				r.With(throttle).Put("/offer", controllers.SubmitOffer(bidService, logg))
				r.Post("/watch", controllers.WatchListing(listingService, logg))
				r.Delete("/watch", controllers.UnwatchListing(listingService, logg))
			})
		})

		r.Route("/bids/{bidId}", func(r chi.Router) {
			r.Post("/authorize", controllers.AuthorizeBid(bidService, logg))
			r.Post("/cancel", controllers.CancelBid(bidService, logg))
		})

		r.Route("/offers/{offerId}", func(r chi.Router) {
			r.Post("/cancel", controllers.CancelOffer(bidService, logg))
			r.Post("/accept", controllers.AcceptOffer(bidService, logg))
		})

		r.Route("/escrows/{escrowId}", func(r chi.Router) {
			r.Get("/", controllers.GetEscrow(escrowService, logg))
			r.Post("/transitions", controllers.TransitionEscrow(escrowService, logg))
			r.Post("/deposit", controllers.AuthorizeEscrowDeposit(escrowService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
		})
	})

	return r
}
