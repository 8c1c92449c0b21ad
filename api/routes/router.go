package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweetshop/sweetshop-backend/api/controllers"
	"github.com/sweetshop/sweetshop-backend/api/middleware"
	"github.com/sweetshop/sweetshop-backend/internal/auth"
	"github.com/sweetshop/sweetshop-backend/internal/cart"
	checkoutsvc "github.com/sweetshop/sweetshop-backend/internal/checkout"
	"github.com/sweetshop/sweetshop-backend/internal/inventory"
	"github.com/sweetshop/sweetshop-backend/pkg/auth/session"
	"github.com/sweetshop/sweetshop-backend/pkg/config"
	"github.com/sweetshop/sweetshop-backend/pkg/enums"
	"github.com/sweetshop/sweetshop-backend/pkg/logger"
	"github.com/sweetshop/sweetshop-backend/pkg/redis"
)

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies carries everything the HTTP surface needs. Nil stores disable
// the middleware that relies on them.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       controllers.Pinger
	Sessions    session.AccessSessionChecker
	RateLimits  rateLimiter
	Idempotency redis.IdempotencyStore
	Metrics     prometheus.Gatherer

	Auth      auth.Service
	Inventory inventory.Service
	Cart      cart.Service
	Checkout  checkoutsvc.Service
}

// NewRouter assembles the chi router for the storefront API.
func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.LoginRateLimitPolicy(cfg.AuthRateLimit)
	registerPolicy := middleware.RegisterRateLimitPolicy(cfg.AuthRateLimit)
	idempotency := middleware.Idempotency(middleware.DefaultIdempotencyRules(cfg.Checkout.IdempotencyTTL), deps.Idempotency, logg)
	admin := middleware.RequireRole(enums.UserRoleAdmin, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}, logg))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, deps.RateLimits, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.RateLimits, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
		r.With(middleware.Auth(cfg.JWT, deps.Sessions, logg)).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))

		r.Route("/items", func(r chi.Router) {
			r.Get("/", controllers.ItemsList(deps.Inventory, logg))
			r.Get("/search", controllers.ItemsSearch(deps.Inventory, logg))
			r.Get("/{id}", controllers.ItemsGet(deps.Inventory, logg))
			r.With(idempotency).Post("/{id}/purchase", controllers.ItemsPurchase(deps.Inventory, logg))

			r.With(admin).Post("/", controllers.ItemsCreate(deps.Inventory, logg))
			r.With(admin).Put("/{id}", controllers.ItemsUpdate(deps.Inventory, logg))
			r.With(admin).Delete("/{id}", controllers.ItemsDelete(deps.Inventory, logg))
			r.With(admin).Post("/{id}/restock", controllers.ItemsRestock(deps.Inventory, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Put("/items/{itemId}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Cart, logg))
			r.With(idempotency).Post("/checkout", controllers.Checkout(deps.Checkout, logg))
		})
	})

	return r
}
