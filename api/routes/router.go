package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexchakra/storefront-backend/api/controllers"
	"github.com/nexchakra/storefront-backend/api/middleware"
	"github.com/nexchakra/storefront-backend/internal/addresses"
	authsvc "github.com/nexchakra/storefront-backend/internal/auth"
	"github.com/nexchakra/storefront-backend/internal/cart"
	"github.com/nexchakra/storefront-backend/internal/catalog"
	checkoutsvc "github.com/nexchakra/storefront-backend/internal/checkout"
	"github.com/nexchakra/storefront-backend/internal/events"
	"github.com/nexchakra/storefront-backend/internal/orders"
	"github.com/nexchakra/storefront-backend/internal/wishlist"
	"github.com/nexchakra/storefront-backend/pkg/auth/session"
	"github.com/nexchakra/storefront-backend/pkg/config"
	"github.com/nexchakra/storefront-backend/pkg/enums"
	"github.com/nexchakra/storefront-backend/pkg/logger"
	"github.com/nexchakra/storefront-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Sessions    session.Checker
	Hub         *events.Hub
	AuthService authsvc.Service
	Catalog     catalog.Service
	Addresses   addresses.Service
	Cart        cart.Service
	Checkout    checkoutsvc.Service
	Orders      orders.Service
	Wishlist    wishlist.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": deps.DB,
			"redis":    deps.Redis,
		}))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Browsing needs no account.
	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/categories", controllers.ListCategories(deps.Catalog, logg))
		r.Get("/products", controllers.ListProducts(deps.Catalog, logg))
		r.Get("/products/{productID}", controllers.GetProduct(deps.Catalog, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(
			middleware.AuthRateLimit(registerPolicy, deps.Redis, logg),
			middleware.Idempotency(deps.Redis, logg),
		).Post("/register", controllers.AuthRegister(deps.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).
			Post("/login", controllers.AuthLogin(deps.AuthService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.AuthService, logg))
			r.Post("/logout", controllers.AuthLogout(deps.AuthService, logg))
			r.Get("/me", controllers.AuthMe(deps.AuthService, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", controllers.ListAddresses(deps.Addresses, logg))
			r.Post("/", controllers.CreateAddress(deps.Addresses, logg))
			r.Delete("/{addressID}", controllers.DeleteAddress(deps.Addresses, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(deps.Cart, logg))
			r.Post("/items", controllers.AddCartItem(deps.Cart, logg))
			r.Put("/items/{productID}", controllers.UpdateCartItem(deps.Cart, logg))
			r.Delete("/items/{productID}", controllers.RemoveCartItem(deps.Cart, logg))
		})

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.GetOrder(deps.Orders, logg))
			r.Post("/{orderID}/cancel", controllers.CancelOrder(deps.Orders, logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", controllers.ListWishlist(deps.Wishlist, logg))
			r.Post("/", controllers.AddWishlistEntry(deps.Wishlist, logg))
			r.Delete("/{productID}", controllers.RemoveWishlistEntry(deps.Wishlist, logg))
		})

		r.Get("/events", controllers.EventsStream(deps.Hub, cfg.Events, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

			r.Post("/catalog/categories", controllers.CreateCategory(deps.Catalog, logg))
			r.Post("/catalog/products", controllers.CreateProduct(deps.Catalog, logg))
			r.Patch("/catalog/products/{productID}", controllers.UpdateProduct(deps.Catalog, logg))

			r.Patch("/orders/{orderID}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
		})
	})

	return r
}
