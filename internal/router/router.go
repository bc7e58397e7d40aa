package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tablefront/pos/internal/config"
	"github.com/tablefront/pos/internal/handler"
	mw "github.com/tablefront/pos/internal/middleware"
	"github.com/tablefront/pos/internal/service"
	"github.com/tablefront/pos/internal/store"
)

// Services are the engines and stores the routes are served from.
type Services struct {
	Catalog *service.CatalogService
	Tables  *service.TableService
	Orders  *service.OrderService
	Users   store.UserRepository
}

// New creates a Chi router with all application routes wired up.
// Every /api/restaurant route requires a bearer token; role checks are applied
// per route by the handlers.
func New(cfg *config.Config, svc Services) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Uploaded images, when they are served from this process.
	if cfg.MediaDir != "" && strings.HasPrefix(cfg.MediaURL, "/") {
		prefix := cfg.MediaURL + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(cfg.MediaDir))))
	}

	authHandler := handler.NewAuthHandler(svc.Users, cfg.JWTSecret)
	r.Route("/api/auth", authHandler.RegisterRoutes)

	// Protected routes (require authentication)
	r.Route("/api/restaurant", func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		categoryHandler := handler.NewCategoryHandler(svc.Catalog)
		r.Route("/main-categories", categoryHandler.RegisterMainRoutes)
		r.Route("/sub-categories", categoryHandler.RegisterSubRoutes)

		menuHandler := handler.NewMenuItemHandler(svc.Catalog)
		r.Route("/product-items", menuHandler.RegisterRoutes)
		r.Route("/product-choices", menuHandler.RegisterChoiceRoutes)

		tableHandler := handler.NewTableHandler(svc.Tables)
		r.Route("/tables", tableHandler.RegisterRoutes)

		orderHandler := handler.NewOrderHandler(svc.Orders)
		r.Route("/orders", orderHandler.RegisterRoutes)

		userHandler := handler.NewUserHandler(svc.Users)
		r.Route("/staff", userHandler.RegisterRoutes)
	})

	return r
}
