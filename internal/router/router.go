package router

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/tandoor-pos/api/internal/config"
	"github.com/tandoor-pos/api/internal/database"
	"github.com/tandoor-pos/api/internal/handler"
	"github.com/tandoor-pos/api/internal/service"
)

// New creates a Chi router with all application routes wired up.
// events may be nil when no broker is configured.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, events service.EventPublisher) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	taxRate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		log.Printf("WARN: invalid TAX_RATE %q, using 0.10", cfg.TaxRate)
		taxRate = decimal.NewFromFloat(0.10)
	}

	newStore := func(db database.DBTX) service.Store {
		return database.New(db)
	}
	orderService := service.NewOrderService(pool, queries, newStore, service.NewPricing(taxRate), events)
	orderHandler := handler.NewOrderHandler(orderService, queries)
	r.Route("/orders", orderHandler.RegisterRoutes)

	return r
}
