package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/order"
)

func NewRouter(pool *pgxpool.Pool) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	repo := order.NewRepository(pool)
	svc := order.NewService(repo)
	h := handler.NewOrderHandler(svc)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)
		h.RegisterRoutes(r)
	})

	return r
}
