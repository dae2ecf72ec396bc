package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clypper/roles-rules/internal/api/handlers"
	"github.com/clypper/roles-rules/internal/api/middleware"
	"github.com/clypper/roles-rules/internal/pricing"
	"github.com/clypper/roles-rules/internal/service"
)

// NewRouter builds the HTTP router for the rules service. All API routes
// live under /rules/v1: role management, rule-set CRUD and the price read
// path. Reads require the catalog capability, mutations the admin capability.
func NewRouter(svc *service.RuleService, dir handlers.RoleDirectory, resolver *pricing.Resolver, authn middleware.Authenticator, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Authenticate(authn))

	rulesHandler := handlers.NewRulesHandler(svc, resolver)
	rolesHandler := handlers.NewRolesHandler(dir, svc)

	r.Route("/rules/v1", func(r chi.Router) {
		r.Route("/roles", func(r chi.Router) {
			r.With(middleware.RequireCapability(middleware.CapManageCatalog)).
				Get("/", rolesHandler.List)
			r.With(middleware.RequireCapability(middleware.CapManageOptions)).
				Post("/", rolesHandler.Create)
			r.With(middleware.RequireCapability(middleware.CapManageOptions)).
				Delete("/{slug}", rolesHandler.Delete)
		})

		r.Route("/rules", func(r chi.Router) {
			r.With(middleware.RequireCapability(middleware.CapManageCatalog)).
				Get("/", rulesHandler.List)
			r.With(middleware.RequireCapability(middleware.CapManageCatalog)).
				Get("/{id}", rulesHandler.Get)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireCapability(middleware.CapManageOptions))
				r.Post("/", rulesHandler.Create)
				r.Put("/{id}", rulesHandler.Update)
				r.Delete("/{id}", rulesHandler.Delete)
				r.Post("/{id}/copy", rulesHandler.Copy)
				r.Post("/{id}/products", rulesHandler.AddProduct)
				r.Post("/{id}/categories", rulesHandler.AddCategories)
			})
		})

		r.With(middleware.RequireCapability(middleware.CapManageCatalog)).
			Post("/price", rulesHandler.Price)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
