package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystemMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)

				r.Route("/{serial}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleUpdateDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Get("/operations", s.handleListOperations)
					r.Post("/invoke", s.handleInvoke)
				})
			})

			r.Route("/hubs/{serial}", func(r chi.Router) {
				r.Get("/devices", s.handleListHubDevices)
				r.Put("/devices/{device}", s.handleAttachToHub)
				r.Delete("/devices/{device}", s.handleDetachFromHub)
				r.Get("/users", s.handleListHubUsers)
				r.Put("/users/{id}", s.handleAddHubUser)
				r.Delete("/users/{id}", s.handleRemoveHubUser)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetUser)
					r.Delete("/", s.handleDeleteUser)
					r.Put("/network", s.handleConnectUser)
					r.Delete("/network", s.handleDisconnectUser)
				})
			})

			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", s.handleListSchedules)
				r.Post("/", s.handleCreateSchedule)
				r.Get("/{id}", s.handleGetSchedule)
				r.Delete("/{id}", s.handleCancelSchedule)
			})

			r.Get("/audit", s.handleListAudit)

			r.Route("/networks", func(r chi.Router) {
				r.Get("/", s.handleListNetworks)
				r.Post("/", s.handleCreateNetwork)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetNetwork)
					r.Delete("/", s.handleDeleteNetwork)
					r.Get("/homes", s.handleListNetworkHomes)
					r.Post("/homes", s.handleCreateHome)
					r.Get("/devices", s.handleListNetworkDevices)
				})
			})

			r.Route("/homes", func(r chi.Router) {
				r.Get("/", s.handleListHomes)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetHome)
					r.Delete("/", s.handleDeleteHome)
					r.Get("/devices", s.handleListHomeDevices)
					r.Put("/devices/{serial}", s.handleAssignDevice)
					r.Delete("/devices/{serial}", s.handleUnassignDevice)
					r.Get("/security", s.handleSecurity)
					r.Get("/energy", s.handleEnergy)
					r.Post("/power", s.handlePower)
				})
			})
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
