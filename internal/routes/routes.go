package routes

import (
	"invman/internal/handlers"
	"invman/internal/middleware"

	"github.com/gorilla/mux"
)

func InitRoutes(
	router *mux.Router,
	resetHandler *handlers.PasswordResetHandler,
	healthHandler *handlers.HealthHandler,
) {
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.Recoverer)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/healthz", healthHandler.Healthz).Methods("GET")

	reset := api.PathPrefix("/reset").Subrouter()
	reset.HandleFunc("/request", resetHandler.Request).Methods("POST")
	reset.HandleFunc("/confirm", resetHandler.Confirm).Methods("POST")
}
