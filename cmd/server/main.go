package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"loteria-pos/internal/api"
	"loteria-pos/internal/config"
	"loteria-pos/internal/repository"
	"loteria-pos/internal/service"
	"loteria-pos/internal/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	log := utils.NewLogger(cfg.Server.LogLevel)

	// Set up database connection and run migrations
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to set up database")
	}
	defer db.Close()

	// Create repository
	repo := repository.NewPostgresRepository(db)

	// Create service
	svc, err := service.NewDefaultService(repo, cfg.Auth.JWTSecret, cfg.Business.TimeZone)
	if err != nil {
		log.WithError(err).Fatal("Failed to create service")
	}

	// Seed the initial admin account
	if err := svc.EnsureAdminUser(context.Background(), cfg.Auth.AdminUser, cfg.Auth.AdminPassword); err != nil {
		log.WithError(err).Fatal("Failed to seed admin user")
	}

	// Create API handler
	handler := api.NewHandler(svc, log, []byte(cfg.Auth.JWTSecret))

	// Set up Gin router
	router := gin.Default()

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.WithField("addr", serverAddr).Info("Starting server")
	if err := http.ListenAndServe(serverAddr, router); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}
