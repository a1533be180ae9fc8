package main

import (
	"context"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/dhruv0206/opensource-issues-finder/internal/config"
	"github.com/dhruv0206/opensource-issues-finder/internal/database"
	"github.com/dhruv0206/opensource-issues-finder/internal/github"
	"github.com/dhruv0206/opensource-issues-finder/internal/handler"
	"github.com/dhruv0206/opensource-issues-finder/internal/middleware"
	"github.com/dhruv0206/opensource-issues-finder/internal/repository"
	"github.com/dhruv0206/opensource-issues-finder/internal/search"
	"github.com/dhruv0206/opensource-issues-finder/internal/service"
)

// main is the single entry-point for the REST API.
func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("Configuration loaded:")
	log.Printf("  - Database: %s", cfg.DBName)
	log.Printf("  - GCP project: %s (%s)", cfg.ProjectID, cfg.Location)

	// Connect to MongoDB (vector index + tracking store)
	client, mongoCtx, cancel, err := database.NewMongo(cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer cancel()
	defer client.Disconnect(mongoCtx)
	log.Printf("Connected to MongoDB")

	db := client.Database(cfg.DBName)
	issueRepo := repository.NewIssueRepository(db)
	trackingRepo := repository.NewTrackingRepository(db)

	ctx := context.Background()

	// Vertex AI embedder (shared by search and ingestion)
	embedder, err := service.NewVertexEmbedder(ctx, cfg.ProjectID, cfg.Location)
	if err != nil {
		log.Fatalf("Failed to initialize Vertex AI embedder: %v", err)
	}
	defer embedder.Close()

	// Gemini query parser
	parser, err := service.NewGeminiQueryParser(ctx, cfg.ProjectID, cfg.Location)
	if err != nil {
		log.Fatalf("Failed to initialize query parser: %v", err)
	}
	defer parser.Close()

	// GitHub client
	gh := github.NewClient(cfg.GitHubToken)

	// Services
	engine := search.NewEngine(parser, embedder, issueRepo)
	ingestSvc := service.NewIngestService(gh, embedder, issueRepo, cfg.DefaultLanguages, cfg.ContributionLabels, cfg.EmbeddingDimension)
	trackingSvc := service.NewTrackingService(trackingRepo, gh)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Add middleware
	app.Use(middleware.Logging())

	// Register routes
	handler.RegisterRoutes(app, engine, issueRepo, ingestSvc, trackingSvc)

	// Add health check
	handler.NewHealthHandler(client, issueRepo, gh).Register(app)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
