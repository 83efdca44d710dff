package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ad-control-service/internal/config"
	"ad-control-service/internal/database"
	"ad-control-service/internal/handlers"
	"ad-control-service/internal/kafka"
	"ad-control-service/internal/logger"
	"ad-control-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	log := logger.SetupLogger(cfg.LogLevel)

	kafkaWriter := kafka.NewWriter(cfg.KafkaBroker, cfg.KafkaTopic)
	defer func() {
		if err := kafkaWriter.Close(); err != nil {
			log.WithError(err).Error("Failed to close Kafka writer")
		}
	}()

	db, err := database.SetupDatabase(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	if err := database.SeedDatabase(db); err != nil {
		log.WithError(err).Warn("Failed to seed database")
	}

	server := handlers.NewServer(db, log, kafkaWriter)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go server.GetEventQueue().StartProcessor(ctx)
	go server.GetSessions().StartEvictor(ctx, 10*time.Minute)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggingMiddleware(log))
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api/v1")
	{
		api.GET("/ads/decision", server.GetAdDecision)
		api.POST("/impressions/:id/click", server.PostImpressionClick)
		api.POST("/impressions/:id/complete", server.PostImpressionComplete)
		api.GET("/campaigns/:id/summary", server.GetCampaignSummary)
		api.POST("/sessions", server.PostSession)
		api.GET("/users/:userId/adfree", server.GetAdFreeBalance)
		api.POST("/users/:userId/adfree/consume", server.PostAdFreeConsume)
		api.GET("/users/:userId/adfree/history", server.GetAdFreeHistory)
	}

	r.GET("/health", server.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.WithField("port", cfg.Port).Info("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancel()
	server.Shutdown()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}
