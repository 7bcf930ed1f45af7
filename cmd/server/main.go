package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/taskhive/taskhive/internal/config"
	"github.com/taskhive/taskhive/internal/events"
	"github.com/taskhive/taskhive/internal/handlers"
	"github.com/taskhive/taskhive/internal/httpserver"
	"github.com/taskhive/taskhive/internal/logging"
	authmw "github.com/taskhive/taskhive/internal/middleware/auth"
	loggingmw "github.com/taskhive/taskhive/internal/middleware/logging"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repo"
	"github.com/taskhive/taskhive/internal/search"
	"github.com/taskhive/taskhive/internal/session"
	"github.com/taskhive/taskhive/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	gormDB, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	if err := gormDB.AutoMigrate(&models.User{}, &models.RefreshToken{}, &models.Task{}); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	store := repo.New(gormDB)
	sessions := &session.Manager{
		Repo:          store,
		JWTSecret:     cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		CookieSecure:  cfg.CookieSecure(),
	}

	producer := events.NewProducer(cfg.KafkaBrokers)

	var searchHandler handlers.SearchHandler
	var indexer search.Indexer
	if cfg.ESURL != "" {
		esClient, err := search.NewClient(cfg)
		if err != nil {
			log.Fatalf("elasticsearch error: %v", err)
		}
		searchHandler = handlers.SearchHandler{ES: esClient, Index: search.TaskIndex}
		indexer = search.Indexer{ES: esClient, Index: search.TaskIndex}
	} else {
		logger.Warn("search disabled: ES_URL not set")
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:            gormDB,
		AuthHandler:   &handlers.AuthHandler{Repo: store, Sessions: sessions, Producer: producer},
		TaskHandler:   &handlers.TaskHandler{Repo: store, Producer: producer, Indexer: &indexer},
		SearchHandler: &searchHandler,
		AuthGate:      &authmw.Middleware{Sessions: sessions},
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := gormDB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	}

	if err := producer.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	logger.Info("shutdown complete")
}
