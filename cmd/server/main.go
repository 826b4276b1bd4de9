package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dvloznov/bank-bridge/internal/actualbudget"
	"github.com/dvloznov/bank-bridge/internal/api/handlers"
	"github.com/dvloznov/bank-bridge/internal/api/middleware"
	"github.com/dvloznov/bank-bridge/internal/config"
	"github.com/dvloznov/bank-bridge/internal/gocardless"
	"github.com/dvloznov/bank-bridge/internal/linking"
	"github.com/dvloznov/bank-bridge/internal/linking/memstore"
	"github.com/dvloznov/bank-bridge/internal/linking/sqlitestore"
	"github.com/dvloznov/bank-bridge/internal/logger"
	"github.com/dvloznov/bank-bridge/internal/plaid"
	"github.com/dvloznov/bank-bridge/internal/web"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse templates")
	}

	// Initialize clients
	aggregator := gocardless.NewClient(cfg.AggregatorURL, cfg.AggregatorSecretID, cfg.AggregatorSecretKey)
	backend := actualbudget.NewClient(cfg.BackendURL, cfg.SharedSecret, cfg.EncryptionKey)
	mapper := plaid.NewMapper(aggregator, cfg.MapConcurrency)

	// Initialize session storage
	var sessions linking.Store
	if cfg.SessionStorePath != "" {
		store, err := sqlitestore.New(cfg.SessionStorePath, cfg.SessionTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open session store")
		}
		sessions = store
		log.Info().Str("path", cfg.SessionStorePath).Msg("Using sqlite session store")
	} else {
		sessions = memstore.New(cfg.SessionTTL)
	}

	flow := linking.NewFlow(aggregator, backend, mapper, sessions, cfg.Country, cfg.RedirectURL(), log)

	// Initialize handlers
	linkHandler := handlers.NewLinkHandler(flow, renderer, cfg.Production, log)
	queryHandler := handlers.NewQueryHandler(aggregator, backend, mapper, cfg.SharedSecret, cfg.Production, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/install", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			linkHandler.Install(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/agreements/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			institutionID := strings.TrimPrefix(r.URL.Path, "/agreements/")
			linkHandler.SelectInstitution(w, r, institutionID)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/results", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			linkHandler.Results(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/plaid/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			queryHandler.Accounts(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	mux.HandleFunc("/api/plaid/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			queryHandler.Transactions(w, r)
		} else {
			methodNotAllowed(w)
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Apply middleware
	handler := middleware.Recovery(log, cfg.Production)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.NoStore(
					middleware.Session(cfg.SessionTTL)(mux),
				),
			),
		),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("url", cfg.AppURL).Msg("Starting bank-link bridge")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func methodNotAllowed(w http.ResponseWriter) {
	middleware.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"status": "error",
		"reason": "method-not-allowed",
	})
}
