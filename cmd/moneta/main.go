package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"moneta/internal/amqp"
	"moneta/internal/config"
	"moneta/internal/core"
	"moneta/internal/currency"
	apphttp "moneta/internal/http"
	"moneta/internal/rates"
	"moneta/internal/services"
	"moneta/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Optional AMQP client for expense events
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - expense events will not be published")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Currency conversion: prime from the persisted snapshot, then try a
	// live fetch. A dead rate source is not fatal.
	ratesClient := rates.NewClient(cfg.RateSourceURL, cfg.RateFetchTimeout)
	converter := currency.NewConverter(ratesClient, repo, currency.Config{
		BaseCurrency: cfg.BaseCurrency,
		FetchTimeout: cfg.RateFetchTimeout,
	})
	converter.Load(ctx)
	if err := converter.Refresh(ctx, false); err != nil {
		logger.Warn("Initial rate refresh failed, using cached or built-in rates", "error", err)
	}

	expenseService := services.NewExpenseService(repo, amqpClient)
	processor := services.NewRecurringProcessor(repo, expenseService)

	srv := apphttp.NewServer(":"+cfg.Port, cfg.OwnerID, processor, expenseService, repo, converter)
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting moneta server", "port", cfg.Port, "base_currency", cfg.BaseCurrency)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Periodic recurring-expense processing
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RecurringInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				count, err := processor.ProcessDue(gctx, cfg.OwnerID, core.DateOf(now))
				if err != nil {
					logger.Error("Periodic recurring processing failed", "error", err)
				} else if count > 0 {
					logger.Info("Periodic recurring processing complete", "expenses_created", count)
				}
			}
		}
	})

	// Periodic rate refresh, skipped internally when today's rates are fresh
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := converter.Refresh(gctx, false); err != nil {
					logger.Warn("Periodic rate refresh failed", "error", err)
				}
			}
		}
	})

	// Graceful shutdown on signal
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
