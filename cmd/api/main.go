package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/safar/stationery-pos/internal/api"
	"github.com/safar/stationery-pos/internal/config"
	"github.com/safar/stationery-pos/internal/database"
	"github.com/safar/stationery-pos/internal/logger"
	"github.com/safar/stationery-pos/internal/metrics"
	"github.com/safar/stationery-pos/internal/migration"
	"github.com/safar/stationery-pos/internal/reporting"
	"github.com/safar/stationery-pos/internal/sales"
	"github.com/safar/stationery-pos/internal/store"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		os.Stderr.WriteString("Build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		logger.Exit(log, "server stopped", err)
	}
	_ = log.Sync()
}

func run(cfg *config.Config, log *zap.Logger) error {
	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info("connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	if cfg.Database.MigrateOnStart {
		if err := migration.Up(db); err != nil {
			return err
		}
		version, dirty, err := migration.Version(db)
		if err != nil {
			return err
		}
		log.Info("schema up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}

	manager := sales.NewManager(db, store.ProductLedger{},
		sales.WithTaxRate(cfg.Sales.TaxRate),
		sales.WithMaxRetries(cfg.Sales.TxMaxRetries),
	)

	handler := api.New(api.Deps{
		Sales:          manager,
		Catalog:        store.NewCatalog(db),
		Reports:        reporting.NewReader(db),
		DB:             db,
		Metrics:        metrics.New(),
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
