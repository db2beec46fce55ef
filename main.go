package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/libreria-tm/backend/internal/config"
	httpapi "github.com/libreria-tm/backend/internal/delivery/http"
	"github.com/libreria-tm/backend/internal/logging"
	"github.com/libreria-tm/backend/internal/messaging"
	"github.com/libreria-tm/backend/internal/metrics"
	"github.com/libreria-tm/backend/internal/service"
)

var configFile = flag.String("c", "", "config file path")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	_, syncLogs, err := logging.Init(cfg.Logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer syncLogs()

	if err := run(cfg); err != nil {
		zap.L().Error("libreria stopped", zap.Error(err))
		syncLogs()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig) error {
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		return err
	}
	time.Local = loc

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	st, err := openStorage(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.close()

	// --- Messaging ---
	broker, err := openBroker(cfg.Messaging)
	if err != nil {
		return err
	}
	defer broker.Close()

	locker, closeLocker, err := openLocker(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeLocker()

	// --- Services ---
	saleMetrics := metrics.NewSaleMetrics(prometheus.DefaultRegisterer)
	sales := service.NewSaleService(st.repos, locker, broker, saleMetrics, service.SaleOptions{
		LockTTL:                   cfg.Sale.LockTTL,
		KeepInvoiceOnStockFailure: cfg.Sale.KeepInvoiceOnStockFailure,
	})
	catalog := service.NewCatalogService(st.repos)
	reports := service.NewReportService(st.repos.Invoices, loc)
	alerts := service.NewStockAlertService(st.repos.Products, broker, cfg.Inventory.LowStockThreshold, saleMetrics)
	sweeper := service.NewOrphanSweeper(st.repos.Invoices, cfg.Sale.OrphanGrace)

	// --- HTTP API ---
	e := httpapi.NewServer(httpapi.NewHandler(sales, catalog, reports), httpapi.ServerConfig{
		Production: cfg.Logger.Production(),
		JWTSecret:  cfg.Auth.JWTSecret,
		Health:     st.health,
	})

	var jobs *cron.Cron
	if cfg.Jobs.OrphanSweep != "" {
		jobs = cron.New(cron.WithLocation(loc))
		if _, err := sweeper.Register(jobs, cfg.Jobs.OrphanSweep); err != nil {
			return err
		}
	}

	// --- Start everything ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("http server starting", zap.String("addr", cfg.System.Addr))
		if err := e.Start(cfg.System.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if _, nop := broker.(messaging.NopBroker); !nop {
		g.Go(func() error {
			alerts.Run(gctx, broker, cfg.Messaging.GroupID)
			return nil
		})
	}

	if jobs != nil {
		jobs.Start()
		g.Go(func() error {
			<-gctx.Done()
			<-jobs.Stop().Done()
			return nil
		})
	}

	return g.Wait()
}
