package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	adminhttp "github.com/GriffinCanCode/imf/internal/api/http"
	"github.com/GriffinCanCode/imf/internal/domain/ime"
	"github.com/GriffinCanCode/imf/internal/domain/imsa"
	"github.com/GriffinCanCode/imf/internal/infrastructure/config"
	"github.com/GriffinCanCode/imf/internal/infrastructure/logging"
	"github.com/GriffinCanCode/imf/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/imf/internal/infrastructure/server"
	"github.com/GriffinCanCode/imf/internal/ipc"
	"github.com/GriffinCanCode/imf/internal/providers/ability"
	"github.com/GriffinCanCode/imf/internal/providers/account"
	"github.com/GriffinCanCode/imf/internal/providers/builtin"
	"github.com/GriffinCanCode/imf/internal/providers/bundle"
	"github.com/GriffinCanCode/imf/internal/providers/samgr"
	"github.com/GriffinCanCode/imf/internal/providers/settings"
	"github.com/GriffinCanCode/imf/internal/providers/window"
)

const (
	servicePid int32 = 1
	serviceUid int32 = 1000

	// Builtin keyboards get pids from here up.
	firstImePid int32 = 5000
)

func main() {
	cfg := config.LoadOrDefault()

	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	user := flag.Int("user", 100, "Foreground user id")
	flag.StringVar(&cfg.Paths.SystemConfig, "system-config", cfg.Paths.SystemConfig, "System config YAML")
	flag.StringVar(&cfg.Paths.Catalog, "catalog", cfg.Paths.Catalog, "Input method catalog YAML")
	flag.StringVar(&cfg.Paths.Settings, "settings", cfg.Paths.Settings, "Settings TOML file")
	flag.StringVar(&cfg.Admin.Port, "admin-port", cfg.Admin.Port, "Admin API port")
	flag.Parse()
	cfg.Logging.Development = *dev

	logCfg := logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development}
	if *dev {
		logCfg.Level = "debug"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, int32(*user), logger); err != nil {
		logger.Error("input method service failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, foreground int32, logger *logging.Logger) error {
	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	if cfg.ServiceManager.Enabled {
		sm := samgr.NewClient(samgr.Config{
			Address:     cfg.ServiceManager.Address,
			LoadTimeout: cfg.ServiceManager.LoadTimeout,
			RetryCount:  cfg.ServiceManager.RetryCount,
		}, logger.Logger)
		if _, err := sm.LoadSystemAbility(ctx, samgr.InputMethodSystemAbilityID); err != nil {
			logger.Warn("service manager did not confirm load", zap.Error(err))
		}
	}

	sys, err := config.LoadSystemConfig(cfg.Paths.SystemConfig)
	if err != nil {
		return err
	}
	def, err := ime.ParseTarget(sys.DefaultIme)
	if err != nil {
		return fmt.Errorf("default ime: %w", err)
	}
	catalog, err := bundle.LoadCatalog(cfg.Paths.Catalog, def)
	if err != nil {
		return err
	}

	store, err := settings.OpenFileStore(cfg.Paths.Settings, logger.Logger)
	if err != nil {
		return err
	}
	if err := store.Watch(ctx); err != nil {
		logger.Warn("settings file not watched", zap.Error(err))
	}

	reg := ipc.NewRegistry(logger.Logger)
	connector := ability.NewLocalConnector(reg, logger.Logger)
	svc := imsa.New(imsa.Deps{
		Logger:    logger.Logger,
		Metrics:   metrics,
		Config:    cfg.Session,
		Account:   cfg.Account,
		System:    sys,
		Registry:  reg,
		Inquirer:  catalog,
		Settings:  settings.NewImeSettings(store),
		Accounts:  account.NewStatic(foreground),
		Connector: connector,
		Displays:  window.NewStaticDisplays(sys.DisplayGroups),
		Pid:       servicePid,
		Uid:       serviceUid,
	})

	launcher := builtin.NewLauncher(reg, svc, firstImePid, logger.Logger)
	for _, name := range catalog.Bundles() {
		connector.RegisterLauncher(name, launcher.Launch)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })

	if cfg.Admin.Enabled {
		handlers := adminhttp.NewHandlers(svc, catalog, connector, metrics, logger.Logger)
		router := adminhttp.NewRouter(handlers, metrics, adminhttp.RouterConfig{
			CORSOrigins: cfg.Admin.CORSOrigins,
			RateLimit:   cfg.Admin.RateLimit,
		})
		addr := net.JoinHostPort(cfg.Admin.Host, cfg.Admin.Port)
		g.Go(func() error { return server.New(addr, router, logger.Logger).Run(ctx) })
	}

	logger.Info("input method service running",
		zap.Int32("user_id", foreground),
		zap.String("default_ime", catalog.GetDefaultIme().String()),
		zap.Bool("admin", cfg.Admin.Enabled),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
