package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pulsoweb/pulso-gateway/internal/config"
	"github.com/pulsoweb/pulso-gateway/internal/events"
	"github.com/pulsoweb/pulso-gateway/internal/httpserver"
	"github.com/pulsoweb/pulso-gateway/internal/ingest"
	"github.com/pulsoweb/pulso-gateway/internal/logging"
	"github.com/pulsoweb/pulso-gateway/internal/notify"
	"github.com/pulsoweb/pulso-gateway/internal/reloader"
	"github.com/pulsoweb/pulso-gateway/internal/report"
	"github.com/pulsoweb/pulso-gateway/internal/store"
)

func main() {
	cfgPath := os.Getenv("PULSO_CONFIG")
	if cfgPath == "" {
		cfgPath = "/etc/pulso/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	logger := logging.New(logging.Cfg{
		Level: cfg.Logging.Level,
		JSON:  cfg.Logging.JSON,
	})
	defer logger.Sync()

	// Banner
	fmt.Println(`
  _____       _
 |  __ \     | |
 | |__) |   _| |___  ___
 |  ___/ | | | / __|/ _ \
 | |   | |_| | \__ \ (_) |
 |_|    \__,_|_|___/\___/

Pulso Gateway — telemetria comportamental
------------------------------------------
Config:  ` + cfgPath + `
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	var mongoStore *store.Mongo
	if cfg.Mongo.Fake {
		logger.Warn("using in-memory store, data will not survive a restart")
		st = store.NewMemory()
	} else {
		connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
		mongoStore, err = store.ConnectMongo(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database)
		connectCancel()
		if err != nil {
			logger.Fatal("mongo", zap.Error(err))
		}
		st = mongoStore
		logger.Info("mongo connected", zap.String("database", cfg.Mongo.Database))
	}

	bus := events.NewBus()
	gateway := ingest.NewGateway(st)
	router := ingest.NewRouter(gateway, st, bus, logger)
	reports := report.NewService(st)

	srv := httpserver.New(cfg, logger, st, router, reports, bus)

	forwarder := notify.New(cfg, logger, bus)
	if cfg.Notify.Enabled {
		go forwarder.Run(ctx)
	}

	// Hot reload on SIGHUP
	reloader.OnSIGHUP(func() {
		newCfg, err := config.Load(cfgPath)
		if err != nil {
			logger.Warn("config reload failed", zap.Error(err))
			return
		}
		srv.Reload(newCfg)
		forwarder.Reload(newCfg)
		cfg = newCfg
		logger.Info("reloaded config")
	})

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Router(),
	}

	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if cfg.HTTP.TLS.Enabled {
			if err := httpSrv.ListenAndServeTLS(cfg.HTTP.TLS.Cert, cfg.HTTP.TLS.Key); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("http tls", zap.Error(err))
			}
		} else {
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("http", zap.Error(err))
			}
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down...")
	cancel()
	forwarder.Close()

	ctxTimeout, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = httpSrv.Shutdown(ctxTimeout)
	if mongoStore != nil {
		_ = mongoStore.Close(ctxTimeout)
	}
	logger.Info("bye")
}
