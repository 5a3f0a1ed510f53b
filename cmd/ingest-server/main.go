// Command ingest-server runs the RTMP ingest listener (spec.md §2/§4.1/§4.2):
// it accepts publisher connections, admits and polices each stream, and
// recruits transcoder workers over the embedded gRPC coordinator.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/bitriver/edge/internal/eventbus"
	"github.com/bitriver/edge/internal/ingest"
	"github.com/bitriver/edge/internal/ingestcfg"
	"github.com/bitriver/edge/internal/logger"
	"github.com/bitriver/edge/internal/observability/metrics"
	"github.com/bitriver/edge/internal/roomdb"
	"github.com/bitriver/edge/internal/rtmpingest"
	"github.com/bitriver/edge/internal/transcoderrpc"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag package already printed usage/error
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	v := viper.New()
	ingestcfg.SetDefaults(v)
	v.SetDefault("database.dsn", "postgres://localhost:5432/edge?sslmode=disable")
	v.SetDefault("eventbus.redis_addr", "localhost:6379")
	v.SetDefault("eventbus.redis_password", "")
	v.SetDefault("eventbus.redis_db", 0)
	v.SetDefault("transcoder.coordinator_listen", ":50051")

	if cfg.configFile != "" {
		v.SetConfigFile(cfg.configFile)
	} else {
		v.SetConfigName("ingest-server")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/edge")
	}
	v.SetEnvPrefix("INGEST")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			log.Error("failed to read config file", "error", err)
			os.Exit(1)
		}
		log.Info("no config file found, using defaults and environment")
	} else {
		log.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	settings, err := ingestcfg.Load(v)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.listenAddr != "" {
		settings.ListenAddr = cfg.listenAddr
	}
	if cfg.metricsAddr != "" {
		settings.MetricsAddr = cfg.metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher := ingestcfg.NewWatcher(v, v.ConfigFileUsed(), settings)
	if err := watcher.Start(ctx); err != nil {
		log.Warn("config hot-reload watcher disabled", "error", err)
	}

	rooms, err := roomdb.NewRepository(ctx, v.GetString("database.dsn"))
	if err != nil {
		log.Error("failed to connect to room database", "error", err)
		os.Exit(1)
	}
	defer rooms.Close()

	bus, err := eventbus.NewRedisBus(ctx, v.GetString("eventbus.redis_addr"), v.GetString("eventbus.redis_password"), v.GetInt("eventbus.redis_db"))
	if err != nil {
		log.Error("failed to connect to event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	coordinator, err := transcoderrpc.NewCoordinator(v.GetString("transcoder.coordinator_listen"))
	if err != nil {
		log.Error("failed to start transcoder coordinator", "error", err)
		os.Exit(1)
	}
	defer coordinator.Close()

	server := rtmpingest.NewServer(rtmpingest.Config{
		ListenAddr: settings.ListenAddr,
		IngestFunc: func() ingest.Config { return watcher.Current().ToIngestConfig() },
	}, rtmpingest.Deps{
		Ingest: ingest.Deps{
			Rooms:       rooms,
			Bus:         bus,
			Coordinator: coordinator,
		},
	})

	metricsSrv := &http.Server{Addr: settings.MetricsAddr, Handler: metricsMux()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", "error", err)
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error("ingest listener stopped", "error", err)
		}
	}()
	log.Info("ingest server started", "listen_addr", settings.ListenAddr, "metrics_addr", settings.MetricsAddr, "version", version)

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("ingest listener shutdown error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("ingest listener stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}

	_ = metricsSrv.Shutdown(shutdownCtx)
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
