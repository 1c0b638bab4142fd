package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/glebovdev/somafm-player/internal/api"
	"github.com/glebovdev/somafm-player/internal/cache"
	"github.com/glebovdev/somafm-player/internal/config"
	"github.com/glebovdev/somafm-player/internal/directory"
	"github.com/glebovdev/somafm-player/internal/metrics"
	"github.com/glebovdev/somafm-player/internal/player"
	"github.com/glebovdev/somafm-player/internal/ui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	versionFlag     = flag.Bool("version", false, "Show version information")
	debugFlag       = flag.Bool("debug", false, "Enable debug logging")
	randomFlag      = flag.Bool("random", false, "Start with a random station")
	metricsAddrFlag = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. localhost:9090)")
	urlFlag         = flag.String("url", "", "Play a stream URL instead of a SomaFM station")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppTagline)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

func setupLogging(debug bool) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cacheDir, err := cache.GetCacheDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}
	logPath := filepath.Join(cacheDir, "debug.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		logFile = os.Stderr
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: logFile, TimeFormat: "15:04:05"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)

	if configPath, err := config.GetConfigPath(); err == nil {
		log.Debug().Msgf("Config: %s", configPath)
	}
	log.Debug().Msgf("Cache: %s", cacheDir)
}

// serveMetrics exposes the registry on addr until the returned server is shut
// down.
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppTagline)
		os.Exit(0)
	}

	setupLogging(*debugFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Config problem, continuing with defaults where needed")
	}
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)
	store := config.NewStore(cfg)

	diskCache, err := cache.NewCache()
	if err != nil {
		log.Warn().Err(err).Msg("Disk cache unavailable")
	}

	apiClient := api.NewClient(config.UserAgent())
	channels := directory.NewService(apiClient, diskCache)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	playerMetrics := metrics.New(reg)

	var metricsServer *http.Server
	if *metricsAddrFlag != "" {
		metricsServer = serveMetrics(*metricsAddrFlag, reg)
	}

	volumeStore := ui.NewVolumeStore(store)
	controller := player.New(player.Options{
		Directory: channels,
		Store:     volumeStore,
		Metrics:   playerMetrics,
		Volume:    cfg.Volume,
		Playback:  cfg.Playback,
	})

	somaUI := ui.NewUI(controller, channels, store, volumeStore, ui.Options{
		StartRandom: *randomFlag,
		StreamURL:   *urlFlag,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, cleaning up...")
		somaUI.Shutdown()
	}()

	log.Info().Msg("Starting UI...")
	runErr := somaUI.Run()
	if runErr != nil {
		log.Error().Err(runErr).Msg("Error running UI")
	}

	// Close waits for the audio pipeline and flushes a pending volume save.
	controller.Close()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Debug().Err(err).Msg("Metrics server shutdown")
		}
		cancel()
	}

	if runErr != nil {
		os.Exit(1)
	}
	log.Info().Msg("SomaFM player stopped")
}
