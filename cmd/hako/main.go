package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/migadu/hako/config"
	"github.com/migadu/hako/logger"
	"github.com/migadu/hako/pkg/errors"
	"github.com/migadu/hako/pkg/metrics"
	"github.com/migadu/hako/server/cleaner"
	"github.com/migadu/hako/server/fileapi"
	"github.com/migadu/hako/sharelink"
	"github.com/migadu/hako/storage"
	"github.com/migadu/hako/tlsmanager"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// serverManager tracks running servers for coordinated shutdown
type serverManager struct {
	wg sync.WaitGroup
	mu sync.Mutex
}

func (sm *serverManager) Add() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.wg.Add(1)
}

func (sm *serverManager) Done() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.wg.Done()
}

func (sm *serverManager) Wait() {
	sm.wg.Wait()
}

// serverDependencies encapsulates the shared services the servers need
type serverDependencies struct {
	storage          *storage.BucketStore
	shareCodec       *sharelink.Codec
	tlsManager       *tlsmanager.Manager
	purgeWorker      *cleaner.PurgeWorker
	metricsCollector *metrics.Collector
	config           config.Config
	serverManager    *serverManager
}

func main() {
	errorHandler := errors.NewErrorHandler()
	cfg := config.NewDefaultConfig()

	// Parse command-line flags
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hako version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Load and validate configuration
	loadAndValidateConfig(*configPath, &cfg, errorHandler)

	// Initialize logging
	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "HAKO: Warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer func(f *os.File) {
			fmt.Fprintf(os.Stderr, "HAKO: Closing log file %s\n", f.Name())
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "HAKO: Error closing log file %s: %v\n", f.Name(), err)
			}
		}(logFile)
	}

	logger.Infof("HAKO file box starting (version %s, commit: %s, built: %s)", version, commit, date)
	logger.Infof("Logging format: %s, level: %s", cfg.Logging.Format, cfg.Logging.Level)

	// Set up context and signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Infof("Received signal: %s, shutting down...", sig)
		cancel()
	}()

	// Initialize all core services
	deps, initErr := initializeServices(ctx, cfg, errorHandler)
	if initErr != nil {
		errorHandler.FatalError("initialize services", initErr)
		os.Exit(errorHandler.WaitForExit())
	}

	// Clean up resources on exit
	if deps.metricsCollector != nil {
		defer deps.metricsCollector.Stop()
	}
	if deps.purgeWorker != nil {
		defer deps.purgeWorker.Stop()
	}

	// Start all configured servers
	errChan := startServers(ctx, deps)

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		errorHandler.Shutdown(ctx)
		logger.Infof("Waiting for all servers to stop gracefully...")

		done := make(chan struct{})
		go func() {
			deps.serverManager.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Infof("All server listeners closed")
		case <-time.After(10 * time.Second):
			logger.Warn("Server shutdown timeout reached after 10 seconds")
		}
	case err := <-errChan:
		errorHandler.FatalError("server operation", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// loadAndValidateConfig loads configuration from file and validates it
func loadAndValidateConfig(configPath string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	// Load configuration from TOML file
	if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		if os.IsNotExist(err) {
			// If default config doesn't exist, that's okay - use defaults
			if configPath == "config.toml" {
				logger.Infof("WARNING: default configuration file '%s' not found. Using application defaults.", configPath)
			} else {
				// User specified a config file that doesn't exist - that's an error
				errorHandler.ConfigError(configPath, err)
				os.Exit(errorHandler.WaitForExit())
			}
		} else {
			errorHandler.ConfigError(configPath, err)
			os.Exit(errorHandler.WaitForExit())
		}
	} else {
		logger.Infof("loaded configuration from %s", configPath)
	}

	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// initializeServices initializes the storage client, share codec, TLS manager
// and background workers
func initializeServices(ctx context.Context, cfg config.Config, errorHandler *errors.ErrorHandler) (*serverDependencies, error) {
	deps := &serverDependencies{
		config:        cfg,
		serverManager: &serverManager{},
	}

	logger.Infof("Connecting to S3 endpoint '%s', bucket '%s'", cfg.S3.Endpoint, cfg.S3.Bucket)
	var err error
	deps.storage, err = storage.New(cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, !cfg.S3.DisableTLS, cfg.S3.GetDebug())
	if err != nil {
		errorHandler.FatalError(fmt.Sprintf("initialize S3 storage at endpoint '%s'", cfg.S3.Endpoint), err)
		os.Exit(errorHandler.WaitForExit())
	}

	// Enable encryption if configured
	if cfg.S3.Encrypt {
		if err := deps.storage.EnableEncryption(cfg.S3.EncryptionKey); err != nil {
			errorHandler.FatalError("enable S3 encryption", err)
			os.Exit(errorHandler.WaitForExit())
		}
	}

	// A failed ping is not fatal: the bucket may come up after us, and
	// /healthz keeps probing it.
	pingCtx, cancelPing := context.WithTimeout(ctx, 10*time.Second)
	if err := deps.storage.Ping(pingCtx); err != nil {
		logger.Warnf("Bucket not reachable at startup: %v", err)
	}
	cancelPing()

	deps.shareCodec, err = sharelink.New(cfg.Share.Secret)
	if err != nil {
		errorHandler.FatalError("initialize share link codec", err)
		os.Exit(errorHandler.WaitForExit())
	}

	// Initialize TLS manager if TLS is enabled
	if cfg.TLS.Enabled {
		logger.Infof("Initializing TLS manager with provider: %s", cfg.TLS.Provider)
		deps.tlsManager, err = tlsmanager.New(cfg.TLS, deps.storage)
		if err != nil {
			errorHandler.FatalError("initialize TLS manager", err)
			os.Exit(errorHandler.WaitForExit())
		}
	}

	// Initialize and start the trash purge worker
	if cfg.Cleanup.Enabled {
		wakeInterval, err := cfg.Cleanup.GetWakeInterval()
		if err != nil {
			errorHandler.ValidationError("cleanup.wake_interval", err)
			os.Exit(errorHandler.WaitForExit())
		}
		trashRetention, err := cfg.Cleanup.GetTrashRetention()
		if err != nil {
			errorHandler.ValidationError("cleanup.trash_retention", err)
			os.Exit(errorHandler.WaitForExit())
		}
		deps.purgeWorker = cleaner.New(deps.storage, wakeInterval, trashRetention)
		deps.purgeWorker.Start(ctx)
	}

	// Start bucket statistics collection for the metrics endpoint
	if cfg.Metrics.Enabled {
		deps.metricsCollector = metrics.NewCollector(deps.storage, 60*time.Second)
		go deps.metricsCollector.Start(ctx)
	}

	return deps, nil
}

// startServers starts all configured servers and returns an error channel for monitoring
func startServers(ctx context.Context, deps *serverDependencies) chan error {
	errChan := make(chan error, 1)

	// Start HTTP-01 challenge server for Let's Encrypt if using autocert
	if deps.tlsManager != nil {
		handler := deps.tlsManager.HTTPHandler()
		if handler != nil {
			go func() {
				logger.Infof("Starting HTTP-01 challenge server on :80 for Let's Encrypt")
				httpServer := &http.Server{
					Addr:    ":80",
					Handler: handler,
				}

				// Graceful shutdown handler
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := httpServer.Shutdown(shutdownCtx); err != nil {
						logger.Warn("HTTP-01 challenge server shutdown error", "error", err)
					}
				}()

				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP-01 challenge server error", "error", err)
					errChan <- fmt.Errorf("HTTP-01 challenge server failed: %w", err)
				}
			}()
		}
	}

	go startFileAPIServer(ctx, deps, errChan)

	if deps.config.Metrics.Enabled {
		go startMetricsServer(ctx, deps, errChan)
	}

	return errChan
}

func startFileAPIServer(ctx context.Context, deps *serverDependencies, errChan chan error) {
	deps.serverManager.Add()
	defer deps.serverManager.Done()

	cfg := deps.config

	maxUploadSize, err := cfg.Server.GetMaxUploadSize()
	if err != nil {
		errChan <- fmt.Errorf("invalid server.max_upload_size: %w", err)
		return
	}

	shareTTL, err := cfg.Share.GetDefaultTTL()
	if err != nil {
		errChan <- fmt.Errorf("invalid share.default_ttl: %w", err)
		return
	}

	// Get global TLS config if available
	var tlsConfig *tls.Config
	if deps.tlsManager != nil {
		tlsConfig = deps.tlsManager.GetTLSConfig()
	}

	options := fileapi.ServerOptions{
		Addr:          cfg.Server.Addr,
		APIKey:        cfg.Server.APIKey,
		AllowedHosts:  cfg.Server.AllowedHosts,
		PublicBaseURL: cfg.Server.GetPublicBaseURL(),
		MaxUploadSize: maxUploadSize,
		ShareTTL:      shareTTL,
		TLS:           cfg.TLS.Enabled,
		TLSCertFile:   cfg.TLS.CertFile,
		TLSKeyFile:    cfg.TLS.KeyFile,
		TLSConfig:     tlsConfig,
	}

	fileapi.Start(ctx, deps.storage, deps.shareCodec, options, errChan)
}

func startMetricsServer(ctx context.Context, deps *serverDependencies, errChan chan error) {
	deps.serverManager.Add()
	defer deps.serverManager.Done()

	path := deps.config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	server := &http.Server{
		Addr:    deps.config.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		logger.Infof("Shutting down metrics server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Infof("Error shutting down metrics server: %v", err)
		}
	}()

	logger.Infof("Starting metrics server on %s%s", deps.config.Metrics.Addr, path)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		errChan <- fmt.Errorf("metrics server failed: %w", err)
	}
}
