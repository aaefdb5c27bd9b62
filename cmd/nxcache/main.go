// Package main is the entry point for the nxcache remote cache server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nxcache/nxcache/internal/config"
	"github.com/nxcache/nxcache/internal/logging"
	"github.com/nxcache/nxcache/internal/metrics"
	"github.com/nxcache/nxcache/internal/server"
	"github.com/nxcache/nxcache/internal/storage"
	"github.com/nxcache/nxcache/internal/tenant"
)

// startupProbeTimeout bounds the whole backend connectivity check at boot.
const startupProbeTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	port := flag.Int("port", 0, "override listening port (default: from config or 3000)")
	host := flag.String("host", "", "override listening host (default: from config or 0.0.0.0)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}

	// Initialize structured logging.
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	// Build one adapter per configured backend.
	backends := make(map[string]storage.Backend, len(cfg.Backends))
	for i := range cfg.Backends {
		b, err := buildBackend(context.Background(), &cfg.Backends[i])
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize backend %q: %v\n", cfg.Backends[i].Name, err)
			os.Exit(1)
		}
		backends[cfg.Backends[i].Name] = b
	}

	registry, err := tenant.NewRegistry(cfg.Tenants, backends)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build tenant registry: %v\n", err)
		os.Exit(1)
	}
	slog.Info("tenant registry built",
		"tenants", registry.TenantNames(), "backends", registry.BackendNames())

	// Fail fast: refuse to serve traffic over backends we cannot reach.
	// Misconfiguration surfaces here, not on the first client request.
	probeCtx, cancel := context.WithTimeout(context.Background(), startupProbeTimeout)
	err = registry.PingAll(probeCtx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup probe failed: %v\n", err)
		fmt.Fprintf(os.Stderr, "check bucket names, credentials, region settings, and network reachability\n")
		os.Exit(1)
	}
	slog.Info("startup probe passed", "backends", registry.BackendNames())

	srv := server.New(cfg, registry)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("nxcache listening", "addr", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// SIGTERM/SIGINT handler: stop accepting connections, wait for in-flight
	// transfers with a timeout, then exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("received signal, shutting down", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}

// buildBackend constructs the storage adapter selected by the backend's
// provider field.
func buildBackend(ctx context.Context, b *config.BackendConfig) (storage.Backend, error) {
	switch b.Provider {
	case "aws":
		return storage.NewS3Backend(ctx, storage.S3Options{
			Bucket:          b.Bucket,
			Region:          b.Region,
			AccessKeyID:     b.AccessKeyID,
			SecretAccessKey: b.SecretAccessKey,
			SessionToken:    b.SessionToken,
			EndpointURL:     b.EndpointURL,
			ForcePathStyle:  b.ForcePathStyle,
			Timeout:         b.Timeout(),
		})
	case "minio":
		return storage.NewMinioBackend(storage.MinioOptions{
			Bucket:          b.Bucket,
			Region:          b.Region,
			AccessKeyID:     b.AccessKeyID,
			SecretAccessKey: b.SecretAccessKey,
			SessionToken:    b.SessionToken,
			EndpointURL:     b.EndpointURL,
			Timeout:         b.Timeout(),
		})
	case "gcs":
		return storage.NewGCSBackend(ctx, storage.GCSOptions{
			Bucket:  b.Bucket,
			Project: b.Project,
			Timeout: b.Timeout(),
		})
	case "azure":
		return storage.NewAzureBackend(storage.AzureOptions{
			Container:   b.Bucket,
			AccountURL:  b.AccountURL,
			AccountName: b.AccessKeyID,
			AccountKey:  b.SecretAccessKey,
			Timeout:     b.Timeout(),
		})
	case "memory":
		return storage.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown provider %q", b.Provider)
}
