package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs"
	"github.com/ebogdum/diskfs/backends/webdav"
	"github.com/ebogdum/diskfs/config"
	"github.com/ebogdum/diskfs/core"
	coreLog "github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/links"
	"github.com/ebogdum/diskfs/server"
	"github.com/ebogdum/diskfs/server/handlers"
)

var rootCmd = &cobra.Command{
	Use:   "diskfs",
	Short: "diskfs - one API over local, FTP, SFTP, WebDAV and object storage disks",
	Long: `diskfs manages named disks backed by local directories, FTP, SFTP,
WebDAV, S3 and other object stores, and serves their files over HTTP.`,
	SilenceUsage: true,
}

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the download server",
	Long:    "Start the HTTP server that streams, lists and signs files of the configured disks",
	RunE:    runServer,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the diskfs configuration and display the configured disks",
	RunE:  validateConfig,
}

var (
	configFilePath string
	diskName       string
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFilePath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&diskName, "disk", "d", "", "Disk to operate on (default disk when empty)")

	configCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(serverCmd, configCmd)
	addFileCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// app is what every command needs once the configuration is loaded.
type app struct {
	cfg     *config.AppConfig
	logger  *zap.Logger
	manager *core.Manager
	signer  *links.Signer // nil unless server.signing_key is set
}

// setup loads the configuration and installs the process-wide manager.
// The returned cleanup closes every resolved disk and flushes the logger.
func setup() (*app, func(), error) {
	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := coreLog.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:     &cfg,
		logger:  logger,
		manager: diskfs.Init(&cfg, logger, core.WithFactory(webdav.Type, webdav.Factory)),
	}

	cleanup := func() {
		if err := diskfs.Close(); err != nil {
			logger.Warn("Failed to close disks", zap.Error(err))
		}
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
			fmt.Fprintf(os.Stderr, "Failed to sync logger: %v\n", err)
		}
	}

	if cfg.Server.SigningKey != "" {
		a.signer, err = links.NewSigner(cfg.Server.SigningKey, cfg.Server.ExternalURL, logger)
		if err == nil {
			err = links.Install(a.manager, &cfg, a.signer)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to enable signed links: %w", err)
		}
	}

	return a, cleanup, nil
}

// runServer starts the diskfs download server
func runServer(cmd *cobra.Command, args []string) error {
	a, cleanup, err := setup()
	if err != nil {
		return err
	}
	defer cleanup()

	cfg, logger := a.cfg, a.logger

	logger.Info("Starting diskfs server",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("default_disk", cfg.Default),
		zap.Int("disks", len(cfg.Disks)))

	var verifier handlers.LinkVerifier
	if a.signer != nil {
		verifier = a.signer
	}
	router := server.NewRouter(a.manager, verifier, &cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.CertFile != "" && cfg.Server.KeyFile != "" {
			logger.Info("Starting HTTPS server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			logger.Info("Starting HTTP server", zap.String("addr", cfg.Server.ListenAddr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server exited gracefully")
	return nil
}

// validateConfig validates the diskfs configuration and displays settings
func validateConfig(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Validating configuration...")

	cfg, err := config.LoadConfigFromFile(configFilePath)
	if err != nil {
		fmt.Fprintf(out, "Configuration validation failed: %v\n", err)
		return err
	}

	fmt.Fprintln(out, "Configuration is valid")
	fmt.Fprintf(out, "Listen Address: %s\n", cfg.Server.ListenAddr)
	fmt.Fprintf(out, "Default Disk: %s\n", cfg.Default)

	names := cfg.DiskNames()
	sort.Strings(names)
	for _, name := range names {
		disk, _ := cfg.Disk(name)
		flags := ""
		if disk.ReadOnly() {
			flags += " read-only"
		}
		if store, ok := disk.Cache(); ok {
			flags += " cache=" + store.Store
		}
		fmt.Fprintf(out, "  %-16s %-8s%s\n", name, disk.Type(), flags)
	}

	return nil
}
