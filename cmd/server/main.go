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

	"go.uber.org/zap"

	"github.com/harrylevesque/invitedeliver/internal"
	"github.com/harrylevesque/invitedeliver/internal/api"
	"github.com/harrylevesque/invitedeliver/internal/certs"
	"github.com/harrylevesque/invitedeliver/internal/scan"
	"github.com/harrylevesque/invitedeliver/internal/utils"
)

func main() {
	configPath := flag.String("config", utils.GetConfigPath(), "path to config.json")
	flag.Parse()

	cfg, err := internal.ReadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := run(cfg, logger.Logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg internal.Config, logger *zap.Logger) error {
	cm := certs.NewCertManager(cfg.CertDir)
	if list, err := cm.LoadCertificates(); err == nil {
		for _, c := range list {
			if cm.IsExpired(c) {
				logger.Warn("certificate expired", zap.String("subject", c.Subject.CommonName), zap.Time("not_after", c.NotAfter))
			}
		}
	}
	tlsConfig, err := cm.TLSConfig(cfg.ACMEHosts, cfg.ACMECache)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	h := api.NewHandler(api.Options{
		Reader:        scan.NewReader(),
		Logger:        logger,
		MaxPhotoBytes: cfg.MaxPhotoBytes,
		FrameInterval: cfg.FrameInterval.Std(),
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(h),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			logger.Info("server running", zap.String("addr", cfg.Addr), zap.Bool("tls", true))
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		logger.Warn("serving plain HTTP; browsers only allow the camera on localhost",
			zap.String("addr", cfg.Addr), zap.String("cert_dir", cfg.CertDir))
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
