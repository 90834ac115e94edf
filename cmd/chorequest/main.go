package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dukerupert/chorequest/internal/backup"
	"github.com/dukerupert/chorequest/internal/config"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/logging"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/server"
)

func main() {
	genVAPID := flag.Bool("gen-vapid", false, "print a new VAPID key pair and exit")
	envFile := flag.String("env", ".env", "optional env file to load")
	decryptPath := flag.String("decrypt-backup", "", "decrypt a downloaded backup to <file>.db and exit")
	flag.Parse()

	if *genVAPID {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate VAPID keys: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("CHOREQUEST_VAPID_PUBLIC_KEY=%s\nCHOREQUEST_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return
	}

	if *decryptPath != "" {
		if err := decryptBackup(*envFile, *decryptPath); err != nil {
			fmt.Fprintf(os.Stderr, "decrypt backup: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*envFile); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func decryptBackup(envFile, path string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.Backup.Passphrase == "" {
		return fmt.Errorf("CHOREQUEST_BACKUP_PASSPHRASE is not set")
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	plain, err := backup.Open(sealed, cfg.Backup.Passphrase)
	if err != nil {
		return err
	}
	out := strings.TrimSuffix(path, ".enc")
	if out == path {
		out += ".db"
	}
	if err := os.WriteFile(out, plain, 0o600); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	opts := server.Options{
		Location:         cfg.Location,
		SessionTTL:       cfg.SessionTTL,
		WSOriginPatterns: cfg.AllowedOrigins,
		Backup:           cfg.Backup,
	}
	if cfg.PushEnabled() {
		opts.Sender = push.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
		opts.VAPIDPublicKey = cfg.VAPIDPublicKey
	} else {
		logger.Info("push notifications disabled: no VAPID keys configured")
	}

	srv := server.New(db, opts, logger)

	scheduler := srv.NewScheduler(cfg.Location)
	if err := scheduler.Schedule(cfg.ReminderSchedule); err != nil {
		return err
	}
	if err := scheduler.AddFunc("@every 5m", "rate limiter cleanup", func() {
		if n := srv.RateLimiter().Cleanup(); n > 0 {
			logger.Debug("pruned rate limit windows", "count", n)
		}
	}); err != nil {
		return err
	}
	if srv.Backups().Enabled() {
		if err := scheduler.AddFunc(cfg.BackupSchedule, "database backup", srv.Backups().Scheduled(cfg.BackupRetention)); err != nil {
			return err
		}
	} else {
		logger.Info("backups disabled: no bucket configured")
	}
	scheduler.Start()
	defer scheduler.Stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chorequest listening", "addr", httpServer.Addr, "timezone", cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
