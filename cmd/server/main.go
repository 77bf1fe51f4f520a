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
	"syscall"
	"time"

	"github.com/andy6609/broadcast-chat/internal/chat"
	"github.com/andy6609/broadcast-chat/internal/config"
	"github.com/andy6609/broadcast-chat/internal/sshserver"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	addr := flag.String("addr", "", "chat listen address (overrides config)")
	adminAddr := flag.String("admin-addr", "", "metrics/health/websocket listen address (overrides config)")
	sshAddr := flag.String("ssh-addr", "", "SSH listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *adminAddr != "" {
		cfg.Admin.Addr = *adminAddr
	}
	if *sshAddr != "" {
		cfg.SSH.Addr = *sshAddr
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := chat.NewServer(cfg, logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	var admin *http.Server
	if cfg.Admin.Addr != "" {
		admin = &http.Server{
			Addr:              cfg.Admin.Addr,
			Handler:           srv.AdminHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("admin server started", "addr", cfg.Admin.Addr)
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server failed", "error", err)
				stop()
			}
		}()
	}

	if cfg.SSH.Addr != "" {
		signer, err := sshserver.LoadOrGenerateSigner(cfg.SSH.HostKeyPath)
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("failed to prepare host key: %w", err)
		}
		sshSrv := sshserver.New(cfg.SSH.Addr, signer, logger)
		go func() {
			err := sshSrv.ListenAndServe(ctx, func(s *sshserver.Session) {
				conn := chat.NewStreamConn(s, s.Remote, chat.StreamOptions{
					MaxLineLength: cfg.MaxLineLength,
					WriteTimeout:  cfg.WriteTimeout,
					CRLF:          true,
				})
				if err := srv.Serve(conn, "ssh"); err != nil {
					logger.Info("ssh client refused", "remote", s.Remote, "error", err)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("ssh server failed", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if admin != nil {
		if err := admin.Shutdown(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown failed", "error", err)
		}
	}
	return srv.Shutdown(shutdownCtx)
}
