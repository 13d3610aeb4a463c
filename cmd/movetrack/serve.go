package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"movetrack/internal/app"
	"movetrack/internal/attachments"
	"movetrack/internal/server"
	"movetrack/internal/workers"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and the reminder worker",
		Long: `Serves the API under --base-path with OpenAPI at <base>/openapi.json and Swagger UI at /docs.
MOVETRACK_JWT_SECRET signs session tokens. On an empty database MOVETRACK_ADMIN_EMAIL and
MOVETRACK_ADMIN_PASSWORD seed the first administrator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				return serve(ctx, a)
			})
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "127.0.0.1:8080", "listen address")
	flags.String("base-path", "/v0", "API base path")
	flags.String("jwt-secret", "", "HS256 secret for session tokens")
	flags.Duration("token-ttl", 12*time.Hour, "session token lifetime")
	flags.Duration("reminder-interval", time.Hour, "how often to scan for due reminders (0 disables)")
	flags.String("admin-name", "Administrator", "name of the seeded administrator")
	flags.String("admin-email", "", "email of the seeded administrator")
	flags.String("admin-password", "", "password of the seeded administrator")
	for _, name := range []string{"addr", "base-path", "jwt-secret", "token-ttl", "reminder-interval", "admin-name", "admin-email", "admin-password"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	secret := viper.GetString("jwt-secret")
	if secret == "" {
		return fmt.Errorf("MOVETRACK_JWT_SECRET (or --jwt-secret) is required")
	}
	if err := a.SeedAdmin(ctx, viper.GetString("admin-name"), viper.GetString("admin-email"), viper.GetString("admin-password")); err != nil {
		return err
	}
	basePath := viper.GetString("base-path")
	cfg := server.Config{
		Engine:   a.Engine,
		BasePath: basePath,
		Auth:     server.AuthConfig{JWTSecret: secret, TokenTTL: viper.GetDuration("token-ttl")},
		Log:      a.Log,
	}
	if local, ok := a.Attachments.(*attachments.LocalStore); ok {
		cfg.Files = local.Handler()
	}
	handler, err := server.New(cfg)
	if err != nil {
		return err
	}

	if interval := viper.GetDuration("reminder-interval"); interval > 0 {
		w := workers.NewReminders(a.Engine, a.Log, interval)
		w.Start()
		defer w.Stop()
	}

	addr := viper.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()
	a.Log.Info("serving movetrack api",
		zap.String("url", "http://"+addr+basePath),
		zap.String("docs", "http://"+addr+"/docs"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
