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
	_ "time/tzdata"

	"github.com/appminuta/mapa-ventas/internal/auth"
	"github.com/appminuta/mapa-ventas/internal/config"
	"github.com/appminuta/mapa-ventas/internal/database"
	"github.com/appminuta/mapa-ventas/internal/inventory"
	"github.com/appminuta/mapa-ventas/internal/logging"
	"github.com/appminuta/mapa-ventas/internal/scheduler"
	"github.com/appminuta/mapa-ventas/internal/server"
	"github.com/appminuta/mapa-ventas/internal/snapshots"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mapa-ventas-api",
		Short: "Mapa de Ventas stock snapshot service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newGenerateCommand(), newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("timezone", defaults.GetString("snapshots.timezone"), "Business timezone that decides the snapshot date")
	cmd.PersistentFlags().Int("concurrency", defaults.GetInt("snapshots.concurrency"), "Projects generated in parallel")
	cmd.PersistentFlags().Bool("scheduler", defaults.GetBool("scheduler.enabled"), "Run the in-process snapshot scheduler")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "snapshots.timezone", "timezone")
	bindFlag(cmd, "snapshots.concurrency", "concurrency")
	bindFlag(cmd, "scheduler.enabled", "scheduler")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	db        *gorm.DB
	snapshots *snapshots.Service
	realtime  *server.RealtimeDispatcher
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(database.Options{
		Driver:             appConfig.DatabaseDriver,
		DSN:                appConfig.DatabaseDSN,
		MaxOpenConnections: appConfig.MaxOpenConnections,
		MaxIdleConnections: appConfig.MaxIdleConnections,
		ConnMaxLifetime:    appConfig.ConnMaxLifetime,
	}, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, db: db}
	repository, err := inventory.NewRepository(inventory.RepositoryConfig{
		Database:     db,
		UnitRelation: appConfig.InventoryRelation,
	})
	if err != nil {
		app.close()
		return nil, err
	}

	realtime := server.NewRealtimeDispatcher()
	snapshotService, err := snapshots.NewService(snapshots.ServiceConfig{
		Database:    db,
		Inventory:   repository,
		IDProvider:  snapshots.NewUUIDProvider(),
		Notifier:    realtime,
		Clock:       time.Now,
		Location:    appConfig.Location,
		Concurrency: appConfig.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		app.close()
		return nil, err
	}

	app.snapshots = snapshotService
	app.realtime = realtime
	return app, nil
}

func (a *application) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func (a *application) ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func runServer(ctx context.Context) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(app.config.AuthSigningSecret),
		Issuer:        app.config.AuthIssuer,
		Audience:      app.config.AuthAudience,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:          validator,
		Snapshots:         app.snapshots,
		Realtime:          app.realtime,
		HealthCheck:       app.ping,
		GenerationTimeout: app.config.GenerationTimeout,
		Logger:            app.logger,
	})
	if err != nil {
		return err
	}

	if app.config.SchedulerEnabled {
		jobs, err := scheduler.New(scheduler.Config{
			Generator:   app.snapshots,
			Location:    app.config.Location,
			DailySpec:   app.config.DailySchedule,
			MonthlySpec: app.config.MonthlySchedule,
			Timeout:     app.config.GenerationTimeout,
			Logger:      app.logger,
		})
		if err != nil {
			return err
		}
		jobs.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), app.config.GenerationTimeout)
			defer cancel()
			if err := jobs.Stop(stopCtx); err != nil {
				app.logger.Warn("scheduler did not stop cleanly", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newGenerateCommand() *cobra.Command {
	var rawKind string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one stock snapshot run and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := snapshots.ParseKind(rawKind)
			if err != nil {
				return err
			}
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.close()

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(signalCtx, app.config.GenerationTimeout)
			defer cancel()

			summary, err := app.snapshots.Generate(ctx, kind)
			fmt.Fprintf(cmd.OutOrStdout(), "fecha=%s tipo=%s procesados=%d omitidos=%d fallidos=%d pendientes=%d\n",
				summary.Fecha.Format("2006-01-02"), summary.Tipo, summary.Processed,
				len(summary.Skipped), len(summary.Failed), len(summary.Pending))
			return err
		},
	}
	cmd.Flags().StringVar(&rawKind, "tipo", string(snapshots.KindDaily), "Snapshot kind (DIARIO or MENSUAL)")
	return cmd
}

func newIssueTokenCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a service token accepted by the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				Audience:      appConfig.AuthAudience,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, _, err := issuer.IssueServiceToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "snapshot-cron", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
