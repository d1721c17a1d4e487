package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/alimghmi/sync-auth0-user/internal/auth0"
	"github.com/alimghmi/sync-auth0-user/internal/config"
	"github.com/alimghmi/sync-auth0-user/internal/database"
	"github.com/alimghmi/sync-auth0-user/internal/logging"
	"github.com/alimghmi/sync-auth0-user/internal/reconcile"
	"github.com/alimghmi/sync-auth0-user/internal/roster"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "auth0-sync",
		Short: "Reconcile the SQL Server user roster against an Auth0 tenant",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("table", defaults.GetString("sync.table"), "Roster table to reconcile against")
	cmd.PersistentFlags().String("ignore-users", defaults.GetString("sync.ignore_users"), "Comma-separated identities exempt from delete/update")
	cmd.PersistentFlags().Int("user-limit", defaults.GetInt("sync.user_limit"), "Cap on roster rows loaded (0 = all)")
	cmd.PersistentFlags().String("role-prefix", defaults.GetString("sync.role_prefix"), "Prefix stripped from Auth0 role names during translation")
	cmd.PersistentFlags().Int("concurrency", defaults.GetInt("sync.concurrency"), "Parallel role-fetch workers (0 = GOMAXPROCS)")
	cmd.PersistentFlags().Bool("dry-run", defaults.GetBool("sync.dry_run"), "Compute and log the diff without mutating Auth0")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "sync.table", "table")
	bindFlag(cmd, "sync.ignore_users", "ignore-users")
	bindFlag(cmd, "sync.user_limit", "user-limit")
	bindFlag(cmd, "sync.role_prefix", "role-prefix")
	bindFlag(cmd, "sync.concurrency", "concurrency")
	bindFlag(cmd, "sync.dry_run", "dry-run")
	bindFlag(cmd, "log.level", "log-level")
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

func runSync(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(database.Config{
		Server:   appConfig.MSSQLServer,
		Database: appConfig.MSSQLDatabase,
		Username: appConfig.MSSQLUsername,
		Password: appConfig.MSSQLPassword,
	}, logger)
	if err != nil {
		logger.Error("database connection failed", zap.Error(err))
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	apiClient, err := auth0.NewClient(ctx, auth0.ClientConfig{
		Domain:        appConfig.Auth0URL,
		ClientID:      appConfig.Auth0ClientID,
		ClientSecret:  appConfig.Auth0ClientSecret,
		Connection:    appConfig.Auth0Connection,
		MaxRetries:    appConfig.MaxRetries,
		BackoffFactor: appConfig.BackoffFactor,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("auth0 client initialization failed", zap.Error(err))
		return err
	}

	reconciler, err := reconcile.New(reconcile.Config{
		API:         apiClient,
		Records:     database.NewSource(db),
		Table:       appConfig.Table,
		Ignore:      roster.ParseIgnoreSet(appConfig.IgnoreUsers),
		RolePrefix:  appConfig.RolePrefix,
		Limit:       appConfig.UserLimit,
		Concurrency: appConfig.Concurrency,
		DryRun:      appConfig.DryRun,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if _, err := reconciler.Run(ctx); err != nil {
		logger.Error("synchronization aborted", zap.Error(err))
		return err
	}

	return nil
}
