package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/auth"
	"github.com/MarcoPoloResearchLab/ambassador/internal/blobstore"
	"github.com/MarcoPoloResearchLab/ambassador/internal/cache"
	"github.com/MarcoPoloResearchLab/ambassador/internal/config"
	"github.com/MarcoPoloResearchLab/ambassador/internal/database"
	"github.com/MarcoPoloResearchLab/ambassador/internal/ids"
	"github.com/MarcoPoloResearchLab/ambassador/internal/leaderboard"
	"github.com/MarcoPoloResearchLab/ambassador/internal/logging"
	"github.com/MarcoPoloResearchLab/ambassador/internal/points"
	"github.com/MarcoPoloResearchLab/ambassador/internal/ratelimit"
	"github.com/MarcoPoloResearchLab/ambassador/internal/server"
	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	adminTokenIssuer   = "ambassador-api"
	adminTokenAudience = "ambassador-admin"
)

var (
	cfgFile string
	envFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ambassador-api",
		Short: "Campus ambassador points backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMaterializeCommand(), newAuditCommand(), newHashPasswordCommand())
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, mysql)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("redis-address", "", "Redis address for the leaderboard cache")
	cmd.PersistentFlags().Int("admin-token-ttl-minutes", defaults.GetInt("admin.token_ttl_minutes"), "Admin token TTL in minutes")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "cache.redis_address", "redis-address")
	bindFlag(cmd, "admin.token_ttl_minutes", "admin-token-ttl-minutes")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	snapshotCache, closeCache, err := openCache(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	var blobs blobstore.Store = blobstore.Disabled{}
	if appConfig.Cloudinary.Enabled() {
		blobs, err = blobstore.NewCloudinaryStore(blobstore.CloudinaryConfig{
			CloudName: appConfig.Cloudinary.CloudName,
			APIKey:    appConfig.Cloudinary.APIKey,
			APISecret: appConfig.Cloudinary.APISecret,
			Folder:    appConfig.Cloudinary.Folder,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("cloudinary not configured; proof uploads are disabled")
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		Issuer:        appConfig.SessionIssuer,
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}
	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AdminSigningSecret),
		Issuer:        adminTokenIssuer,
		Audience:      adminTokenAudience,
		TokenTTL:      appConfig.AdminTokenTTL,
	})
	if err != nil {
		return err
	}
	if len(appConfig.AdminAccounts) == 0 {
		logger.Warn("no admin accounts configured; admin login is disabled")
	}

	profiles, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	taskService, err := tasks.NewService(tasks.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	submissionService, err := submissions.NewService(submissions.ServiceConfig{
		Database:   db,
		Tasks:      taskService,
		Blobs:      blobs,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	dispatcher := server.NewRealtimeDispatcher()
	snapshots, materializer, err := newLeaderboard(db, snapshotCache, appConfig.LeaderboardCacheTTL, dispatcher, logger)
	if err != nil {
		return err
	}
	pointsService, err := points.NewService(points.ServiceConfig{
		Database:  db,
		Snapshots: snapshots,
		Publisher: dispatcher,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:          sessionValidator,
		AdminAuth:         auth.NewAdminAuthenticator(appConfig.AdminAccounts),
		AdminTokens:       tokenIssuer,
		Profiles:          profiles,
		Tasks:             taskService,
		Submissions:       submissionService,
		Points:            pointsService,
		Leaderboard:       snapshots,
		Materializer:      materializer,
		Realtime:          dispatcher,
		SubmissionLimiter: ratelimit.PerMinute(appConfig.SubmissionsPerMinute),
		LoginLimiter:      ratelimit.PerMinute(appConfig.LoginPerMinute),
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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

// openCache returns Redis when an address is configured and an in-process store otherwise.
func openCache(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (cache.Store, func(), error) {
	if appConfig.RedisAddress == "" {
		logger.Info("using in-memory leaderboard cache")
		return cache.NewMemoryStore(time.Now), func() {}, nil
	}
	store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Address:  appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
		DB:       appConfig.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis leaderboard cache", zap.String("address", appConfig.RedisAddress))
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn("redis close failed", zap.Error(err))
		}
	}, nil
}

func newLeaderboard(db *gorm.DB, store cache.Store, ttl time.Duration, publisher leaderboard.Publisher, logger *zap.Logger) (*leaderboard.Snapshots, *leaderboard.Materializer, error) {
	snapshots, err := leaderboard.NewSnapshots(leaderboard.SnapshotsConfig{
		Database: db,
		Cache:    store,
		TTL:      ttl,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	materializer, err := leaderboard.NewMaterializer(leaderboard.MaterializerConfig{
		Database:  db,
		Snapshots: snapshots,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return snapshots, materializer, nil
}
