package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/auth"
	"github.com/MarcoPoloResearchLab/ambassador/internal/config"
	"github.com/MarcoPoloResearchLab/ambassador/internal/database"
	"github.com/MarcoPoloResearchLab/ambassador/internal/logging"
	"github.com/MarcoPoloResearchLab/ambassador/internal/points"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storage struct {
	db     *gorm.DB
	logger *zap.Logger
	config config.AppConfig
	close  func()
}

func openStorage(ctx context.Context) (*storage, error) {
	appConfig, err := config.LoadStorage(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &storage{
		db:     db,
		logger: logger,
		config: appConfig,
		close: func() {
			_ = sqlDB.Close()
			_ = logger.Sync()
		},
	}, nil
}

func newMaterializeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "materialize-ranks",
		Short: "Recompute and store competition ranks for every ambassador",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer store.close()

			snapshotCache, closeCache, err := openCache(ctx, store.config, store.logger)
			if err != nil {
				return err
			}
			defer closeCache()

			_, materializer, err := newLeaderboard(store.db, snapshotCache, time.Minute, nil, store.logger)
			if err != nil {
				return err
			}
			result, err := materializer.Run(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd, result)
		},
	}
}

func newAuditCommand() *cobra.Command {
	var failOnDrift bool
	cmd := &cobra.Command{
		Use:   "audit-points",
		Short: "Report ambassadors whose totals differ from their awarded submissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx)
			if err != nil {
				return err
			}
			defer store.close()

			pointsService, err := points.NewService(points.ServiceConfig{Database: store.db, Logger: store.logger})
			if err != nil {
				return err
			}
			drifts, err := pointsService.Audit(ctx)
			if err != nil {
				return err
			}
			if drifts == nil {
				drifts = []points.Drift{}
			}
			if err := writeJSON(cmd, drifts); err != nil {
				return err
			}
			if failOnDrift && len(drifts) > 0 {
				return fmt.Errorf("%d ambassadors have drifted totals", len(drifts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnDrift, "fail-on-drift", false, "Exit non-zero when any drift is found")
	return cmd
}

func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Read a password from stdin and print its bcrypt hash for admin.accounts",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("password must be provided on stdin")
			}
			hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func writeJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
