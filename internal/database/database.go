package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ambassador/internal/config"
	"github.com/MarcoPoloResearchLab/ambassador/internal/submissions"
	"github.com/MarcoPoloResearchLab/ambassador/internal/tasks"
	"github.com/MarcoPoloResearchLab/ambassador/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	mysqlMaxIdleConns    = 10
	mysqlMaxOpenConns    = 50
	mysqlConnMaxLifetime = time.Hour
)

// Open connects to the configured database and brings the schema up to date.
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case config.DatabaseDriverSQLite:
		dialector = sqlite.Open(dsn)
	case config.DatabaseDriverMySQL:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("database driver %q is not supported", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == config.DatabaseDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(mysqlMaxIdleConns)
		sqlDB.SetMaxOpenConns(mysqlMaxOpenConns)
		sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)
	}

	if err := Migrate(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driver))
	}
	return db, nil
}

// Migrate creates or alters the tables and runs pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&users.Profile{}, &tasks.Task{}, &submissions.Submission{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}
