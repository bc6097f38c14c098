package db

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/tradeboard/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Dialect(cfg config.Config) (gorm.Dialector, error) {
	switch cfg.DBType {
	case "mysql":
		return mysql.Open(fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		)), nil
	case "postgres":
		return postgres.Open(fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBPort,
			cfg.DBSSLMode,
		)), nil
	case "sqlite":
		return sqlite.Open("gorm.db"), nil
	default:
		return nil, fmt.Errorf("unsupported %s type", cfg.DBType)
	}
}

// SupportsReturning reports whether the dialect handles
// `UPDATE/INSERT ... RETURNING`, which the usage store's atomic paths rely
// on. MySQL needs a two-statement fallback inside a transaction.
func SupportsReturning(db *gorm.DB) bool {
	switch strings.ToLower(db.Dialector.Name()) {
	case "postgres", "sqlite":
		return true
	default:
		return false
	}
}

// SupportsRowLocking reports whether `FOR UPDATE SKIP LOCKED` is available
// for worker batch claims. SQLite serializes writers anyway.
func SupportsRowLocking(db *gorm.DB) bool {
	switch strings.ToLower(db.Dialector.Name()) {
	case "postgres", "mysql":
		return true
	default:
		return false
	}
}
