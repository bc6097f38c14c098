package migration

import (
	"strings"

	subscriptiondomain "github.com/smallbiznis/tradeboard/internal/subscription/domain"
	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if strings.EqualFold(conn.Dialector.Name(), "postgres") {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres targets are for local development; the model tags
		// carry enough schema to build them directly.
		return conn.AutoMigrate(
			&subscriptiondomain.Subscription{},
			&usagedomain.UsageRecord{},
			&usagedomain.TrackingJob{},
		)
	}),
)
