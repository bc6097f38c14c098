package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/internal/clock"
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/entitlement"
	"github.com/smallbiznis/tradeboard/internal/metrics"
	"github.com/smallbiznis/tradeboard/internal/migration"
	"github.com/smallbiznis/tradeboard/internal/ratelimit"
	"github.com/smallbiznis/tradeboard/internal/server"
	"github.com/smallbiznis/tradeboard/internal/subscription"
	"github.com/smallbiznis/tradeboard/internal/tier"
	"github.com/smallbiznis/tradeboard/internal/usage"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"github.com/smallbiznis/tradeboard/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		metrics.Module,

		tier.Module,
		ratelimit.Module,
		subscription.Module,
		usage.Module,
		entitlement.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
