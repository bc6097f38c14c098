package usage

import (
	"github.com/smallbiznis/tradeboard/internal/usage/repository"
	"github.com/smallbiznis/tradeboard/internal/usage/service"
	"github.com/smallbiznis/tradeboard/internal/usage/tracker"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(
		repository.Provide,
		repository.ProvideTracker,
		service.NewService,
	),
	tracker.Module,
)
