package tracker

import (
	"context"

	usagedomain "github.com/smallbiznis/tradeboard/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("usage.tracker",
	fx.Provide(
		NewWorker,
		func(w *Worker) usagedomain.Tracker { return w },
	),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, w *Worker, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go w.RunForever(ctx)
			log.Named("usage.tracker").Info("usage tracking worker started")
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
