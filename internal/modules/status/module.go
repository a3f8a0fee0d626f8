package status

import (
	"context"

	"go.uber.org/fx"

	"live_bots/internal/engine"
	"live_bots/internal/models"
	"live_bots/internal/modules/status/service/pg"
)

func Module() fx.Option {
	return fx.Module("status",
		fx.Provide(
			pg.NewStatus,
		),
		// адаптер: *pg.Status -> engine.StatusReporter
		fx.Provide(
			func(s *pg.Status) engine.StatusReporter {
				return statusReporter{s}
			},
		),
		// таблица должна существовать до первого тика
		fx.Invoke(
			func(lc fx.Lifecycle, s *pg.Status) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return s.Init(ctx)
					},
				})
			},
		),
	)
}

type statusReporter struct {
	store *pg.Status
}

func (r statusReporter) Publish(ctx context.Context, snap models.StatusSnapshot) error {
	return r.store.Upsert(ctx, snap)
}
