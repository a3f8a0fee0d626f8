package runner

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			NewManager,
		),
		fx.Invoke(
			func(lc fx.Lifecycle, m *Manager) {
				lc.Append(fx.Hook{
					OnStart: m.Start,
					OnStop: func(ctx context.Context) error {
						m.Stop()
						return nil
					},
				})
			},
		),
	)
}
