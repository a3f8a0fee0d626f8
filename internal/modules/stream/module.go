package stream

import (
	"context"

	"go.uber.org/fx"

	"live_bots/internal/engine"
	"live_bots/internal/modules/stream/service"
)

func Module() fx.Option {
	return fx.Module("stream",
		fx.Provide(
			service.NewClient,
		),
		// адаптер: *service.Client -> engine.PriceSource
		fx.Provide(
			func(c *service.Client) engine.PriceSource {
				return c
			},
		),
		fx.Invoke(
			func(lc fx.Lifecycle, c *service.Client) {
				runCtx, cancel := context.WithCancel(context.Background())
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						go c.Run(runCtx)
						return nil
					},
					OnStop: func(ctx context.Context) error {
						cancel()
						return nil
					},
				})
			},
		),
	)
}
