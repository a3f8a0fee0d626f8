package alpaca

import (
	"go.uber.org/fx"

	"live_bots/internal/engine"
	"live_bots/internal/modules/alpaca/service"
)

func Module() fx.Option {
	return fx.Module("alpaca",
		fx.Provide(
			service.NewClient,
		),
		// адаптер: *service.Client -> engine.Broker
		fx.Provide(
			func(c *service.Client) engine.Broker {
				return c
			},
		),
	)
}
