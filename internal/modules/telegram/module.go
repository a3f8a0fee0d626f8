package telegram

import (
	"context"

	"go.uber.org/fx"

	"live_bots/internal/engine"
	"live_bots/internal/modules/telegram/service"
	"live_bots/internal/runner"
)

func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			service.NewTelegram,
		),

		// нотифайер попадает в менеджер до старта движков
		fx.Invoke(
			func(m *runner.Manager, t *service.Telegram) {
				var n engine.Notifier = t
				m.SetNotifier(n)
			},
		),

		// Запуск цикла команд через Lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.Start()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}
