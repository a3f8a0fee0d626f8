package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"live_bots/internal/modules/alpaca"
	"live_bots/internal/modules/config"
	"live_bots/internal/modules/health"
	"live_bots/internal/modules/postgres"
	"live_bots/internal/modules/status"
	"live_bots/internal/modules/stream"
	"live_bots/internal/modules/telegram"
	"live_bots/internal/runner"
	"live_bots/pkg/logger"
	"live_bots/pkg/tracing"
)

const serviceName = "live_bots"

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName(serviceName)
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		alpaca.Module(),
		status.Module(),
		stream.Module(),
		health.Module(),
		runner.Module(),
		telegram.Module(),
		fx.Invoke(initTracing),
	)

	// Run блокируется до SIGINT/SIGTERM и прогоняет OnStop-хуки:
	// боты дорабатывают тик, защитные ордера остаются у брокера.
	app.Run()
}

func initTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Jaeger.Host == "" {
		return nil
	}

	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Jaeger.Host,
		Port: cfg.Jaeger.Port,
	})
	if err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closeTracer()
			return nil
		},
	})
	return nil
}
