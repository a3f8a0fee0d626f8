package engine

import (
	"context"

	"live_bots/internal/models"
	"live_bots/internal/orders"
)

// Broker — всё, что движку нужно от брокера. Реализация — alpaca-клиент.
type Broker interface {
	orders.Broker
	GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error)
	GetAccount(ctx context.Context) (models.Account, error)
	GetOpenPosition(ctx context.Context, symbol string) (*models.Position, error)
}

// StatusReporter — куда движок публикует снапшот после каждого тика.
type StatusReporter interface {
	Publish(ctx context.Context, snap models.StatusSnapshot) error
}

// Notifier — уведомления оператору о сделках и остановках.
type Notifier interface {
	Sendf(format string, args ...interface{})
}

// PriceSource — последняя цена из стрима, для unrealized PnL в статусе.
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}
