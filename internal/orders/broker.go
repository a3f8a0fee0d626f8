package orders

import (
	"context"

	"live_bots/internal/models"
)

// Broker — то, что нужно менеджеру ордеров от брокера.
// Реализация — alpaca-клиент; в тестах — фейк.
type Broker interface {
	SubmitOrder(ctx context.Context, spec models.OrderSpec) (models.Order, error)
	GetOrder(ctx context.Context, id string) (models.Order, error)
	ListOpenOrders(ctx context.Context, symbol string) ([]models.Order, error)
	CancelOrder(ctx context.Context, id string) error
}
