package orders

import (
	"context"
	"fmt"

	"live_bots/internal/models"
	"live_bots/pkg/logger"
)

// PositionStatus — итог реконсиляции защитной пары.
type PositionStatus int

const (
	StillOpen PositionStatus = iota // оба защитных живы
	Closed                         // один исполнился, сиблинг отменён
	Orphaned                       // оба пропали без исполнения — надо перевыставлять
)

// Result — результат Reconcile.
type Result struct {
	Status     PositionStatus
	ExitReason string  // "stop" | "target"
	ExitPx     float64 // средняя цена исполнившегося защитного
	ExitQty    float64

	// какие ноги реально живы (для точечного перевыставления)
	StopOpen   bool
	TargetOpen bool
}

// Manager владеет жизненным циклом ордеров одного бота: вход, защитная
// пара SL/TP, опрос исполнения и зачистка осиротевших ордеров.
// Брокер не даёт OCO для крипты, поэтому взаимное исключение защитных
// ордеров эмулируем сами: исполнился один — отменяем второй в пределах
// одного тика.
type Manager struct {
	botID  string
	broker Broker
}

func NewManager(botID string, broker Broker) *Manager {
	return &Manager{botID: botID, broker: broker}
}

// SubmitEntry — рыночный вход. Для крипты защитные ставятся отдельно
// после исполнения (SubmitProtective).
func (m *Manager) SubmitEntry(ctx context.Context, symbol string, side models.PosSide, qty float64) (models.Order, error) {
	entrySide := models.OrderBuy
	if side == models.PosShort {
		entrySide = models.OrderSell
	}

	order, err := m.broker.SubmitOrder(ctx, models.OrderSpec{
		Symbol: symbol,
		Side:   entrySide,
		Kind:   models.OrderMarket,
		Qty:    qty,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("submit entry: %w", err)
	}

	logger.Info("[ORDERS] %s вход %s %s qty=%.8f (orderId=%s)",
		m.botID, side, symbol, qty, order.ID)
	return order, nil
}

// SubmitEntryBracket — атомарный вход для акций: SL/TP одним ордером.
// Для крипты брокер такого не умеет — см. SubmitProtective.
func (m *Manager) SubmitEntryBracket(
	ctx context.Context,
	symbol string,
	side models.PosSide,
	qty, stopPx, targetPx float64,
) (models.Order, error) {

	entrySide := models.OrderBuy
	if side == models.PosShort {
		entrySide = models.OrderSell
	}

	order, err := m.broker.SubmitOrder(ctx, models.OrderSpec{
		Symbol:   symbol,
		Side:     entrySide,
		Kind:     models.OrderMarket,
		Qty:      qty,
		Bracket:  true,
		BrStopPx: stopPx,
		BrTakePx: targetPx,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("submit bracket entry: %w", err)
	}

	logger.Info("[ORDERS] %s bracket-вход %s %s qty=%.8f SL=%.2f TP=%.2f (orderId=%s)",
		m.botID, side, symbol, qty, stopPx, targetPx, order.ID)
	return order, nil
}

// SubmitStop — защитный stop-ордер на закрывающую сторону.
func (m *Manager) SubmitStop(ctx context.Context, pos *models.Position, stopPx float64) (models.Order, error) {
	if stopPx <= 0 {
		return models.Order{}, fmt.Errorf("submit stop: stopPx <= 0")
	}

	order, err := m.broker.SubmitOrder(ctx, models.OrderSpec{
		Symbol: pos.Symbol,
		Side:   pos.CloseSide(),
		Kind:   models.OrderStop,
		Qty:    pos.Qty,
		StopPx: stopPx,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("submit stop: %w", err)
	}

	logger.Info("[ORDERS] %s SL выставлен %s @ %.2f qty=%.8f (orderId=%s)",
		m.botID, pos.Symbol, stopPx, pos.Qty, order.ID)
	return order, nil
}

// SubmitTarget — защитный limit-ордер на тейк.
func (m *Manager) SubmitTarget(ctx context.Context, pos *models.Position, targetPx float64) (models.Order, error) {
	if targetPx <= 0 {
		return models.Order{}, fmt.Errorf("submit target: targetPx <= 0")
	}

	order, err := m.broker.SubmitOrder(ctx, models.OrderSpec{
		Symbol:  pos.Symbol,
		Side:    pos.CloseSide(),
		Kind:    models.OrderLimit,
		Qty:     pos.Qty,
		LimitPx: targetPx,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("submit target: %w", err)
	}

	logger.Info("[ORDERS] %s TP выставлен %s @ %.2f qty=%.8f (orderId=%s)",
		m.botID, pos.Symbol, targetPx, pos.Qty, order.ID)
	return order, nil
}

// SubmitProtective — защитная пара целиком. Две независимых заявки:
// если TP не встал после успешного SL, SL откатываем, чтобы не остаться
// с однобокой защитой незаметно для движка.
func (m *Manager) SubmitProtective(
	ctx context.Context,
	pos *models.Position,
	stopPx, targetPx float64,
) (stop models.Order, target models.Order, err error) {

	stop, err = m.SubmitStop(ctx, pos, stopPx)
	if err != nil {
		return models.Order{}, models.Order{}, err
	}

	target, err = m.SubmitTarget(ctx, pos, targetPx)
	if err != nil {
		logger.Error("[ORDERS] %s TP не встал, откатываю SL %s: %v", m.botID, stop.ID, err)
		if cerr := m.broker.CancelOrder(ctx, stop.ID); cerr != nil {
			logger.Error("[ORDERS] %s откат SL %s не удался: %v", m.botID, stop.ID, cerr)
		}
		return models.Order{}, models.Order{}, err
	}

	return stop, target, nil
}

// Reconcile опрашивает обе ноги защитной пары.
// Ровно одна исполнилась — отменяем вторую и отдаём Closed.
// Обе живы — StillOpen. Обе пропали без исполнения — Orphaned.
// Известная гонка: за один интервал цена может задеть и стоп и тейк;
// тогда первым считаем стоп, остаток позиции доберёт реконсиляция движка.
func (m *Manager) Reconcile(ctx context.Context, pos *models.Position) (Result, error) {
	if pos == nil {
		return Result{}, fmt.Errorf("reconcile: nil position")
	}

	var stop, target models.Order
	var err error

	if pos.StopOrderID != "" {
		stop, err = m.broker.GetOrder(ctx, pos.StopOrderID)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile stop %s: %w", pos.StopOrderID, err)
		}
	}
	if pos.TargetOrderID != "" {
		target, err = m.broker.GetOrder(ctx, pos.TargetOrderID)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile target %s: %w", pos.TargetOrderID, err)
		}
	}

	stopFilled := stop.Status == models.OrderFilled
	targetFilled := target.Status == models.OrderFilled
	stopOpen := pos.StopOrderID != "" && !stop.Status.Terminal()
	targetOpen := pos.TargetOrderID != "" && !target.Status.Terminal()

	switch {
	case stopFilled && targetFilled:
		// whipsaw внутри одного тика — оба успели исполниться
		logger.Warn("[ORDERS] %s whipsaw: и SL и TP исполнились, %s", m.botID, pos.Symbol)
		return Result{
			Status:     Closed,
			ExitReason: "stop",
			ExitPx:     stop.FilledPx,
			ExitQty:    stop.FilledQty,
		}, nil

	case stopFilled:
		m.cancelSibling(ctx, pos.Symbol, target.ID, "стоп исполнился")
		return Result{
			Status:     Closed,
			ExitReason: "stop",
			ExitPx:     stop.FilledPx,
			ExitQty:    stop.FilledQty,
		}, nil

	case targetFilled:
		m.cancelSibling(ctx, pos.Symbol, stop.ID, "тейк исполнился")
		return Result{
			Status:     Closed,
			ExitReason: "target",
			ExitPx:     target.FilledPx,
			ExitQty:    target.FilledQty,
		}, nil

	case !stopOpen && !targetOpen:
		// оба отменены снаружи (аномалия на стороне брокера)
		logger.Warn("[ORDERS] %s оба защитных ордера пропали без исполнения, %s", m.botID, pos.Symbol)
		return Result{Status: Orphaned}, nil

	default:
		return Result{Status: StillOpen, StopOpen: stopOpen, TargetOpen: targetOpen}, nil
	}
}

// CancelProtective — снять обе ноги (перед рыночным выходом).
func (m *Manager) CancelProtective(ctx context.Context, pos *models.Position) {
	if pos.StopOrderID != "" {
		m.cancelSibling(ctx, pos.Symbol, pos.StopOrderID, "рыночный выход")
	}
	if pos.TargetOrderID != "" {
		m.cancelSibling(ctx, pos.Symbol, pos.TargetOrderID, "рыночный выход")
	}
}

// CancelAll — зачистка всех открытых ордеров символа (осиротевшие после
// рестарта или внешнего закрытия позиции).
func (m *Manager) CancelAll(ctx context.Context, symbol string) error {
	open, err := m.broker.ListOpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("cancel all %s: %w", symbol, err)
	}
	for _, o := range open {
		m.cancelSibling(ctx, symbol, o.ID, "зачистка осиротевших ордеров")
	}
	return nil
}

// CloseMarket — выход по рынку reduce-объёмом позиции.
func (m *Manager) CloseMarket(ctx context.Context, pos *models.Position) (models.Order, error) {
	order, err := m.broker.SubmitOrder(ctx, models.OrderSpec{
		Symbol: pos.Symbol,
		Side:   pos.CloseSide(),
		Kind:   models.OrderMarket,
		Qty:    pos.Qty,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("close market: %w", err)
	}

	logger.Info("[ORDERS] %s рыночное закрытие %s qty=%.8f (orderId=%s)",
		m.botID, pos.Symbol, pos.Qty, order.ID)
	return order, nil
}

func (m *Manager) cancelSibling(ctx context.Context, symbol, id, reason string) {
	if id == "" {
		return
	}
	if err := m.broker.CancelOrder(ctx, id); err != nil {
		logger.Error("[ORDERS] %s отмена %s (%s) не удалась: %v", m.botID, id, reason, err)
		return
	}
	logger.Info("[ORDERS] %s отменён ордер %s %s: %s", m.botID, id, symbol, reason)
}
