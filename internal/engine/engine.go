package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"live_bots/internal/apierr"
	"live_bots/internal/models"
	"live_bots/internal/orders"
	"live_bots/internal/risk"
	"live_bots/internal/strategy"
	"live_bots/pkg/logger"
)

// Config — параметры одного бота.
type Config struct {
	BotID         string
	Symbol        string
	Timeframe     string
	BarLimit      int
	TickInterval  time.Duration
	StopLossPct   float64 // доля от цены входа
	TakeProfitPct float64
	MaxHold       time.Duration // 0 — без лимита удержания
}

// Deps — зависимости движка. Reporter/Notifier/Prices опциональны.
type Deps struct {
	Broker   Broker
	Orders   *orders.Manager
	Governor *risk.Governor
	Strategy strategy.Evaluator
	Reporter StatusReporter
	Notifier Notifier
	Prices   PriceSource
	Clock    Clock

	// OnTick дёргается после каждого тика (health-пульс и т.п.)
	OnTick func(models.TickOutcome)
}

// Engine — машина исполнения одного бота: один control loop, один символ.
// Вся правда о позициях и ордерах у брокера; локальное состояние — кеш,
// который каждый тик сверяется с брокером до любых торговых решений.
type Engine struct {
	cfg    Config
	broker Broker
	om     *orders.Manager
	gov    *risk.Governor
	eval   strategy.Evaluator

	reporter StatusReporter
	notifier Notifier
	prices   PriceSource
	clock    Clock
	onTick   func(models.TickOutcome)

	crypto bool

	mu           sync.Mutex
	state        models.BotState
	pos          *models.Position
	entryOrderID string
	pendingExit  string // причина выхода, если EXITING прервали transient-ошибкой
	equity       float64
	lastErr      string
	lastSnap     models.StatusSnapshot
}

func New(cfg Config, d Deps) *Engine {
	clock := d.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Engine{
		cfg:      cfg,
		broker:   d.Broker,
		om:       d.Orders,
		gov:      d.Governor,
		eval:     d.Strategy,
		reporter: d.Reporter,
		notifier: d.Notifier,
		prices:   d.Prices,
		clock:    clock,
		onTick:   d.OnTick,
		crypto:   strings.Contains(cfg.Symbol, "/"),
		state:    models.StateFlat,
	}
}

// Run — control loop бота до отмены контекста.
// Остановка мягкая: текущий тик дорабатывает, защитные ордера остаются
// у брокера и охраняют позицию, пока бот лежит.
func (e *Engine) Run(ctx context.Context) {
	logger.Info("[ENGINE] %s старт: %s %s strategy=%s tick=%s",
		e.cfg.BotID, e.cfg.Symbol, e.cfg.Timeframe, e.eval.Name(), e.cfg.TickInterval)

	for {
		outcome := e.Tick(ctx)
		if e.onTick != nil {
			e.onTick(outcome)
		}

		select {
		case <-ctx.Done():
			logger.Info("[ENGINE] %s остановка, защитные ордера остаются у брокера", e.cfg.BotID)
			return
		case <-e.clock.Tick(e.cfg.TickInterval):
		}
	}
}

// Tick — один проход: реконсиляция -> сигнал -> ордера -> статус.
// Порядок жёсткий: никакие решения не принимаются по несверенному состоянию.
func (e *Engine) Tick(ctx context.Context) models.TickOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	span := opentracing.GlobalTracer().StartSpan("engine.tick")
	span.SetTag("bot", e.cfg.BotID)
	span.SetTag("state.before", string(e.state))
	defer span.Finish()

	out := e.tick(ctx)

	span.SetTag("state.after", string(e.state))
	span.SetTag("outcome", out.String())

	e.publish(ctx)
	return out
}

func (e *Engine) tick(ctx context.Context) models.TickOutcome {
	// 1. счёт
	acct, err := e.broker.GetAccount(ctx)
	if err != nil {
		if apierr.IsFatal(err) {
			return e.halt(fmt.Sprintf("счёт недоступен: %v", err))
		}
		return e.transient("GetAccount", err)
	}
	e.equity = acct.Equity
	if e.state != models.StateHalted {
		// в HALT lastErr хранит причину останова до операторского Resume
		e.lastErr = ""
	}

	// 2. реконсиляция с брокером — до сигналов и до ордеров
	if out, ok := e.reconcile(ctx); !ok {
		return out
	}

	if e.state == models.StateHalted {
		return models.TickHalt
	}

	// 3. маркет-дата и сигнал
	bars, err := e.broker.GetBars(ctx, e.cfg.Symbol, e.cfg.Timeframe, e.cfg.BarLimit)
	if err != nil {
		if apierr.IsFatal(err) {
			return e.halt(fmt.Sprintf("маркет-дата недоступна: %v", err))
		}
		return e.transient("GetBars", err)
	}
	if len(bars) < e.eval.Warmup() {
		logger.Info("[ENGINE] %s прогрев: %d/%d свечей", e.cfg.BotID, len(bars), e.eval.Warmup())
		return models.TickContinue
	}

	sig := e.eval.Evaluate(bars)
	lastPx := bars[len(bars)-1].Close

	// 4. решения
	switch e.state {
	case models.StateInPosition:
		return e.manage(ctx, sig, lastPx)
	case models.StateExiting:
		// прошлый выход сорвался на transient-ошибке — доводим
		return e.exit(ctx, e.pendingExit, lastPx)
	case models.StateFlat:
		if sig.Direction == models.DirLong || sig.Direction == models.DirShort {
			return e.enter(ctx, sig, acct, lastPx)
		}
	}
	return models.TickContinue
}

// reconcile сверяет локальный кеш с брокером. ok=false — тик прерван.
func (e *Engine) reconcile(ctx context.Context) (models.TickOutcome, bool) {
	brokerPos, err := e.broker.GetOpenPosition(ctx, e.cfg.Symbol)
	if err != nil {
		if apierr.IsFatal(err) {
			return e.halt(fmt.Sprintf("позиции недоступны: %v", err)), false
		}
		return e.transient("GetOpenPosition", err), false
	}

	if brokerPos == nil {
		return e.reconcileFlat(ctx)
	}
	return e.reconcileOpen(ctx, brokerPos)
}

// reconcileFlat: у брокера позиции нет.
func (e *Engine) reconcileFlat(ctx context.Context) (models.TickOutcome, bool) {
	switch e.state {
	case models.StateEntering:
		// вход ещё в пути либо отклонён
		o, err := e.broker.GetOrder(ctx, e.entryOrderID)
		if err != nil {
			return e.transient("GetOrder entry", err), false
		}
		switch {
		case o.Status == models.OrderFilled:
			// исполнен, но позиция у брокера ещё не материализовалась —
			// дождёмся её на следующем тике
			return models.TickContinue, false
		case o.Status.Terminal():
			logger.Warn("[ENGINE] %s вход %s не состоялся: %s", e.cfg.BotID, o.ID, o.Status)
			e.entryOrderID = ""
			e.state = models.StateFlat
		default:
			// ордер открыт — ждём, зачистку не трогаем
			return models.TickContinue, false
		}

	case models.StateInPosition, models.StateExiting, models.StateHalted:
		// позиция исчезла у брокера: исполнился защитный или закрыли снаружи.
		// HALT из этого не снимается — только фиксируем факт закрытия.
		if e.pos != nil {
			res, rerr := e.om.Reconcile(ctx, e.pos)
			if rerr == nil && res.Status == orders.Closed {
				e.closePosition(res.ExitReason, res.ExitPx)
			} else {
				logger.Warn("[ENGINE] %s позиция %s закрыта вне бота", e.cfg.BotID, e.cfg.Symbol)
				e.notify("⚠️ %s: позиция %s закрыта вне бота, принимаю состояние брокера", e.cfg.BotID, e.cfg.Symbol)
				e.pos = nil
				if e.state != models.StateHalted {
					e.state = models.StateFlat
				}
			}
		} else if e.state != models.StateHalted {
			e.state = models.StateFlat
		}
	}

	// FLAT без позиции: висящие ордера по символу — сироты, снимаем
	if e.state == models.StateFlat {
		if err := e.om.CancelAll(ctx, e.cfg.Symbol); err != nil {
			return e.transient("CancelAll", err), false
		}
	}
	return models.TickContinue, true
}

// reconcileOpen: у брокера есть позиция — она и есть правда.
func (e *Engine) reconcileOpen(ctx context.Context, brokerPos *models.Position) (models.TickOutcome, bool) {
	if e.pos == nil {
		// либо наш вход исполнился, либо рестарт поверх живой позиции
		p := *brokerPos
		if p.EntryTime.IsZero() {
			p.EntryTime = e.clock.Now()
		}
		adopted := e.state != models.StateEntering
		e.pos = &p
		e.entryOrderID = ""
		if e.state != models.StateHalted {
			e.state = models.StateInPosition
		}

		if adopted {
			logger.Warn("[ENGINE] %s принята позиция брокера: %s %s qty=%.8f @ %.2f",
				e.cfg.BotID, p.Side, p.Symbol, p.Qty, p.EntryPx)
			e.notify("♻️ %s: подхватил позицию %s %s qty=%.8f @ %.2f",
				e.cfg.BotID, p.Side, p.Symbol, p.Qty, p.EntryPx)
		} else {
			logger.Info("[ENGINE] %s вход исполнен: %s %s qty=%.8f @ %.2f",
				e.cfg.BotID, p.Side, p.Symbol, p.Qty, p.EntryPx)
			e.notify("📈 %s: вход %s %s qty=%.8f @ %.2f",
				e.cfg.BotID, p.Side, p.Symbol, p.Qty, p.EntryPx)
		}
	} else {
		// объём и цена входа — у брокера точнее (partial fills)
		e.pos.Qty = brokerPos.Qty
		e.pos.Side = brokerPos.Side
		if brokerPos.EntryPx > 0 {
			e.pos.EntryPx = brokerPos.EntryPx
		}
		// HALT не перетирается: позицию сверяем и охраняем, но торговать
		// halted-бот начнёт только после операторского Resume
		if e.state != models.StateInPosition && e.state != models.StateExiting &&
			e.state != models.StateHalted {
			e.state = models.StateInPosition
		}
	}

	// привязываем живые защитные ордера и держим инвариант:
	// ровно один stop и ровно один limit на закрывающей стороне
	open, err := e.broker.ListOpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return e.transient("ListOpenOrders", err), false
	}
	e.attachProtective(ctx, open)

	if !e.pos.Protected() {
		// НЕЗАЩИЩЁННАЯ ПОЗИЦИЯ — чиним раньше любых торговых решений
		return e.ensureProtected(ctx, true)
	}

	res, err := e.om.Reconcile(ctx, e.pos)
	if err != nil {
		return e.transient("Reconcile", err), false
	}
	switch res.Status {
	case orders.Closed:
		// защитный исполнился; остаток позиции (whipsaw/partial) подхватит
		// следующая реконсиляция
		e.closePosition(res.ExitReason, res.ExitPx)
	case orders.Orphaned:
		e.pos.StopOrderID = ""
		e.pos.TargetOrderID = ""
		return e.ensureProtected(ctx, true)
	case orders.StillOpen:
		if !res.StopOpen {
			e.pos.StopOrderID = ""
		}
		if !res.TargetOpen {
			e.pos.TargetOrderID = ""
		}
		if !e.pos.Protected() {
			return e.ensureProtected(ctx, true)
		}
	}
	return models.TickContinue, true
}

// attachProtective разбирает открытые ордера символа: первый stop и первый
// limit на закрывающей стороне становятся защитными, дубли снимаются.
func (e *Engine) attachProtective(ctx context.Context, open []models.Order) {
	closeSide := e.pos.CloseSide()
	for _, o := range open {
		if o.Side != closeSide {
			continue
		}
		switch o.Kind {
		case models.OrderStop:
			switch {
			case e.pos.StopOrderID == "" || e.pos.StopOrderID == o.ID:
				e.pos.StopOrderID = o.ID
			default:
				e.cancelStray(ctx, o.ID, "дубль защитного stop")
			}
		case models.OrderLimit:
			switch {
			case e.pos.TargetOrderID == "" || e.pos.TargetOrderID == o.ID:
				e.pos.TargetOrderID = o.ID
			default:
				e.cancelStray(ctx, o.ID, "дубль защитного limit")
			}
		}
	}
}

// ensureProtected довыставляет недостающие ноги защитной пары.
func (e *Engine) ensureProtected(ctx context.Context, alert bool) (models.TickOutcome, bool) {
	stopPx, targetPx := protectivePrices(e.pos.Side, e.pos.EntryPx, e.cfg.StopLossPct, e.cfg.TakeProfitPct)

	resubmitted := false
	if e.pos.StopOrderID == "" {
		o, err := e.om.SubmitStop(ctx, e.pos, stopPx)
		if err != nil {
			if apierr.IsFatal(err) {
				return e.halt(fmt.Sprintf("SL не выставить: %v", err)), false
			}
			return e.transient("SubmitStop", err), false
		}
		e.pos.StopOrderID = o.ID
		resubmitted = true
	}
	if e.pos.TargetOrderID == "" {
		o, err := e.om.SubmitTarget(ctx, e.pos, targetPx)
		if err != nil {
			if apierr.IsFatal(err) {
				return e.halt(fmt.Sprintf("TP не выставить: %v", err)), false
			}
			return e.transient("SubmitTarget", err), false
		}
		e.pos.TargetOrderID = o.ID
		resubmitted = true
	}

	if resubmitted && alert {
		logger.Warn("[ENGINE] %s позиция %s была без полной защиты, перевыставил SL/TP",
			e.cfg.BotID, e.cfg.Symbol)
		e.notify("⚠️ %s: позиция %s была без полной защиты, перевыставил SL=%.2f TP=%.2f",
			e.cfg.BotID, e.cfg.Symbol, stopPx, targetPx)
	}
	return models.TickContinue, true
}

// manage — позиция открыта: сигнал выхода и лимит удержания.
func (e *Engine) manage(ctx context.Context, sig models.Signal, lastPx float64) models.TickOutcome {
	if sig.Direction == models.DirExit {
		return e.exit(ctx, "signal", lastPx)
	}
	if e.cfg.MaxHold > 0 && e.clock.Now().Sub(e.pos.EntryTime) >= e.cfg.MaxHold {
		return e.exit(ctx, "max_hold", lastPx)
	}
	return models.TickContinue
}

// exit — рыночный выход: снять защиту, закрыться, учесть PnL.
func (e *Engine) exit(ctx context.Context, reason string, lastPx float64) models.TickOutcome {
	e.state = models.StateExiting
	e.pendingExit = reason
	e.om.CancelProtective(ctx, e.pos)

	o, err := e.om.CloseMarket(ctx, e.pos)
	if err != nil {
		if apierr.IsFatal(err) {
			return e.halt(fmt.Sprintf("рыночный выход не прошёл: %v", err))
		}
		// остаёмся в EXITING, защиту перевыставит следующая реконсиляция
		return e.transient("CloseMarket", err)
	}

	// рыночный ордер исполняется почти сразу — уточняем цену одним опросом
	exitPx := lastPx
	if got, gerr := e.broker.GetOrder(ctx, o.ID); gerr == nil &&
		got.Status == models.OrderFilled && got.FilledPx > 0 {
		exitPx = got.FilledPx
	}

	e.closePosition(reason, exitPx)
	return models.TickContinue
}

// enter — вход из FLAT: circuit breaker -> сайзинг -> ордер.
func (e *Engine) enter(ctx context.Context, sig models.Signal, acct models.Account, lastPx float64) models.TickOutcome {
	if e.gov.CheckDailyLoss(acct.Equity) == risk.Halt {
		return e.halt(fmt.Sprintf("дневной лимит убытка: %.2f", e.gov.RealizedToday()))
	}

	side := models.PosLong
	if sig.Direction == models.DirShort {
		side = models.PosShort
	}
	stopPx, targetPx := protectivePrices(side, lastPx, e.cfg.StopLossPct, e.cfg.TakeProfitPct)

	qty, err := e.gov.Size(acct.Equity, lastPx, stopPx)
	if errors.Is(err, risk.ErrDegenerateStop) {
		qty = e.gov.FallbackSize(acct.Equity, lastPx)
		logger.Warn("[ENGINE] %s вырожденный стоп, fallback-сайзинг qty=%.8f", e.cfg.BotID, qty)
	} else if err != nil {
		e.lastErr = err.Error()
		logger.Error("[ENGINE] %s сайзинг: %v", e.cfg.BotID, err)
		return models.TickContinue
	}
	if qty <= 0 {
		return models.TickContinue
	}

	var order models.Order
	if e.crypto {
		order, err = e.om.SubmitEntry(ctx, e.cfg.Symbol, side, qty)
	} else {
		order, err = e.om.SubmitEntryBracket(ctx, e.cfg.Symbol, side, qty, stopPx, targetPx)
	}
	if err != nil {
		switch {
		case apierr.CodeOf(err) == apierr.CodeInsufficientFunds:
			logger.Warn("[ENGINE] %s вход пропущен: не хватает средств", e.cfg.BotID)
			e.notify("💤 %s: вход пропущен, не хватает средств", e.cfg.BotID)
			return models.TickContinue
		case apierr.CodeOf(err) == apierr.CodeSymbolHalted:
			logger.Warn("[ENGINE] %s вход пропущен: торги по %s приостановлены", e.cfg.BotID, e.cfg.Symbol)
			return models.TickContinue
		case apierr.IsBusiness(err):
			logger.Warn("[ENGINE] %s вход отклонён брокером: %v", e.cfg.BotID, err)
			return models.TickContinue
		case apierr.IsFatal(err):
			return e.halt(fmt.Sprintf("вход не прошёл: %v", err))
		default:
			return e.transient("SubmitEntry", err)
		}
	}

	e.entryOrderID = order.ID
	e.state = models.StateEntering
	logger.Info("[ENGINE] %s сигнал %s (%s), вход qty=%.8f @ ~%.2f",
		e.cfg.BotID, sig.Direction, sig.Reason, qty, lastPx)
	return models.TickContinue
}

// closePosition — позиция закрыта: PnL в governor, уведомление, FLAT.
func (e *Engine) closePosition(reason string, exitPx float64) {
	pnl := 0.0
	if e.pos != nil && exitPx > 0 {
		pnl = (exitPx - e.pos.EntryPx) * e.pos.Qty
		if e.pos.Side == models.PosShort {
			pnl = -pnl
		}
	}
	e.gov.RecordTrade(pnl)

	emoji := "✅"
	if pnl < 0 {
		emoji = "🔻"
	}
	logger.Info("[ENGINE] %s позиция закрыта (%s): pnl=%.2f exit=%.2f", e.cfg.BotID, reason, pnl, exitPx)
	e.notify("%s %s: %s закрыта (%s) @ %.2f, PnL %.2f, за день %.2f",
		emoji, e.cfg.BotID, e.cfg.Symbol, reason, exitPx, pnl, e.gov.RealizedToday())

	e.pos = nil
	e.entryOrderID = ""
	e.pendingExit = ""
	if e.state != models.StateHalted {
		e.state = models.StateFlat
	}
}

// halt — до внешнего сброса бот только сверяет позицию и публикует статус.
func (e *Engine) halt(reason string) models.TickOutcome {
	if e.state != models.StateHalted {
		logger.Error("[ENGINE] %s HALT: %s", e.cfg.BotID, reason)
		e.notify("🛑 %s: остановлен — %s", e.cfg.BotID, reason)
	}
	e.state = models.StateHalted
	e.lastErr = reason
	return models.TickHalt
}

func (e *Engine) transient(op string, err error) models.TickOutcome {
	if e.state != models.StateHalted {
		e.lastErr = fmt.Sprintf("%s: %v", op, err)
	}
	logger.Error("[ENGINE] %s transient %s: %v — тик пропущен", e.cfg.BotID, op, err)
	return models.TickRetry
}

// ResetDaily — граница торгового дня: обнуляем дневной PnL.
// HALT при этом не снимается, halted-бот поднимает только оператор.
func (e *Engine) ResetDaily() {
	e.gov.ResetDaily()
}

// Resume — внешний сброс: новый торговый день и выход из HALT.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gov.ResetDaily()
	if e.state == models.StateHalted {
		if e.pos != nil {
			e.state = models.StateInPosition
		} else {
			e.state = models.StateFlat
		}
		e.lastErr = ""
		logger.Info("[ENGINE] %s сброс HALT, состояние %s", e.cfg.BotID, e.state)
		e.notify("▶️ %s: перезапущен, состояние %s", e.cfg.BotID, e.state)
	}
}

// Status — последний опубликованный снапшот (для /status в телеграме).
func (e *Engine) Status() models.StatusSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSnap
}

func (e *Engine) BotID() string { return e.cfg.BotID }

// publish собирает и публикует снапшот. Вызывается под e.mu.
func (e *Engine) publish(ctx context.Context) {
	snap := models.StatusSnapshot{
		BotID:         e.cfg.BotID,
		State:         e.state,
		LastError:     e.lastErr,
		Equity:        e.equity,
		RealizedToday: e.gov.RealizedToday(),
		UpdatedAt:     e.clock.Now(),
	}
	if e.pos != nil {
		pi := models.PositionInfo{
			Symbol:    e.pos.Symbol,
			Side:      e.pos.Side,
			Qty:       e.pos.Qty,
			EntryPx:   e.pos.EntryPx,
			EntryTime: e.pos.EntryTime,
		}
		if e.prices != nil {
			if px, ok := e.prices.LastPrice(e.cfg.Symbol); ok {
				pi.LastPx = px
				pi.UnrealizedPL = (px - pi.EntryPx) * pi.Qty
				if pi.Side == models.PosShort {
					pi.UnrealizedPL = -pi.UnrealizedPL
				}
			}
		}
		snap.Position = &pi
	}

	e.lastSnap = snap
	if e.reporter != nil {
		if err := e.reporter.Publish(ctx, snap); err != nil {
			logger.Error("[ENGINE] %s публикация статуса: %v", e.cfg.BotID, err)
		}
	}
}

func (e *Engine) notify(format string, args ...interface{}) {
	if e.notifier != nil {
		e.notifier.Sendf(format, args...)
	}
}

func (e *Engine) cancelStray(ctx context.Context, id, reason string) {
	if err := e.broker.CancelOrder(ctx, id); err != nil {
		logger.Error("[ENGINE] %s отмена %s (%s): %v", e.cfg.BotID, id, reason, err)
		return
	}
	logger.Info("[ENGINE] %s снят лишний ордер %s: %s", e.cfg.BotID, id, reason)
}

// protectivePrices — цены защитной пары от цены входа.
func protectivePrices(side models.PosSide, entryPx, slPct, tpPct float64) (stopPx, targetPx float64) {
	if side == models.PosLong {
		return entryPx * (1 - slPct), entryPx * (1 + tpPct)
	}
	return entryPx * (1 + slPct), entryPx * (1 - tpPct)
}
