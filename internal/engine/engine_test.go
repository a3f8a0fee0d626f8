package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live_bots/internal/apierr"
	"live_bots/internal/models"
	"live_bots/internal/orders"
	"live_bots/internal/risk"
)

// --- фейки ---

type fakeBroker struct {
	seq     int
	account models.Account
	acctErr error
	bars    []models.Bar
	pos     *models.Position
	orders  []*models.Order

	submitted []models.OrderSpec
}

func newBroker() *fakeBroker {
	bars := make([]models.Bar, 3)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = models.Bar{Start: start.Add(time.Duration(i) * time.Minute), Close: 50000}
	}
	return &fakeBroker{
		account: models.Account{Equity: 10000, Cash: 10000},
		bars:    bars,
	}
}

func (f *fakeBroker) GetAccount(context.Context) (models.Account, error) {
	if f.acctErr != nil {
		return models.Account{}, f.acctErr
	}
	return f.account, nil
}

func (f *fakeBroker) GetBars(_ context.Context, _, _ string, _ int) ([]models.Bar, error) {
	return f.bars, nil
}

func (f *fakeBroker) GetOpenPosition(context.Context, string) (*models.Position, error) {
	if f.pos == nil {
		return nil, nil
	}
	p := *f.pos
	return &p, nil
}

func (f *fakeBroker) SubmitOrder(_ context.Context, spec models.OrderSpec) (models.Order, error) {
	f.submitted = append(f.submitted, spec)
	f.seq++
	o := models.Order{
		ID:      fmt.Sprintf("ord-%d", f.seq),
		Symbol:  spec.Symbol,
		Side:    spec.Side,
		Kind:    spec.Kind,
		Qty:     spec.Qty,
		LimitPx: spec.LimitPx,
		StopPx:  spec.StopPx,
		Status:  models.OrderSubmitted,
	}
	f.orders = append(f.orders, &o)
	return o, nil
}

func (f *fakeBroker) GetOrder(_ context.Context, id string) (models.Order, error) {
	for _, o := range f.orders {
		if o.ID == id {
			return *o, nil
		}
	}
	return models.Order{}, apierr.Business(apierr.CodeNotFound, "order %s not found", id)
}

func (f *fakeBroker) ListOpenOrders(_ context.Context, symbol string) ([]models.Order, error) {
	var out []models.Order
	for _, o := range f.orders {
		if o.Symbol == symbol && !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeBroker) CancelOrder(_ context.Context, id string) error {
	for _, o := range f.orders {
		if o.ID == id && !o.Status.Terminal() {
			o.Status = models.OrderCanceled
		}
	}
	return nil
}

func (f *fakeBroker) fill(id string, px float64) {
	for _, o := range f.orders {
		if o.ID == id {
			o.Status = models.OrderFilled
			o.FilledQty = o.Qty
			o.FilledPx = px
		}
	}
}

func (f *fakeBroker) openByKind(kind models.OrderKind) []models.Order {
	var out []models.Order
	for _, o := range f.orders {
		if o.Kind == kind && !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}

func (f *fakeBroker) submittedByKind(kind models.OrderKind) int {
	n := 0
	for _, s := range f.submitted {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// stubStrategy всегда отдаёт один и тот же сигнал.
type stubStrategy struct{ dir models.Direction }

func (s *stubStrategy) Name() string { return "stub" }
func (s *stubStrategy) Warmup() int  { return 1 }
func (s *stubStrategy) Evaluate(bars []models.Bar) models.Signal {
	return models.Signal{At: bars[len(bars)-1].Start, Direction: s.dir, Reason: "stub"}
}

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time                      { return c.now }
func (c *stubClock) Tick(time.Duration) <-chan time.Time { return nil }

type captureReporter struct{ snaps []models.StatusSnapshot }

func (r *captureReporter) Publish(_ context.Context, s models.StatusSnapshot) error {
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *captureReporter) last() models.StatusSnapshot {
	return r.snaps[len(r.snaps)-1]
}

func newEngine(fb *fakeBroker, dir models.Direction) (*Engine, *captureReporter, *stubClock) {
	gov := risk.New(models.RiskLimits{RiskPerTradePct: 0.02, MaxPositionPct: 0.10, MaxDailyLossPct: 0.05})
	rep := &captureReporter{}
	clk := &stubClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	e := New(Config{
		BotID:         "test-bot",
		Symbol:        "BTC/USD",
		Timeframe:     "15Min",
		BarLimit:      200,
		TickInterval:  time.Minute,
		StopLossPct:   0.02,
		TakeProfitPct: 0.03,
		MaxHold:       4 * time.Hour,
	}, Deps{
		Broker:   fb,
		Orders:   orders.NewManager("test-bot", fb),
		Governor: gov,
		Strategy: &stubStrategy{dir: dir},
		Reporter: rep,
		Clock:    clk,
	})
	return e, rep, clk
}

// --- тесты ---

func TestEntryFlow(t *testing.T) {
	fb := newBroker()
	e, rep, _ := newEngine(fb, models.DirLong)

	out := e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.Equal(t, models.StateEntering, rep.last().State)

	// ровно один рыночный вход
	require.Len(t, fb.submitted, 1)
	assert.Equal(t, models.OrderMarket, fb.submitted[0].Kind)
	assert.Equal(t, models.OrderBuy, fb.submitted[0].Side)
	// cap: 10000*0.10/50000
	assert.InDelta(t, 0.02, fb.submitted[0].Qty, 1e-9)

	// вход исполнился, позиция появилась у брокера
	fb.fill("ord-1", 50000)
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.02, EntryPx: 50000}

	out = e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.Equal(t, models.StateInPosition, rep.last().State)

	// защитная пара: ровно один stop и один limit
	assert.Len(t, fb.openByKind(models.OrderStop), 1)
	assert.Len(t, fb.openByKind(models.OrderLimit), 1)
}

func TestRestartRecoveryIsIdempotent(t *testing.T) {
	fb := newBroker()
	// у брокера уже живёт позиция с прошлого запуска
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.5, EntryPx: 48000}

	e, rep, _ := newEngine(fb, models.DirLong)

	out := e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.Equal(t, models.StateInPosition, rep.last().State)
	require.NotNil(t, rep.last().Position)
	assert.InDelta(t, 0.5, rep.last().Position.Qty, 1e-9)

	// дублирующего входа нет, только перевыставленная защита
	assert.Equal(t, 0, fb.submittedByKind(models.OrderMarket))
	assert.Equal(t, 1, fb.submittedByKind(models.OrderStop))
	assert.Equal(t, 1, fb.submittedByKind(models.OrderLimit))

	// повторный тик ничего не дублирует
	e.Tick(context.Background())
	assert.Equal(t, 1, fb.submittedByKind(models.OrderStop))
	assert.Equal(t, 1, fb.submittedByKind(models.OrderLimit))
	assert.Len(t, fb.openByKind(models.OrderStop), 1)
	assert.Len(t, fb.openByKind(models.OrderLimit), 1)
}

func TestUnprotectedPositionRepaired(t *testing.T) {
	fb := newBroker()
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.5, EntryPx: 48000}
	// от прошлой жизни уцелел только SL
	fb.orders = append(fb.orders, &models.Order{
		ID: "old-stop", Symbol: "BTC/USD", Side: models.OrderSell,
		Kind: models.OrderStop, Qty: 0.5, StopPx: 47000, Status: models.OrderSubmitted,
	})

	e, _, _ := newEngine(fb, models.DirFlat)
	e.Tick(context.Background())

	// довыставлен только недостающий TP, SL не дублируется
	assert.Equal(t, 0, fb.submittedByKind(models.OrderStop))
	assert.Equal(t, 1, fb.submittedByKind(models.OrderLimit))
	assert.Len(t, fb.openByKind(models.OrderStop), 1)
	assert.Len(t, fb.openByKind(models.OrderLimit), 1)
}

func TestProtectiveFillClosesPosition(t *testing.T) {
	fb := newBroker()
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.5, EntryPx: 48000}

	e, rep, _ := newEngine(fb, models.DirFlat)
	e.Tick(context.Background()) // принял позицию, выставил защиту

	targets := fb.openByKind(models.OrderLimit)
	require.Len(t, targets, 1)
	stops := fb.openByKind(models.OrderStop)
	require.Len(t, stops, 1)

	// тейк исполнился, позиция у брокера исчезла
	fb.fill(targets[0].ID, 49440)
	fb.pos = nil

	out := e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.Equal(t, models.StateFlat, rep.last().State)
	assert.Nil(t, rep.last().Position)

	// сиблинг-стоп снят, PnL учтён
	assert.Empty(t, fb.openByKind(models.OrderStop))
	assert.InDelta(t, (49440-48000)*0.5, rep.last().RealizedToday, 1e-6)
}

func TestDailyLossHaltIgnoresSignals(t *testing.T) {
	fb := newBroker()
	e, rep, _ := newEngine(fb, models.DirLong)

	// добиваем дневной лимит до первого тика
	e.gov.RecordTrade(-600) // порог 10000*0.05=500

	out := e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	assert.Equal(t, models.StateHalted, rep.last().State)
	assert.Empty(t, fb.submitted)

	// сигнал LONG продолжает приходить — входов нет, статус публикуется,
	// причина останова из статуса не пропадает
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	assert.Empty(t, fb.submitted)
	assert.Len(t, rep.snaps, 2)
	assert.Contains(t, rep.last().LastError, "дневной лимит")

	// внешний сброс возвращает бота в строй и чистит причину
	e.Resume()
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.NotEmpty(t, fb.submitted)
	assert.Empty(t, rep.last().LastError)
}

func TestHaltStickyWithOpenPosition(t *testing.T) {
	fb := newBroker()
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.5, EntryPx: 48000}
	fb.acctErr = apierr.Fatal(nil, "invalid credentials")

	e, rep, _ := newEngine(fb, models.DirLong)

	out := e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	assert.Equal(t, models.StateHalted, rep.last().State)

	// ошибка ушла, но HALT снимает только оператор: сигналы LONG игнорируются,
	// позиция при этом сверяется и получает защиту
	fb.acctErr = nil
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	assert.Equal(t, models.StateHalted, rep.last().State)
	assert.Equal(t, 0, fb.submittedByKind(models.OrderMarket))
	assert.Len(t, fb.openByKind(models.OrderStop), 1)
	assert.Len(t, fb.openByKind(models.OrderLimit), 1)

	// следующий тик: HALT всё ещё на месте, защита не дублируется
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	assert.Equal(t, models.StateHalted, rep.last().State)
	assert.Equal(t, 1, fb.submittedByKind(models.OrderStop))
	assert.Equal(t, 1, fb.submittedByKind(models.OrderLimit))

	// причина останова видна в статусе всё это время
	assert.Contains(t, rep.last().LastError, "invalid credentials")

	// после Resume бот ведёт позицию дальше, без нового входа
	e.Resume()
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.Equal(t, models.StateInPosition, rep.last().State)
	assert.Equal(t, 0, fb.submittedByKind(models.OrderMarket))
}

func TestProtectiveFillWhileHaltedKeepsHalt(t *testing.T) {
	fb := newBroker()
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.5, EntryPx: 48000}

	e, rep, _ := newEngine(fb, models.DirFlat)
	e.Tick(context.Background()) // принял позицию, выставил защиту

	// фатальная ошибка счёта — HALT поверх открытой позиции
	fb.acctErr = apierr.Fatal(nil, "account blocked")
	out := e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	fb.acctErr = nil

	// пока бот стоял, тейк исполнился и позиция у брокера исчезла
	targets := fb.openByKind(models.OrderLimit)
	require.Len(t, targets, 1)
	fb.fill(targets[0].ID, 49440)
	fb.pos = nil

	// закрытие учтено, сиблинг снят, но HALT не снялся
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickHalt, out)
	assert.Equal(t, models.StateHalted, rep.last().State)
	assert.Nil(t, rep.last().Position)
	assert.Empty(t, fb.openByKind(models.OrderStop))
	assert.InDelta(t, (49440-48000)*0.5, rep.last().RealizedToday, 1e-6)
}

func TestFatalAccountErrorHalts(t *testing.T) {
	fb := newBroker()
	fb.acctErr = apierr.Fatal(nil, "invalid credentials")

	e, rep, _ := newEngine(fb, models.DirLong)
	out := e.Tick(context.Background())

	assert.Equal(t, models.TickHalt, out)
	assert.Equal(t, models.StateHalted, rep.last().State)
	assert.Contains(t, rep.last().LastError, "invalid credentials")
}

func TestTransientAccountErrorRetries(t *testing.T) {
	fb := newBroker()
	fb.acctErr = apierr.Transient(nil, "timeout")

	e, rep, _ := newEngine(fb, models.DirLong)
	out := e.Tick(context.Background())

	assert.Equal(t, models.TickRetry, out)
	assert.Equal(t, models.StateFlat, rep.last().State)
	assert.Empty(t, fb.submitted)

	// ошибка ушла — бот работает дальше
	fb.acctErr = nil
	out = e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
}

func TestMaxHoldForcesExit(t *testing.T) {
	fb := newBroker()
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosLong, Qty: 0.5, EntryPx: 48000}

	e, rep, clk := newEngine(fb, models.DirFlat)
	e.Tick(context.Background()) // принял и защитил

	// лимит удержания ещё не вышел
	clk.now = clk.now.Add(time.Hour)
	e.Tick(context.Background())
	assert.Equal(t, models.StateInPosition, rep.last().State)

	// вышел
	clk.now = clk.now.Add(4 * time.Hour)
	out := e.Tick(context.Background())
	assert.Equal(t, models.TickContinue, out)
	assert.Equal(t, models.StateFlat, rep.last().State)

	// защита снята, закрытие рыночным на продажу
	assert.Empty(t, fb.openByKind(models.OrderStop))
	assert.Empty(t, fb.openByKind(models.OrderLimit))
	last := fb.submitted[len(fb.submitted)-1]
	assert.Equal(t, models.OrderMarket, last.Kind)
	assert.Equal(t, models.OrderSell, last.Side)
}

func TestOrphanOrdersSweptWhenFlat(t *testing.T) {
	fb := newBroker()
	// ордера остались, позиции нет — классика после kill -9
	fb.orders = append(fb.orders,
		&models.Order{ID: "ghost-stop", Symbol: "BTC/USD", Side: models.OrderSell,
			Kind: models.OrderStop, Qty: 0.5, StopPx: 47000, Status: models.OrderSubmitted},
		&models.Order{ID: "ghost-tp", Symbol: "BTC/USD", Side: models.OrderSell,
			Kind: models.OrderLimit, Qty: 0.5, LimitPx: 52000, Status: models.OrderSubmitted},
	)

	e, rep, _ := newEngine(fb, models.DirFlat)
	e.Tick(context.Background())

	assert.Equal(t, models.StateFlat, rep.last().State)
	assert.Empty(t, fb.openByKind(models.OrderStop))
	assert.Empty(t, fb.openByKind(models.OrderLimit))
}

func TestShortEntryUsesSellAndBuyProtection(t *testing.T) {
	fb := newBroker()
	e, rep, _ := newEngine(fb, models.DirShort)

	e.Tick(context.Background())
	require.Len(t, fb.submitted, 1)
	assert.Equal(t, models.OrderSell, fb.submitted[0].Side)

	fb.fill("ord-1", 50000)
	fb.pos = &models.Position{Symbol: "BTC/USD", Side: models.PosShort, Qty: 0.02, EntryPx: 50000}

	e.Tick(context.Background())
	assert.Equal(t, models.StateInPosition, rep.last().State)

	stops := fb.openByKind(models.OrderStop)
	require.Len(t, stops, 1)
	assert.Equal(t, models.OrderBuy, stops[0].Side)
	// для шорта стоп выше входа
	assert.Greater(t, stops[0].StopPx, 50000.0)
}
