package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live_bots/internal/models"
)

// fakeBroker — брокер в памяти для тестов менеджера.
type fakeBroker struct {
	seq    int
	orders map[string]*models.Order

	submitErr map[models.OrderKind]error // форсировать ошибку по типу ордера
	canceled  []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		orders:    make(map[string]*models.Order),
		submitErr: make(map[models.OrderKind]error),
	}
}

func (f *fakeBroker) SubmitOrder(_ context.Context, spec models.OrderSpec) (models.Order, error) {
	if err := f.submitErr[spec.Kind]; err != nil {
		return models.Order{}, err
	}
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
	f.orders[o.ID] = &o
	return o, nil
}

func (f *fakeBroker) GetOrder(_ context.Context, id string) (models.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return models.Order{}, fmt.Errorf("order %s not found", id)
	}
	return *o, nil
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
	o, ok := f.orders[id]
	if !ok {
		return nil
	}
	if !o.Status.Terminal() {
		o.Status = models.OrderCanceled
	}
	f.canceled = append(f.canceled, id)
	return nil
}

// fill — исполнить ордер в фейке.
func (f *fakeBroker) fill(id string, px float64) {
	o := f.orders[id]
	o.Status = models.OrderFilled
	o.FilledQty = o.Qty
	o.FilledPx = px
}

func position(stopID, targetID string) *models.Position {
	return &models.Position{
		Symbol:        "BTC/USD",
		Side:          models.PosLong,
		Qty:           0.5,
		EntryPx:       50000,
		EntryTime:     time.Now(),
		StopOrderID:   stopID,
		TargetOrderID: targetID,
	}
}

func TestSubmitProtectivePair(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	stop, target, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStop, stop.Kind)
	assert.Equal(t, models.OrderSell, stop.Side)
	assert.InDelta(t, 49000.0, stop.StopPx, 1e-9)

	assert.Equal(t, models.OrderLimit, target.Kind)
	assert.Equal(t, models.OrderSell, target.Side)
	assert.InDelta(t, 52000.0, target.LimitPx, 1e-9)

	open, _ := fb.ListOpenOrders(context.Background(), "BTC/USD")
	assert.Len(t, open, 2)
}

func TestSubmitProtectiveRollsBackStopWhenTargetFails(t *testing.T) {
	fb := newFakeBroker()
	fb.submitErr[models.OrderLimit] = fmt.Errorf("rate limited")
	m := NewManager("test-bot", fb)
	pos := position("", "")

	_, _, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.Error(t, err)

	// SL не должен остаться висеть в одиночку
	open, _ := fb.ListOpenOrders(context.Background(), "BTC/USD")
	assert.Empty(t, open)
}

func TestReconcileTargetFilledCancelsStop(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	stop, target, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)
	pos.StopOrderID = stop.ID
	pos.TargetOrderID = target.ID

	// тейк исполнился по $52k
	fb.fill(target.ID, 52000)

	res, err := m.Reconcile(context.Background(), pos)
	require.NoError(t, err)

	assert.Equal(t, Closed, res.Status)
	assert.Equal(t, "target", res.ExitReason)
	assert.InDelta(t, 52000.0, res.ExitPx, 1e-9)

	// сиблинг отменён в пределах того же вызова
	got, _ := fb.GetOrder(context.Background(), stop.ID)
	assert.Equal(t, models.OrderCanceled, got.Status)
}

func TestReconcileStopFilledCancelsTarget(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	stop, target, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)
	pos.StopOrderID = stop.ID
	pos.TargetOrderID = target.ID

	fb.fill(stop.ID, 48990)

	res, err := m.Reconcile(context.Background(), pos)
	require.NoError(t, err)

	assert.Equal(t, Closed, res.Status)
	assert.Equal(t, "stop", res.ExitReason)
	assert.InDelta(t, 48990.0, res.ExitPx, 1e-9)

	got, _ := fb.GetOrder(context.Background(), target.ID)
	assert.Equal(t, models.OrderCanceled, got.Status)
}

func TestReconcileBothOpen(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	stop, target, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)
	pos.StopOrderID = stop.ID
	pos.TargetOrderID = target.ID

	res, err := m.Reconcile(context.Background(), pos)
	require.NoError(t, err)

	assert.Equal(t, StillOpen, res.Status)
	assert.True(t, res.StopOpen)
	assert.True(t, res.TargetOpen)
	assert.Empty(t, fb.canceled)
}

func TestReconcileOrphaned(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	stop, target, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)
	pos.StopOrderID = stop.ID
	pos.TargetOrderID = target.ID

	// кто-то снаружи снял оба защитных
	require.NoError(t, fb.CancelOrder(context.Background(), stop.ID))
	require.NoError(t, fb.CancelOrder(context.Background(), target.ID))

	res, err := m.Reconcile(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, Orphaned, res.Status)
}

func TestReconcileWhipsawPrefersStop(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	stop, target, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)
	pos.StopOrderID = stop.ID
	pos.TargetOrderID = target.ID

	// за один интервал цена задела и стоп и тейк
	fb.fill(stop.ID, 48990)
	fb.fill(target.ID, 52000)

	res, err := m.Reconcile(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, Closed, res.Status)
	assert.Equal(t, "stop", res.ExitReason)
}

func TestCancelAllSweepsOpenOrders(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)
	pos := position("", "")

	_, _, err := m.SubmitProtective(context.Background(), pos, 49000, 52000)
	require.NoError(t, err)

	require.NoError(t, m.CancelAll(context.Background(), "BTC/USD"))

	open, _ := fb.ListOpenOrders(context.Background(), "BTC/USD")
	assert.Empty(t, open)
}

func TestCloseMarketUsesClosingSide(t *testing.T) {
	fb := newFakeBroker()
	m := NewManager("test-bot", fb)

	short := position("", "")
	short.Side = models.PosShort

	o, err := m.CloseMarket(context.Background(), short)
	require.NoError(t, err)
	assert.Equal(t, models.OrderBuy, o.Side)
	assert.Equal(t, models.OrderMarket, o.Kind)
	assert.InDelta(t, 0.5, o.Qty, 1e-9)
}
