package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"live_bots/internal/engine"
	"live_bots/internal/models"
	"live_bots/internal/modules/config"
	healthsvc "live_bots/internal/modules/health/service"
	"live_bots/internal/orders"
	"live_bots/internal/risk"
	"live_bots/internal/strategy"
	"live_bots/pkg/logger"
)

// Manager поднимает по движку на каждого бота из конфига и владеет их
// жизненным циклом. Раньше каждый бот был отдельным процессом со своим
// кроном — теперь один бинарь и общий graceful shutdown.
type Manager struct {
	cfg      *config.Config
	broker   engine.Broker
	reporter engine.StatusReporter
	prices   engine.PriceSource
	health   *healthsvc.State

	notifier engine.Notifier

	mu      sync.Mutex
	engines []*engine.Engine
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(
	cfg *config.Config,
	broker engine.Broker,
	reporter engine.StatusReporter,
	prices engine.PriceSource,
	health *healthsvc.State,
) *Manager {
	return &Manager{
		cfg:      cfg,
		broker:   broker,
		reporter: reporter,
		prices:   prices,
		health:   health,
	}
}

// SetNotifier вызывается телеграм-модулем до старта движков.
func (m *Manager) SetNotifier(n engine.Notifier) {
	m.mu.Lock()
	m.notifier = n
	m.mu.Unlock()
}

// Start — создать и запустить все движки.
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for _, bot := range m.cfg.Bots {
		ev, err := strategy.New(bot.Strategy)
		if err != nil {
			cancel()
			return fmt.Errorf("bot %s: %w", bot.ID, err)
		}

		botID := bot.ID
		eng := engine.New(engine.Config{
			BotID:         bot.ID,
			Symbol:        bot.Symbol,
			Timeframe:     bot.Timeframe,
			BarLimit:      bot.BarLimit,
			TickInterval:  bot.Tick(),
			StopLossPct:   bot.StopLossPct,
			TakeProfitPct: bot.TakeProfitPct,
			MaxHold:       bot.Hold(),
		}, engine.Deps{
			Broker:   m.broker,
			Orders:   orders.NewManager(bot.ID, m.broker),
			Governor: risk.New(m.cfg.LimitsFor(bot)),
			Strategy: ev,
			Reporter: m.reporter,
			Notifier: m.notifier,
			Prices:   m.prices,
			OnTick: func(models.TickOutcome) {
				m.health.TouchTick(botID, time.Now())
			},
		})
		m.engines = append(m.engines, eng)

		m.wg.Add(1)
		go func(e *engine.Engine) {
			defer m.wg.Done()
			e.Run(runCtx)
		}(eng)
	}

	m.wg.Add(1)
	go m.dailyReset(runCtx)

	m.health.SetReady(true)
	logger.Info("[RUNNER] запущено ботов: %d", len(m.engines))
	if m.notifier != nil {
		m.notifier.Sendf("🤖 Ферма запущена, ботов: %d", len(m.engines))
	}
	return nil
}

// Stop — мягкая остановка: движки дорабатывают тик, защита остаётся у брокера.
func (m *Manager) Stop() {
	m.health.SetReady(false)
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	logger.Info("[RUNNER] все боты остановлены")
}

// dailyReset обнуляет дневной PnL каждую полночь UTC.
func (m *Manager) dailyReset(ctx context.Context) {
	defer m.wg.Done()

	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			logger.Info("[RUNNER] новый торговый день, дневной PnL обнулён")
			m.mu.Lock()
			for _, e := range m.engines {
				e.ResetDaily()
			}
			m.mu.Unlock()
		}
	}
}

// StatusAll — снапшоты всех ботов для /status.
func (m *Manager) StatusAll() []models.StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.StatusSnapshot, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e.Status())
	}
	return out
}

// ResumeAll — операторский сброс: дневной PnL и выход из HALT.
func (m *Manager) ResumeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.engines {
		e.Resume()
	}
}
