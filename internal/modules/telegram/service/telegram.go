package service

import (
	"fmt"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"live_bots/internal/models"
	"live_bots/internal/modules/config"
	"live_bots/internal/runner"
	"live_bots/pkg/logger"
)

// Telegram — уведомления о сделках + две операторские команды:
// /status — снапшоты всех ботов, /reset — дневной PnL и снятие HALT.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
	mgr    *runner.Manager
}

func NewTelegram(cfg *config.Config, mgr *runner.Manager) (*Telegram, error) {
	if cfg.Telegram.Token == "" {
		logger.Info("[TG] токен не задан, уведомления выключены")
		return &Telegram{mgr: mgr}, nil
	}

	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: cfg.Telegram.ChatID, mgr: mgr}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		logger.Error("[TG] отправка: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...interface{}) {
	t.Send(fmt.Sprintf(format, args...))
}

// Start — цикл обработки команд. Без токена — no-op.
func (t *Telegram) Start() {
	if t.bot == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}
			// чужие чаты игнорируем
			if t.chatID != 0 && update.Message.Chat.ID != t.chatID {
				continue
			}

			switch update.Message.Command() {
			case "status":
				t.Send(t.renderStatus())
			case "reset":
				t.mgr.ResumeAll()
				t.Send("▶️ Сброс выполнен: дневной PnL обнулён, HALT снят.")
			case "help", "start":
				t.Send("Команды:\n/status — состояние ботов\n/reset — сброс дневного лимита и HALT")
			}
		}
	}()
}

func (t *Telegram) Stop() {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
}

func (t *Telegram) renderStatus() string {
	snaps := t.mgr.StatusAll()
	if len(snaps) == 0 {
		return "Ботов нет."
	}

	var sb strings.Builder
	for _, s := range snaps {
		sb.WriteString(fmt.Sprintf("%s %s — %s\n", stateEmoji(s.State), s.BotID, s.State))
		sb.WriteString(fmt.Sprintf("   equity %.2f, за день %.2f\n", s.Equity, s.RealizedToday))
		if s.Position != nil {
			p := s.Position
			sb.WriteString(fmt.Sprintf("   %s %s qty=%.8f @ %.2f", p.Side, p.Symbol, p.Qty, p.EntryPx))
			if p.LastPx > 0 {
				sb.WriteString(fmt.Sprintf(" (сейчас %.2f, uPnL %.2f)", p.LastPx, p.UnrealizedPL))
			}
			sb.WriteString("\n")
		}
		if s.LastError != "" {
			sb.WriteString(fmt.Sprintf("   ⚠️ %s\n", s.LastError))
		}
	}
	return sb.String()
}

func stateEmoji(s models.BotState) string {
	switch s {
	case models.StateInPosition:
		return "📌"
	case models.StateEntering, models.StateExiting:
		return "⏳"
	case models.StateHalted:
		return "🛑"
	default:
		return "💤"
	}
}
