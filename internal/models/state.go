package models

// BotState — состояние машины исполнения одного бота.
type BotState string

const (
	StateFlat       BotState = "FLAT"
	StateEntering   BotState = "ENTERING"
	StateInPosition BotState = "IN_POSITION"
	StateExiting    BotState = "EXITING"
	StateHalted     BotState = "HALTED"
)

// TickOutcome — явный результат тика вместо исключений/паник
// на ожидаемых восстановимых ситуациях.
type TickOutcome int

const (
	TickContinue TickOutcome = iota // штатно, ждём следующий тик
	TickRetry                       // тик пропущен из-за transient-ошибки
	TickHalt                        // бот остановлен, новые входы запрещены
)

func (t TickOutcome) String() string {
	switch t {
	case TickContinue:
		return "continue"
	case TickRetry:
		return "retry"
	case TickHalt:
		return "halt"
	default:
		return "unknown"
	}
}
