package models

// RiskLimits — иммутабельные лимиты риска на один запуск.
// Все значения — доли (0.02 = 2%).
type RiskLimits struct {
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
}
