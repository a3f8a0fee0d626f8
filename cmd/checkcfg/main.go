package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"live_bots/internal/models"
	"live_bots/internal/risk"
)

// Операторская проверка конфига перед выкаткой: валидность yaml,
// список ботов и прикидка размера позиции при заданном депозите.
func main() {
	var (
		path   = flag.String("config", "configs/values_local.yaml", "путь к конфигу")
		equity = flag.Float64("equity", 10000, "депозит для прикидки сайзинга")
		price  = flag.Float64("price", 50000, "цена инструмента для прикидки")
	)
	flag.Parse()

	v := viper.New()
	v.SetConfigFile(*path)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "конфиг не читается: %v\n", err)
		os.Exit(1)
	}

	limits := models.RiskLimits{
		RiskPerTradePct: v.GetFloat64("risk.risk_per_trade_pct"),
		MaxPositionPct:  v.GetFloat64("risk.max_position_pct"),
		MaxDailyLossPct: v.GetFloat64("risk.max_daily_loss_pct"),
	}
	if limits.RiskPerTradePct <= 0 {
		limits.RiskPerTradePct = 0.02
	}
	if limits.MaxPositionPct <= 0 {
		limits.MaxPositionPct = 0.10
	}
	if limits.MaxDailyLossPct <= 0 {
		limits.MaxDailyLossPct = 0.05
	}

	var bots []struct {
		ID            string  `mapstructure:"id"`
		Symbol        string  `mapstructure:"symbol"`
		Strategy      string  `mapstructure:"strategy"`
		StopLossPct   float64 `mapstructure:"stop_loss_pct"`
		TakeProfitPct float64 `mapstructure:"take_profit_pct"`
	}
	if err := v.UnmarshalKey("bots", &bots); err != nil {
		fmt.Fprintf(os.Stderr, "секция bots не парсится: %v\n", err)
		os.Exit(1)
	}
	if len(bots) == 0 {
		fmt.Fprintln(os.Stderr, "секция bots пуста")
		os.Exit(1)
	}

	fmt.Printf("Конфиг: %s\n", *path)
	fmt.Printf("Риск: %.1f%% на сделку, потолок позиции %.1f%%, дневной стоп %.1f%%\n",
		limits.RiskPerTradePct*100, limits.MaxPositionPct*100, limits.MaxDailyLossPct*100)
	fmt.Printf("Прикидка: депозит %.2f, цена %.2f\n\n", *equity, *price)

	gov := risk.New(limits)
	fmt.Printf("%-18s %-10s %-9s %7s %7s %12s\n", "BOT", "SYMBOL", "STRATEGY", "SL%", "TP%", "QTY")
	for _, b := range bots {
		sl := b.StopLossPct
		if sl <= 0 {
			sl = 0.01
		}
		tp := b.TakeProfitPct
		if tp <= 0 {
			tp = 0.015
		}

		qty, err := gov.Size(*equity, *price, *price*(1-sl))
		if err != nil {
			fmt.Printf("%-18s %-10s %-9s %7.2f %7.2f %12s\n",
				b.ID, b.Symbol, b.Strategy, sl*100, tp*100, "ERR: "+err.Error())
			continue
		}
		fmt.Printf("%-18s %-10s %-9s %7.2f %7.2f %12.6f\n",
			b.ID, b.Symbol, b.Strategy, sl*100, tp*100, qty)
	}
}
