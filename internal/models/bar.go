package models

import "time"

// Bar — закрытая свеча OHLCV с маркет-даты брокера.
type Bar struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Account — срез по счёту.
type Account struct {
	Equity float64
	Cash   float64
}
