package service

// Обёртки над wire-форматом Alpaca. Числа в trading-API приходят строками.

type wireAccount struct {
	Status string `json:"status"`
	Equity string `json:"equity"`
	Cash   string `json:"cash"`
}

type wireBar struct {
	T string  `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

type wirePosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"` // "long"/"short"
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
	UnrealizedPL  string `json:"unrealized_pl"`
}

type wireOrder struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Qty            string `json:"qty"`
	LimitPrice     string `json:"limit_price"`
	StopPrice      string `json:"stop_price"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	CreatedAt      string `json:"created_at"`
}

// orderRequest — тело POST /v2/orders.
type orderRequest struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	LimitPrice  string `json:"limit_price,omitempty"`
	StopPrice   string `json:"stop_price,omitempty"`

	OrderClass string           `json:"order_class,omitempty"` // "bracket" только для акций
	StopLoss   *bracketStopLoss `json:"stop_loss,omitempty"`
	TakeProfit *bracketTake     `json:"take_profit,omitempty"`
}

type bracketStopLoss struct {
	StopPrice string `json:"stop_price"`
}

type bracketTake struct {
	LimitPrice string `json:"limit_price"`
}
