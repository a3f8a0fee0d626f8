package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"live_bots/internal/apierr"
	"live_bots/internal/models"
)

// SubmitOrder — единственная точка создания ордеров.
// Каждый сабмит логируется с id/символом на стороне вызывающего.
func (c *Client) SubmitOrder(ctx context.Context, spec models.OrderSpec) (models.Order, error) {
	if spec.Qty <= 0 {
		return models.Order{}, fmt.Errorf("SubmitOrder: qty <= 0")
	}

	body := orderRequest{
		Symbol:      spec.Symbol,
		Qty:         formatQty(spec.Qty),
		Side:        string(spec.Side),
		Type:        string(spec.Kind),
		TimeInForce: "gtc",
	}
	if spec.Kind == models.OrderLimit {
		body.LimitPrice = formatPx(spec.LimitPx)
	}
	if spec.Kind == models.OrderStop {
		body.StopPrice = formatPx(spec.StopPx)
	}

	if spec.Bracket {
		// bracket только для акций — у крипты брокер его не поддерживает
		if IsCrypto(spec.Symbol) {
			return models.Order{}, fmt.Errorf("SubmitOrder: bracket is not supported for crypto symbol %s", spec.Symbol)
		}
		body.OrderClass = "bracket"
		body.StopLoss = &bracketStopLoss{StopPrice: formatPx(spec.BrStopPx)}
		body.TakeProfit = &bracketTake{LimitPrice: formatPx(spec.BrTakePx)}
	}

	payload, err := sonic.Marshal(body)
	if err != nil {
		return models.Order{}, fmt.Errorf("SubmitOrder marshal: %w", err)
	}

	data, err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/v2/orders", payload)
	if err != nil {
		return models.Order{}, fmt.Errorf("SubmitOrder %s %s: %w", spec.Side, spec.Symbol, err)
	}

	var w wireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Order{}, fmt.Errorf("SubmitOrder decode: %w; body=%s", err, string(data))
	}
	return orderFromWire(w), nil
}

// GetOrder — текущее состояние ордера у брокера.
func (c *Client) GetOrder(ctx context.Context, id string) (models.Order, error) {
	data, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v2/orders/"+url.PathEscape(id), nil)
	if err != nil {
		return models.Order{}, fmt.Errorf("GetOrder %s: %w", id, err)
	}

	var w wireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Order{}, fmt.Errorf("GetOrder decode: %w; body=%s", err, string(data))
	}
	return orderFromWire(w), nil
}

// ListOpenOrders — открытые ордера по символу.
func (c *Client) ListOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("symbols", symbol)

	data, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v2/orders?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("ListOpenOrders %s: %w", symbol, err)
	}

	var ws []wireOrder
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("ListOpenOrders decode: %w; body=%s", err, string(data))
	}

	orders := make([]models.Order, 0, len(ws))
	for _, w := range ws {
		orders = append(orders, orderFromWire(w))
	}
	return orders, nil
}

// CancelOrder. Отмена уже терминального ордера (filled/canceled) не ошибка.
func (c *Client) CancelOrder(ctx context.Context, id string) error {
	_, err := c.doJSON(ctx, http.MethodDelete, c.baseURL+"/v2/orders/"+url.PathEscape(id), nil)
	if err != nil {
		if apierr.CodeOf(err) == apierr.CodeNotFound {
			return nil
		}
		return fmt.Errorf("CancelOrder %s: %w", id, err)
	}
	return nil
}

func orderFromWire(w wireOrder) models.Order {
	qty, _ := strconv.ParseFloat(w.Qty, 64)
	limitPx, _ := strconv.ParseFloat(w.LimitPrice, 64)
	stopPx, _ := strconv.ParseFloat(w.StopPrice, 64)
	filledQty, _ := strconv.ParseFloat(w.FilledQty, 64)
	filledPx, _ := strconv.ParseFloat(w.FilledAvgPrice, 64)

	return models.Order{
		ID:        w.ID,
		Symbol:    w.Symbol,
		Side:      models.OrderSide(w.Side),
		Kind:      models.OrderKind(w.Type),
		Qty:       qty,
		LimitPx:   limitPx,
		StopPx:    stopPx,
		Status:    mapStatus(w.Status),
		FilledQty: filledQty,
		FilledPx:  filledPx,
	}
}

// mapStatus — статусы Alpaca шире нашей модели, сводим к шести.
func mapStatus(s string) models.OrderStatus {
	switch strings.ToLower(s) {
	case "new", "accepted", "pending_new", "accepted_for_bidding":
		return models.OrderSubmitted
	case "partially_filled":
		return models.OrderPartiallyFilled
	case "filled":
		return models.OrderFilled
	case "canceled", "expired", "replaced", "done_for_day", "pending_cancel":
		return models.OrderCanceled
	case "rejected", "stopped", "suspended":
		return models.OrderRejected
	default:
		return models.OrderNew
	}
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func formatPx(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64)
}
