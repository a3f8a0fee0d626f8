package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"live_bots/internal/apierr"
	"live_bots/internal/models"
)

// GetOpenPosition — открытая позиция по символу либо nil, если её нет.
// У trading-API символ в пути без слеша ("BTCUSD").
func (c *Client) GetOpenPosition(ctx context.Context, symbol string) (*models.Position, error) {
	pathSym := strings.ReplaceAll(symbol, "/", "")

	data, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v2/positions/"+url.PathEscape(pathSym), nil)
	if err != nil {
		// 404 "position does not exist" — это не ошибка, а ответ "flat"
		if apierr.CodeOf(err) == apierr.CodeNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("GetOpenPosition %s: %w", symbol, err)
	}

	var w wirePosition
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("GetOpenPosition decode: %w; body=%s", err, string(data))
	}

	return positionFromWire(symbol, w)
}

func positionFromWire(symbol string, w wirePosition) (*models.Position, error) {
	qty, err := strconv.ParseFloat(w.Qty, 64)
	if err != nil {
		return nil, fmt.Errorf("position qty parse: %q", w.Qty)
	}
	entry, _ := strconv.ParseFloat(w.AvgEntryPrice, 64)

	side := models.PosLong
	if w.Side == "short" || qty < 0 {
		side = models.PosShort
	}
	if qty < 0 {
		qty = -qty
	}
	if qty == 0 {
		return nil, nil
	}

	return &models.Position{
		Symbol:  symbol,
		Side:    side,
		Qty:     qty,
		EntryPx: entry,
	}, nil
}
