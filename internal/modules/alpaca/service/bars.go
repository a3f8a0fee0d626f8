package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"live_bots/internal/models"
)

// GetBars — история закрытых свечей, от старых к новым.
// Крипта и акции живут на разных эндпоинтах маркет-даты.
func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, limit int) ([]models.Bar, error) {
	if limit <= 0 {
		limit = 200
	}

	var reqURL string
	if IsCrypto(symbol) {
		q := url.Values{}
		q.Set("symbols", symbol)
		q.Set("timeframe", timeframe)
		q.Set("limit", fmt.Sprintf("%d", limit))
		reqURL = c.dataURL + "/v1beta3/crypto/us/bars?" + q.Encode()
	} else {
		q := url.Values{}
		q.Set("timeframe", timeframe)
		q.Set("limit", fmt.Sprintf("%d", limit))
		reqURL = c.dataURL + "/v2/stocks/" + url.PathEscape(symbol) + "/bars?" + q.Encode()
	}

	data, err := c.doJSON(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	var raw []wireBar
	if IsCrypto(symbol) {
		var r struct {
			Bars map[string][]wireBar `json:"bars"`
		}
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("GetBars decode: %w; body=%s", err, string(data))
		}
		raw = r.Bars[symbol]
	} else {
		var r struct {
			Bars []wireBar `json:"bars"`
		}
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("GetBars decode: %w; body=%s", err, string(data))
		}
		raw = r.Bars
	}

	bars := make([]models.Bar, 0, len(raw))
	for _, b := range raw {
		ts, err := time.Parse(time.RFC3339, b.T)
		if err != nil {
			continue
		}
		bars = append(bars, models.Bar{
			Start:  ts,
			Open:   b.O,
			High:   b.H,
			Low:    b.L,
			Close:  b.C,
			Volume: b.V,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })
	return bars, nil
}
