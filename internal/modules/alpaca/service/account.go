package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"live_bots/internal/apierr"
	"live_bots/internal/models"
)

func (c *Client) GetAccount(ctx context.Context) (models.Account, error) {
	data, err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/v2/account", nil)
	if err != nil {
		return models.Account{}, fmt.Errorf("GetAccount: %w", err)
	}

	var w wireAccount
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Account{}, fmt.Errorf("GetAccount decode: %w; body=%s", err, string(data))
	}

	// заблокированный счёт — fatal, торговать нельзя
	if w.Status != "" && w.Status != "ACTIVE" {
		return models.Account{}, apierr.Fatal(nil, "account status=%s", w.Status)
	}

	equity, _ := strconv.ParseFloat(w.Equity, 64)
	cash, _ := strconv.ParseFloat(w.Cash, 64)
	if equity <= 0 {
		return models.Account{}, fmt.Errorf("GetAccount: equity <= 0 (%q)", w.Equity)
	}

	return models.Account{Equity: equity, Cash: cash}, nil
}
