package service

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"live_bots/internal/apierr"
	"live_bots/internal/backoff"
	"live_bots/internal/modules/config"
)

// Client — REST-клиент трейдинг- и маркет-дата-API Alpaca.
// Все вызовы синхронные, с таймаутом и ретраями transient-ошибок внутри.
type Client struct {
	http *http.Client

	baseURL string // trading API (paper/live)
	dataURL string // market data API

	apiKey    string
	apiSecret string

	retries int
}

func NewClient(cfg *config.Config) *Client {
	retries := cfg.BrokerRetries
	if retries <= 0 {
		retries = 3
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(cfg.Alpaca.BaseURL, "/"),
		dataURL:   strings.TrimRight(cfg.Alpaca.DataURL, "/"),
		apiKey:    cfg.Alpaca.KeyID,
		apiSecret: cfg.Alpaca.SecretKey,
		retries:   retries,
	}
}

// IsCrypto — крипто-символы у Alpaca со слешем: "BTC/USD".
// Для них bracket-ордера не поддерживаются, SL/TP ставим двумя ордерами.
func IsCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

// doJSON выполняет запрос с авторизацией и ретраями, отдаёт тело ответа.
// wantStatus — ожидаемые 2xx; остальное классифицируется в apierr.
func (c *Client) doJSON(
	ctx context.Context,
	method string,
	url string,
	payload []byte,
) ([]byte, error) {

	var out []byte
	err := backoff.Retry(ctx, c.retries, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return errors.Wrap(err, "new request")
		}
		req.Header.Set("APCA-API-KEY-ID", c.apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// сетевые ошибки/таймауты — ретраим
			return apierr.Transient(err, "%s %s", method, url)
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode/100 == 2 {
			out = data
			return nil
		}

		return c.classify(resp.StatusCode, data, method, url)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// classify — маппинг HTTP-ответа брокера в таксономию ошибок.
func (c *Client) classify(status int, body []byte, method, url string) error {
	msg := strings.TrimSpace(string(body))

	switch {
	case status == http.StatusUnauthorized:
		// кривые креды — ретраить бесполезно, бот должен встать
		return apierr.Fatal(errors.Errorf("http 401: %s", msg), "invalid credentials")

	case status == http.StatusForbidden:
		if strings.Contains(msg, "insufficient") || strings.Contains(msg, "40310000") {
			return apierr.Business(apierr.CodeInsufficientFunds, "insufficient buying power: %s", msg)
		}
		return apierr.Fatal(errors.Errorf("http 403: %s", msg), "account forbidden")

	case status == http.StatusNotFound:
		// "position does not exist" и прочие честные 404 — не повод для ретрая
		return apierr.Business(apierr.CodeNotFound, "not found: %s", msg)

	case status == http.StatusUnprocessableEntity:
		if strings.Contains(msg, "halted") || strings.Contains(msg, "not active") {
			return apierr.Business(apierr.CodeSymbolHalted, "symbol halted: %s", msg)
		}
		return apierr.Business("", "order rejected by broker: %s", msg)

	case status == http.StatusTooManyRequests || status/100 == 5:
		return apierr.Transient(errors.Errorf("http %d: %s", status, msg), "%s %s", method, url)

	default:
		return apierr.Transient(errors.Errorf("http %d: %s", status, msg), "%s %s", method, url)
	}
}
