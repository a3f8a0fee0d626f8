package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"live_bots/internal/backoff"
	"live_bots/internal/modules/config"
	healthsvc "live_bots/internal/modules/health/service"
	"live_bots/pkg/logger"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

// Client — стрим сделок Alpaca по крипто-символам ботов.
// Держит кеш последней цены; движку этого достаточно для unrealized PnL
// в статусе, торговые решения на стриме не строятся.
type Client struct {
	url       string
	apiKey    string
	apiSecret string
	dialer    *websocket.Dialer
	health    *healthsvc.State

	mu      sync.RWMutex
	last    map[string]float64
	symbols []string
}

func NewClient(cfg *config.Config, health *healthsvc.State) *Client {
	var symbols []string
	seen := map[string]bool{}
	for _, b := range cfg.Bots {
		// у стрима маркет-даты v1beta3 только крипта
		if !seen[b.Symbol] && isCrypto(b.Symbol) {
			seen[b.Symbol] = true
			symbols = append(symbols, b.Symbol)
		}
	}

	return &Client{
		url:       cfg.Alpaca.StreamURL,
		apiKey:    cfg.Alpaca.KeyID,
		apiSecret: cfg.Alpaca.SecretKey,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		health:    health,
		last:      make(map[string]float64),
		symbols:   symbols,
	}
}

func isCrypto(symbol string) bool {
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '/' {
			return true
		}
	}
	return false
}

// LastPrice — последняя цена сделки из стрима.
func (c *Client) LastPrice(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	px, ok := c.last[symbol]
	return px, ok
}

// Run — вечный reconnect-цикл до отмены контекста.
func (c *Client) Run(ctx context.Context) {
	if len(c.symbols) == 0 {
		logger.Info("[STREAM] крипто-символов нет, стрим не запускаем")
		return
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.connectAndRead(ctx)
		if c.health != nil {
			c.health.SetWSConnected(false)
		}
		if ctx.Err() != nil {
			return
		}

		delay := backoff.Delay(attempt)
		attempt++
		logger.Error("[STREAM] соединение потеряно: %v, реконнект через %s", err, delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

type wireMsg struct {
	T     string  `json:"T"` // "success" | "error" | "subscription" | "t"
	S     string  `json:"S"` // символ
	Price float64 `json:"p"`
	Msg   string  `json:"msg"`
	Code  int     `json:"code"`
}

func (c *Client) connectAndRead(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()

	if err := c.handshake(conn); err != nil {
		return err
	}

	logger.Info("[STREAM] подключен, символов: %d", len(c.symbols))
	if c.health != nil {
		c.health.SetWSConnected(true)
	}

	// keepalive: пингуем сами, дедлайн двигаем на любом трафике
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var msgs []wireMsg
		if err := json.Unmarshal(data, &msgs); err != nil {
			continue
		}
		for _, m := range msgs {
			switch m.T {
			case "t":
				if m.S != "" && m.Price > 0 {
					c.mu.Lock()
					c.last[m.S] = m.Price
					c.mu.Unlock()
				}
			case "error":
				return fmt.Errorf("stream error %d: %s", m.Code, m.Msg)
			}
		}
	}
}

// handshake: auth + подписка на сделки.
func (c *Client) handshake(conn *websocket.Conn) error {
	auth, err := sonic.Marshal(map[string]string{
		"action": "auth",
		"key":    c.apiKey,
		"secret": c.apiSecret,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, auth); err != nil {
		return fmt.Errorf("auth write: %w", err)
	}

	sub, err := sonic.Marshal(map[string]any{
		"action": "subscribe",
		"trades": c.symbols,
	})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe write: %w", err)
	}
	return nil
}
