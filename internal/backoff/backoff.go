package backoff

import (
	"context"
	"time"

	"live_bots/internal/apierr"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
)

// Delay — экспоненциальная задержка baseDelay * 2^attempt с потолком maxDelay.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		return baseDelay
	}
	// 2^30 секунд уже сильно больше любого потолка
	if attempt > 30 {
		return maxDelay
	}

	d := baseDelay * time.Duration(1<<attempt)
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Retry гоняет fn до attempts раз. Повторяем только transient-ошибки,
// business/fatal отдаём наверх сразу — их ретраить бессмысленно.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		last = fn()
		if last == nil {
			return nil
		}
		if !apierr.IsTransient(last) {
			return last
		}
		if i == attempts-1 {
			break
		}

		t := time.NewTimer(Delay(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return last
}
