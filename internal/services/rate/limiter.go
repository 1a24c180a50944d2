package rate

import (
	"context"
	"fmt"
	"time"
)

const loginWindow = time.Minute

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Limiter bounds login attempts per client address with a fixed redis window.
type Limiter struct {
	store     WindowStore
	perMinute int
}

func NewLimiter(store WindowStore, perMinute int) *Limiter {
	if perMinute < 0 {
		perMinute = 0
	}

	return &Limiter{
		store:     store,
		perMinute: perMinute,
	}
}

// AllowLogin returns whether another attempt is allowed and, when it is not,
// how many seconds the caller should wait. A nil store disables limiting.
func (l *Limiter) AllowLogin(ctx context.Context, clientAddr string) (int64, bool, error) {
	if l == nil || l.store == nil || l.perMinute <= 0 {
		return 0, true, nil
	}
	if clientAddr == "" {
		return 0, false, fmt.Errorf("client address is required")
	}

	count, ttl, err := l.store.IncrementWindow(ctx, loginKey(clientAddr), loginWindow)
	if err != nil {
		return 0, false, err
	}
	if count > int64(l.perMinute) {
		return ceilSeconds(ttl), false, nil
	}

	return 0, true, nil
}

func loginKey(clientAddr string) string {
	return "rate:login:min:" + clientAddr
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}
