package telegram

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle enforces Telegram's flood limits across every caller: a global
// message rate plus a per-chat rate that is stricter for groups.
type Throttle struct {
	global *rate.Limiter

	mu              sync.Mutex
	chats           map[int64]*rate.Limiter
	privateInterval time.Duration
	groupInterval   time.Duration
}

// NewThrottle creates a throttle allowing globalPerSecond messages overall,
// one message per privateInterval to a private chat and groupPerMinute
// messages per minute to a group chat (negative chat id).
func NewThrottle(globalPerSecond float64, privateInterval time.Duration, groupPerMinute int) *Throttle {
	burst := int(math.Ceil(globalPerSecond))
	if burst < 1 {
		burst = 1
	}
	if groupPerMinute < 1 {
		groupPerMinute = 1
	}
	return &Throttle{
		global:          rate.NewLimiter(rate.Limit(globalPerSecond), burst),
		chats:           make(map[int64]*rate.Limiter),
		privateInterval: privateInterval,
		groupInterval:   time.Minute / time.Duration(groupPerMinute),
	}
}

// Wait blocks until a message to chatID may be sent or ctx is done.
func (t *Throttle) Wait(ctx context.Context, chatID int64) error {
	if err := t.chatLimiter(chatID).Wait(ctx); err != nil {
		return err
	}
	return t.global.Wait(ctx)
}

func (t *Throttle) chatLimiter(chatID int64) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if l, ok := t.chats[chatID]; ok {
		return l
	}
	interval := t.privateInterval
	if chatID < 0 {
		interval = t.groupInterval
	}
	l := rate.NewLimiter(rate.Every(interval), 1)
	t.chats[chatID] = l
	return l
}
