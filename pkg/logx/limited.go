package logx

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Limited throttles a Logger with a token bucket.
//
// Messages over budget are counted instead of written; the next message that
// gets through carries the count as "suppressed". Safe for concurrent use.
type Limited struct {
	log Logger

	mu  sync.Mutex
	lim *rate.Limiter

	suppressed atomic.Uint64
}

// NewLimited allows perSec messages per second with bursts of burst.
// perSec <= 0 disables throttling.
func NewLimited(log Logger, perSec float64, burst int) *Limited {
	l := &Limited{log: log}
	l.SetRate(perSec, burst)
	return l
}

// SetRate swaps the budget (hot reload).
func (l *Limited) SetRate(perSec float64, burst int) {
	if burst <= 0 {
		burst = 1
	}
	var lim *rate.Limiter
	if perSec > 0 {
		lim = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	l.mu.Lock()
	l.lim = lim
	l.mu.Unlock()
}

func (l *Limited) Logger() Logger { return l.log }

// Suppressed returns how many messages are waiting to be reported as dropped.
func (l *Limited) Suppressed() uint64 { return l.suppressed.Load() }

func (l *Limited) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l *Limited) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l *Limited) emit(level Level, msg string, fields []Field) {
	if l == nil {
		return
	}
	l.mu.Lock()
	lim := l.lim
	l.mu.Unlock()

	if lim != nil && !lim.Allow() {
		l.suppressed.Add(1)
		return
	}
	if n := l.suppressed.Swap(0); n > 0 {
		fields = append(fields, Uint64("suppressed", n))
	}
	switch level {
	case LevelError:
		l.log.Error(msg, fields...)
	default:
		l.log.Warn(msg, fields...)
	}
}
