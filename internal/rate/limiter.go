// Package rate implementa el presupuesto local de requests hacia los
// servicios de identidad: una ventana fija que se consume ANTES de cada
// llamada, para espaciar el tráfico en vez de esperar el 429 del servicio.
package rate

import (
	"context"
	"sync"
	"time"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter: fixed window en memoria, para corridas de un solo proceso.
// Mismo algoritmo que el RedisLimiter (INCR por ventana truncada).
type MemoryLimiter struct {
	Max    int64
	Window time.Duration

	mu       sync.Mutex
	winStart time.Time
	hits     map[string]int64
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		Max:    int64(max),
		Window: window,
		hits:   make(map[string]int64),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if !winStart.Equal(l.winStart) {
		l.winStart = winStart
		l.hits = make(map[string]int64)
	}
	l.hits[key]++
	hits := l.hits[key]

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}
	ttl := winStart.Add(l.Window).Sub(now)

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl
	}
	return res, nil
}
