package dispatch

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/observability/logger"
)

// graceMargin se suma siempre al hint de Retry-After: un segundo de margen
// para no golpear el borde exacto de la ventana del servicio.
const graceMargin = time.Second

// Backoff convierte una señal de rate limit en un ciclo pausa/reanudación
// acotado, sin perder la unidad de trabajo que falló.
//
// Protocolo (por fallo): pausar dispatcher → re-encolar la tarea → dormir
// retryAfter+1s → reanudar. Los ciclos se serializan con un mutex propio:
// durante una ventana de throttle el controlador actúa como gate global de
// exclusión sobre "despacho nuevo". Este es el ÚNICO camino de re-encolado;
// una tarea jamás se re-somete a sí misma (evita dobles submissions y
// crecimiento de stack).
type Backoff struct {
	d            *Dispatcher
	defaultDelay time.Duration

	// sleep es inyectable para tests; default time.Sleep.
	sleep func(time.Duration)

	// onPause notifica cada ciclo de throttle (contador de métricas).
	onPause func()

	mu  sync.Mutex
	log *zap.Logger
}

// BackoffOption configura el controlador.
type BackoffOption func(*Backoff)

// WithSleep reemplaza la función de sleep (tests).
func WithSleep(fn func(time.Duration)) BackoffOption {
	return func(b *Backoff) { b.sleep = fn }
}

// WithPauseHook registra un callback por cada ciclo de pausa.
func WithPauseHook(fn func()) BackoffOption {
	return func(b *Backoff) { b.onPause = fn }
}

// NewBackoff crea el controlador sobre un dispatcher. defaultDelay se usa
// cuando el 429 no trae Retry-After.
func NewBackoff(d *Dispatcher, defaultDelay time.Duration, opts ...BackoffOption) *Backoff {
	b := &Backoff{
		d:            d,
		defaultDelay: defaultDelay,
		sleep:        time.Sleep,
		log:          logger.Named("backoff"),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Throttle ejecuta un ciclo completo de backoff para la tarea que falló con
// rate limit. retryAfter <= 0 usa el default. Bloquea al goroutine que la
// invoca (el de la tarea fallida), no al proceso: las demás tareas en vuelo
// siguen corriendo.
func (b *Backoff) Throttle(t Task, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = b.defaultDelay
	}
	delay := retryAfter + graceMargin

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.onPause != nil {
		b.onPause()
	}
	b.log.Warn("rate limited, pausing dispatch", logger.RetryAfter(delay))

	b.d.Pause()
	b.d.Submit(t) // queda en cola: el despacho está pausado
	b.sleep(delay)
	b.d.Resume()

	b.log.Info("dispatch resumed")
}
