// Package migrate es el engine de migración batch: stream → dispatcher con
// tope de concurrencia → worker upsert-with-fallback → ledger append-only,
// con pausa/reanudación ante rate limits.
package migrate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mudanza/internal/dispatch"
	"github.com/dropDatabas3/mudanza/internal/domain/types"
	"github.com/dropDatabas3/mudanza/internal/ledger"
	"github.com/dropDatabas3/mudanza/internal/metrics"
	"github.com/dropDatabas3/mudanza/internal/observability/logger"
	"github.com/dropDatabas3/mudanza/internal/stream"
)

// Params fija el comportamiento de una corrida.
type Params struct {
	// Concurrency es el tope N de tareas en vuelo.
	Concurrency int
	// DefaultRetryAfter se usa cuando el 429 no trae hint.
	DefaultRetryAfter time.Duration
	// MaxRetries por registro ante rate limits. 0 = sin tope.
	MaxRetries int
	// RunID identifica la corrida en logs y summary.
	RunID string
}

// Stats acumula los contadores de la corrida. Los campos int64 se tocan desde
// tareas concurrentes y son atómicos.
type Stats struct {
	Read        int
	Skipped     int
	ParseErrors int

	Created    atomic.Int64
	Updated    atomic.Int64
	Unresolved atomic.Int64
	Retries    atomic.Int64
}

// Completed: registros con MigrationOutcome en el ledger.
func (s *Stats) Completed() int64 { return s.Created.Load() + s.Updated.Load() }

// Total: registros despachados (leídos menos saltados menos malformados).
func (s *Stats) Total() int { return s.Read - s.Skipped - s.ParseErrors }

// Engine orquesta una corrida completa.
type Engine struct {
	p      Params
	worker *Worker
	led    *ledger.Writer
	log    *zap.Logger
}

func NewEngine(p Params, w *Worker, led *ledger.Writer) *Engine {
	return &Engine{
		p:      p,
		worker: w,
		led:    led,
		log:    logger.With(logger.Component("engine"), logger.RunID(p.RunID)),
	}
}

// Run consume el reader hasta agotarlo y drena el dispatcher antes de
// retornar. Los registros se leen y despachan en orden de archivo; las
// completitudes pueden salir de orden. Un fallo blando no frena nada; un
// fatal corta la ingesta, deja terminar lo que está en vuelo y sube.
func (e *Engine) Run(ctx context.Context, r *stream.Reader) (*Stats, error) {
	// El logger scoped de la corrida viaja en el ctx que reciben las tareas.
	ctx = logger.ToContext(ctx, e.log)
	stats := &Stats{}

	var fatalMu sync.Mutex
	var fatalErr error
	setFatal := func(err error) {
		fatalMu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		fatalMu.Unlock()
	}
	fatal := func() error {
		fatalMu.Lock()
		defer fatalMu.Unlock()
		return fatalErr
	}

	d := dispatch.New(ctx, e.p.Concurrency, dispatch.WithActiveGauge(func(n int) {
		metrics.ActiveTasks.Set(float64(n))
	}))
	b := dispatch.NewBackoff(d, e.p.DefaultRetryAfter, dispatch.WithPauseHook(func() {
		metrics.RateLimitPauses.Inc()
	}))

	e.log.Info("migration started", logger.Int("concurrency", e.p.Concurrency))

	for fatal() == nil {
		rec, ok := r.Next()
		if !ok {
			break
		}
		// Acota la creación de tareas a la velocidad de consumo.
		d.WaitUntilBelow(e.p.Concurrency)
		e.submit(d, b, rec, stats, setFatal)
	}

	d.DrainToIdle()

	stats.Read = r.ReadCount()
	stats.Skipped = r.Skipped()
	stats.ParseErrors = r.ParseErrors()
	if stats.ParseErrors > 0 {
		metrics.RecordsProcessed.WithLabelValues("parse_error").Add(float64(stats.ParseErrors))
	}

	if err := fatal(); err != nil {
		// El ledger parcial sigue siendo válido para reanudar a mano.
		e.log.Error("migration aborted", logger.Err(err),
			logger.Int("completed", int(stats.Completed())))
		return stats, err
	}
	if err := r.Err(); err != nil {
		return stats, fmt.Errorf("read stream: %w", err)
	}

	e.log.Info("migration finished",
		logger.Int("completed", int(stats.Completed())),
		logger.Int("total", stats.Total()),
		logger.Int("created", int(stats.Created.Load())),
		logger.Int("updated", int(stats.Updated.Load())),
		logger.Int("unresolved", int(stats.Unresolved.Load())),
		logger.Int("parse_errors", stats.ParseErrors),
		logger.Int("skipped", stats.Skipped))
	return stats, nil
}

// submit arma la tarea del registro. La tarea se captura a sí misma solo para
// entregársela al Backoff: el re-encolado vive en UN solo lugar y el contador
// de intentos viaja con la clausura, no en estado global.
func (e *Engine) submit(d *dispatch.Dispatcher, b *dispatch.Backoff, rec *stream.Record, stats *Stats, setFatal func(error)) {
	attempts := 0
	var t dispatch.Task
	t = func(ctx context.Context) {
		out, err := e.worker.Process(ctx, rec)
		if err != nil {
			rl, ok := types.AsRateLimit(err)
			if !ok {
				setFatal(fmt.Errorf("record %d (%s): %w", rec.Index, rec.SourceID(), err))
				return
			}
			attempts++
			stats.Retries.Add(1)
			if e.p.MaxRetries > 0 && attempts > e.p.MaxRetries {
				e.log.Warn("record gave up after retries",
					logger.RecordIndex(rec.Index), logger.Attempt(attempts))
				stats.Unresolved.Add(1)
				metrics.RecordsProcessed.WithLabelValues("unresolved").Inc()
				return
			}
			b.Throttle(t, rl.RetryAfter)
			return
		}

		switch o := out.(type) {
		case *Created:
			e.record(stats, rec, o.User.ID, true, setFatal)
		case *Updated:
			e.record(stats, rec, o.User.ID, false, setFatal)
		case *Unresolved:
			e.log.Warn("record unresolved",
				logger.RecordIndex(rec.Index), logger.String("reason", o.Reason))
			stats.Unresolved.Add(1)
			metrics.RecordsProcessed.WithLabelValues("unresolved").Inc()
		}
	}
	d.Submit(t)
}

// record deja exactamente UNA línea en el ledger por registro exitoso, antes
// de que el dispatcher observe la completitud de la tarea.
func (e *Engine) record(stats *Stats, rec *stream.Record, workosID string, created bool, setFatal func(error)) {
	err := e.led.Append(ledger.Outcome{
		WorkOSUserID: workosID,
		Auth0UserID:  rec.SourceID(),
		Created:      created,
	})
	if err != nil {
		// Un ledger que no escribe invalida la auditoría: fatal.
		setFatal(err)
		return
	}
	if created {
		stats.Created.Add(1)
		metrics.RecordsProcessed.WithLabelValues("created").Inc()
	} else {
		stats.Updated.Add(1)
		metrics.RecordsProcessed.WithLabelValues("updated").Inc()
	}
	e.log.Debug("record migrated",
		logger.RecordIndex(rec.Index),
		logger.Auth0ID(rec.SourceID()),
		logger.WorkOSID(workosID),
		logger.Bool("created", created))
}
