// Package dispatch implementa el dispatcher de concurrencia acotada y el
// controlador de backoff por rate limit que lo pausa y reanuda.
//
// El estado (activos, cola pendiente, paused) vive encapsulado acá y solo se
// toca via Submit/WaitUntilBelow/Pause/Resume/DrainToIdle; los contadores y
// la cola nunca se comparten como variables globales.
package dispatch

import (
	"context"
	"sync"
)

// Task es una unidad de trabajo. La misma Task puede re-encolarse tras un
// rate limit; es el Backoff quien la re-somete, nunca la tarea a sí misma.
type Task func(ctx context.Context)

// Dispatcher corre tareas con un tope fijo de N en vuelo. Las tareas
// pendientes esperan en una cola FIFO; pausar detiene SOLO el despacho de
// tareas nuevas, las que ya corren terminan normalmente.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	ctx      context.Context
	capacity int
	active   int
	paused   bool
	pending  []Task

	// onActive notifica cambios del conteo de activos (gauge de métricas).
	onActive func(n int)
}

// Option configura el Dispatcher.
type Option func(*Dispatcher)

// WithActiveGauge registra un callback invocado (bajo lock) en cada cambio
// del número de tareas activas.
func WithActiveGauge(fn func(n int)) Option {
	return func(d *Dispatcher) { d.onActive = fn }
}

// New crea un Dispatcher con capacidad fija. capacity < 1 se normaliza a 1.
func New(ctx context.Context, capacity int, opts ...Option) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}
	d := &Dispatcher{ctx: ctx, capacity: capacity}
	d.cond = sync.NewCond(&d.mu)
	for _, o := range opts {
		o(d)
	}
	return d
}

// Submit acepta una unidad de trabajo. Si el dispatcher está pausado o al
// tope, queda en cola; si hay lugar, arranca inmediatamente. Nunca bloquea.
func (d *Dispatcher) Submit(t Task) {
	d.mu.Lock()
	d.pending = append(d.pending, t)
	d.dispatchLocked()
	d.mu.Unlock()
}

// dispatchLocked drena la cola mientras haya cupo y no esté pausado.
// Caller debe tener d.mu.
func (d *Dispatcher) dispatchLocked() {
	for !d.paused && d.active < d.capacity && len(d.pending) > 0 {
		t := d.pending[0]
		d.pending = d.pending[1:]
		d.active++
		if d.onActive != nil {
			d.onActive(d.active)
		}
		go d.run(t)
	}
}

func (d *Dispatcher) run(t Task) {
	defer func() {
		d.mu.Lock()
		d.active--
		if d.onActive != nil {
			d.onActive(d.active)
		}
		d.dispatchLocked()
		d.cond.Broadcast()
		d.mu.Unlock()
	}()
	t(d.ctx)
}

// WaitUntilBelow suspende al caller hasta que haya menos de n tareas activas.
// Lo usa el loop de ingesta para no crear tareas más rápido de lo que se
// consumen (acota memoria).
func (d *Dispatcher) WaitUntilBelow(n int) {
	d.mu.Lock()
	for d.active >= n {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// Pause detiene el despacho de tareas NUEVAS. Las que ya corren no se tocan.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume rehabilita el despacho y drena lo que haya quedado en cola.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.dispatchLocked()
	d.cond.Broadcast()
	d.mu.Unlock()
}

// DrainToIdle suspende hasta que no quede nada activo ni encolado. Se llama
// al agotar el stream para garantizar que todo terminó antes de reportar.
// Con el dispatcher pausado espera igual: un ciclo de backoff en vuelo
// siempre termina en Resume.
func (d *Dispatcher) DrainToIdle() {
	d.mu.Lock()
	for d.active > 0 || len(d.pending) > 0 {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

// Active retorna el número de tareas corriendo ahora.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Capacity retorna el tope N fijado en la construcción.
func (d *Dispatcher) Capacity() int { return d.capacity }
