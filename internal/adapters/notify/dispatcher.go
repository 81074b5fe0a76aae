// Package notify entrega los eventos del sniper al operador: una cola
// asíncrona (Dispatcher) delante de uno o varios Sender.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	defaultQueueSize   = 64
	defaultSendTimeout = 10 * time.Second
)

// Sender es un canal de notificación.
type Sender interface {
	Send(ctx context.Context, ev domain.Event) error
	Name() string
}

// Dispatcher implementa ports.Notifier. Notify encola y vuelve; un worker
// entrega a los senders. Con la cola llena el evento se descarta.
type Dispatcher struct {
	senders []Sender
	allowed map[domain.EventKind]bool
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event

	dropped atomic.Int64
	done    chan struct{}
	once    sync.Once
}

// DispatcherOption configura un Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithEvents limita los tipos de evento entregados. Vacío = todos.
func WithEvents(kinds []string) DispatcherOption {
	return func(d *Dispatcher) {
		for _, k := range kinds {
			k = strings.TrimSpace(strings.ToLower(k))
			if k != "" {
				d.allowed[domain.EventKind(k)] = true
			}
		}
	}
}

// WithQueueSize fija la capacidad de la cola.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.Event, n)
		}
	}
}

// WithSendTimeout acota cada llamada a Send.
func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher crea el dispatcher. Hay que llamar a Start para que entregue.
func NewDispatcher(senders []Sender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		senders: senders,
		allowed: make(map[domain.EventKind]bool),
		timeout: defaultSendTimeout,
		queue:   make(chan domain.Event, defaultQueueSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start lanza el worker.
func (d *Dispatcher) Start() {
	d.once.Do(func() {
		go d.worker()
	})
}

// Notify encola el evento sin bloquear.
func (d *Dispatcher) Notify(_ context.Context, ev domain.Event) {
	if len(d.allowed) > 0 && !d.allowed[ev.Kind] {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		slog.Debug("notify: dispatcher closed, event dropped", "kind", ev.Kind)
		return
	}
	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		slog.Warn("notify: queue full, event dropped", "kind", ev.Kind, "capacity", cap(d.queue))
	}
}

// Dropped devuelve cuántos eventos se descartaron por cola llena.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close deja de aceptar eventos y espera a que se vacíe la cola o venza ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

// deliver entrega a todos los senders. Los fallos se loguean y no se reintentan.
func (d *Dispatcher) deliver(ev domain.Event) {
	for _, s := range d.senders {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := s.Send(ctx, ev)
		cancel()
		if err != nil {
			slog.Warn("notify: send failed", "sender", s.Name(), "kind", ev.Kind, "err", err)
		}
	}
}
