package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name string
	err  error

	mu     sync.Mutex
	events []domain.Event
}

func (r *recordingSender) Send(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func (r *recordingSender) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// blockingSender se queda dentro de Send hasta que se libere release.
type blockingSender struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(ctx context.Context, _ domain.Event) error {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func (b *blockingSender) Name() string { return "blocking" }

func closeCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDispatcher_DeliversToAllSendersInOrder(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	d := notify.NewDispatcher([]notify.Sender{a, b})
	d.Start()

	d.Notify(context.Background(), domain.Event{Kind: domain.EventStartup})
	d.Notify(context.Background(), domain.Event{Kind: domain.EventEntered})
	require.NoError(t, d.Close(closeCtx(t)))

	want := []domain.EventKind{domain.EventStartup, domain.EventEntered}
	assert.Equal(t, want, a.kinds())
	assert.Equal(t, want, b.kinds())
}

func TestDispatcher_FailingSenderDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	d := notify.NewDispatcher([]notify.Sender{bad, good})
	d.Start()

	d.Notify(context.Background(), domain.Event{Kind: domain.EventWin})
	d.Notify(context.Background(), domain.Event{Kind: domain.EventLoss})
	require.NoError(t, d.Close(closeCtx(t)))

	// sin reintentos: un intento por evento
	assert.Len(t, bad.kinds(), 2)
	assert.Equal(t, []domain.EventKind{domain.EventWin, domain.EventLoss}, good.kinds())
}

func TestDispatcher_EventFilter(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	d := notify.NewDispatcher([]notify.Sender{rec}, notify.WithEvents([]string{"win", " CUTLOSS "}))
	d.Start()

	d.Notify(context.Background(), domain.Event{Kind: domain.EventStatus})
	d.Notify(context.Background(), domain.Event{Kind: domain.EventWin})
	d.Notify(context.Background(), domain.Event{Kind: domain.EventCutloss})
	require.NoError(t, d.Close(closeCtx(t)))

	assert.Equal(t, []domain.EventKind{domain.EventWin, domain.EventCutloss}, rec.kinds())
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	blocker := &blockingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := notify.NewDispatcher([]notify.Sender{blocker}, notify.WithQueueSize(1))
	d.Start()

	d.Notify(context.Background(), domain.Event{Kind: domain.EventEntered})
	select {
	case <-blocker.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}

	done := make(chan struct{})
	go func() {
		d.Notify(context.Background(), domain.Event{Kind: domain.EventWin})  // ocupa la cola
		d.Notify(context.Background(), domain.Event{Kind: domain.EventLoss}) // descartado
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked with a full queue")
	}
	assert.Equal(t, int64(1), d.Dropped())

	close(blocker.release)
	require.NoError(t, d.Close(closeCtx(t)))
}

func TestDispatcher_SendTimeoutBoundsSlowSender(t *testing.T) {
	blocker := &blockingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	rec := &recordingSender{name: "rec"}
	d := notify.NewDispatcher([]notify.Sender{blocker, rec}, notify.WithSendTimeout(20*time.Millisecond))
	d.Start()

	d.Notify(context.Background(), domain.Event{Kind: domain.EventError, Message: "x"})
	require.NoError(t, d.Close(closeCtx(t)))

	assert.Equal(t, []domain.EventKind{domain.EventError}, rec.kinds())
}

func TestDispatcher_NotifyAfterCloseIsIgnored(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	d := notify.NewDispatcher([]notify.Sender{rec})
	d.Start()
	require.NoError(t, d.Close(closeCtx(t)))

	assert.NotPanics(t, func() {
		d.Notify(context.Background(), domain.Event{Kind: domain.EventStopped})
	})
	assert.Empty(t, rec.kinds())
}

func TestDispatcher_CloseDrainsWithoutStart(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	d := notify.NewDispatcher([]notify.Sender{rec})

	d.Notify(context.Background(), domain.Event{Kind: domain.EventStopped})
	require.NoError(t, d.Close(closeCtx(t)))

	assert.Equal(t, []domain.EventKind{domain.EventStopped}, rec.kinds())
}
