// Package daemon turns extension events and control requests into organizer
// operations, one at a time.
package daemon

import (
	"context"
	"errors"
	"sync"

	"github.com/lotas/tabgruppen/internal/applog"
	"github.com/lotas/tabgruppen/internal/server"
	"github.com/lotas/tabgruppen/internal/types"
)

// ErrBusy is returned when the job queue is full.
var ErrBusy = errors.New("daemon busy")

// ErrStopped is returned for jobs submitted after the worker exited.
var ErrStopped = errors.New("daemon stopped")

// Organizer is the work the daemon dispatches. organizer.Organizer
// implements it.
type Organizer interface {
	Place(ctx context.Context, tab *types.Tab)
	Normalize(ctx context.Context, windowID int)
	Dissolve(ctx context.Context, name string)
	ReorganizeAll(ctx context.Context, eligible func(*types.Tab) bool)
}

type job struct {
	name string
	run  func(ctx context.Context)
	done chan struct{}
}

// Daemon owns the single worker that runs organizer operations. Events and
// control jobs share one queue, so no two operations ever interleave.
type Daemon struct {
	org    Organizer
	events <-chan server.IncomingMsg
	filter *Filter
	jobs   chan job

	once    sync.Once
	stopped chan struct{}
}

// New returns a Daemon reading events from the given channel.
func New(org Organizer, events <-chan server.IncomingMsg, filter *Filter) *Daemon {
	return &Daemon{
		org:     org,
		events:  events,
		filter:  filter,
		jobs:    make(chan job, 16),
		stopped: make(chan struct{}),
	}
}

// Subscribe starts the worker. Calling it again has no effect. The worker
// exits when ctx is cancelled or the event channel is closed.
func (d *Daemon) Subscribe(ctx context.Context) {
	d.once.Do(func() {
		applog.Info("daemon.subscribed")
		go d.run(ctx)
	})
}

// Done is closed once the worker has exited.
func (d *Daemon) Done() <-chan struct{} {
	return d.stopped
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			applog.Info("daemon.stopped")
			return
		case msg, ok := <-d.events:
			if !ok {
				applog.Info("daemon.events_closed")
				return
			}
			d.handle(ctx, msg)
		case j := <-d.jobs:
			applog.Info("daemon.job", "name", j.name)
			j.run(ctx)
			close(j.done)
		}
	}
}

// handle applies one extension event.
func (d *Daemon) handle(ctx context.Context, msg server.IncomingMsg) {
	switch msg.Type {
	case "hello":
		d.org.ReorganizeAll(ctx, d.eligibleTab)
	case "tab-updated":
		tab, ok := d.updatedTab(msg)
		if !ok {
			return
		}
		d.org.Place(ctx, tab)
		d.org.Normalize(ctx, tab.WindowID)
	case "tab-pinned", "tab-removed":
		if w := eventWindow(msg); w != types.WindowAny {
			d.org.Normalize(ctx, w)
		}
	default:
		applog.Info("daemon.unknown_event", "type", msg.Type)
	}
}

// updatedTab returns the tab a tab-updated event carries, if the event
// warrants placement: the load finished, the window is a normal browser
// window and the URL passes the filter.
func (d *Daemon) updatedTab(msg server.IncomingMsg) (*types.Tab, bool) {
	if msg.WindowType != "normal" {
		return nil, false
	}
	tab, err := server.ParseTab(msg.Tab)
	if err != nil {
		applog.Error("daemon.parse_tab", err)
		return nil, false
	}
	status := msg.Status
	if status == "" {
		status = tab.Status
	}
	if status != "complete" {
		return nil, false
	}
	if tab.WindowID == types.WindowAny {
		tab.WindowID = msg.WindowID
	}
	if !d.filter.Eligible(tab.URL) {
		return nil, false
	}
	return tab, true
}

// eligibleTab is the filter used for full passes, where only queried tab
// fields are available.
func (d *Daemon) eligibleTab(t *types.Tab) bool {
	if t.Status != "" && t.Status != "complete" {
		return false
	}
	return d.filter.Eligible(t.URL)
}

func eventWindow(msg server.IncomingMsg) int {
	if msg.WindowID != types.WindowAny {
		return msg.WindowID
	}
	if len(msg.Tab) == 0 {
		return types.WindowAny
	}
	tab, err := server.ParseTab(msg.Tab)
	if err != nil {
		return types.WindowAny
	}
	return tab.WindowID
}

// submit queues fn on the worker and returns a channel closed when it has
// run. It does not block when the queue is full.
func (d *Daemon) submit(name string, fn func(ctx context.Context)) (<-chan struct{}, error) {
	select {
	case <-d.stopped:
		return nil, ErrStopped
	default:
	}
	j := job{name: name, run: fn, done: make(chan struct{})}
	select {
	case d.jobs <- j:
		return j.done, nil
	default:
		return nil, ErrBusy
	}
}

// wait submits fn and blocks until it has run or ctx ends.
func (d *Daemon) wait(ctx context.Context, name string, fn func(ctx context.Context)) error {
	done, err := d.submit(name, fn)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-d.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reorganize runs a full pass over every window and waits for it.
func (d *Daemon) Reorganize(ctx context.Context) error {
	return d.wait(ctx, "reorganize", func(ctx context.Context) {
		d.org.ReorganizeAll(ctx, d.eligibleTab)
	})
}

// Dissolve empties and removes every group titled name and waits for it.
func (d *Daemon) Dissolve(ctx context.Context, name string) error {
	return d.wait(ctx, "dissolve", func(ctx context.Context) {
		d.org.Dissolve(ctx, name)
	})
}
