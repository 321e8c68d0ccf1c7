package connectivity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/huykn/offline-sync/cache"
)

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Probe checks reachability of the remote backend (e.g. a ping). A
	// nil error means online.
	Probe func(ctx context.Context) error

	// Interval is the probe cadence while online. Defaults to 30s.
	Interval time.Duration

	// ProbeTimeout bounds each probe call. Defaults to 5s.
	ProbeTimeout time.Duration

	// InitialBackoff and MaxBackoff bound the exponential probe schedule
	// while offline. Defaults: 1s and 60s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Logger receives watcher logs. Defaults to no-op.
	Logger cache.Logger
}

// Watcher derives a Signal by probing the remote backend: a fixed cadence
// while online, exponential backoff while offline so a dead link is not
// hammered. The first probe runs immediately on Start.
type Watcher struct {
	opts    WatcherOptions
	signal  *ManualSignal
	done    chan struct{}
	wg      sync.WaitGroup
	started int32
	closed  int32
}

// NewWatcher creates a watcher. The signal starts offline until the first
// successful probe.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.Probe == nil {
		return nil, errors.New("watcher probe is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = cache.NewNoOpLogger()
	}
	return &Watcher{
		opts:   opts,
		signal: NewManualSignal(false),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the probe loop. Calling Start more than once is a no-op.
func (w *Watcher) Start() {
	if !atomic.CompareAndSwapInt32(&w.started, 0, 1) {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = w.opts.InitialBackoff
	schedule.MaxInterval = w.opts.MaxBackoff
	schedule.Reset()

	for {
		wait := w.probeOnce(schedule)
		select {
		case <-w.done:
			return
		case <-time.After(wait):
		}
	}
}

func (w *Watcher) probeOnce(schedule *backoff.ExponentialBackOff) time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.ProbeTimeout)
	err := w.opts.Probe(ctx)
	cancel()

	if err == nil {
		if !w.signal.Online() {
			w.opts.Logger.Info("connectivity regained")
		}
		w.signal.SetOnline(true)
		schedule.Reset()
		return w.opts.Interval
	}

	if w.signal.Online() {
		w.opts.Logger.Warn("connectivity lost", "error", err)
	}
	w.signal.SetOnline(false)
	return schedule.NextBackOff()
}

// Online reports the current connectivity state.
func (w *Watcher) Online() bool {
	return w.signal.Online()
}

// OnChange registers a transition callback.
func (w *Watcher) OnChange(callback func(online bool)) (unsubscribe func()) {
	return w.signal.OnChange(callback)
}

// Close stops the probe loop.
func (w *Watcher) Close() error {
	if !atomic.CompareAndSwapInt32(&w.closed, 0, 1) {
		return nil
	}
	close(w.done)
	w.wg.Wait()
	return nil
}
