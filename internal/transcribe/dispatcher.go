// Package transcribe serializes speech-to-text work through a single shared
// worker.
//
// Transcription capacity is a deliberate global bottleneck: no matter how
// many sessions are connected, at most one transcription is in flight at any
// time. Jobs queue FIFO and complete strictly in submission order, so load
// spikes translate into latency, never into starved or reordered sessions.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samvaad-ai/samvaad/internal/observe"
	"github.com/samvaad-ai/samvaad/pkg/provider/stt"
)

// DefaultWorkerTimeout bounds a single transcription call. Generous on
// purpose: long utterances on a cold model are slow but still worth waiting
// for.
const DefaultWorkerTimeout = 30 * time.Second

// ErrClosed is returned for jobs submitted after Close, and for jobs still
// queued when Close runs.
var ErrClosed = errors.New("transcribe: dispatcher closed")

type jobResult struct {
	res stt.Result
	err error
}

// job carries one queued request and its one-shot completion handle.
type job struct {
	req  stt.Request
	once sync.Once
	done chan jobResult
}

func (j *job) complete(res stt.Result, err error) {
	j.once.Do(func() {
		j.done <- jobResult{res: res, err: err}
	})
}

// Dispatcher owns the process-wide transcription queue.
type Dispatcher struct {
	transcriber stt.Transcriber
	timeout     time.Duration
	logger      *slog.Logger
	metrics     *observe.Metrics

	mu     sync.Mutex
	queue  []*job
	busy   bool
	closed bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkerTimeout overrides the per-job timeout. Non-positive values are
// ignored.
func WithWorkerTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithLogger sets the logger for worker failures.
func WithLogger(l *slog.Logger) Option {
	return func(dp *Dispatcher) {
		if l != nil {
			dp.logger = l
		}
	}
}

// WithMetrics sets the metrics instance the queue depth is reported to.
// Without one, nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(dp *Dispatcher) {
		dp.metrics = m
	}
}

// New creates a Dispatcher backed by the given transcriber.
func New(transcriber stt.Transcriber, opts ...Option) (*Dispatcher, error) {
	if transcriber == nil {
		return nil, fmt.Errorf("transcribe: transcriber is required")
	}
	d := &Dispatcher{
		transcriber: transcriber,
		timeout:     DefaultWorkerTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Submit queues a transcription job and blocks until it completes, fails, or
// ctx is cancelled. A cancelled caller stops waiting; the job itself still
// runs to completion in its queue slot and the result is discarded.
func (d *Dispatcher) Submit(ctx context.Context, req stt.Request) (stt.Result, error) {
	j := &job{req: req, done: make(chan jobResult, 1)}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return stt.Result{}, ErrClosed
	}
	d.queue = append(d.queue, j)
	if d.metrics != nil {
		d.metrics.QueuedTranscriptions.Add(ctx, 1)
	}
	d.dispatchLocked()
	d.mu.Unlock()

	select {
	case r := <-j.done:
		return r.res, r.err
	case <-ctx.Done():
		return stt.Result{}, ctx.Err()
	}
}

// Pending reports the number of queued jobs, including the one in flight.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if d.busy {
		n++
	}
	return n
}

// Busy reports whether a job is currently in flight.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Close rejects all queued jobs and refuses new submissions. An in-flight
// job is allowed to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for _, j := range d.queue {
		j.complete(stt.Result{}, ErrClosed)
	}
	if d.metrics != nil && len(d.queue) > 0 {
		d.metrics.QueuedTranscriptions.Add(context.Background(), int64(-len(d.queue)))
	}
	d.queue = nil
}

// dispatchLocked starts the next job when the worker is free. Callers must
// hold d.mu.
func (d *Dispatcher) dispatchLocked() {
	if d.busy || d.closed || len(d.queue) == 0 {
		return
	}
	j := d.queue[0]
	d.queue = d.queue[1:]
	d.busy = true
	go d.work(j)
}

func (d *Dispatcher) work(j *job) {
	defer func() {
		// A crashed worker must fail its job and free the queue, not
		// deadlock every session behind it.
		if r := recover(); r != nil {
			d.logger.Error("transcription worker crashed", "panic", r)
			j.complete(stt.Result{}, fmt.Errorf("transcription worker crashed: %v", r))
		}
		d.mu.Lock()
		d.busy = false
		d.dispatchLocked()
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.QueuedTranscriptions.Add(context.Background(), -1)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	res, err := d.transcriber.Transcribe(ctx, j.req)
	if err != nil {
		j.complete(stt.Result{}, fmt.Errorf("transcribing %d bytes of audio: %w", len(j.req.PCM), err))
		return
	}
	j.complete(res, nil)
}
