// Package logging provides the dual logger agents run with: every entry
// is printed locally and shipped to the marketplace log journal in the
// background, so a crashed agent still leaves a trail on both sides.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agoralabs/agora/internal/types"
)

// Sink receives shipped entries. The gateway client's Logs resource is
// the usual implementation.
type Sink interface {
	Create(ctx context.Context, entry *types.LogEntry) error
}

const (
	defaultQueueSize   = 256
	defaultShipTimeout = 5 * time.Second
)

// Logger writes each entry to a local *log.Logger and enqueues it for a
// background worker that POSTs it to the log journal. The queue is
// bounded; under backpressure the oldest queued entries are dropped and
// counted rather than blocking the caller.
type Logger struct {
	name        string
	local       *log.Logger
	sink        Sink
	minSeverity int
	shipTimeout time.Duration

	queue   chan *types.LogEntry
	flushes chan chan struct{}
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	dropped  uint64
	reported uint64
}

// Option adjusts a Logger at construction.
type Option func(*Logger)

// WithQueueSize bounds the ship queue. Entries beyond it push the
// oldest queued entry out.
func WithQueueSize(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.queue = make(chan *types.LogEntry, n)
		}
	}
}

// WithMinLevel discards entries below the given level before they reach
// either output.
func WithMinLevel(level types.LogLevel) Option {
	return func(l *Logger) { l.minSeverity = level.Severity() }
}

// WithLocal replaces the local logger, which defaults to stderr.
func WithLocal(local *log.Logger) Option {
	return func(l *Logger) {
		if local != nil {
			l.local = local
		}
	}
}

// WithShipTimeout bounds each background POST.
func WithShipTimeout(d time.Duration) Option {
	return func(l *Logger) {
		if d > 0 {
			l.shipTimeout = d
		}
	}
}

// New creates a Logger named name, conventionally the agent id. A nil
// sink gives a local-only logger; no worker is started.
func New(name string, sink Sink, opts ...Option) *Logger {
	l := &Logger{
		name:        name,
		local:       log.New(os.Stderr, "", log.LstdFlags),
		sink:        sink,
		minSeverity: types.LogDebug.Severity(),
		shipTimeout: defaultShipTimeout,
		flushes:     make(chan chan struct{}),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	if l.queue == nil {
		l.queue = make(chan *types.LogEntry, defaultQueueSize)
	}
	if l.sink == nil {
		close(l.stopped)
		return l
	}
	go l.run()
	return l
}

// Name returns the logger name stamped on every shipped entry.
func (l *Logger) Name() string { return l.name }

// Log records one entry at the given level. data rides along as the
// entry's structured payload and is appended to the local line as JSON.
func (l *Logger) Log(level types.LogLevel, message string, data map[string]any) {
	if level.Severity() < l.minSeverity {
		return
	}

	line := fmt.Sprintf("%s %s: %s", level, l.name, message)
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			line += " " + string(b)
		}
	}
	l.local.Print(line)

	if l.sink == nil || l.closed.Load() {
		return
	}
	l.enqueue(&types.LogEntry{
		Level:   level,
		Name:    l.name,
		Message: message,
		Data:    data,
	})
}

func (l *Logger) Debugf(format string, args ...any) {
	l.Log(types.LogDebug, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Infof(format string, args ...any) {
	l.Log(types.LogInfo, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warningf(format string, args ...any) {
	l.Log(types.LogWarning, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Log(types.LogError, fmt.Sprintf(format, args...), nil)
}

// Dropped reports how many entries backpressure has pushed out of the
// queue since construction.
func (l *Logger) Dropped() uint64 {
	return atomic.LoadUint64(&l.dropped)
}

// Flush blocks until every entry queued before the call has been
// shipped, or ctx expires. Agents call it during teardown so the final
// journal rows are not lost with the process.
func (l *Logger) Flush(ctx context.Context) error {
	if l.sink == nil {
		return nil
	}

	req := make(chan struct{})
	select {
	case l.flushes <- req:
	case <-l.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req:
	case <-l.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	if d := atomic.LoadUint64(&l.dropped); d > atomic.SwapUint64(&l.reported, d) {
		l.local.Printf("%s %s: shipper dropped %d entries under backpressure", types.LogWarning, l.name, d)
	}
	return nil
}

// Close stops the background worker after a final drain of the queue.
// Safe to call more than once. Entries logged after Close stay local.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
	<-l.stopped
}

// enqueue adds e to the queue, pushing the oldest queued entry out when
// full. The caller never blocks on a slow shipper.
func (l *Logger) enqueue(e *types.LogEntry) {
	for {
		select {
		case l.queue <- e:
			return
		default:
		}
		select {
		case <-l.queue:
			atomic.AddUint64(&l.dropped, 1)
		default:
		}
	}
}

func (l *Logger) run() {
	defer close(l.stopped)
	for {
		select {
		case e := <-l.queue:
			l.ship(e)
		case req := <-l.flushes:
			l.drain()
			close(req)
		case <-l.done:
			l.drain()
			for {
				select {
				case req := <-l.flushes:
					close(req)
				default:
					return
				}
			}
		}
	}
}

// drain ships everything queued right now, then returns.
func (l *Logger) drain() {
	for {
		select {
		case e := <-l.queue:
			l.ship(e)
		default:
			return
		}
	}
}

func (l *Logger) ship(e *types.LogEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.shipTimeout)
	defer cancel()
	if err := l.sink.Create(ctx, e); err != nil {
		l.local.Printf("%s %s: shipping log entry: %v", types.LogWarning, l.name, err)
	}
}
