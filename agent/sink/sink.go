package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Bakery-Support-Bot/agent/contract"
)

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
)

// Writer stores one error record. Implementations may block.
type Writer interface {
	Write(ctx context.Context, rec contractx.ErrorRecord) error
}

// Counter reports recent unresolved records for health checks.
type Counter interface {
	CountUnresolvedSince(ctx context.Context, since time.Time) (int, error)
}

type Config struct {
	QueueSize    int           `split_words:"true" default:"256"`
	WriteTimeout time.Duration `split_words:"true" default:"5s"`
}

type queued struct {
	ctx context.Context
	rec contractx.ErrorRecord
}

// Async is a non-blocking ErrorSink. Records go through a bounded queue to a
// single background writer; when the queue is full the record is dropped.
type Async struct {
	w       Writer
	queue   chan queued
	stop    chan struct{}
	timeout time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	// mu orders enqueues against Close so nothing lands after the drain.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	written atomic.Int64
}

var _ contractx.ErrorSink = (*Async)(nil)

func NewAsync(w Writer, cfg Config) (*Async, error) {
	if w == nil {
		return nil, errors.New("sink writer is required")
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	s := &Async{
		w:       w,
		queue:   make(chan queued, size),
		stop:    make(chan struct{}),
		timeout: timeout,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *Async) Record(ctx context.Context, rec contractx.ErrorRecord) {
	logger := zerolog.Ctx(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		logger.Warn().Int("error_code", rec.ErrorCode).Msg("error sink closed, dropping record")
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	// Detach from request cancellation but keep the request logger.
	detached := logger.WithContext(context.WithoutCancel(ctx))
	select {
	case s.queue <- queued{ctx: detached, rec: rec}:
	default:
		s.dropped.Add(1)
		logger.Warn().Int("error_code", rec.ErrorCode).Str("request_id", rec.RequestID).Msg("error sink queue full, dropping record")
	}
}

func (s *Async) run() {
	defer s.wg.Done()
	for {
		select {
		case q := <-s.queue:
			s.write(q)
		case <-s.stop:
			for {
				select {
				case q := <-s.queue:
					s.write(q)
				default:
					return
				}
			}
		}
	}
}

func (s *Async) write(q queued) {
	ctx, cancel := context.WithTimeout(q.ctx, s.timeout)
	defer cancel()
	if err := s.w.Write(ctx, q.rec); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("error_code", q.rec.ErrorCode).Msg("write error record")
		return
	}
	s.written.Add(1)
}

// Close stops accepting records and waits for the queue to drain.
func (s *Async) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *Async) Dropped() int64 { return s.dropped.Load() }
func (s *Async) Written() int64 { return s.written.Load() }

/* --------------------------------- fan-out -------------------------------- */

type multi []Writer

// Multi writes every record to each writer and joins their errors.
func Multi(writers ...Writer) Writer {
	out := make(multi, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}

func (m multi) Write(ctx context.Context, rec contractx.ErrorRecord) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

/* ---------------------------------- log ---------------------------------- */

// LogWriter emits each record as a structured error line.
type LogWriter struct {
	Logger *zerolog.Logger
}

func (l LogWriter) Write(ctx context.Context, rec contractx.ErrorRecord) error {
	logger := l.Logger
	if logger == nil {
		logger = zerolog.Ctx(ctx)
		if logger.GetLevel() == zerolog.Disabled {
			logger = &log.Logger
		}
	}
	logger.Error().
		Int("error_code", rec.ErrorCode).
		Str("request_id", rec.RequestID).
		Str("user_id", rec.UserID).
		Str("channel", string(rec.Channel)).
		Str("diagnostic", rec.InternalDiagnostic).
		Str("user_text", rec.OriginalUserText).
		Time("at", rec.Timestamp).
		Msg(rec.UserFacingMessage)
	return nil
}
