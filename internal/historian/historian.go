// Package historian drains finished guess game rounds from a queue and persists them in batches.
package historian

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/sirupsen/logrus"
)

// popTimeout bounds each blocking pop so flushes and shutdown are noticed.
const popTimeout = 3 * time.Second

// Queue yields finished rounds. Pop returns nil, nil when nothing arrived within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*guessgame.RoundRecord, error)
}

// Sink stores a batch of rounds atomically.
type Sink interface {
	InsertRounds(ctx context.Context, records []guessgame.RoundRecord) error
}

// Config tunes batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	PopTimeout    time.Duration
}

// Service accumulates rounds popped from a Queue and flushes them to a Sink when the batch
// is full or the flush interval passes.
type Service struct {
	queue Queue
	sink  Sink
	cfg   Config
	log   logrus.FieldLogger

	batchMu sync.Mutex
	batch   []guessgame.RoundRecord
}

// NewService returns a service with defaults filled in for zero config values.
func NewService(q Queue, sink Sink, cfg Config, logger logrus.FieldLogger) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = popTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		queue: q,
		sink:  sink,
		cfg:   cfg,
		log:   logger,
		batch: make([]guessgame.RoundRecord, 0, cfg.BatchSize),
	}
}

// Run consumes the queue until ctx is done, then flushes what is left.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("guessgame historian started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.flushLoop(ctx)
	}()

	s.readLoop(ctx)
	wg.Wait()

	// ctx is already done; the final flush gets its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.flush(flushCtx)
	if n := s.Pending(); n > 0 {
		s.log.Warnf("guessgame historian shutting down with %d unflushed rounds", n)
		return
	}
	s.log.Info("guessgame historian shutting down")
}

func (s *Service) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		rec, err := s.queue.Pop(ctx, s.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Errorf("pop: %v", err)
			// avoid spinning on a dead connection
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.FlushInterval):
			}
			continue
		}
		if rec == nil {
			continue
		}
		s.log.WithField("game", rec.GameCode).Debugf("queued round %d", rec.Round)
		if s.appendToBatch(*rec) {
			s.flush(ctx)
		}
	}
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

// appendToBatch adds rec and reports whether the batch reached its size threshold.
func (s *Service) appendToBatch(rec guessgame.RoundRecord) bool {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.batch = append(s.batch, rec)
	return len(s.batch) >= s.cfg.BatchSize
}

// flush writes the pending batch. A failed batch is put back in front of newer records.
func (s *Service) flush(ctx context.Context) {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	pending := make([]guessgame.RoundRecord, len(s.batch))
	copy(pending, s.batch)
	s.batch = s.batch[:0]
	s.batchMu.Unlock()

	if err := s.sink.InsertRounds(ctx, pending); err != nil {
		s.log.Errorf("flush %d rounds: %v", len(pending), err)
		s.batchMu.Lock()
		s.batch = append(pending, s.batch...)
		s.batchMu.Unlock()
		return
	}
	s.log.Infof("flushed %d rounds to DB", len(pending))
}

// Pending is the number of rounds waiting to be flushed.
func (s *Service) Pending() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}
