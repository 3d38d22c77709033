// internal/historian/historian_test.go
package historian

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/bikelane/internal/guessgame"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanQueue pops from a buffered channel.
type chanQueue struct {
	ch chan guessgame.RoundRecord
}

func newChanQueue() *chanQueue {
	return &chanQueue{ch: make(chan guessgame.RoundRecord, 100)}
}

func (q *chanQueue) Pop(ctx context.Context, timeout time.Duration) (*guessgame.RoundRecord, error) {
	select {
	case rec := <-q.ch:
		return &rec, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingSink struct {
	mu      sync.Mutex
	batches [][]guessgame.RoundRecord
	failN   int
}

func (s *recordingSink) InsertRounds(_ context.Context, records []guessgame.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return errors.New("db unavailable")
	}
	s.batches = append(s.batches, append([]guessgame.RoundRecord(nil), records...))
	return nil
}

func (s *recordingSink) stored() []guessgame.RoundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []guessgame.RoundRecord
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *recordingSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func record(round int) guessgame.RoundRecord {
	return guessgame.RoundRecord{ID: uuid.New(), GameCode: "123456789", Round: round}
}

func runService(t *testing.T, svc *Service) (cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	return func() {
		cancelCtx()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("historian did not stop")
		}
	}
}

func TestFlushesWhenBatchFull(t *testing.T) {
	q := newChanQueue()
	sink := &recordingSink{}
	svc := NewService(q, sink, Config{BatchSize: 3, FlushInterval: time.Hour, PopTimeout: 10 * time.Millisecond}, quietLogger())
	stop := runService(t, svc)
	defer stop()

	for i := 1; i <= 3; i++ {
		q.ch <- record(i)
	}
	require.Eventually(t, func() bool { return sink.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	stored := sink.stored()
	require.Len(t, stored, 3)
	for i, rec := range stored {
		assert.Equal(t, i+1, rec.Round)
	}
}

func TestFlushesOnInterval(t *testing.T) {
	q := newChanQueue()
	sink := &recordingSink{}
	svc := NewService(q, sink, Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond, PopTimeout: 10 * time.Millisecond}, quietLogger())
	stop := runService(t, svc)
	defer stop()

	q.ch <- record(1)
	require.Eventually(t, func() bool { return len(sink.stored()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFinalFlushOnShutdown(t *testing.T) {
	q := newChanQueue()
	sink := &recordingSink{}
	svc := NewService(q, sink, Config{BatchSize: 100, FlushInterval: time.Hour, PopTimeout: 10 * time.Millisecond}, quietLogger())
	stop := runService(t, svc)

	q.ch <- record(1)
	q.ch <- record(2)
	require.Eventually(t, func() bool { return svc.Pending() == 2 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Len(t, sink.stored(), 2)
	assert.Equal(t, 0, svc.Pending())
}

func TestFailedFlushIsRetried(t *testing.T) {
	q := newChanQueue()
	sink := &recordingSink{failN: 1}
	svc := NewService(q, sink, Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond, PopTimeout: 10 * time.Millisecond}, quietLogger())
	stop := runService(t, svc)
	defer stop()

	q.ch <- record(1)
	require.Eventually(t, func() bool { return len(sink.stored()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sink.stored()[0].Round)
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(newChanQueue(), &recordingSink{}, Config{}, nil)
	assert.Equal(t, 20, svc.cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, svc.cfg.FlushInterval)
	assert.Equal(t, popTimeout, svc.cfg.PopTimeout)
}
