package redis

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"trendbot/internal/model"
)

// eventWriter is the subset of Writer used by BufferedWriter.
type eventWriter interface {
	WriteBar(ctx context.Context, b model.Bar) error
	WriteDecision(ctx context.Context, d model.Decision) error
	Close() error
}

// pendingWrite is a write held back while Redis is unavailable.
// Exactly one of bar or decision is set.
type pendingWrite struct {
	bar      *model.Bar
	decision *model.Decision
}

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// Writes that are rejected by the breaker or fail are buffered locally and
// replayed in order when the circuit closes again.
type BufferedWriter struct {
	writer eventWriter
	cb     *CircuitBreaker
	ctx    context.Context
	log    zerolog.Logger

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

var (
	_ model.BarWriter      = (*BufferedWriter)(nil)
	_ model.DecisionWriter = (*BufferedWriter)(nil)
)

// NewBufferedWriter creates a BufferedWriter wrapping w. ctx bounds the
// background flushes.
func NewBufferedWriter(ctx context.Context, w eventWriter, cb *CircuitBreaker, maxBufferSize int, logger zerolog.Logger) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		log:    logger.With().Str("component", "redis-buffer").Logger(),
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// RunBars writes bars from barCh until ctx is cancelled or barCh is closed.
func (bw *BufferedWriter) RunBars(ctx context.Context, barCh <-chan model.Bar) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-barCh:
			if !ok {
				return
			}
			bw.WriteBar(b)
		}
	}
}

// RunDecisions writes decisions from ch until ctx is cancelled or ch is closed.
func (bw *BufferedWriter) RunDecisions(ctx context.Context, ch <-chan model.Decision) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			bw.WriteDecision(d)
		}
	}
}

// WriteBar writes a bar through the circuit breaker, buffering it on failure.
func (bw *BufferedWriter) WriteBar(b model.Bar) {
	err := bw.cb.Execute(func() error { return bw.writer.WriteBar(bw.ctx, b) })
	if err != nil {
		bw.hold(pendingWrite{bar: &b}, err)
		return
	}
	bw.drain()
}

// WriteDecision writes a decision through the circuit breaker, buffering it on failure.
func (bw *BufferedWriter) WriteDecision(d model.Decision) {
	err := bw.cb.Execute(func() error { return bw.writer.WriteDecision(bw.ctx, d) })
	if err != nil {
		bw.hold(pendingWrite{decision: &d}, err)
		return
	}
	bw.drain()
}

// drain flushes writes held back by failures that never tripped the breaker.
// Called after a successful write.
func (bw *BufferedWriter) drain() {
	if bw.PendingCount() > 0 {
		bw.flush()
	}
}

func (bw *BufferedWriter) hold(pw pendingWrite, err error) {
	if !errors.Is(err, ErrCircuitOpen) {
		bw.log.Warn().Err(err).Msg("redis write failed, buffering")
	}

	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pw)
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer. A write
// that fails again is put back at the front of the buffer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for i, pw := range toFlush {
		var err error
		if pw.bar != nil {
			err = bw.writer.WriteBar(bw.ctx, *pw.bar)
		} else {
			err = bw.writer.WriteDecision(bw.ctx, *pw.decision)
		}
		if err != nil {
			bw.log.Warn().Err(err).Int("remaining", len(toFlush)-i).Msg("flush interrupted")
			bw.mu.Lock()
			bw.buffer = append(append([]pendingWrite{}, toFlush[i:]...), bw.buffer...)
			bw.mu.Unlock()
			break
		}
		flushed++
	}

	bw.log.Info().Int("count", flushed).Msg("flushed buffered writes")
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Close closes the underlying writer. Writes still buffered are lost.
func (bw *BufferedWriter) Close() error {
	if n := bw.PendingCount(); n > 0 {
		bw.log.Warn().Int("pending", n).Msg("closing with buffered writes")
	}
	return bw.writer.Close()
}
