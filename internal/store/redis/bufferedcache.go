package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"signalperf/internal/model"
)

// BufferedCache wraps a report cache with a circuit breaker.
// Writes that fail or hit an open circuit are buffered locally and replayed
// when the circuit closes again or the next write succeeds. Only the newest
// record per cache key is kept, and a buffered record is never replayed over
// a newer successful write for the same key.
type BufferedCache struct {
	cache model.ReportCache
	cb    *CircuitBreaker
	ctx   context.Context

	// serializes writes to the underlying cache so a replay cannot land
	// after a newer write for the same key
	writeMu sync.Mutex

	mu       sync.Mutex
	buffer   []pendingWrite
	maxBuf   int // max buffered writes before dropping oldest (default: 10000)
	seq      uint64
	written  map[string]uint64 // cache key -> seq of the last successful write
	flushing bool

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

type pendingWrite struct {
	rec *model.RunRecord
	seq uint64
}

// NewBufferedCache creates a BufferedCache wrapping the given cache.
func NewBufferedCache(ctx context.Context, c model.ReportCache, cb *CircuitBreaker, maxBufferSize int) *BufferedCache {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bc := &BufferedCache{
		cache:   c,
		cb:      cb,
		ctx:     ctx,
		buffer:  make([]pendingWrite, 0, 64),
		maxBuf:  maxBufferSize,
		written: make(map[string]uint64),
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bc.flush()
		}
	}

	return bc
}

// Put writes a report through the circuit breaker. If the circuit is open
// the write is buffered and nil is returned. A failed write is buffered too
// and its error returned. A successful write drops any older buffered record
// for the same key and triggers a replay of the rest.
func (bc *BufferedCache) Put(ctx context.Context, rec *model.RunRecord) error {
	bc.mu.Lock()
	bc.seq++
	seq := bc.seq
	bc.mu.Unlock()

	err := bc.cb.Execute(func() error {
		bc.writeMu.Lock()
		defer bc.writeMu.Unlock()
		if err := bc.cache.Put(ctx, rec); err != nil {
			return err
		}
		bc.markWritten(rec.CacheKey(), seq)
		return nil
	})
	switch {
	case err == nil:
		if bc.PendingCount() > 0 {
			go bc.flush()
		}
		return nil
	case err == ErrCircuitOpen:
		bc.bufferWrite(pendingWrite{rec: rec, seq: seq})
		return nil // buffered, not lost
	default:
		bc.bufferWrite(pendingWrite{rec: rec, seq: seq})
		return err
	}
}

// Get reads through the circuit breaker.
func (bc *BufferedCache) Get(ctx context.Context, key string) (model.Report, error) {
	var r model.Report
	err := bc.cb.Execute(func() error {
		var err error
		r, err = bc.cache.Get(ctx, key)
		return err
	})
	return r, err
}

// markWritten records a successful write and discards buffered records it supersedes.
func (bc *BufferedCache) markWritten(key string, seq uint64) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if seq > bc.written[key] {
		bc.written[key] = seq
	}
	kept := bc.buffer[:0]
	for _, p := range bc.buffer {
		if p.rec.CacheKey() == key && p.seq < seq {
			continue
		}
		kept = append(kept, p)
	}
	bc.buffer = kept
}

func (bc *BufferedCache) bufferWrite(p pendingWrite) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	key := p.rec.CacheKey()
	if bc.written[key] > p.seq {
		return
	}
	for i, old := range bc.buffer {
		if old.rec.CacheKey() != key {
			continue
		}
		if old.seq > p.seq {
			return
		}
		bc.buffer = append(bc.buffer[:i], bc.buffer[i+1:]...)
		break
	}

	if len(bc.buffer) >= bc.maxBuf {
		// Buffer full, drop oldest
		bc.buffer = bc.buffer[1:]
	}
	bc.buffer = append(bc.buffer, p)

	if bc.OnBuffer != nil {
		bc.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying cache. Records
// that fail again go back into the buffer.
func (bc *BufferedCache) flush() {
	bc.mu.Lock()
	if len(bc.buffer) == 0 || bc.flushing {
		bc.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bc.buffer
	bc.buffer = make([]pendingWrite, 0, 64)
	bc.flushing = true
	bc.mu.Unlock()

	flushed, skipped := 0, 0
	for _, p := range toFlush {
		switch err := bc.replay(p); {
		case err == errSuperseded:
			skipped++
		case err != nil:
			log.Printf("[buffered-cache] replay %s failed: %v", p.rec.CacheKey(), err)
			bc.bufferWrite(p)
		default:
			flushed++
		}
	}

	bc.mu.Lock()
	bc.flushing = false
	bc.mu.Unlock()

	log.Printf("[buffered-cache] flushed %d/%d buffered writes (%d superseded)", flushed, len(toFlush), skipped)
	if bc.OnFlush != nil {
		bc.OnFlush(flushed)
	}
}

var errSuperseded = errors.New("superseded by a newer write")

func (bc *BufferedCache) replay(p pendingWrite) error {
	bc.writeMu.Lock()
	defer bc.writeMu.Unlock()

	key := p.rec.CacheKey()
	bc.mu.Lock()
	newer := bc.written[key] > p.seq
	bc.mu.Unlock()
	if newer {
		return errSuperseded
	}
	if err := bc.cache.Put(bc.ctx, p.rec); err != nil {
		return err
	}
	bc.markWritten(key, p.seq)
	return nil
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bc *BufferedCache) PendingCount() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}
