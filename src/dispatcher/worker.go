package dispatcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"creek/src/contracts"
	"creek/src/logger"
)

// Receiver processes the batches of one shard, one at a time.
// Returning an error rolls the shard back to the start of the batch and
// retires the receiver; the batch is then redelivered to a fresh one.
type Receiver interface {
	Receive(ctx context.Context, batch *Batch) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(ctx context.Context, batch *Batch) error

func (f ReceiverFunc) Receive(ctx context.Context, batch *Batch) error {
	return f(ctx, batch)
}

// ReceiverFactory creates the receiver for a shard's worker. A receiver that
// implements io.Closer is closed when its worker stops.
type ReceiverFactory func(shard int) (Receiver, error)

// Batch is a run of records of one shard handed to a Receiver.
type Batch struct {
	Shard   int
	Offset  int64
	Records []contracts.Record

	codec  contracts.Codec
	worker *worker
}

// Len returns the number of records.
func (b *Batch) Len() int {
	return len(b.Records)
}

// Next returns the offset after the last record.
func (b *Batch) Next() int64 {
	return b.Offset + int64(len(b.Records))
}

// Decode unmarshals the value of record i into v.
func (b *Batch) Decode(i int, v any) error {
	if i < 0 || i >= len(b.Records) {
		return fmt.Errorf("record %d out of range for batch of %d", i, len(b.Records))
	}
	if err := b.codec.Unmarshal(b.Records[i].Value, v); err != nil {
		return fmt.Errorf("failed to decode record %d of shard %d: %w", i, b.Shard, err)
	}
	return nil
}

// Commit marks the whole batch as processed. The offset is sent with the
// next poll. Auto-commit mode calls it after a successful Receive.
func (b *Batch) Commit() {
	b.worker.setPending(b.Next())
}

// worker runs one shard's receiver. The slot holds at most one batch, so the
// poll loop cannot get ahead of the receiver.
type worker struct {
	shard      int
	recv       Receiver
	codec      contracts.Codec
	autoCommit bool
	log        logger.Logger

	slot chan contracts.ShardRecords
	stop chan struct{}
	done chan struct{}

	mu         sync.Mutex
	pending    int64
	hasPending bool
	busy       bool
	lastActive time.Time
}

func newWorker(shard int, recv Receiver, codec contracts.Codec, autoCommit bool, log logger.Logger) *worker {
	return &worker{
		shard:      shard,
		recv:       recv,
		codec:      codec,
		autoCommit: autoCommit,
		log:        log,
		slot:       make(chan contracts.ShardRecords, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.closeReceiver()

	for {
		select {
		case batch := <-w.slot:
			if !w.process(ctx, batch) {
				return
			}
		case <-w.stop:
			// Finish a batch that was already handed over.
			select {
			case batch := <-w.slot:
				w.process(ctx, batch)
			default:
			}
			return
		}
	}
}

// process runs the receiver on one batch and reports whether the worker
// should keep going.
func (w *worker) process(ctx context.Context, records contracts.ShardRecords) bool {
	w.mu.Lock()
	w.busy = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.busy = false
		w.lastActive = time.Now()
		w.mu.Unlock()
	}()

	batch := &Batch{
		Shard:   records.Shard,
		Offset:  records.Offset,
		Records: records.Records,
		codec:   w.codec,
		worker:  w,
	}
	if err := w.receive(ctx, batch); err != nil {
		w.log.Error("[Dispatcher] Shard %d failed at offset %d, rolling back: %v", w.shard, batch.Offset, err)
		w.setPending(batch.Offset)
		return false
	}
	if w.autoCommit {
		batch.Commit()
	}
	return true
}

func (w *worker) receive(ctx context.Context, batch *Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("receiver panic: %v", r)
		}
	}()
	return w.recv.Receive(ctx, batch)
}

// full reports whether a batch is already queued behind the running one.
func (w *worker) full() bool {
	return len(w.slot) == cap(w.slot)
}

// offer hands a batch to the worker, blocking while the previous one is
// still queued. It fails if the worker has exited or ctx is done.
func (w *worker) offer(ctx context.Context, batch contracts.ShardRecords) bool {
	select {
	case w.slot <- batch:
		return true
	case <-w.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (w *worker) setPending(offset int64) {
	w.mu.Lock()
	w.pending = offset
	w.hasPending = true
	w.mu.Unlock()
}

// takePending returns and clears the offset waiting to be committed.
func (w *worker) takePending() (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	offset, ok := w.pending, w.hasPending
	w.hasPending = false
	return offset, ok
}

func (w *worker) idleSince(now time.Time, timeout time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.busy && len(w.slot) == 0 && now.Sub(w.lastActive) >= timeout
}

func (w *worker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *worker) closeReceiver() {
	if c, ok := w.recv.(io.Closer); ok {
		if err := c.Close(); err != nil {
			w.log.Warn("[Dispatcher] Closing receiver of shard %d: %v", w.shard, err)
		}
	}
}
