// Package dispatcher consumes a topic through a broker gateway, running one
// receiver per assigned shard.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"creek/src/contracts"
	"creek/src/logger"
)

const (
	DefaultPollInterval    = 20 * time.Millisecond
	DefaultIdleTimeout     = 5 * time.Minute
	DefaultStartupAttempts = 10
	DefaultStartupBackoff  = time.Second
)

// Config configures a Dispatcher.
type Config struct {
	Topic string
	// Group shares the topic's shards with other dispatchers of the same
	// group. Empty means this dispatcher reads every shard on its own.
	Group string
	// ClientID identifies this dispatcher to the broker; generated when empty.
	ClientID string
	// Limit is the per-shard batch size; zero lets the broker decide.
	Limit      int
	AutoCommit bool

	PollInterval time.Duration
	// IdleTimeout retires workers of shards that stopped delivering.
	IdleTimeout     time.Duration
	StartupAttempts int
	// StartupBackoff is multiplied by the attempt number between startup polls.
	StartupBackoff time.Duration
}

func (c *Config) setDefaults() {
	if c.ClientID == "" {
		c.ClientID = uuid.NewString()
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.StartupAttempts <= 0 {
		c.StartupAttempts = DefaultStartupAttempts
	}
	if c.StartupBackoff <= 0 {
		c.StartupBackoff = DefaultStartupBackoff
	}
}

// Option configures optional Dispatcher collaborators.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithCodec sets the codec used by Batch.Decode.
func WithCodec(c contracts.Codec) Option {
	return func(d *Dispatcher) { d.codec = c }
}

// Dispatcher polls a gateway on a fixed delay and fans batches out to
// per-shard workers. Commits ride along with the next poll.
type Dispatcher struct {
	gw      contracts.Gateway
	cfg     Config
	client  contracts.ClientID
	factory ReceiverFactory
	codec   contracts.Codec
	log     logger.Logger

	// Touched only by the goroutine driving the poll loop.
	workers   map[int]*worker
	carry     map[int]int64
	workerCtx context.Context
	cancel    context.CancelFunc
}

// New creates a Dispatcher.
func New(gw contracts.Gateway, cfg Config, factory ReceiverFactory, opts ...Option) *Dispatcher {
	cfg.setDefaults()
	d := &Dispatcher{
		gw:      gw,
		cfg:     cfg,
		client:  contracts.ClientID{ID: cfg.ClientID, Group: cfg.Group, Topic: cfg.Topic},
		factory: factory,
		codec:   contracts.JSONCodec{},
		log:     logger.NewSilentLogger(),
		workers: make(map[int]*worker),
		carry:   make(map[int]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Client returns the identity the dispatcher polls with.
func (d *Dispatcher) Client() contracts.ClientID {
	return d.client
}

// Run starts the dispatcher and polls until ctx is cancelled, then shuts
// down. It returns an error only if startup fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	d.log.Info("[Dispatcher] %s polling every %v", d.client, d.cfg.PollInterval)

	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return d.Shutdown(context.WithoutCancel(ctx))
		case <-timer.C:
		}

		if err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Error("[Dispatcher] Poll failed: %v", err)
		}
		timer.Reset(d.cfg.PollInterval)
	}
}

// Start runs the first poll, retrying with linear backoff while the broker
// is unreachable.
func (d *Dispatcher) Start(ctx context.Context) error {
	if d.workerCtx == nil {
		d.workerCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}

	var err error
	for attempt := 1; attempt <= d.cfg.StartupAttempts; attempt++ {
		if err = d.RunOnce(ctx); err == nil {
			return nil
		}
		d.log.Warn("[Dispatcher] Startup poll %d/%d failed: %v", attempt, d.cfg.StartupAttempts, err)
		if attempt == d.cfg.StartupAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to start dispatcher: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * d.cfg.StartupBackoff):
		}
	}
	return fmt.Errorf("failed to start dispatcher after %d attempts: %w", d.cfg.StartupAttempts, err)
}

// RunOnce performs one poll iteration: retire finished and idle workers,
// send pending commits, and hand the returned batches to their workers.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	if d.workerCtx == nil {
		d.workerCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	d.reap(time.Now())

	offsets := d.collect()
	resp, err := d.gw.Poll(ctx, contracts.PollRequest{Client: d.client, Offsets: offsets, Limit: d.cfg.Limit})
	if err != nil {
		d.keep(offsets)
		return err
	}

	for _, batch := range resp.Records {
		w, err := d.worker(batch.Shard)
		if err != nil {
			d.log.Error("[Dispatcher] No receiver for shard %d: %v", batch.Shard, err)
			d.carry[batch.Shard] = batch.Offset
			continue
		}
		if w.full() {
			// The queued batch still covers these records; the lease lapses
			// and the shard comes back once the worker commits.
			d.log.Debug("[Dispatcher] Shard %d worker busy, skipping batch at %d", batch.Shard, batch.Offset)
			continue
		}
		if !w.offer(ctx, batch) {
			// Give the batch back so it is redelivered.
			d.carry[batch.Shard] = batch.Offset
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return nil
}

// Shutdown drains every worker, then sends the final commits and releases
// the dispatcher's shards.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	for _, w := range d.workers {
		close(w.stop)
	}
	for shard, w := range d.workers {
		<-w.done
		d.retire(shard, w)
	}
	if d.cancel != nil {
		d.cancel()
	}

	offsets := d.collect()
	err := d.gw.Unsubscribe(ctx, contracts.PollRequest{Client: d.client, Offsets: offsets})
	if err != nil {
		return fmt.Errorf("failed to unsubscribe %s: %w", d.client, err)
	}
	d.log.Info("[Dispatcher] %s stopped with %d final commits", d.client, len(offsets))
	return nil
}

func (d *Dispatcher) worker(shard int) (*worker, error) {
	if w, ok := d.workers[shard]; ok {
		return w, nil
	}
	if d.factory == nil {
		return nil, errors.New("no receiver factory")
	}
	recv, err := d.factory(shard)
	if err != nil {
		return nil, err
	}
	w := newWorker(shard, recv, d.codec, d.cfg.AutoCommit, d.log)
	d.workers[shard] = w
	go w.run(d.workerCtx)
	d.log.Debug("[Dispatcher] Started worker for shard %d", shard)
	return w, nil
}

// reap removes workers that exited after a failure or sat idle too long,
// keeping their pending commits for the next poll.
func (d *Dispatcher) reap(now time.Time) {
	for shard, w := range d.workers {
		switch {
		case w.exited():
			d.retire(shard, w)
		case w.idleSince(now, d.cfg.IdleTimeout):
			close(w.stop)
			<-w.done
			d.retire(shard, w)
			d.log.Debug("[Dispatcher] Retired idle worker for shard %d", shard)
		}
	}
}

func (d *Dispatcher) retire(shard int, w *worker) {
	offset, ok := w.takePending()
	select {
	case batch := <-w.slot:
		// Handed over after the worker gave up; roll back to it.
		if !ok || batch.Offset < offset {
			offset, ok = batch.Offset, true
		}
	default:
	}
	if ok {
		d.carry[shard] = offset
	}
	delete(d.workers, shard)
}

// collect gathers pending commits, newest first: a live worker's offset
// replaces anything carried over.
func (d *Dispatcher) collect() []contracts.ShardOffset {
	pending := d.carry
	d.carry = make(map[int]int64)
	for shard, w := range d.workers {
		if offset, ok := w.takePending(); ok {
			pending[shard] = offset
		}
	}

	offsets := make([]contracts.ShardOffset, 0, len(pending))
	for shard, offset := range pending {
		offsets = append(offsets, contracts.ShardOffset{Shard: shard, Offset: offset})
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i].Shard < offsets[j].Shard })
	return offsets
}

// keep puts commits back after a failed poll unless a newer one arrived.
func (d *Dispatcher) keep(offsets []contracts.ShardOffset) {
	for _, o := range offsets {
		if _, ok := d.carry[o.Shard]; !ok {
			d.carry[o.Shard] = o.Offset
		}
	}
}
