package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"creek/src/broker"
	"creek/src/contracts"
	"creek/src/logger"
	"creek/src/store"
)

// collector records every value delivered per shard.
type collector struct {
	mu     sync.Mutex
	byKey  map[string][]int
	total  int
	closed int
}

func newCollector() *collector {
	return &collector{byKey: make(map[string][]int)}
}

func (c *collector) add(key string, v int) {
	c.mu.Lock()
	c.byKey[key] = append(c.byKey[key], v)
	c.total++
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func (c *collector) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return nil
}

type message struct {
	Key string `json:"key"`
	Seq int    `json:"seq"`
}

func newTestGateway(t *testing.T, topic string, shards int) *broker.Gateway {
	t.Helper()
	b := broker.New(store.NewInMemoryStore(), broker.WithLeaseTTL(time.Second))
	if err := b.Create(topic, shards); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	g := broker.NewGateway(b, broker.GatewayConfig{ReadLimit: 5}, logger.NewSilentLogger())
	t.Cleanup(g.Close)
	return g
}

func publish(t *testing.T, gw contracts.Gateway, topic string, msgs ...message) {
	t.Helper()
	var records []contracts.Record
	for _, m := range msgs {
		value, err := contracts.JSONCodec{}.Marshal(m)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		records = append(records, contracts.Record{Value: value, ShardKey: []byte(m.Key)})
	}
	if err := gw.Publish(context.Background(), contracts.PublishRequest{Topic: topic, Records: records}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func testConfig(topic string) Config {
	return Config{
		Topic:          topic,
		Group:          "g",
		AutoCommit:     true,
		PollInterval:   time.Millisecond,
		StartupBackoff: time.Millisecond,
	}
}

func TestDispatcherDeliversInShardOrder(t *testing.T) {
	gw := newTestGateway(t, "orders", 3)
	keys := []string{"alice", "bob", "carol", "dave"}
	var msgs []message
	for seq := 0; seq < 20; seq++ {
		for _, k := range keys {
			msgs = append(msgs, message{Key: k, Seq: seq})
		}
	}
	publish(t, gw, "orders", msgs...)

	got := newCollector()
	d := New(gw, testConfig("orders"), func(shard int) (Receiver, error) {
		return ReceiverFunc(func(ctx context.Context, b *Batch) error {
			for i := 0; i < b.Len(); i++ {
				var m message
				if err := b.Decode(i, &m); err != nil {
					return err
				}
				got.add(m.Key, m.Seq)
			}
			return nil
		}), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "all messages", func() bool { return got.count() >= len(msgs) })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got.count() != len(msgs) {
		t.Errorf("delivered %d messages, want %d", got.count(), len(msgs))
	}
	for _, k := range keys {
		seqs := got.byKey[k]
		for i, seq := range seqs {
			if seq != i {
				t.Fatalf("key %s delivered out of order: %v", k, seqs)
			}
		}
	}
}

func TestDispatcherRedeliversFailedBatch(t *testing.T) {
	gw := newTestGateway(t, "jobs", 1)
	publish(t, gw, "jobs", message{Key: "k", Seq: 0}, message{Key: "k", Seq: 1}, message{Key: "k", Seq: 2})

	var mu sync.Mutex
	var seen []int
	failed := false
	factories := 0

	d := New(gw, testConfig("jobs"), func(shard int) (Receiver, error) {
		mu.Lock()
		factories++
		mu.Unlock()
		return ReceiverFunc(func(ctx context.Context, b *Batch) error {
			mu.Lock()
			defer mu.Unlock()
			for i := 0; i < b.Len(); i++ {
				var m message
				if err := b.Decode(i, &m); err != nil {
					return err
				}
				seen = append(seen, m.Seq)
				if m.Seq == 1 && !failed {
					failed = true
					return errors.New("transient failure")
				}
			}
			return nil
		}), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "redelivery", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 5
	})
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	want := []int{0, 1, 0, 1, 2}
	if fmt.Sprint(seen) != fmt.Sprint(want) {
		t.Errorf("processed %v, want %v", seen, want)
	}
	if factories != 2 {
		t.Errorf("receiver factory called %d times, want 2", factories)
	}
}

func TestDispatcherManualCommit(t *testing.T) {
	gw := newTestGateway(t, "jobs", 1)
	publish(t, gw, "jobs", message{Key: "k", Seq: 0})

	cfg := testConfig("jobs")
	cfg.AutoCommit = false
	var mu sync.Mutex
	deliveries := 0
	d := New(gw, cfg, func(shard int) (Receiver, error) {
		return ReceiverFunc(func(ctx context.Context, b *Batch) error {
			mu.Lock()
			deliveries++
			n := deliveries
			mu.Unlock()
			if n == 2 {
				b.Commit()
			}
			return nil
		}), nil
	})

	// The first delivery is never committed, so the broker hands it out
	// again once the lease runs out; the second one commits.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFor(t, "redelivery after lease expiry", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries >= 2
	})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if deliveries != 2 {
		t.Errorf("deliveries = %d, want 2", deliveries)
	}
}

// scriptedGateway fails the first polls and records every request.
type scriptedGateway struct {
	mu          sync.Mutex
	failures    int
	polls       []contracts.PollRequest
	responses   []contracts.PollResponse
	unsubscribe *contracts.PollRequest
}

func (g *scriptedGateway) Publish(context.Context, contracts.PublishRequest) error {
	return nil
}

func (g *scriptedGateway) Poll(_ context.Context, req contracts.PollRequest) (contracts.PollResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls = append(g.polls, req)
	if g.failures > 0 {
		g.failures--
		return contracts.PollResponse{}, errors.New("connection refused")
	}
	if len(g.responses) == 0 {
		return contracts.PollResponse{}, nil
	}
	resp := g.responses[0]
	g.responses = g.responses[1:]
	return resp, nil
}

func (g *scriptedGateway) Unsubscribe(_ context.Context, req contracts.PollRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unsubscribe = &req
	return nil
}

func TestDispatcherStartupRetries(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		wantErr  bool
	}{
		{name: "first poll succeeds", failures: 0},
		{name: "broker comes up late", failures: 3},
		{name: "broker never comes up", failures: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &scriptedGateway{failures: tt.failures}
			cfg := testConfig("jobs")
			cfg.StartupAttempts = 5
			d := New(gw, cfg, nil)

			err := d.Start(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}

			wantPolls := tt.failures + 1
			if tt.wantErr {
				wantPolls = cfg.StartupAttempts
			}
			if len(gw.polls) != wantPolls {
				t.Errorf("polls = %d, want %d", len(gw.polls), wantPolls)
			}
		})
	}
}

func TestDispatcherShutdownCommitsAndUnsubscribes(t *testing.T) {
	gw := &scriptedGateway{responses: []contracts.PollResponse{{
		Records: []contracts.ShardRecords{
			{Shard: 0, Offset: 10, Records: []contracts.Record{{Value: []byte(`{}`)}, {Value: []byte(`{}`)}}},
			{Shard: 2, Offset: 4, Records: []contracts.Record{{Value: []byte(`{}`)}}},
		},
	}}}

	receivers := newCollector()
	release := make(chan struct{})
	d := New(gw, testConfig("jobs"), func(shard int) (Receiver, error) {
		return &blockingReceiver{collector: receivers, release: release}, nil
	})

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// Shutdown waits for in-flight batches.
	shutdown := make(chan error, 1)
	go func() { shutdown <- d.Shutdown(context.Background()) }()
	select {
	case err := <-shutdown:
		t.Fatalf("Shutdown() returned %v before batches finished", err)
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-shutdown:
		if err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Shutdown()")
	}

	if gw.unsubscribe == nil {
		t.Fatal("Unsubscribe() was not called")
	}
	want := []contracts.ShardOffset{{Shard: 0, Offset: 12}, {Shard: 2, Offset: 5}}
	if fmt.Sprint(gw.unsubscribe.Offsets) != fmt.Sprint(want) {
		t.Errorf("final offsets = %v, want %v", gw.unsubscribe.Offsets, want)
	}
	if gw.unsubscribe.Client != d.Client() {
		t.Errorf("Unsubscribe() client = %v, want %v", gw.unsubscribe.Client, d.Client())
	}
	if receivers.closed != 2 {
		t.Errorf("closed %d receivers, want 2", receivers.closed)
	}
}

func TestDispatcherKeepsCommitsAfterFailedPoll(t *testing.T) {
	gw := &scriptedGateway{responses: []contracts.PollResponse{{
		Records: []contracts.ShardRecords{{Shard: 1, Offset: 0, Records: []contracts.Record{{Value: []byte(`{}`)}}}},
	}}}
	processed := make(chan struct{}, 1)
	d := New(gw, testConfig("jobs"), func(shard int) (Receiver, error) {
		return ReceiverFunc(func(ctx context.Context, b *Batch) error {
			processed <- struct{}{}
			return nil
		}), nil
	})
	ctx := context.Background()

	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	<-processed
	// Let the worker record its commit.
	waitFor(t, "pending commit", func() bool {
		w := d.workers[1]
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.hasPending
	})

	gw.failures = 1
	if err := d.RunOnce(ctx); err == nil {
		t.Fatal("RunOnce() error = nil, want poll failure")
	}
	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	last := gw.polls[len(gw.polls)-1]
	want := []contracts.ShardOffset{{Shard: 1, Offset: 1}}
	if fmt.Sprint(last.Offsets) != fmt.Sprint(want) {
		t.Errorf("offsets after retry = %v, want %v", last.Offsets, want)
	}
}

func TestDispatcherRetiresIdleWorkers(t *testing.T) {
	gw := &scriptedGateway{responses: []contracts.PollResponse{
		{Records: []contracts.ShardRecords{{Shard: 0, Offset: 0, Records: []contracts.Record{{Value: []byte(`{}`)}}}}},
	}}
	receivers := newCollector()
	cfg := testConfig("jobs")
	cfg.IdleTimeout = 10 * time.Millisecond
	d := New(gw, cfg, func(shard int) (Receiver, error) {
		return &blockingReceiver{collector: receivers, release: closedChan()}, nil
	})
	ctx := context.Background()

	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	if len(d.workers) != 0 {
		t.Errorf("workers = %d, want idle worker retired", len(d.workers))
	}
	if receivers.closed != 1 {
		t.Errorf("closed %d receivers, want 1", receivers.closed)
	}
	last := gw.polls[len(gw.polls)-1]
	if len(last.Offsets) != 1 || last.Offsets[0].Offset != 1 {
		t.Errorf("offsets = %v, want the retired worker's commit", last.Offsets)
	}
}

func TestDispatcherSkipsBatchForBusyWorker(t *testing.T) {
	batch := contracts.ShardRecords{Shard: 0, Offset: 0, Records: []contracts.Record{{Value: []byte(`{}`)}}}
	gw := &scriptedGateway{responses: []contracts.PollResponse{
		{Records: []contracts.ShardRecords{batch}},
		{Records: []contracts.ShardRecords{batch}},
		{Records: []contracts.ShardRecords{batch}},
	}}
	receivers := newCollector()
	release := make(chan struct{})
	d := New(gw, testConfig("jobs"), func(shard int) (Receiver, error) {
		return &blockingReceiver{collector: receivers, release: release}, nil
	})
	ctx := context.Background()

	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	waitFor(t, "worker to pick up the batch", func() bool {
		w := d.workers[0]
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.busy
	})
	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// The slot is taken; the third delivery must not stall the poll loop.
	done := make(chan error, 1)
	go func() { done <- d.RunOnce(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunOnce() error = %v", err)
		}
	case <-time.After(time.Second):
		close(release)
		t.Fatal("RunOnce() blocked on a busy worker")
	}
	if len(d.carry) != 0 {
		t.Errorf("carry = %v, want nothing for the skipped batch", d.carry)
	}

	close(release)
	waitFor(t, "queued batches", func() bool { return receivers.count() == 2 })
	waitFor(t, "pending commit", func() bool {
		w := d.workers[0]
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.hasPending && !w.busy
	})
	if err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	last := gw.polls[len(gw.polls)-1]
	want := []contracts.ShardOffset{{Shard: 0, Offset: 1}}
	if fmt.Sprint(last.Offsets) != fmt.Sprint(want) {
		t.Errorf("offsets = %v, want %v", last.Offsets, want)
	}
}

type blockingReceiver struct {
	*collector
	release chan struct{}
}

func (r *blockingReceiver) Receive(ctx context.Context, b *Batch) error {
	<-r.release
	r.add(fmt.Sprint(b.Shard), int(b.Offset))
	return nil
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}
