package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"creek/src/contracts"
	"creek/src/logger"
)

const (
	DefaultReadLimit      = 100
	DefaultSessionTimeout = 5 * time.Minute
)

// GatewayConfig tunes a Gateway.
type GatewayConfig struct {
	// Per-shard record limit used when a poll does not ask for one.
	ReadLimit int
	// Sessions not polled for this long are closed.
	SessionTimeout time.Duration
}

// Gateway serves the poll-based wire protocol on top of a Broker. Each remote
// client (one dispatcher) gets a session holding its subscription; a shard
// handed out in a poll is held back from later polls of that client until its
// commit arrives or the lease runs out.
type Gateway struct {
	broker  *Broker
	log     logger.Logger
	limit   int
	timeout time.Duration

	mu       sync.Mutex
	sessions map[contracts.ClientID]*session
}

type session struct {
	mu       sync.Mutex
	sub      *Subscription
	lastSeen time.Time
	// inflight maps a shard to the time after which it may be handed out again.
	inflight map[int]time.Time
}

// NewGateway creates a Gateway.
func NewGateway(b *Broker, cfg GatewayConfig, log logger.Logger) *Gateway {
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Gateway{
		broker:   b,
		log:      log,
		limit:    cfg.ReadLimit,
		timeout:  cfg.SessionTimeout,
		sessions: make(map[contracts.ClientID]*session),
	}
}

// Publish implements contracts.Gateway.
func (g *Gateway) Publish(ctx context.Context, req contracts.PublishRequest) error {
	pub, err := g.broker.Publish(req.Topic)
	if err != nil {
		return err
	}
	return pub.Write(ctx, req.Records...)
}

// Poll implements contracts.Gateway. Offsets are applied before reading;
// offsets the subscription may no longer commit are logged and dropped.
func (g *Gateway) Poll(ctx context.Context, req contracts.PollRequest) (contracts.PollResponse, error) {
	var resp contracts.PollResponse
	if err := validClient(req.Client); err != nil {
		return resp, err
	}
	g.expireSessions()

	sess, err := g.session(req.Client)
	if err != nil {
		return resp, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := g.broker.now()
	sess.lastSeen = now
	if !sess.sub.IsActual() {
		if err := g.resubscribe(req.Client, sess); err != nil {
			return resp, err
		}
	}

	g.commit(req.Client, sess, req.Offsets)

	limit := req.Limit
	if limit <= 0 {
		limit = g.limit
	}
	for _, shard := range sess.sub.Shards() {
		if until, ok := sess.inflight[shard]; ok && now.Before(until) {
			continue
		}
		delete(sess.inflight, shard)

		batch, ok, err := sess.sub.ReadShard(ctx, shard, limit)
		if err != nil {
			return resp, err
		}
		if !ok {
			continue
		}
		sess.inflight[shard] = now.Add(g.broker.leaseTTL)
		resp.Records = append(resp.Records, batch)
	}
	return resp, nil
}

// Unsubscribe implements contracts.Gateway. Final offsets are applied and the
// client's subscription is closed so its shards are free at once.
func (g *Gateway) Unsubscribe(ctx context.Context, req contracts.PollRequest) error {
	if err := validClient(req.Client); err != nil {
		return err
	}

	g.mu.Lock()
	sess, ok := g.sessions[req.Client]
	delete(g.sessions, req.Client)
	g.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	g.commit(req.Client, sess, req.Offsets)
	sess.sub.Close()
	g.log.Info("[Gateway] %s unsubscribed", req.Client)
	return nil
}

// CreateTopic implements contracts.Admin.
func (g *Gateway) CreateTopic(_ context.Context, req contracts.CreateTopicRequest) error {
	return g.broker.Create(req.Topic, req.Shards)
}

// Topics implements contracts.Admin.
func (g *Gateway) Topics(context.Context) ([]contracts.TopicInfo, error) {
	return g.broker.Topics(), nil
}

// Stats implements contracts.Admin.
func (g *Gateway) Stats(ctx context.Context) (contracts.Stats, error) {
	return g.broker.Stats(ctx)
}

// Clear implements contracts.Admin. Sessions keep their subscriptions but
// forget what they had in flight.
func (g *Gateway) Clear(ctx context.Context) error {
	if err := g.broker.Clear(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for _, sess := range g.sessions {
		sessions = append(sessions, sess)
	}
	g.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		sess.inflight = make(map[int]time.Time)
		sess.mu.Unlock()
	}
	return nil
}

// Close closes every session.
func (g *Gateway) Close() {
	g.mu.Lock()
	sessions := g.sessions
	g.sessions = make(map[contracts.ClientID]*session)
	g.mu.Unlock()

	for _, sess := range sessions {
		sess.sub.Close()
	}
}

func (g *Gateway) session(client contracts.ClientID) (*session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if sess, ok := g.sessions[client]; ok {
		return sess, nil
	}

	sub, err := g.broker.subscribe(client.Topic, client.Group, cursorName(client))
	if err != nil {
		return nil, err
	}
	sess := &session{sub: sub, inflight: make(map[int]time.Time)}
	g.sessions[client] = sess
	g.log.Info("[Gateway] %s subscribed as %d", client, sub.ID())
	return sess, nil
}

func (g *Gateway) resubscribe(client contracts.ClientID, sess *session) error {
	sess.sub.leave()
	sub, err := g.broker.subscribe(client.Topic, client.Group, cursorName(client))
	if err != nil {
		return err
	}
	g.log.Info("[Gateway] %s subscription %d expired, resubscribed as %d", client, sess.sub.ID(), sub.ID())
	sess.sub = sub
	sess.inflight = make(map[int]time.Time)
	return nil
}

func (g *Gateway) commit(client contracts.ClientID, sess *session, offsets []contracts.ShardOffset) {
	for _, o := range offsets {
		delete(sess.inflight, o.Shard)
		err := sess.sub.CommitTo(o.Shard, o.Offset)
		switch {
		case err == nil:
		case errors.Is(err, ErrShardNotAssigned), errors.Is(err, ErrCommitBeyondLease), errors.Is(err, ErrSubscriptionClosed):
			g.log.Warn("[Gateway] %s dropped commit of shard %d at %d: %v", client, o.Shard, o.Offset, err)
		default:
			g.log.Error("[Gateway] %s commit of shard %d at %d failed: %v", client, o.Shard, o.Offset, err)
		}
	}
}

// expireSessions closes sessions that have not polled within the timeout.
func (g *Gateway) expireSessions() {
	now := g.broker.now()
	var idle []*session

	g.mu.Lock()
	for client, sess := range g.sessions {
		if sess.mu.TryLock() {
			stale := !sess.lastSeen.IsZero() && now.Sub(sess.lastSeen) >= g.timeout
			sess.mu.Unlock()
			if stale {
				delete(g.sessions, client)
				idle = append(idle, sess)
				g.log.Info("[Gateway] %s idle for %v, closing session", client, g.timeout)
			}
		}
	}
	g.mu.Unlock()

	for _, sess := range idle {
		sess.sub.Close()
	}
}

// cursorName keys a group-less client's cursors by its id, so they carry
// over when its subscription expires and the client is resubscribed.
func cursorName(c contracts.ClientID) string {
	if c.Group != "" {
		return ""
	}
	return "client-" + c.ID
}

func validClient(c contracts.ClientID) error {
	if c.ID == "" || c.Topic == "" {
		return fmt.Errorf("%w: client id and topic are required", ErrInvalidArgument)
	}
	return nil
}
