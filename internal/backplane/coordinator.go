// Package backplane routes client-method invocations between server
// processes through a shared pub/sub bus so that many processes, each
// holding a disjoint set of live connections, behave as one logical
// messaging domain.
//
// Delivery is at-most-once and unordered: a send "succeeds" once the
// local bus client accepts it, independent of whether any remote process
// or connection ever receives it.
package backplane

import (
	"context"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fathima-sithara/realtime-backplane/internal/bus"
	"github.com/fathima-sithara/realtime-backplane/internal/subject"
	"github.com/fathima-sithara/realtime-backplane/internal/wire"
)

const (
	DefaultAckTimeout    = 10 * time.Second
	DefaultReconnectWait = 60 * time.Second
	DefaultReconnectPoll = 250 * time.Millisecond
)

// Options tune the coordinator's timeouts. Zero values fall back to the
// defaults above.
type Options struct {
	// AckTimeout bounds the wait for a group command acknowledgment.
	AckTimeout time.Duration

	// ReconnectWait bounds how long an operation blocks while the bus
	// client is reconnecting; ReconnectPoll is the polling interval.
	ReconnectWait time.Duration
	ReconnectPoll time.Duration
}

func (o Options) withDefaults() Options {
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = DefaultReconnectWait
	}
	if o.ReconnectPoll <= 0 {
		o.ReconnectPoll = DefaultReconnectPoll
	}
	return o
}

// Coordinator owns the subscription registries, the connection directory
// and the bus handle for one hub. All methods are safe for concurrent
// use; sends never take a global lock, they only read the interest index.
type Coordinator struct {
	bus        bus.Bus
	names      subject.Names
	opts       Options
	log        *zap.SugaredLogger
	serverName string

	conns     *directory
	connSubs  *registry
	groupSubs *registry
	userSubs  *registry

	// ackID correlates group command replies on this process only; it is
	// never used for ordering or cross-process uniqueness.
	ackID atomic.Uint32

	mgmt bus.Subscription
	wg   sync.WaitGroup
}

// New builds a coordinator for the given hub namespace and starts the
// group-management subscriber.
func New(b bus.Bus, names subject.Names, log *zap.SugaredLogger, opts Options) (*Coordinator, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	c := &Coordinator{
		bus:        b,
		names:      names,
		opts:       opts.withDefaults(),
		log:        log,
		serverName: host + "_" + uuid.NewString(),
		conns:      newDirectory(),
		connSubs:   newRegistry(),
		groupSubs:  newRegistry(),
		userSubs:   newRegistry(),
	}

	mgmt, err := b.Subscribe(names.GroupManagement())
	if err != nil {
		return nil, err
	}
	c.mgmt = mgmt
	c.wg.Add(1)
	go c.groupCommandLoop(mgmt)

	return c, nil
}

// ServerName identifies this process in group commands and diagnostics.
// It is never used for addressing.
func (c *Coordinator) ServerName() string { return c.serverName }

// Close stops the group-management subscriber and waits for the delivery
// loops to drain. Connections should be disconnected first.
func (c *Coordinator) Close() error {
	err := c.mgmt.Unsubscribe()
	c.wg.Wait()
	return err
}

// waitForBus is the health gate run before every public operation: fail
// fast when the bus is permanently closed, block (bounded) while the
// client is still reconnecting. Transient outages heal without anyone
// restarting the coordinator.
func (c *Coordinator) waitForBus(ctx context.Context) error {
	if c.bus.IsClosed() {
		return ErrBusClosed
	}
	if !c.bus.IsReconnecting() {
		return nil
	}
	c.log.Infow("bus reconnecting, waiting", "timeout", c.opts.ReconnectWait)
	deadline := time.NewTimer(c.opts.ReconnectWait)
	defer deadline.Stop()
	tick := time.NewTicker(c.opts.ReconnectPoll)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			if c.bus.IsClosed() {
				return ErrBusClosed
			}
			if !c.bus.IsReconnecting() {
				return nil
			}
		case <-deadline.C:
			return ErrBusReconnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// OnConnected attaches a connection to this process: it joins the
// directory and gains interest in the hub-wide subject, its connection
// subject and, when authenticated, its user subject. The subscriptions
// run concurrently and the call completes only when all finished; on
// failure the partial attach is rolled back so nothing retains the
// connection.
func (c *Coordinator) OnConnected(ctx context.Context, conn Connection) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	t := newTracked(conn)
	c.conns.add(t)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.connSubs.addInterest(c.names.All(), t, c.invocationSubscriber(c.connSubs))
	})
	g.Go(func() error {
		return c.connSubs.addInterest(c.names.Connection(t.ID()), t, c.invocationSubscriber(c.connSubs))
	})
	if uid := t.UserID(); uid != "" {
		g.Go(func() error {
			return c.userSubs.addInterest(c.names.User(uid), t, c.invocationSubscriber(c.userSubs))
		})
	}
	if err := g.Wait(); err != nil {
		c.conns.remove(t.ID())
		if derr := c.detach(t); derr != nil {
			c.log.Warnw("rollback of failed attach", "connection", t.ID(), "error", derr)
		}
		return err
	}
	return nil
}

// OnDisconnected detaches a connection: directory removal, then the
// hub-wide, connection and user subject unsubscribes plus the
// local-only removal from every joined group (the connection is gone,
// there is nothing to tell other processes), all concurrently. When the
// bus is already gone only the directory removal happens.
func (c *Coordinator) OnDisconnected(ctx context.Context, conn Connection) error {
	t := c.conns.remove(conn.ID())
	if t == nil {
		return nil
	}
	if c.bus.IsClosed() {
		return nil
	}
	return c.detach(t)
}

// detach drops every interest the connection holds, concurrently.
func (c *Coordinator) detach(t *tracked) error {
	g := new(errgroup.Group)
	g.Go(func() error {
		return c.connSubs.removeInterest(c.names.All(), t)
	})
	g.Go(func() error {
		return c.connSubs.removeInterest(c.names.Connection(t.ID()), t)
	})
	for _, name := range t.groupSnapshot() {
		g.Go(func() error {
			return c.removeFromGroupLocal(t, name)
		})
	}
	if uid := t.UserID(); uid != "" {
		g.Go(func() error {
			return c.userSubs.removeInterest(c.names.User(uid), t)
		})
	}
	return g.Wait()
}

// AddToGroup joins a connection to a group. The connection may live on
// any process: when it is local the membership is applied directly, and
// in every case a group command is broadcast so whichever process owns
// the connection applies it too. The acknowledgment is best effort; a
// missing ack is logged and swallowed, so adding an unknown connection id
// still returns nil.
func (c *Coordinator) AddToGroup(ctx context.Context, connectionID, groupName string) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	if t := c.conns.get(connectionID); t != nil {
		if err := c.addToGroupLocal(t, groupName); err != nil {
			return err
		}
	}
	c.broadcastGroupCommand(ctx, wire.GroupAdd, groupName, connectionID)
	return nil
}

// RemoveFromGroup is the inverse of AddToGroup with the same best-effort
// acknowledgment semantics.
func (c *Coordinator) RemoveFromGroup(ctx context.Context, connectionID, groupName string) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	if t := c.conns.get(connectionID); t != nil {
		if err := c.removeFromGroupLocal(t, groupName); err != nil {
			return err
		}
	}
	c.broadcastGroupCommand(ctx, wire.GroupRemove, groupName, connectionID)
	return nil
}

// addToGroupLocal applies a group join to a connection owned by this
// process. Re-adding an existing member is a no-op: the registry keys
// interest by connection id, so the refcount never double-counts.
func (c *Coordinator) addToGroupLocal(t *tracked, groupName string) error {
	subj := c.names.Group(groupName)
	if err := c.groupSubs.addInterest(subj, t, c.invocationSubscriber(c.groupSubs)); err != nil {
		return err
	}
	t.addGroup(groupName)
	return nil
}

func (c *Coordinator) removeFromGroupLocal(t *tracked, groupName string) error {
	t.removeGroup(groupName)
	return c.groupSubs.removeInterest(c.names.Group(groupName), t)
}

// broadcastGroupCommand requests the membership change on the
// group-management subject and waits for one textual echo of the command
// id. The round trip only tells the caller that some process handled the
// command; failures are logged, never propagated.
func (c *Coordinator) broadcastGroupCommand(ctx context.Context, action wire.GroupAction, groupName, connectionID string) {
	cmd := &wire.GroupCommand{
		ID:           c.ackID.Add(1),
		ServerName:   c.serverName,
		Action:       action,
		GroupName:    groupName,
		ConnectionID: connectionID,
	}
	payload, err := wire.EncodeGroupCommand(cmd)
	if err != nil {
		c.log.Errorw("encode group command", "group", groupName, "connection", connectionID, "error", err)
		return
	}
	reply, err := c.bus.Request(ctx, c.names.GroupManagement(), payload, c.opts.AckTimeout)
	if err != nil {
		c.log.Warnw("group command not acknowledged",
			"action", cmd.Action, "group", groupName, "connection", connectionID, "error", err)
		return
	}
	if want := strconv.FormatUint(uint64(cmd.ID), 10); string(reply) != want {
		c.log.Warnw("group command ack mismatch",
			"group", groupName, "connection", connectionID, "got", string(reply), "want", want)
	}
}

// groupCommandLoop serves membership commands from every process in the
// cluster. Commands for connections this process does not own are
// ignored; owned ones are applied and acknowledged with the command id.
func (c *Coordinator) groupCommandLoop(sub bus.Subscription) {
	defer c.wg.Done()
	for msg := range sub.Messages() {
		cmd, err := wire.DecodeGroupCommand(msg.Data)
		if err != nil {
			c.log.Warnw("dropping malformed group command", "error", err)
			continue
		}
		t := c.conns.get(cmd.ConnectionID)
		if t == nil {
			continue
		}
		switch cmd.Action {
		case wire.GroupAdd:
			err = c.addToGroupLocal(t, cmd.GroupName)
		case wire.GroupRemove:
			err = c.removeFromGroupLocal(t, cmd.GroupName)
		default:
			c.log.Warnw("unknown group command action", "action", int(cmd.Action))
			continue
		}
		if err != nil {
			c.log.Errorw("apply group command",
				"action", cmd.Action, "group", cmd.GroupName, "connection", cmd.ConnectionID, "error", err)
			continue
		}
		if msg.Reply == "" {
			continue
		}
		ack := strconv.FormatUint(uint64(cmd.ID), 10)
		if err := c.bus.Publish(msg.Reply, []byte(ack)); err != nil {
			c.log.Warnw("publish group command ack", "error", err)
		}
	}
}

// SendAll invokes a client method on every connection of the hub.
func (c *Coordinator) SendAll(ctx context.Context, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	return c.publishInvocation(c.names.All(), method, args, nil)
}

// SendAllExcept is SendAll minus the listed connection ids; the exclusion
// is applied on the delivery side of every process.
func (c *Coordinator) SendAllExcept(ctx context.Context, method string, args []any, excludedIDs []string) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	return c.publishInvocation(c.names.All(), method, args, excludedIDs)
}

// SendConnection invokes a client method on one connection, wherever in
// the cluster it lives.
func (c *Coordinator) SendConnection(ctx context.Context, connectionID, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	return c.publishInvocation(c.names.Connection(connectionID), method, args, nil)
}

// SendConnections fans out one publish per connection id concurrently and
// completes when all publishes were accepted locally.
func (c *Coordinator) SendConnections(ctx context.Context, connectionIDs []string, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	g := new(errgroup.Group)
	for _, id := range connectionIDs {
		g.Go(func() error {
			return c.publishInvocation(c.names.Connection(id), method, args, nil)
		})
	}
	return g.Wait()
}

// SendGroup invokes a client method on every member of a group. No
// membership lookup happens here: delivery is purely a function of which
// processes currently subscribe to the group subject.
func (c *Coordinator) SendGroup(ctx context.Context, groupName, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	return c.publishInvocation(c.names.Group(groupName), method, args, nil)
}

// SendGroups fans out one publish per group concurrently.
func (c *Coordinator) SendGroups(ctx context.Context, groupNames []string, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	g := new(errgroup.Group)
	for _, name := range groupNames {
		g.Go(func() error {
			return c.publishInvocation(c.names.Group(name), method, args, nil)
		})
	}
	return g.Wait()
}

// SendGroupExcept is SendGroup minus the listed connection ids.
func (c *Coordinator) SendGroupExcept(ctx context.Context, groupName, method string, args []any, excludedIDs []string) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	return c.publishInvocation(c.names.Group(groupName), method, args, excludedIDs)
}

// SendUser invokes a client method on every connection of one user.
func (c *Coordinator) SendUser(ctx context.Context, userID, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	return c.publishInvocation(c.names.User(userID), method, args, nil)
}

// SendUsers fans out one publish per user concurrently.
func (c *Coordinator) SendUsers(ctx context.Context, userIDs []string, method string, args []any) error {
	if err := c.waitForBus(ctx); err != nil {
		return err
	}
	g := new(errgroup.Group)
	for _, id := range userIDs {
		g.Go(func() error {
			return c.publishInvocation(c.names.User(id), method, args, nil)
		})
	}
	return g.Wait()
}

func (c *Coordinator) publishInvocation(subj, method string, args []any, excludedIDs []string) error {
	payload, err := wire.EncodeInvocation(&wire.Invocation{
		MethodName:            method,
		Args:                  args,
		ExcludedConnectionIDs: excludedIDs,
	})
	if err != nil {
		return err
	}
	return c.bus.Publish(subj, payload)
}

// invocationSubscriber builds the subscribeFunc for a registry: open the
// bus subscription and start the delivery loop consuming it. The loop
// ends when the registry unsubscribes (last interest removed) or the bus
// closes the channel.
func (c *Coordinator) invocationSubscriber(reg *registry) subscribeFunc {
	return func(subj string) (bus.Subscription, error) {
		sub, err := c.bus.Subscribe(subj)
		if err != nil {
			return nil, err
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for msg := range sub.Messages() {
				c.dispatchInvocation(reg, msg)
			}
		}()
		return sub, nil
	}
}

// dispatchInvocation delivers one bus message to every locally interested
// connection on its subject, skipping excluded ids. Deliveries run
// concurrently; one connection failing never blocks or fails the others.
func (c *Coordinator) dispatchInvocation(reg *registry, msg bus.Message) {
	inv, err := wire.DecodeInvocation(msg.Data)
	if err != nil {
		c.log.Warnw("dropping malformed invocation", "subject", msg.Subject, "error", err)
		return
	}
	var excluded map[string]struct{}
	if len(inv.ExcludedConnectionIDs) > 0 {
		excluded = make(map[string]struct{}, len(inv.ExcludedConnectionIDs))
		for _, id := range inv.ExcludedConnectionIDs {
			excluded[id] = struct{}{}
		}
	}

	var wg sync.WaitGroup
	for _, t := range reg.interested(msg.Subject) {
		if _, skip := excluded[t.ID()]; skip {
			continue
		}
		wg.Add(1)
		go func(t *tracked) {
			defer wg.Done()
			if err := t.Deliver(t.Context(), inv.MethodName, inv.Args); err != nil {
				c.log.Warnw("delivery failed",
					"connection", t.ID(), "method", inv.MethodName, "error", err)
			}
		}(t)
	}
	wg.Wait()
}
