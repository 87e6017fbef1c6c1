package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"chatserver/internal/protocol"
	"chatserver/internal/registry"
	"chatserver/internal/store"
)

// defaultQueueCapacity bounds the writer and responder queues when the
// caller doesn't override it, matching the bus's own default backlog so
// a session applies backpressure consistently end to end.
const defaultQueueCapacity = 32

// Coordinator owns one accepted connection's packet stream. It reads and
// decodes frames, dispatches on packet type against the registry and store,
// and supervises the writer/responder/subscriber goroutines.
type Coordinator struct {
	conn   net.Conn
	reg    *registry.Registry
	store  *store.Store
	logger zerolog.Logger

	ident          *IdentSlot
	currentChannel string
	currentBus     *registry.Bus

	subCancel context.CancelFunc
	subGroup  errgroup.Group

	writerQueue chan []byte
	replyQueue  chan any
}

// New builds a Coordinator for a freshly accepted connection, sizing its
// writer/responder queues to queueCapacity (0 uses the package default).
func New(conn net.Conn, reg *registry.Registry, st *store.Store, logger zerolog.Logger, queueCapacity int) *Coordinator {
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}
	return &Coordinator{
		conn:        conn,
		reg:         reg,
		store:       st,
		logger:      logger,
		ident:       NewIdentSlot(),
		writerQueue: make(chan []byte, queueCapacity),
		replyQueue:  make(chan any, queueCapacity),
	}
}

// Run drives the session to completion: it blocks until the connection
// closes, the client sends Exit, or ctx is cancelled (server shutdown). It
// always leaves the connection closed and every spawned goroutine reaped
// before returning.
//
// Shutdown order matters: writerQueue has two producers (the responder and
// whichever subscriber generation is live), so it can only be closed once
// both have unquestionably stopped — closing it earlier races a concurrent
// send against the close and can panic. cancel() stops both promptly (their
// select loops watch sessionCtx), so the teardown sequence just waits for
// each to actually return before closing the channel they shared.
func (c *Coordinator) Run(ctx context.Context) {
	defer c.conn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writerGroup, responderGroup errgroup.Group
	writerGroup.Go(func() error { runWriter(c.conn, c.writerQueue); return nil })
	responderGroup.Go(func() error {
		runResponder(sessionCtx, c.replyQueue, c.writerQueue, c.ident, c.logger)
		return nil
	})

	publicCh, ok := c.reg.Resolve(registry.PublicChannel)
	if !ok {
		c.logger.Error().Msg("coordinator: public channel missing at startup")
		cancel()
		responderGroup.Wait()
		close(c.writerQueue)
		writerGroup.Wait()
		return
	}
	c.currentChannel = registry.PublicChannel
	c.currentBus = publicCh.Bus()
	c.spawnSubscriber(sessionCtx, c.currentBus)

	c.mainLoop(sessionCtx)

	c.departCurrentChannel()

	cancel()
	c.subGroup.Wait()
	responderGroup.Wait()
	close(c.writerQueue)
	writerGroup.Wait()
}

func (c *Coordinator) mainLoop(ctx context.Context) {
	for {
		body, err := protocol.ReadFrame(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug().Err(err).Msg("coordinator: read frame")
			}
			return
		}

		pkt, err := protocol.DecodePacket(body)
		if err != nil {
			c.logger.Warn().Err(err).Msg("coordinator: decode packet")
			continue
		}

		switch p := pkt.(type) {
		case protocol.RegisterReq:
			c.handleRegisterReq(ctx, p)
		case protocol.LoginReq:
			c.handleLoginReq(ctx, p)
		case protocol.FetchReq:
			c.handleFetchReq(p)
		case protocol.GotoReq:
			c.handleGotoReq(ctx, p)
		case protocol.Message:
			c.handleMessage(p)
		case protocol.Exit:
			return
		default:
			c.logger.Warn().Str("go_type", fmt.Sprintf("%T", p)).Msg("coordinator: unexpected packet from client")
		}
	}
}

func (c *Coordinator) reply(pkt any) {
	select {
	case c.replyQueue <- pkt:
	default:
		c.logger.Warn().Msg("coordinator: reply queue full, dropping reply")
	}
}

func (c *Coordinator) handleRegisterReq(ctx context.Context, req protocol.RegisterReq) {
	u := store.User{
		ID:           req.User.ID,
		PasswordHash: req.User.PasswordHash,
		Bio:          req.User.Bio,
		Location:     req.User.Location,
	}
	var result protocol.Result[protocol.Empty]
	if err := c.store.InsertUnique(ctx, u); err != nil {
		result = protocol.ErrResult[protocol.Empty](err.Error())
	} else {
		result = protocol.OkResult(protocol.Empty{})
	}
	c.reply(protocol.RegisterRes{Type: protocol.TypeRegisterRes, Result: result})
}

// handleLoginReq handles a login attempt: under a single
// registry-locked modification, either mint a guest id or verify and assign
// a user id (replacing any previous identifier in place for a re-login).
// On success, the join announcement and Connected marker are published to
// the bus before the LoginRes reply is even queued, so no peer — including
// this session's own subscriber — can observe the new identifier without
// first seeing why it appeared.
func (c *Coordinator) handleLoginReq(ctx context.Context, req protocol.LoginReq) {
	var assignedID string
	err := c.reg.Modify(c.currentChannel, func(ch *registry.Channel) error {
		var e error
		if req.LoginInfo.Guest {
			assignedID, e = ch.ConnectGuest()
			if e == nil {
				ch.Leave(c.ident.Get())
			}
		} else {
			assignedID, e = ch.ConnectUser(ctx, req.LoginInfo, c.ident.Get(), c.store)
		}
		return e
	})
	if err != nil {
		c.reply(protocol.LoginRes{Type: protocol.TypeLoginRes, Result: protocol.ErrResult[string](err.Error())})
		return
	}

	c.currentBus.PublishMessage(protocol.NewJoinMessage(assignedID))
	c.currentBus.PublishConnected()
	c.reply(protocol.LoginRes{Type: protocol.TypeLoginRes, Result: protocol.OkResult(assignedID)})
}

// handleMessage publishes a chat line to the session's current channel. The
// identifier on the wire is always the server's own view of who's talking —
// a client cannot speak as anyone else, let alone before logging in.
func (c *Coordinator) handleMessage(p protocol.Message) {
	id := c.ident.Get()
	if id == "" {
		c.logger.Warn().Msg("coordinator: message from unauthenticated session dropped")
		return
	}
	c.currentBus.PublishMessage(protocol.Message{Type: protocol.TypeMessage, ID: id, Msg: p.Msg, IsSystem: false})
}

func (c *Coordinator) handleFetchReq(req protocol.FetchReq) {
	if req.Item != "list" {
		c.reply(protocol.FetchRes{Type: protocol.TypeFetchRes, Item: req.Item, Result: protocol.ErrResult[json.RawMessage](fmt.Sprintf("unknown fetch item %q", req.Item))})
		return
	}

	var snap protocol.MembershipSnapshot
	err := c.reg.Modify(c.currentChannel, func(ch *registry.Channel) error {
		snap = ch.Snapshot()
		return nil
	})
	if err != nil {
		c.reply(protocol.FetchRes{Type: protocol.TypeFetchRes, Item: req.Item, Result: protocol.ErrResult[json.RawMessage](err.Error())})
		return
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		c.reply(protocol.FetchRes{Type: protocol.TypeFetchRes, Item: req.Item, Result: protocol.ErrResult[json.RawMessage](err.Error())})
		return
	}
	c.reply(protocol.FetchRes{Type: protocol.TypeFetchRes, Item: req.Item, Result: protocol.OkResult(json.RawMessage(raw))})
}

// handleGotoReq handles a channel migration request. A goto to the channel
// the session is already in is a no-op success rather than a subscriber
// teardown/rebuild. On an actual migration, the new subscriber is
// registered on the target bus (via
// spawnSubscriber's synchronous Subscribe call) strictly before Connected is
// published to it, so the new subscriber never misses its own arming event.
func (c *Coordinator) handleGotoReq(ctx context.Context, req protocol.GotoReq) {
	if req.ChannelName == c.currentChannel {
		c.reply(protocol.GotoRes{Type: protocol.TypeGotoRes, Result: protocol.OkResult(req.ChannelName)})
		return
	}

	target, ok := c.reg.Resolve(req.ChannelName)
	if !ok {
		c.reply(protocol.GotoRes{Type: protocol.TypeGotoRes, Result: protocol.ErrResult[string](fmt.Sprintf("no such channel %q", req.ChannelName))})
		return
	}

	previous := c.currentChannel
	id := c.ident.Get()

	c.subCancel()
	c.subGroup.Wait()
	c.currentBus = target.Bus()
	c.spawnSubscriber(ctx, c.currentBus)
	c.currentBus.PublishConnected()
	c.currentChannel = req.ChannelName

	if id != "" {
		_ = c.reg.Modify(previous, func(ch *registry.Channel) error { ch.Leave(id); return nil })
		_ = c.reg.Modify(req.ChannelName, func(ch *registry.Channel) error { ch.AddExisting(id); return nil })
	}

	c.reply(protocol.GotoRes{Type: protocol.TypeGotoRes, Result: protocol.OkResult(req.ChannelName)})
}

// departCurrentChannel runs once, at session teardown (Exit packet, read
// error, or server shutdown): it removes the session's identifier from its
// current channel's membership and, if it had ever logged in, publishes the
// farewell Message peers see in its place.
func (c *Coordinator) departCurrentChannel() {
	id := c.ident.Get()
	if id == "" {
		return
	}
	_ = c.reg.Modify(c.currentChannel, func(ch *registry.Channel) error {
		ch.Leave(id)
		return nil
	})
	c.currentBus.PublishMessage(protocol.NewLeaveMessage(id))
}

// spawnSubscriber subscribes to bus and starts a goroutine forwarding its
// events to the writer queue, replacing c.subCancel with the new
// subscription's cancel func. Subscribing happens synchronously on the
// caller's goroutine so the registration is visible to Publish before the
// forwarding goroutine — or any Connected marker the caller publishes right
// after this call returns — can race ahead of it.
func (c *Coordinator) spawnSubscriber(ctx context.Context, bus *registry.Bus) {
	subCtx, cancel := context.WithCancel(ctx)
	c.subCancel = cancel
	sub := bus.Subscribe()

	c.subGroup.Go(func() error {
		runSubscriber(subCtx, sub, subCtx.Done(), c.ident, c.writerQueue, c.logger)
		return nil
	})
}
