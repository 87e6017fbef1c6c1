// Package listener accepts TCP connections and hands each one to a fresh
// session.Coordinator, the way spitfire4040-chat-server's internal/server
// accept loop hands connections to newClient — generalized so the listener
// itself carries no protocol knowledge.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatserver/internal/registry"
	"chatserver/internal/session"
	"chatserver/internal/store"
)

// Listener owns the TCP socket and the set of live sessions accepted on it.
type Listener struct {
	ln     net.Listener
	reg    *registry.Registry
	store  *store.Store
	logger zerolog.Logger

	queueCapacity int
	connSeq       atomic.Uint64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// New binds addr and returns a Listener ready to Serve.
func New(addr string, reg *registry.Registry, st *store.Store, logger zerolog.Logger, queueCapacity int) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listener: listen on %s: %w", addr, err)
	}
	return &Listener{
		ln:            ln,
		reg:           reg,
		store:         st,
		logger:        logger,
		queueCapacity: queueCapacity,
		conns:         make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound address, useful when addr was ":0" in tests.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts connections until ctx is cancelled or the listener is
// closed, spawning one session.Coordinator per connection and waiting for
// all of them to finish before returning.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				if errors.Is(err, net.ErrClosed) {
					l.wg.Wait()
					return nil
				}
				l.logger.Error().Err(err).Msg("listener: accept")
				continue
			}
		}
		l.wg.Add(1)
		go l.serve(ctx, conn)
	}
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()

	connID := uuid.NewString()
	seq := l.connSeq.Add(1)
	connLogger := l.logger.With().
		Str("component", "coordinator").
		Str("conn_id", connID).
		Uint64("conn_seq", seq).
		Logger()

	l.mu.Lock()
	l.conns[conn] = struct{}{}
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.conns, conn)
		l.mu.Unlock()
	}()

	connLogger.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("session accepted")
	co := session.New(conn, l.reg, l.store, connLogger, l.queueCapacity)
	co.Run(ctx)
	connLogger.Info().Msg("session closed")
}

// Shutdown stops accepting new connections and force-closes every live one,
// which unblocks each coordinator's blocking frame read so Serve's
// WaitGroup can drain.
func (l *Listener) Shutdown() {
	l.ln.Close()
	l.mu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
}
