package session

import (
	"context"

	"github.com/rs/zerolog"

	"chatserver/internal/protocol"
	"chatserver/internal/registry"
)

// runSubscriber forwards a channel's broadcast events to the writer queue.
// It gates on a per-subscriber Connected marker: any Message that arrives
// before the marker is silently dropped. Because the
// coordinator publishes the join Message before the Connected marker on a
// successful LoginReq, this ordering alone keeps a session from seeing its
// own first join announcement, without a separate self-skip check for that
// one packet. A GotoReq publishes only the Connected marker, and on a
// re-login the gate is already open, so the gate does not cover that later
// announcement.
//
// Self-skip for every other message compares evt.Message.ID against the
// session's own identifier, read fresh off ident on every event since the
// identifier can still be unset (pre-login) or stale (mid re-login) when
// the subscriber is first armed.
func runSubscriber(ctx context.Context, sub *registry.Subscription, done <-chan struct{}, ident *IdentSlot, out chan<- []byte, logger zerolog.Logger) {
	defer sub.Close()

	connected := false
	for {
		evt, ok := sub.Recv(ctx, done)
		if !ok {
			return
		}
		if evt.Connected {
			connected = true
			continue
		}
		if !connected {
			continue
		}
		if evt.Message.ID == ident.Get() {
			continue
		}

		frame, err := protocol.EncodeFrame(evt.Message)
		if err != nil {
			logger.Error().Err(err).Msg("subscriber: encode broadcast message")
			continue
		}
		select {
		case out <- frame:
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}
