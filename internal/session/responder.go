package session

import (
	"context"

	"github.com/rs/zerolog"

	"chatserver/internal/protocol"
)

// runResponder serializes every point-to-point reply (RegisterRes, LoginRes,
// FetchRes, GotoRes) onto the writer queue. It is the only place the
// session's identifier slot is written: on a successful LoginRes it assigns
// the identifier the coordinator will use from then on.
func runResponder(ctx context.Context, queue <-chan any, out chan<- []byte, ident *IdentSlot, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-queue:
			if !ok {
				return
			}
			if res, ok := pkt.(protocol.LoginRes); ok && res.Result.IsOk() {
				ident.Set(*res.Result.Ok)
			}
			frame, err := protocol.EncodeFrame(pkt)
			if err != nil {
				logger.Error().Err(err).Msg("responder: encode reply")
				continue
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
