package mqtt

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// FallbackCommander sends through Primary and retries through Secondary when
// the primary transport fails. The backend socket with the /mqtt/ endpoint
// behind it is the usual pairing.
type FallbackCommander struct {
	Primary   Commander
	Secondary Commander
	Log       zerolog.Logger
}

// SendCommand delivers cmd through the first transport that accepts it.
func (f *FallbackCommander) SendCommand(ctx context.Context, cmd Command) error {
	err := f.Primary.SendCommand(ctx, cmd)
	if err == nil || f.Secondary == nil {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	f.Log.Debug().Err(err).Str("topic", cmd.Topic).Msg("primary command transport failed, falling back")
	if err2 := f.Secondary.SendCommand(ctx, cmd); err2 != nil {
		return fmt.Errorf("send command: %w", errors.Join(err, err2))
	}
	return nil
}
