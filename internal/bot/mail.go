package bot

import (
	"context"
	"fmt"
	"time"
)

const (
	mailConfirmWait   = 20 * time.Second
	mailConfirmExtend = 5 * time.Second
	mailAnchorTimeout = 4 * time.Second
)

// runMailSequence drives the addon's mailing dialog once the mail profile
// has parked the character at a mailbox: select the item group, queue the
// send, confirm, then sit on a watchdog while the addon works through the
// bag. Each confirmation popup that appears extends the wait, so a full bag
// is given as long as it keeps making progress.
func (e *Engine) runMailSequence(ctx context.Context) error {
	for _, anchor := range []string{"mail-group-select", "mail-send-select", "mail-confirm-send"} {
		pt, ok := e.screen.FindAnchor(ctx, anchor, mailAnchorTimeout)
		if !ok {
			return fmt.Errorf("mailing dialog element %q not found", anchor)
		}
		e.input.Click(pt.X, pt.Y)
		e.sleep(600)
	}

	done := make(chan struct{})
	dog := e.watchdogs.Arm("mail-confirm", mailConfirmWait, func() {
		close(done)
	})
	defer e.watchdogs.Stop("mail-confirm")

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if pt, ok := e.screen.FindAnchor(ctx, "mail-popup-accept", mailConfirmExtend); ok {
			e.input.Click(pt.X, pt.Y)
			dog.Extend(mailConfirmExtend)
		}
	}
}
