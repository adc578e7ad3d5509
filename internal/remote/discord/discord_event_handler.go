package discord

import (
	"context"
	"fmt"

	"github.com/kadzielawa/wowsup/internal/event"
)

// Handle publishes the supervision events worth a notification. Routine
// chatter (profile rotations inside a run) stays local; anything involving
// machine state or money-making downtime goes out.
func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.SupervisorStartedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** supervisor started (run %s)", evt.Slot(), evt.RunID))

	case event.SupervisorStoppedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** supervisor stopped: %s", evt.Slot(), evt.Reason))

	case event.MachineRebootEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** rebooting machine after %d sustained errors", evt.Slot(), evt.ErrorCount))

	case event.SlotSwitchedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** switching to slot **%s**", evt.FromSlot, evt.ToSlot))

	case event.GameRelaunchedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** relaunched game client: %s", evt.Slot(), evt.Cause))

	case event.RevivalPerformedEvent:
		if evt.Success {
			return nil
		}
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** revival failed after %d attempts", evt.Slot(), evt.Attempt))

	case event.StuckRecoveredEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** recovered from stuck position (%d hits, nudged %q)", evt.Slot(), evt.Occurrences, evt.MovementKey))

	case event.TunnelEstablishedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("Remote panel available at %s", evt.URL))
	}

	return nil
}

func (b *Bot) sendEventMessage(ctx context.Context, message string) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message, "", nil)
	}
	_, err := b.discordSession.ChannelMessageSend(b.channelID, message)
	return err
}
