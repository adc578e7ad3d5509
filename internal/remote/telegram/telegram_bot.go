package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kadzielawa/wowsup/internal/bot"
	"github.com/kadzielawa/wowsup/internal/event"
)

type Bot struct {
	bot     *tgbotapi.BotAPI
	chatID  int64
	manager *bot.SupervisorManager
	logger  *slog.Logger
}

func (b *Bot) Start(ctx context.Context) error {
	offset, err := b.getLatestOffset()
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 5
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			for range updates {
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != b.chatID {
				continue
			}
			switch strings.ToLower(update.Message.Text) {
			case "status":
				b.sendStatus()
			}
		}
	}
}

func (b *Bot) sendStatus() {
	running := b.manager.RunningSlots()
	text := "No slots running."
	if len(running) > 0 {
		var sb strings.Builder
		for _, name := range running {
			sb.WriteString(fmt.Sprintf("%s: %s\n", name, b.manager.Status(name)))
		}
		text = sb.String()
	}
	if _, err := b.bot.Send(tgbotapi.NewMessage(b.chatID, text)); err != nil {
		b.logger.Error("error sending telegram status", slog.Any("error", err))
	}
}

// Handle mirrors the Discord notifier: only machine-level events go out.
func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	var text string
	switch evt := e.(type) {
	case event.SupervisorStoppedEvent:
		text = fmt.Sprintf("[%s] supervisor stopped: %s", evt.Slot(), evt.Reason)
	case event.MachineRebootEvent:
		text = fmt.Sprintf("[%s] rebooting machine after %d sustained errors", evt.Slot(), evt.ErrorCount)
	case event.SlotSwitchedEvent:
		text = fmt.Sprintf("[%s] switching to slot %s", evt.FromSlot, evt.ToSlot)
	default:
		return nil
	}

	_, err := b.bot.Send(tgbotapi.NewMessage(b.chatID, text))
	return err
}

func (b *Bot) getLatestOffset() (int, error) {
	upds, err := b.bot.GetUpdates(tgbotapi.NewUpdate(-1))
	if err != nil {
		return 0, err
	}
	offset := 0
	if len(upds) > 0 {
		offset = upds[0].UpdateID + 1
	}
	return offset, nil
}
