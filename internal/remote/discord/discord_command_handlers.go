package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kadzielawa/wowsup/internal/config"
)

func (b *Bot) slotExists(name string) bool {
	_, found := config.GetSlot(name)
	return found
}

func (b *Bot) handleStartRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	parts := strings.Fields(m.Content)
	if len(parts) < 2 {
		s.ChannelMessageSend(m.ChannelID, "Usage: `!start <slot>`")
		return
	}
	name := parts[1]

	if !b.slotExists(name) {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Slot `%s` not found.", name))
		return
	}
	if b.manager.Running(name) {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Slot `%s` is already running.", name))
		return
	}

	go func() {
		if err := b.manager.Start(name); err != nil {
			s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Slot `%s` exited with error: %s", name, err))
		}
	}()
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Starting slot `%s`.", name))
}

func (b *Bot) handleStopRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	parts := strings.Fields(m.Content)
	if len(parts) < 2 {
		s.ChannelMessageSend(m.ChannelID, "Usage: `!stop <slot>`")
		return
	}
	name := parts[1]

	if !b.manager.Running(name) {
		s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Slot `%s` is not running.", name))
		return
	}
	b.manager.Stop(name)
	s.ChannelMessageSend(m.ChannelID, fmt.Sprintf("Stopped slot `%s`.", name))
}

func (b *Bot) handleStatusRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	running := b.manager.RunningSlots()
	if len(running) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No slots running.")
		return
	}

	var sb strings.Builder
	for _, name := range running {
		sb.WriteString(fmt.Sprintf("`%s`: %s\n", name, b.manager.Status(name)))
	}
	s.ChannelMessageSend(m.ChannelID, sb.String())
}

func (b *Bot) handleListRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	names := b.manager.AvailableSlots()
	if len(names) == 0 {
		s.ChannelMessageSend(m.ChannelID, "No slots configured.")
		return
	}
	s.ChannelMessageSend(m.ChannelID, "Configured slots: `"+strings.Join(names, "`, `")+"`")
}

func (b *Bot) handleHelpRequest(s *discordgo.Session, m *discordgo.MessageCreate) {
	help := "Available commands:\n" +
		"`!start <slot>` — start supervising a slot\n" +
		"`!stop <slot>` — stop a running slot\n" +
		"`!status` — show running slots and their state\n" +
		"`!list` — list configured slots\n" +
		"`!help` — this message"
	s.ChannelMessageSend(m.ChannelID, help)
}
