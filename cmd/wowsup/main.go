package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	sloggger "github.com/kadzielawa/wowsup/cmd/wowsup/log"
	"github.com/kadzielawa/wowsup/internal/bot"
	"github.com/kadzielawa/wowsup/internal/config"
	"github.com/kadzielawa/wowsup/internal/event"
	"github.com/kadzielawa/wowsup/internal/game"
	"github.com/kadzielawa/wowsup/internal/panel"
	"github.com/kadzielawa/wowsup/internal/remote/discord"
	"github.com/kadzielawa/wowsup/internal/remote/ngrok"
	"github.com/kadzielawa/wowsup/internal/remote/telegram"
	"github.com/kadzielawa/wowsup/internal/server"
	"github.com/kadzielawa/wowsup/internal/utils"
	"github.com/kadzielawa/wowsup/internal/utils/winproc"
)

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				stackTrace := debug.Stack()
				errMsg := fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, stackTrace)
				logger.Error(errMsg)
				sloggger.FlushLog()
			}
		}()
		return f()
	}
}

func main() {
	err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %s", err.Error())
		return
	}

	if config.Wowsup.FirstRun && len(config.GetSlots()) == 0 {
		if err = config.CreateFromTemplate("slot1"); err != nil {
			log.Fatalf("Error creating initial slot config: %s", err.Error())
		}
		cfg := *config.Wowsup
		cfg.FirstRun = false
		if err = config.ValidateAndSaveConfig(cfg); err != nil {
			log.Fatalf("Error saving configuration: %s", err.Error())
		}
	}

	logger, err := sloggger.NewLogger(config.Wowsup.Debug.Log, config.Wowsup.LogSaveDirectory, "")
	if err != nil {
		log.Fatalf("Error starting logger: %s", err.Error())
	}
	defer sloggger.FlushAndClose()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fatal error detected, wowsup will close with the following error: %v\n Stacktrace: %s", r, debug.Stack())
			logger.Error(err.Error())
			sloggger.FlushAndClose()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	winproc.SetProcessDpiAware.Call() // Set DPI awareness so window captures come back at native scale

	eventListener := event.NewListener(logger)

	controller := game.NewController(logger)
	manager := bot.NewSupervisorManager(logger, eventListener, buildCollaborators(controller))
	scheduler := bot.NewScheduler(manager, logger, controller)
	scheduler.WindowProbe = func(title string) bool {
		_, err := game.FindWindow(title)
		return err == nil
	}
	go scheduler.Start()

	srv, err := server.New(logger, manager, scheduler)
	if err != nil {
		log.Fatalf("Error starting local server: %s", err.Error())
	}

	var tunnel *ngrok.Tunnel
	if config.Wowsup.Web.Enabled && config.Wowsup.Ngrok.Enabled {
		if config.Wowsup.Ngrok.Authtoken == "" && os.Getenv("NGROK_AUTHTOKEN") == "" {
			logger.Warn("ngrok enabled but no authtoken set; skipping tunnel start")
		} else {
			tunnel, err = ngrok.Start(ctx, logger, ngrok.Options{
				LocalAddr:     fmt.Sprintf("http://localhost:%d", config.Wowsup.Web.Port),
				Authtoken:     config.Wowsup.Ngrok.Authtoken,
				Domain:        config.Wowsup.Ngrok.Domain,
				BasicAuthUser: config.Wowsup.Ngrok.BasicAuthUser,
				BasicAuthPass: config.Wowsup.Ngrok.BasicAuthPass,
			})
			if err != nil {
				logger.Error("ngrok tunnel failed to start", slog.Any("error", err))
			} else if config.Wowsup.Ngrok.SendURL {
				go event.Send(event.TunnelEstablished(tunnel.URL()))
			}
		}
	}

	// Discord Bot initialization
	if config.Wowsup.Discord.Enabled {
		discordBot, err := discord.NewBot(
			config.Wowsup.Discord.Token,
			config.Wowsup.Discord.ChannelID,
			manager,
			config.Wowsup.Discord.UseWebhook,
			config.Wowsup.Discord.WebhookURL,
		)
		if err != nil {
			logger.Error("Discord could not been initialized", slog.Any("error", err))
			return
		}

		eventListener.Register(discordBot.Handle)
		if !config.Wowsup.Discord.UseWebhook {
			g.Go(wrapWithRecover(logger, func() error {
				return discordBot.Start(ctx)
			}))
		}
	}

	// Telegram Bot initialization
	if config.Wowsup.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(config.Wowsup.Telegram.Token, config.Wowsup.Telegram.ChatID, manager, logger)
		if err != nil {
			logger.Error("Telegram could not been initialized", slog.Any("error", err))
			return
		}

		eventListener.Register(telegramBot.Handle)
		g.Go(wrapWithRecover(logger, func() error {
			return telegramBot.Start(ctx)
		}))
	}

	if config.Wowsup.Web.Enabled {
		g.Go(wrapWithRecover(logger, func() error {
			defer cancel()
			return srv.Listen(config.Wowsup.Web.Port)
		}))
	}

	g.Go(wrapWithRecover(logger, func() error {
		defer cancel()
		return eventListener.Listen(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		<-ctx.Done()
		logger.Info("wowsup shutting down...")
		cancel()
		manager.StopAll()
		scheduler.Stop()
		err = srv.Stop()
		if err != nil {
			logger.Error("error stopping local server", slog.Any("error", err))
		}
		if tunnel != nil {
			if closeErr := tunnel.Close(); closeErr != nil {
				logger.Error("error stopping ngrok tunnel", slog.Any("error", closeErr))
			}
		}

		return err
	}))

	err = g.Wait()
	if err != nil {
		cancel()
		logger.Error("Error running wowsup", slog.Any("error", err))
		return
	}

	sloggger.FlushAndClose()
}

// buildCollaborators returns the factory that assembles the OS-facing
// collaborators for one slot: the game window, the screen capturer, synthetic
// input, the process controller and the macro tool, plus the log sensor
// (panel DOM reader when enabled, OCR otherwise).
func buildCollaborators(controller *game.Controller) bot.CollaboratorFactory {
	return func(logger *slog.Logger, slotName string, slot *config.SlotCfg) (bot.Collaborators, error) {
		macro := game.NewTool(logger, controller)

		win, err := game.FindWindow(slot.WindowTitle)
		if err != nil {
			// No client yet: launch it through the macro tool flow, which
			// boots the game and reattaches the tool, then look again.
			logger.Info("game window not found, launching client", slog.String("slot", slotName))
			if launchErr := macro.RelaunchAll(context.Background()); launchErr != nil {
				return bot.Collaborators{}, fmt.Errorf("launching game client: %w", launchErr)
			}
			utils.Sleep(5000)
			if win, err = game.FindWindow(slot.WindowTitle); err != nil {
				return bot.Collaborators{}, fmt.Errorf("game window %q not found after launch: %w", slot.WindowTitle, err)
			}
		}

		capturer := game.NewCapturer(win, "anchors")

		var sensor bot.TextSensor
		if config.Wowsup.Panel.Enabled {
			sensor = panel.NewSensor(logger, config.Wowsup.Panel.DebugURL)
		} else {
			sensor = game.NewOCRSensor(logger, macro, config.Wowsup.OCR.TesseractPath)
		}

		return bot.Collaborators{
			Sensor: sensor,
			Screen: capturer,
			Input:  game.NewInput(win),
			Procs:  controller,
			Macro:  macro,
		}, nil
	}
}
