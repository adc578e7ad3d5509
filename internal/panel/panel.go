// Package panel reads the macro tool's log console through its embedded
// debug web panel instead of OCR. When the tool exposes the panel, DOM text
// is both cheaper and noise-free; the OCR sensor stays as the fallback for
// installs without it.
package panel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const elementTimeout = 10 * time.Second

// Sensor is a TextSensor backed by a headless browser attached to the
// tool's debug panel URL.
type Sensor struct {
	logger *slog.Logger
	url    string

	mu      sync.Mutex
	browser *rod.Browser
	cleanup func()
	page    *rod.Page
}

func NewSensor(logger *slog.Logger, url string) *Sensor {
	return &Sensor{logger: logger, url: url}
}

// ReadLog returns the full text of the panel's log container. The browser
// is launched lazily and kept alive across reads; a failed read drops the
// connection so the next call starts fresh.
func (s *Sensor) ReadLog(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return "", err
	}

	el, err := s.page.Context(ctx).Timeout(elementTimeout).Element("#log-container")
	if err != nil {
		s.disconnect()
		return "", fmt.Errorf("log container not found in panel: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		s.disconnect()
		return "", fmt.Errorf("reading panel log text: %w", err)
	}
	return text, nil
}

func (s *Sensor) connect(ctx context.Context) error {
	if s.page != nil {
		return nil
	}

	launch := launcher.New().Context(ctx).Headless(true)
	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		browser.Close()
		launch.Cleanup()
		return fmt.Errorf("failed to create page: %w", err)
	}
	if err := page.Navigate(s.url); err != nil {
		browser.Close()
		launch.Cleanup()
		return fmt.Errorf("failed to navigate to panel: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		browser.Close()
		launch.Cleanup()
		return fmt.Errorf("failed to load panel: %w", err)
	}

	s.logger.Info("attached to tool debug panel", slog.String("url", s.url))
	s.browser = browser
	s.cleanup = launch.Cleanup
	s.page = page
	return nil
}

func (s *Sensor) disconnect() {
	if s.browser != nil {
		s.browser.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	s.browser = nil
	s.cleanup = nil
	s.page = nil
}

// Close shuts the headless browser down.
func (s *Sensor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect()
}
