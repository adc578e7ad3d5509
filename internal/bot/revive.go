package bot

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"github.com/kadzielawa/wowsup/internal/event"
)

const (
	reviveAttempts = 2
	reviveMinArea  = 60
	reviveMinRatio = 3.0
	reviveMaxRatio = 10.0
)

// reviveAtSpiritHealer scans the live screen for the green revival prompt
// and clicks it. Bounded to two attempts with a forward nudge in between;
// beyond that the regular error escalation takes over. Every attempt is
// recorded in the shared cross-slot revive log.
func (e *Engine) reviveAtSpiritHealer(now time.Time) error {
	for attempt := 1; attempt <= reviveAttempts; attempt++ {
		img, err := e.screen.Capture()
		if err != nil {
			e.logger.Warn("revival scan capture failed", slog.Any("error", err))
			return nil
		}

		if pt, ok := findRevivePrompt(img); ok {
			e.input.Click(pt.X, pt.Y)
			e.sleep(1500)
			e.recordRevival(now, attempt, true)
			event.Send(event.RevivalPerformed(event.Text(e.slotName, "spirit healer revival"), attempt, true))
			return nil
		}

		e.holdKey("w", 900)
	}

	e.recordRevival(now, reviveAttempts, false)
	event.Send(event.RevivalPerformed(event.Text(e.slotName, "revival prompt not found"), reviveAttempts, false))
	return nil
}

func (e *Engine) recordRevival(now time.Time, attempt int, success bool) {
	if e.reviveLogPath == "" {
		return
	}
	f, err := os.OpenFile(e.reviveLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		e.logger.Error("error opening revive log", slog.Any("error", err))
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s %s attempt=%d success=%t\n",
		now.Format(time.DateTime), e.machineID, e.slotName, attempt, success)
}

// findRevivePrompt segments the capture by the prompt's green text color and
// filters connected components by area and aspect ratio: the glyph row is
// wide and short, anything else is scenery.
func findRevivePrompt(img image.Image) (image.Point, bool) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return image.Point{}, false
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if isPromptGreen(uint8(r>>8), uint8(g>>8), uint8(b>>8)) {
				mask[y*w+x] = true
			}
		}
	}

	visited := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			if !mask[idx] || visited[idx] {
				continue
			}

			area, minX, minY, maxX, maxY := floodComponent(mask, visited, w, h, x, y)
			if area <= reviveMinArea {
				continue
			}
			bw, bh := maxX-minX+1, maxY-minY+1
			ratio := float64(bw) / float64(bh)
			if ratio > reviveMinRatio && ratio < reviveMaxRatio {
				return image.Point{
					X: bounds.Min.X + minX + bw/2,
					Y: bounds.Min.Y + minY + bh/2,
				}, true
			}
		}
	}

	return image.Point{}, false
}

// isPromptGreen matches the prompt text color: saturated green with barely
// any blue and limited red.
func isPromptGreen(r, g, b uint8) bool {
	return g >= 250 && b <= 50 && r <= 100
}

// floodComponent walks one connected component of the mask and returns its
// pixel count and bounding box.
func floodComponent(mask, visited []bool, w, h, startX, startY int) (area, minX, minY, maxX, maxY int) {
	minX, minY = startX, startY
	maxX, maxY = startX, startY

	stack := []image.Point{{X: startX, Y: startY}}
	visited[startY*w+startX] = true

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		area++

		if p.X < minX {
			minX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y > maxY {
			maxY = p.Y
		}

		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			idx := ny*w + nx
			if mask[idx] && !visited[idx] {
				visited[idx] = true
				stack = append(stack, image.Point{X: nx, Y: ny})
			}
		}
	}
	return area, minX, minY, maxX, maxY
}
