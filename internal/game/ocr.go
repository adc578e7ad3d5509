package game

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
)

// logConsoleRegion is where the macro tool renders its log console inside
// the client window.
var logConsoleRegion = image.Rect(0, 30, 258, 342)

// ConsoleSource yields a fresh capture of the log console region. The macro
// tool implements this against whatever window it is currently attached to.
type ConsoleSource interface {
	CaptureConsole() (image.Image, error)
}

// OCRSensor reads the macro tool's log console by screenshotting its region
// and running tesseract over it.
type OCRSensor struct {
	logger        *slog.Logger
	source        ConsoleSource
	tesseractPath string
	scratchDir    string
}

func NewOCRSensor(logger *slog.Logger, source ConsoleSource, tesseractPath string) *OCRSensor {
	return &OCRSensor{
		logger:        logger,
		source:        source,
		tesseractPath: tesseractPath,
		scratchDir:    os.TempDir(),
	}
}

// ReadLog captures the console region and OCRs it. psm 6 treats the crop as
// a single uniform block of text, which matches the console layout.
func (s *OCRSensor) ReadLog(ctx context.Context) (string, error) {
	img, err := s.source.CaptureConsole()
	if err != nil {
		return "", fmt.Errorf("capturing log console: %w", err)
	}

	path := filepath.Join(s.scratchDir, "wowsup_logconsole.png")
	if err := writePNG(path, img); err != nil {
		return "", err
	}

	out, err := exec.CommandContext(ctx, s.tesseractPath, path, "stdout", "--psm", "6").Output()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating scratch image: %w", err)
	}
	defer f.Close()
	return png.Encode(f, img)
}
