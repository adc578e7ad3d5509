package log

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	writers []*fileWriter
)

type fileWriter struct {
	file *os.File
	buf  *bufio.Writer
}

func (w *fileWriter) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	return w.buf.Write(p)
}

// NewLogger returns a logger writing to stdout and a timestamped file under
// saveDirectory. The file suffix distinguishes per-slot loggers from the
// application one. File output is buffered; call FlushLog after anything the
// log must survive, and FlushAndClose on shutdown.
func NewLogger(debug bool, saveDirectory, fileSuffix string) (*slog.Logger, error) {
	if saveDirectory == "" {
		saveDirectory = "logs"
	}
	if err := os.MkdirAll(saveDirectory, 0755); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	name := fmt.Sprintf("wowsup-log-%s", time.Now().Format("2006-01-02-15_04_05"))
	if fileSuffix != "" {
		name += "-" + fileSuffix
	}
	f, err := os.Create(filepath.Join(saveDirectory, name+".txt"))
	if err != nil {
		return nil, fmt.Errorf("error creating log file: %w", err)
	}

	w := &fileWriter{file: f, buf: bufio.NewWriter(f)}
	mu.Lock()
	writers = append(writers, w)
	mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, w), &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler), nil
}

// FlushLog forces buffered log output to disk.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	for _, w := range writers {
		w.buf.Flush()
	}
}

// FlushAndClose flushes and closes every log file. Only call on shutdown.
func FlushAndClose() {
	mu.Lock()
	defer mu.Unlock()
	for _, w := range writers {
		w.buf.Flush()
		w.file.Close()
	}
	writers = nil
}
