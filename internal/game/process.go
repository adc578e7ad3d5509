package game

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Process is one row of the OS task list.
type Process struct {
	Name          string
	PID           uint32
	WindowTitle   string
	NotResponding bool
}

// Controller manipulates the OS process table and owns the machine-level
// actions (shell restart, reboot, shutdown).
type Controller struct {
	logger *slog.Logger
}

func NewController(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

// Tasks polls the process table via tasklist in verbose CSV mode; the
// verbose columns carry the responsiveness status and window title.
func (c *Controller) Tasks() ([]Process, error) {
	out, err := exec.Command("tasklist", "/v", "/fo", "csv", "/nh").Output()
	if err != nil {
		return nil, fmt.Errorf("tasklist: %w", err)
	}

	r := csv.NewReader(strings.NewReader(string(out)))
	r.FieldsPerRecord = -1

	var procs []Process
	for {
		fields, err := r.Read()
		if err != nil {
			break
		}
		// Image Name, PID, Session Name, Session#, Mem Usage, Status,
		// User Name, CPU Time, Window Title
		if len(fields) < 9 {
			continue
		}
		pid, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		procs = append(procs, Process{
			Name:          fields[0],
			PID:           uint32(pid),
			WindowTitle:   fields[8],
			NotResponding: strings.EqualFold(fields[5], "Not Responding"),
		})
	}
	return procs, nil
}

func (c *Controller) Kill(pid uint32) error {
	if err := exec.Command("taskkill", "/PID", strconv.FormatUint(uint64(pid), 10), "/F").Run(); err != nil {
		return fmt.Errorf("taskkill pid %d: %w", pid, err)
	}
	return nil
}

func (c *Controller) Start(path string, args ...string) error {
	cmd := exec.Command(path, args...)
	cmd.Dir = filepath.Dir(path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", path, err)
	}
	// Detach: the child outlives us and is reaped by the OS.
	go cmd.Wait()
	return nil
}

// RestartShell restarts Windows Explorer. The game client sometimes leaves
// the shell wedged after a fullscreen session; a fresh explorer.exe clears
// it before the next slot logs in. When the task table already shows two
// explorer rows a restart raced a previous one: only the second, stray entry
// is killed and the surviving shell is kept.
func (c *Controller) RestartShell() error {
	if procs, err := c.Tasks(); err == nil {
		var shells []Process
		for _, p := range procs {
			if strings.EqualFold(p.Name, "explorer.exe") {
				shells = append(shells, p)
			}
		}
		if len(shells) > 1 {
			c.logger.Info("two shell entries in task table, killing the stray one",
				slog.Any("pid", shells[1].PID))
			return c.Kill(shells[1].PID)
		}
	}

	if err := exec.Command("taskkill", "/IM", "explorer.exe", "/F").Run(); err != nil {
		c.logger.Warn("explorer kill failed", slog.Any("error", err))
	}
	return exec.Command("explorer.exe").Start()
}

func (c *Controller) Reboot() error {
	c.logger.Warn("issuing machine reboot")
	return exec.Command("shutdown", "/r", "/t", "0").Run()
}

func (c *Controller) Shutdown() error {
	c.logger.Warn("issuing machine shutdown")
	return exec.Command("shutdown", "/s", "/t", "0").Run()
}
