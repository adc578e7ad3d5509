package game

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"github.com/lxn/win"

	"github.com/kadzielawa/wowsup/internal/utils/winproc"
)

type rect struct{ Left, Top, Right, Bottom int32 }

// Window wraps one top-level client window. Coordinates handed to input and
// capture code are client-area relative; the window tracks its own screen
// origin.
type Window struct {
	HWND  win.HWND
	Title string

	left, top     int
	width, height int
}

// FindWindow locates the first visible top-level window whose title contains
// the given fragment, case-insensitively.
func FindWindow(title string) (*Window, error) {
	var found win.HWND
	needle := strings.ToLower(title)

	cb := syscall.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		var buf [256]uint16
		length, _, _ := winproc.GetWindowText.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		if length == 0 {
			return 1
		}
		if strings.Contains(strings.ToLower(syscall.UTF16ToString(buf[:length])), needle) {
			found = win.HWND(hwnd)
			return 0
		}
		return 1
	})
	winproc.EnumWindows.Call(cb, 0)

	if found == 0 {
		return nil, fmt.Errorf("no window with title matching %q", title)
	}

	w := &Window{HWND: found, Title: title}
	w.updatePosition()
	return w, nil
}

func (w *Window) updatePosition() {
	var rc rect
	winproc.GetClientRect.Call(uintptr(w.HWND), uintptr(unsafe.Pointer(&rc)))
	w.width = int(rc.Right - rc.Left)
	w.height = int(rc.Bottom - rc.Top)

	var origin struct{ X, Y int32 }
	winproc.ClientToScreen.Call(uintptr(w.HWND), uintptr(unsafe.Pointer(&origin)))
	w.left = int(origin.X)
	w.top = int(origin.Y)
}

// Focus restores the window if minimized and brings it to the foreground.
// Capture via PrintWindow works on background windows, but synthetic input
// does not.
func (w *Window) Focus() {
	if ret, _, _ := winproc.IsIconic.Call(uintptr(w.HWND)); ret != 0 {
		win.ShowWindow(w.HWND, win.SW_RESTORE)
	}
	winproc.SetForegroundWindow.Call(uintptr(w.HWND))
}

func (w *Window) Focused() bool {
	fg, _, _ := winproc.GetForegroundWindow.Call()
	return win.HWND(fg) == w.HWND
}

// PID returns the process ID owning the window.
func (w *Window) PID() uint32 {
	var pid uint32
	winproc.GetWindowThreadProcessId.Call(uintptr(w.HWND), uintptr(unsafe.Pointer(&pid)))
	return pid
}
