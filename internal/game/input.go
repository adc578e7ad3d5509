package game

import (
	"math"
	"time"
	"unsafe"

	"github.com/lxn/win"

	"github.com/kadzielawa/wowsup/internal/utils/winproc"
)

const (
	inputKeyboard = 1
	inputMouse    = 0

	keyeventfKeyUp = 0x0002

	mouseeventfMove     = 0x0001
	mouseeventfLeftDown = 0x0002
	mouseeventfLeftUp   = 0x0004
	mouseeventfAbsolute = 0x8000
)

type keybdInput struct {
	Vk        uint16
	Scan      uint16
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type mouseInput struct {
	Dx        int32
	Dy        int32
	MouseData uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// keyboardEvent and mouseEvent both map the Win32 INPUT struct; trailing
// padding keeps both at the union's 40-byte size on amd64.
type keyboardEvent struct {
	Type uint32
	_    uint32
	Ki   keybdInput
	_    [8]byte
}

type mouseEvent struct {
	Type uint32
	_    uint32
	Mi   mouseInput
}

var vkCodes = map[string]uint16{
	"a": 0x41, "b": 0x42, "d": 0x44, "s": 0x53, "w": 0x57,
	"x": 0x58, "z": 0x5A,
	"space": win.VK_SPACE,
	"esc":   win.VK_ESCAPE,
	"enter": win.VK_RETURN,
	"tab":   win.VK_TAB,
	"f3":    win.VK_F3,
	"f4":    win.VK_F4,
	"f9":    win.VK_F9,
	"f10":   win.VK_F10,
	"alt":   win.VK_MENU,
	"shift": win.VK_SHIFT,
	"ctrl":  win.VK_CONTROL,
}

// Input drives synthetic keyboard and mouse events against one window.
// Pointer moves play back a generated trajectory instead of teleporting the
// cursor.
type Input struct {
	win *Window

	// last known cursor position in screen coordinates; -1 until the first
	// move of the session.
	lastX, lastY int
}

func NewInput(win *Window) *Input {
	return &Input{win: win, lastX: -1, lastY: -1}
}

func (in *Input) Press(key string) {
	in.KeyDown(key)
	time.Sleep(time.Duration(40+int(driftUniform(0, 60))) * time.Millisecond)
	in.KeyUp(key)
}

func (in *Input) KeyDown(key string) {
	in.sendKey(key, 0)
}

func (in *Input) KeyUp(key string) {
	in.sendKey(key, keyeventfKeyUp)
}

func (in *Input) sendKey(key string, flags uint32) {
	vk, ok := vkCodes[key]
	if !ok {
		return
	}
	in.win.Focus()
	in.rawKey(vk, flags)
}

// Click moves the pointer to the client-relative position along a humanized
// path and performs a left click there.
func (in *Input) Click(x, y int) {
	in.win.Focus()
	in.win.updatePosition()

	absX := in.win.left + x
	absY := in.win.top + y

	if in.lastX < 0 {
		in.moveCursor(absX, absY)
	} else {
		path := driftPath(float64(in.lastX), float64(in.lastY), float64(absX), float64(absY), defaultDriftConfig)
		for i, pt := range path {
			in.moveCursor(int(math.Round(pt.x)), int(math.Round(pt.y)))
			if i+1 < len(path) {
				if dt := path[i+1].t - pt.t; dt > 0 {
					time.Sleep(time.Duration(dt) * time.Millisecond)
				}
			}
		}
		in.moveCursor(absX, absY)
	}
	in.lastX, in.lastY = absX, absY

	in.sendMouse(0, 0, mouseeventfLeftDown)
	time.Sleep(time.Duration(50+int(driftUniform(0, 70))) * time.Millisecond)
	in.sendMouse(0, 0, mouseeventfLeftUp)
}

// TypeText types printable ASCII into the focused control, one keystroke at
// a time with human-paced gaps. Only what profile names are made of is
// supported: letters, digits, space, dash and underscore.
func (in *Input) TypeText(text string) {
	in.win.Focus()
	for _, r := range text {
		vk, shift := charToVk(r)
		if vk == 0 {
			continue
		}
		if shift {
			in.rawKey(win.VK_SHIFT, 0)
		}
		in.rawKey(vk, 0)
		time.Sleep(time.Duration(30+int(driftUniform(0, 90))) * time.Millisecond)
		in.rawKey(vk, keyeventfKeyUp)
		if shift {
			in.rawKey(win.VK_SHIFT, keyeventfKeyUp)
		}
	}
}

func charToVk(r rune) (vk uint16, shift bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return uint16(r - 'a' + 0x41), false
	case r >= 'A' && r <= 'Z':
		return uint16(r - 'A' + 0x41), true
	case r >= '0' && r <= '9':
		return uint16(r - '0' + 0x30), false
	case r == ' ':
		return win.VK_SPACE, false
	case r == '-':
		return 0xBD, false
	case r == '_':
		return 0xBD, true
	}
	return 0, false
}

func (in *Input) rawKey(vk uint16, flags uint32) {
	scan, _, _ := winproc.MapVirtualKey.Call(uintptr(vk), 0)
	ev := keyboardEvent{
		Type: inputKeyboard,
		Ki: keybdInput{
			Vk:    vk,
			Scan:  uint16(scan),
			Flags: flags,
		},
	}
	winproc.SendInput.Call(1, uintptr(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
}

// moveCursor issues an absolute mouse move, with coordinates normalized to
// the 0..65535 range SendInput expects.
func (in *Input) moveCursor(x, y int) {
	screenW := int(win.GetSystemMetrics(win.SM_CXSCREEN))
	screenH := int(win.GetSystemMetrics(win.SM_CYSCREEN))
	if screenW <= 1 || screenH <= 1 {
		return
	}
	nx := int32(x * 65535 / (screenW - 1))
	ny := int32(y * 65535 / (screenH - 1))
	in.sendMouse(nx, ny, mouseeventfMove|mouseeventfAbsolute)
}

func (in *Input) sendMouse(dx, dy int32, flags uint32) {
	ev := mouseEvent{
		Type: inputMouse,
		Mi: mouseInput{
			Dx:    dx,
			Dy:    dy,
			Flags: flags,
		},
	}
	winproc.SendInput.Call(1, uintptr(unsafe.Pointer(&ev)), unsafe.Sizeof(ev))
}
