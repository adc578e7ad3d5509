package game

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"
	"unsafe"

	"github.com/kadzielawa/wowsup/internal/utils/winproc"
)

type bmpInfoHeader struct {
	BiSize          uint32
	BiWidth         int32
	BiHeight        int32
	BiPlanes        uint16
	BiBitCount      uint16
	BiCompression   uint32
	BiSizeImage     uint32
	BiXPelsPerMeter int32
	BiYPelsPerMeter int32
	BiClrUsed       uint32
	BiClrImportant  uint32
}

type bitmapInfo struct{ Header bmpInfoHeader }

// Capturer grabs the client area of one window and resolves named anchor
// templates inside it.
type Capturer struct {
	win        *Window
	anchorsDir string

	mu        sync.Mutex
	templates map[string]*image.RGBA
}

func NewCapturer(win *Window, anchorsDir string) *Capturer {
	return &Capturer{
		win:        win,
		anchorsDir: anchorsDir,
		templates:  make(map[string]*image.RGBA),
	}
}

// Capture snapshots the window's client area. PrintWindow with
// PW_CLIENTONLY|PW_RENDERFULLCONTENT (flags=3) captures DirectX-rendered
// windows that an ordinary BitBlt from the screen DC would miss.
func (c *Capturer) Capture() (image.Image, error) {
	c.win.updatePosition()
	width, height := c.win.width, c.win.height
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("window has no client area")
	}

	hdcScreen, _, _ := winproc.GetDC.Call(0)
	if hdcScreen == 0 {
		return nil, fmt.Errorf("GetDC failed")
	}
	defer winproc.ReleaseDC.Call(0, hdcScreen)

	hdcMem, _, _ := winproc.CreateCompatibleDC.Call(hdcScreen)
	if hdcMem == 0 {
		return nil, fmt.Errorf("CreateCompatibleDC failed")
	}
	defer winproc.DeleteDC.Call(hdcMem)

	// Top-down 32bpp DIB
	bi := bitmapInfo{Header: bmpInfoHeader{
		BiSize:     40,
		BiWidth:    int32(width),
		BiHeight:   -int32(height),
		BiPlanes:   1,
		BiBitCount: 32,
	}}
	var bitsPtr uintptr
	hbm, _, _ := winproc.CreateDIBSection.Call(hdcScreen, uintptr(unsafe.Pointer(&bi)), 0, uintptr(unsafe.Pointer(&bitsPtr)), 0, 0)
	if hbm == 0 || bitsPtr == 0 {
		return nil, fmt.Errorf("CreateDIBSection failed")
	}
	defer winproc.DeleteObject.Call(hbm)
	winproc.SelectObject.Call(hdcMem, hbm)

	winproc.PrintWindow.Call(uintptr(c.win.HWND), hdcMem, 3)
	winproc.GdiFlush.Call()

	n := width * height * 4
	var src []byte
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	hdr.Data = bitsPtr
	hdr.Len = n
	hdr.Cap = n

	// BGRA -> RGBA
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, src)
	for i := 0; i < n; i += 4 {
		img.Pix[i], img.Pix[i+2] = img.Pix[i+2], img.Pix[i]
	}
	return img, nil
}

func (c *Capturer) CaptureRegion(r image.Rectangle) (image.Image, error) {
	full, err := c.Capture()
	if err != nil {
		return nil, err
	}
	rgba, ok := full.(*image.RGBA)
	if !ok {
		return nil, fmt.Errorf("unexpected capture format")
	}
	clipped := r.Intersect(rgba.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("region %v outside window bounds %v", r, rgba.Bounds())
	}
	return rgba.SubImage(clipped), nil
}

func (c *Capturer) SaveScreenshot(path string) error {
	img, err := c.Capture()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

// FindAnchor polls for the named template inside the window until it is
// found or the deadline passes. The returned point is the template's center
// in client coordinates.
func (c *Capturer) FindAnchor(ctx context.Context, name string, timeout time.Duration) (image.Point, bool) {
	tpl, err := c.template(name)
	if err != nil {
		return image.Point{}, false
	}

	deadline := time.Now().Add(timeout)
	for {
		img, err := c.Capture()
		if err == nil {
			if pt, ok := matchTemplate(img.(*image.RGBA), tpl); ok {
				return image.Point{
					X: pt.X + tpl.Bounds().Dx()/2,
					Y: pt.Y + tpl.Bounds().Dy()/2,
				}, true
			}
		}

		if time.Now().After(deadline) {
			return image.Point{}, false
		}
		select {
		case <-ctx.Done():
			return image.Point{}, false
		case <-time.After(time.Second):
		}
	}
}

func (c *Capturer) template(name string) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tpl, ok := c.templates[name]; ok {
		return tpl, nil
	}

	f, err := os.Open(filepath.Join(c.anchorsDir, name+".png"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding anchor %s: %w", name, err)
	}

	tpl := image.NewRGBA(decoded.Bounds())
	for y := decoded.Bounds().Min.Y; y < decoded.Bounds().Max.Y; y++ {
		for x := decoded.Bounds().Min.X; x < decoded.Bounds().Max.X; x++ {
			tpl.Set(x, y, decoded.At(x, y))
		}
	}
	c.templates[name] = tpl
	return tpl, nil
}

// matchTolerance absorbs the client's slight frame-to-frame shading changes
// on otherwise static UI elements.
const matchTolerance = 12

// matchTemplate scans for the first position where the template matches the
// image within the per-channel tolerance. A cheap top-left corner probe
// rejects most positions before the full comparison runs.
func matchTemplate(img, tpl *image.RGBA) (image.Point, bool) {
	ib, tb := img.Bounds(), tpl.Bounds()
	tw, th := tb.Dx(), tb.Dy()
	if tw == 0 || th == 0 || tw > ib.Dx() || th > ib.Dy() {
		return image.Point{}, false
	}

	for y := ib.Min.Y; y <= ib.Max.Y-th; y++ {
		for x := ib.Min.X; x <= ib.Max.X-tw; x++ {
			if !pixelClose(img, x, y, tpl, tb.Min.X, tb.Min.Y) {
				continue
			}
			if regionMatches(img, x, y, tpl) {
				return image.Point{X: x, Y: y}, true
			}
		}
	}
	return image.Point{}, false
}

func regionMatches(img *image.RGBA, ox, oy int, tpl *image.RGBA) bool {
	tb := tpl.Bounds()
	for ty := 0; ty < tb.Dy(); ty++ {
		for tx := 0; tx < tb.Dx(); tx++ {
			if !pixelClose(img, ox+tx, oy+ty, tpl, tb.Min.X+tx, tb.Min.Y+ty) {
				return false
			}
		}
	}
	return true
}

func pixelClose(img *image.RGBA, ix, iy int, tpl *image.RGBA, tx, ty int) bool {
	io := img.PixOffset(ix, iy)
	to := tpl.PixOffset(tx, ty)
	for c := 0; c < 3; c++ {
		d := int(img.Pix[io+c]) - int(tpl.Pix[to+c])
		if d < -matchTolerance || d > matchTolerance {
			return false
		}
	}
	return true
}
