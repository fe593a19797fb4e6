// Package frames turns a continuous camera frame stream into discrete scan
// submissions. A Pipeline keeps at most one frame in flight, drops frames
// that arrive while it is busy, crops the region of interest and releases
// every buffer of a frame once its Ticket is done.
package frames

import (
	"image"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"

	"github.com/MeKo-Tech/wordscan/internal/mempool"
)

// Frame is a camera frame whose native resources must be released exactly
// once after use.
type Frame interface {
	Image() image.Image
	// Rotation is the clockwise rotation in degrees (0, 90, 180, 270) that
	// brings the image upright.
	Rotation() int
	Release()
}

// PooledFrame is an RGBA frame backed by a pooled pixel buffer.
type PooledFrame struct {
	img      *image.RGBA
	rotation int
	released atomic.Bool
	once     sync.Once
}

// NewPooledFrame copies src into a pooled buffer.
func NewPooledFrame(src image.Image, rotation int) *PooledFrame {
	b := src.Bounds()
	dst := mempool.GetRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Copy(dst, image.Point{}, src, b, xdraw.Src, nil)
	return &PooledFrame{img: dst, rotation: rotation}
}

func (f *PooledFrame) Image() image.Image { return f.img }

func (f *PooledFrame) Rotation() int { return f.rotation }

// Release returns the pixel buffer to the pool. Later calls are no-ops.
func (f *PooledFrame) Release() {
	f.once.Do(func() {
		f.released.Store(true)
		mempool.PutRGBA(f.img)
	})
}

// Released reports whether Release has been called.
func (f *PooledFrame) Released() bool { return f.released.Load() }

// ImageFrame adapts a plain image to Frame. OnRelease, if set, runs once.
type ImageFrame struct {
	Img       image.Image
	Rotate    int
	OnRelease func()

	once sync.Once
}

func (f *ImageFrame) Image() image.Image { return f.Img }

func (f *ImageFrame) Rotation() int { return f.Rotate }

func (f *ImageFrame) Release() {
	f.once.Do(func() {
		if f.OnRelease != nil {
			f.OnRelease()
		}
	})
}

// Ticket is the completion token handed to the Submitter with every
// submission. Done releases the frame's buffers; only the first call counts.
type Ticket struct {
	once sync.Once
	done func()
}

// NewTicket returns a ticket running done on the first Done call.
func NewTicket(done func()) *Ticket { return &Ticket{done: done} }

// Done resolves the ticket. It is safe to call from any goroutine and more
// than once, and on a nil ticket.
func (t *Ticket) Done() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if t.done != nil {
			t.done()
		}
	})
}

// Submitter receives prepared frames. It must call ticket.Done exactly when
// it no longer needs img.
type Submitter interface {
	SubmitFrame(img image.Image, ticket *Ticket)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(img image.Image, ticket *Ticket)

func (f SubmitterFunc) SubmitFrame(img image.Image, ticket *Ticket) { f(img, ticket) }
