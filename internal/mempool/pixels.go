// Package mempool recycles pixel buffers on the frame hot path. Live capture
// delivers frames of the same few sizes many times per second; reusing their
// backing arrays keeps the allocator out of the capture loop.
package mempool

import (
	"image"
	"sync"
	"sync/atomic"
)

// sizeStep is the granularity of buffer size classes (one 128x128 RGBA tile).
const sizeStep = 64 << 10

var (
	bytePools sync.Map // key: size class (int), value: *sync.Pool

	gets   atomic.Int64
	puts   atomic.Int64
	allocs atomic.Int64
)

// sizeClass rounds n up to the next multiple of sizeStep.
func sizeClass(n int) int {
	if n <= sizeStep {
		return sizeStep
	}
	r := (n + sizeStep - 1) / sizeStep
	return r * sizeStep
}

func poolFor(cls int) *sync.Pool {
	pAny, _ := bytePools.LoadOrStore(cls, &sync.Pool{New: func() any {
		allocs.Add(1)
		b := make([]byte, cls)
		return &b
	}})
	p, _ := pAny.(*sync.Pool)
	return p
}

// GetBytes retrieves a []byte buffer of length n. Its contents are
// unspecified. The caller must return it via PutBytes when done.
func GetBytes(n int) []byte {
	if n < 0 {
		n = 0
	}
	gets.Add(1)
	cls := sizeClass(n)
	p := poolFor(cls)
	if p == nil {
		allocs.Add(1)
		return make([]byte, n, cls)
	}
	bp, ok := p.Get().(*[]byte)
	if !ok || cap(*bp) < cls {
		allocs.Add(1)
		b := make([]byte, cls)
		bp = &b
	}
	return (*bp)[:n]
}

// PutBytes returns a buffer to the pool. It is safe to pass a nil slice.
// Buffers whose capacity is not a size class are dropped.
func PutBytes(buf []byte) {
	if buf == nil {
		return
	}
	cls := cap(buf)
	if sizeClass(cls) != cls {
		return
	}
	puts.Add(1)
	if p := poolFor(cls); p != nil {
		b := buf[:cls]
		p.Put(&b)
	}
}

// GetRGBA returns an RGBA image with bounds r backed by a pooled buffer.
// Pixels are zeroed.
func GetRGBA(r image.Rectangle) *image.RGBA {
	n := 4 * r.Dx() * r.Dy()
	pix := GetBytes(n)
	clear(pix)
	return &image.RGBA{Pix: pix, Stride: 4 * r.Dx(), Rect: r}
}

// PutRGBA returns the pixel buffer of img to the pool. img must not be used
// afterwards.
func PutRGBA(img *image.RGBA) {
	if img == nil {
		return
	}
	PutBytes(img.Pix)
	img.Pix = nil
}

// Stats reports pool activity since process start.
type Stats struct {
	Gets   int64
	Puts   int64
	Allocs int64
}

// Snapshot returns the current pool counters.
func Snapshot() Stats {
	return Stats{Gets: gets.Load(), Puts: puts.Load(), Allocs: allocs.Load()}
}
