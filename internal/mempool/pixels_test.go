package mempool

import (
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "zero size", input: 0, expected: sizeStep},
		{name: "small size gets minimum", input: 1, expected: sizeStep},
		{name: "exactly one step", input: sizeStep, expected: sizeStep},
		{name: "just over one step", input: sizeStep + 1, expected: 2 * sizeStep},
		{name: "VGA frame", input: 4 * 640 * 480, expected: 4 * 640 * 480},
		{name: "negative size", input: -1, expected: sizeStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetBytes(t *testing.T) {
	buf := GetBytes(1000)
	assert.Len(t, buf, 1000)
	assert.Equal(t, sizeStep, cap(buf))
	PutBytes(buf)

	assert.Empty(t, GetBytes(-5))
}

func TestPutBytes_IgnoresForeignBuffers(t *testing.T) {
	before := Snapshot()
	PutBytes(nil)
	PutBytes(make([]byte, 10))
	assert.Equal(t, before.Puts, Snapshot().Puts)
}

func TestGetRGBA(t *testing.T) {
	r := image.Rect(10, 20, 110, 70)
	img := GetRGBA(r)
	require.NotNil(t, img)
	assert.Equal(t, r, img.Bounds())
	assert.Equal(t, 400, img.Stride)
	assert.Len(t, img.Pix, 4*100*50)

	// Pooled pixels come back zeroed even after being dirtied.
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	PutRGBA(img)
	assert.Nil(t, img.Pix)

	again := GetRGBA(r)
	for _, b := range again.Pix {
		if b != 0 {
			t.Fatal("pooled image not cleared")
		}
	}
	PutRGBA(again)
	PutRGBA(nil)
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				img := GetRGBA(image.Rect(0, 0, 32+w, 32+i))
				img.Pix[0] = byte(i)
				PutRGBA(img)
			}
		}()
	}
	wg.Wait()

	s := Snapshot()
	assert.GreaterOrEqual(t, s.Gets, int64(400))
	assert.GreaterOrEqual(t, s.Puts, int64(400))
}
