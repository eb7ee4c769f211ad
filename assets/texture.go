package assets

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register decoders for LoadTexture
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Texture is an RGBA8 image, rows top to bottom.
type Texture struct {
	Width, Height uint32
	Pixels        []byte
}

// NewSolidTexture returns a width x height texture filled with c.
func NewSolidTexture(width, height uint32, c color.RGBA) Texture {
	t := Texture{Width: width, Height: height, Pixels: make([]byte, 4*int(width)*int(height))}
	for i := 0; i < len(t.Pixels); i += 4 {
		t.Pixels[i], t.Pixels[i+1], t.Pixels[i+2], t.Pixels[i+3] = c.R, c.G, c.B, c.A
	}
	return t
}

// DummyTexture is bound when a scene has no textures of its own.
func DummyTexture() Texture {
	return NewSolidTexture(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})
}

// NewCheckerTexture returns a size x size checkerboard with cells of cell
// pixels.
func NewCheckerTexture(size, cell uint32, a, b color.RGBA) Texture {
	if cell == 0 {
		cell = 1
	}
	t := NewSolidTexture(size, size, a)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			if (x/cell+y/cell)%2 == 1 {
				i := 4 * (y*size + x)
				t.Pixels[i], t.Pixels[i+1], t.Pixels[i+2], t.Pixels[i+3] = b.R, b.G, b.B, b.A
			}
		}
	}
	return t
}

// LoadTexture decodes a PNG, JPEG, BMP or WebP image. Images wider or
// taller than maxSize are scaled down to fit; maxSize 0 keeps the original
// size.
func LoadTexture(r io.Reader, maxSize int) (Texture, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return Texture{}, fmt.Errorf("%w: decode texture: %w", ErrSceneLoad, err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Texture{}, fmt.Errorf("%w: %s texture is empty", ErrSceneLoad, format)
	}
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			w, h = maxSize, max(1, h*maxSize/w)
		} else {
			w, h = max(1, w*maxSize/h), maxSize
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	} else {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	}
	return Texture{Width: uint32(w), Height: uint32(h), Pixels: dst.Pix}, nil
}
