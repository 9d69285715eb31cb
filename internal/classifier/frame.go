package classifier

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/Ammarmeer/drowsiness/internal/models"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const Channels = 3

// Frame is an 8-bit BGR image, row-major, len(Pix) == Width*Height*3.
type Frame struct {
	Width  int
	Height int
	Pix    []byte
}

func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Pix) == f.Width*f.Height*Channels
}

// DecodeFrame decodes an encoded image (jpeg, png, gif, bmp, tiff, webp).
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty image", models.ErrInvalidInput)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Frame{}, fmt.Errorf("%w: invalid image: %v", models.ErrInvalidInput, err)
	}
	return FromImage(img), nil
}

func FromImage(img image.Image) Frame {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*Channels)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		out := pix[y*w*Channels:]
		for x := 0; x < w; x++ {
			out[x*3+0] = row[x*4+2]
			out[x*3+1] = row[x*4+1]
			out[x*3+2] = row[x*4+0]
		}
	}
	return Frame{Width: w, Height: h, Pix: pix}
}
