package capture

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// overlay stamps a single line of text on a frame, on top of a translucent
// box so it stays readable on any background.
type overlay struct {
	ctx    *freetype.Context
	bounds fixed.Rectangle26_6
	box    image.Image
	pad    int
}

func newOverlay(size, dpi float64) (*overlay, error) {
	tt, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return newOverlayFont(tt, size, dpi), nil
}

func newOverlayFont(tt *truetype.Font, size, dpi float64) *overlay {
	ctx := freetype.NewContext()
	ctx.SetFont(tt)
	ctx.SetFontSize(size)
	ctx.SetDPI(dpi)
	ctx.SetSrc(image.NewUniform(color.White))

	return &overlay{
		ctx:    ctx,
		bounds: tt.Bounds(fixed.Int26_6(0.5 + (size * dpi * 64 / 72))),
		box:    image.NewUniform(color.RGBA{0, 0, 0, 160}),
		pad:    4,
	}
}

// measure returns the size of text without drawing it.
func (o *overlay) measure(text string) (image.Point, error) {
	return o.write(nil, text, image.Point{})
}

// draw writes text with its top-left corner at pt.
func (o *overlay) draw(img draw.Image, text string, pt image.Point) error {
	sz, err := o.measure(text)
	if err != nil {
		return err
	}

	r := image.Rectangle{Min: pt, Max: pt.Add(sz)}.Inset(-o.pad).Intersect(img.Bounds())
	draw.Draw(img, r, o.box, image.Point{}, draw.Over)
	_, err = o.write(img, text, pt)
	return err
}

func (o *overlay) write(img draw.Image, text string, pt image.Point) (image.Point, error) {
	var clip image.Rectangle
	if img != nil {
		clip = img.Bounds()
	}
	o.ctx.SetDst(img)
	o.ctx.SetClip(clip)

	ascent := -o.bounds.Max.Y
	descent := -o.bounds.Min.Y - 63

	f := fixed.P(pt.X, pt.Y)
	f.Y -= ascent
	end, err := o.ctx.DrawString(text, f)
	if err != nil {
		return image.Point{}, err
	}
	return image.Pt(int(end.X)>>6-pt.X, int(end.Y+descent-ascent)>>6-pt.Y), nil
}
